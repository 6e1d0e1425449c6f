package apperr

import (
	"errors"
	"net/http"
)

// エラーの種類。handlerはこれでHTTPステータスを決める。
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
	KindPaymentDeclined
	KindReconciliationRequired
	KindCartClearFailed
)

// 重大度
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityCritical
)

var (
	//401 ログインしていない
	ErrUnauthenticated = errors.New("unauthenticated")
	//403 権限なし
	ErrForbidden = errors.New("forbidden")
	//404
	ErrNotFound = errors.New("not found")
	//400 入力不正
	ErrValidation = errors.New("validation failed")
	//409 競合
	ErrConflict = errors.New("conflict")
	//402 決済拒否（副作用なし）
	ErrPaymentDeclined = errors.New("payment declined")
	// 課金済みかもしれないのに注文が無い。自動リトライ禁止
	ErrReconciliationRequired = errors.New("reconciliation required")
	// 注文は有効。カートが残っただけ
	ErrCartClearFailed = errors.New("cart clear failed")
	//500
	ErrInternal = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindInternal:               ErrInternal,
	KindUnauthenticated:        ErrUnauthenticated,
	KindForbidden:              ErrForbidden,
	KindNotFound:               ErrNotFound,
	KindValidation:             ErrValidation,
	KindConflict:               ErrConflict,
	KindPaymentDeclined:        ErrPaymentDeclined,
	KindReconciliationRequired: ErrReconciliationRequired,
	KindCartClearFailed:        ErrCartClearFailed,
}

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION_FAILED"
	case KindConflict:
		return "CONFLICT"
	case KindPaymentDeclined:
		return "PAYMENT_DECLINED"
	case KindReconciliationRequired:
		return "RECONCILIATION_REQUIRED"
	case KindCartClearFailed:
		return "CART_CLEAR_FAILED"
	default:
		return "INTERNAL"
	}
}

func (k Kind) Severity() Severity {
	switch k {
	case KindReconciliationRequired:
		return SeverityCritical
	case KindCartClearFailed:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// HTTPStatus は種類ごとのレスポンスステータス。
// ReconciliationRequired はクライアントが自動で再送しない 409 にする。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindReconciliationRequired:
		return http.StatusConflict
	case KindPaymentDeclined:
		return http.StatusPaymentRequired
	case KindCartClearFailed:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Error はusecaseが返すエラー。
// State はcheckoutでどこまで進んだか（それ以外は空）。
type Error struct {
	Kind    Kind
	Message string
	State   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// errors.Is(err, apperr.ErrForbidden) と元エラーの両方で判定できる
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{sentinels[e.Kind]}
	}
	return []error{sentinels[e.Kind], e.Err}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithState はcheckoutの到達状態を付けたコピーを返す。
func (e *Error) WithState(state string) *Error {
	cp := *e
	cp.State = state
	return &cp
}

// KindOf はerrの種類を返す。分からなければInternal。
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if k != KindInternal && errors.Is(err, s) {
			return k
		}
	}
	return KindInternal
}

// AsError はerrから*Errorを取り出す。
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
