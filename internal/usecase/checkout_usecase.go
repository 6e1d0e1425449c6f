package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/payment"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
)

// checkoutがどこまで進んだか。エラーのStateに入る。
type CheckoutState string

const (
	StateIdle           CheckoutState = "IDLE"
	StateCartLoaded     CheckoutState = "CART_LOADED"
	StatePriced         CheckoutState = "PRICED"
	StateCharged        CheckoutState = "CHARGED"
	StateOrderPersisted CheckoutState = "ORDER_PERSISTED"
	StateCartCleared    CheckoutState = "CART_CLEARED"
	StateComplete       CheckoutState = "COMPLETE"
)

// メトリクスのoutcomeラベル
const (
	outcomeCompleted            = "completed"
	outcomeCompletedWithWarning = "completed_with_warning"
	outcomeReplayed             = "replayed"
	outcomeDeclined             = "declined"
	outcomeReconciliation       = "reconciliation_required"
	outcomeRejected             = "rejected"
	outcomeError                = "error"
)

const maxIdempotencyKeyLen = 255

type CheckoutConfig struct {
	Currency       string
	PaymentTimeout time.Duration
	LockTTL        time.Duration
}

type CheckoutDeps struct {
	Tx         repo.TransactionManager
	CartItems  repo.CartItemRepository
	Attempts   repo.CheckoutAttemptRepository
	Orders     repo.OrderRepository
	OrderItems repo.OrderItemRepository
	Gateway    payment.Gateway
	Locker     Locker
	Metrics    CheckoutMetrics
	Logger     *slog.Logger
	Clock      Clock
	IDGen      IDGenerator
}

// CheckoutUsecase はカートを支払い済みの注文に変える。
// 課金は1回だけ。課金後に失敗したら再課金せず照合待ちにする。
type CheckoutUsecase struct {
	tx         repo.TransactionManager
	cartItems  repo.CartItemRepository
	attempts   repo.CheckoutAttemptRepository
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	gateway    payment.Gateway
	locker     Locker
	metrics    CheckoutMetrics
	logger     *slog.Logger
	clock      Clock
	idGen      IDGenerator
	cfg        CheckoutConfig
}

// DI
func NewCheckoutUsecase(d CheckoutDeps, cfg CheckoutConfig) *CheckoutUsecase {
	metrics := d.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &CheckoutUsecase{
		tx:         d.Tx,
		cartItems:  d.CartItems,
		attempts:   d.Attempts,
		orders:     d.Orders,
		orderItems: d.OrderItems,
		gateway:    d.Gateway,
		locker:     d.Locker,
		metrics:    metrics,
		logger:     loggerOrDefault(d.Logger),
		clock:      d.Clock,
		idGen:      d.IDGen,
		cfg:        cfg,
	}
}

type CheckoutInput struct {
	PaymentToken   string
	IdempotencyKey string
}

// CheckoutResult のCartClearErrは注文成功後の警告（注文は有効）。
type CheckoutResult struct {
	Order        OrderOutput
	CartClearErr error
	Replayed     bool
}

func (u *CheckoutUsecase) Checkout(ctx context.Context, p *model.Principal, in CheckoutInput) (CheckoutResult, error) {
	start := u.clock.Now()
	res, outcome, err := u.checkout(ctx, p, in)
	u.metrics.ObserveCheckout(outcome, u.clock.Now().Sub(start))
	return res, err
}

func (u *CheckoutUsecase) checkout(ctx context.Context, p *model.Principal, in CheckoutInput) (CheckoutResult, string, error) {
	state := StateIdle

	// 未ログインなら何も始めない
	if err := policy.Authorize(p); err != nil {
		return CheckoutResult{}, outcomeRejected, err
	}
	token := strings.TrimSpace(in.PaymentToken)
	if token == "" {
		return CheckoutResult{}, outcomeRejected, apperr.New(apperr.KindValidation, "payment token is required").WithState(string(state))
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return CheckoutResult{}, outcomeRejected, apperr.New(apperr.KindValidation, "invalid idempotency key").WithState(string(state))
	}

	log := u.logger.With("user_id", p.ID)

	// 同じユーザーのcheckoutは1本ずつ
	release, ok, err := u.locker.Acquire(ctx, checkoutLockKey(p.ID), u.cfg.LockTTL)
	if err != nil {
		return CheckoutResult{}, outcomeError, apperr.Wrap(apperr.KindInternal, "could not start checkout", err).WithState(string(state))
	}
	if !ok {
		return CheckoutResult{}, outcomeRejected, apperr.New(apperr.KindConflict, "checkout already in progress").WithState(string(state))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("checkout: release lock", "error", err)
		}
	}()

	// 同じキーで完了済みなら同じ注文を返す
	if key != "" {
		done, found, err := u.attempts.FindCompletedByClientKey(ctx, p.ID, key)
		if err != nil {
			return CheckoutResult{}, outcomeError, apperr.Wrap(apperr.KindInternal, "db error", err).WithState(string(state))
		}
		if found && done.OrderID != nil {
			out, err := u.loadOrder(ctx, *done.OrderID)
			if err != nil {
				return CheckoutResult{}, outcomeError, apperr.Wrap(apperr.KindInternal, "db error", err).WithState(string(state))
			}
			return CheckoutResult{Order: out, Replayed: true}, outcomeReplayed, nil
		}
	}

	// 前回の課金が未確定なら課金しない
	pending, found, err := u.attempts.FindUnresolvedByUserID(ctx, p.ID)
	if err != nil {
		return CheckoutResult{}, outcomeError, apperr.Wrap(apperr.KindInternal, "db error", err).WithState(string(state))
	}
	if found {
		log.Warn("checkout: blocked by unresolved attempt", "attempt_id", pending.ID, "status", pending.Status)
		return CheckoutResult{}, outcomeReconciliation, apperr.New(
			apperr.KindReconciliationRequired,
			"a previous checkout is awaiting reconciliation; you have not been charged again",
		).WithState(string(state))
	}

	lines, err := u.cartItems.ListByUserID(ctx, p.ID)
	if err != nil {
		return CheckoutResult{}, outcomeError, apperr.Wrap(apperr.KindInternal, "could not load cart", err).WithState(string(state))
	}
	lineIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		lineIDs = append(lineIDs, l.ID)
	}
	state = StateCartLoaded

	total, err := priceLines(lines)
	if err != nil {
		return CheckoutResult{}, outcomeRejected, asAppErr(err).WithState(string(state))
	}
	state = StatePriced

	now := u.clock.Now()
	attempt := model.CheckoutAttempt{
		ID:        u.idGen.NewID(),
		UserID:    p.ID,
		Status:    model.CheckoutStatusPending,
		ClientKey: key,
		Amount:    total,
		Currency:  u.cfg.Currency,
		LineIDs:   lineIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.attempts.Create(ctx, attempt); err != nil {
		return CheckoutResult{}, outcomeError, apperr.Wrap(apperr.KindInternal, "could not record checkout; nothing was charged", err).WithState(string(state))
	}
	log = log.With("attempt_id", attempt.ID)
	// DB上のattemptの状態。更新はこの状態からのときだけ通る
	stored := attempt.Status

	chargeCtx, cancel := context.WithTimeout(ctx, u.cfg.PaymentTimeout)
	charge, err := u.gateway.Charge(chargeCtx, payment.ChargeRequest{
		Amount:         total,
		Currency:       u.cfg.Currency,
		Token:          token,
		IdempotencyKey: attempt.ID,
		Metadata: map[string]string{
			"attempt_id": attempt.ID,
			"user_id":    strconv.FormatInt(p.ID, 10),
		},
	})
	cancel()
	if err != nil {
		attempt.LastError = err.Error()
		if errors.Is(err, payment.ErrDeclined) {
			attempt.Status = model.CheckoutStatusDeclined
			u.saveAttempt(ctx, log, attempt, stored)
			log.Warn("checkout: payment declined", "amount", total, "error", err)
			return CheckoutResult{}, outcomeDeclined, apperr.Wrap(apperr.KindPaymentDeclined, "payment was declined", err).WithState(string(state))
		}

		// 課金されたか分からない
		attempt.Status = model.CheckoutStatusReconciliationRequired
		u.saveAttempt(ctx, log, attempt, stored)
		log.Error("checkout: payment outcome unknown", "amount", total, "state", state, "error", err)
		return CheckoutResult{}, outcomeReconciliation, apperr.Wrap(
			apperr.KindReconciliationRequired,
			"payment status is unknown; do not retry until it is reconciled",
			err,
		).WithState(string(state))
	}
	state = StateCharged
	log = log.With("charge_id", charge.ID)
	if charge.AmountCharged != total {
		log.Warn("checkout: charged amount differs from cart total", "amount", total, "amount_charged", charge.AmountCharged)
	}

	attempt.Status = model.CheckoutStatusCharged
	attempt.ChargeID = charge.ID
	attempt.AmountCharged = charge.AmountCharged
	if u.saveAttempt(ctx, log, attempt, stored) {
		stored = attempt.Status
	}

	// ここから先はクライアントが切断しても止めない
	persistCtx := context.WithoutCancel(ctx)

	now = u.clock.Now()
	order := model.Order{
		UserID:    p.ID,
		Total:     charge.AmountCharged,
		Currency:  u.cfg.Currency,
		ChargeID:  charge.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	items := snapshotLines(p.ID, lines, now)

	err = u.tx.WithinTx(persistCtx, func(r repo.TxRepos) error {
		orderID, err := r.Orders().Create(persistCtx, order)
		if err != nil {
			return err
		}
		if err := r.OrderItems().CreateBulk(persistCtx, orderID, items); err != nil {
			return err
		}

		completed := attempt
		completed.Status = model.CheckoutStatusCompleted
		completed.OrderID = &orderID
		completed.UpdatedAt = now
		if err := r.CheckoutAttempts().Update(persistCtx, completed, stored); err != nil {
			return err
		}

		order.ID = orderID
		attempt = completed
		return nil
	})
	if err != nil {
		attempt.Status = model.CheckoutStatusReconciliationRequired
		attempt.OrderID = nil
		attempt.LastError = err.Error()
		u.saveAttempt(persistCtx, log, attempt, stored)
		log.Error("checkout: order not saved after charge", "amount_charged", charge.AmountCharged, "state", state, "error", err)
		return CheckoutResult{}, outcomeReconciliation, apperr.Wrap(
			apperr.KindReconciliationRequired,
			"your payment was taken but the order could not be saved; it will be reconciled",
			err,
		).WithState(string(state))
	}
	state = StateOrderPersisted

	res := CheckoutResult{Order: toOrderOutput(order, items)}
	outcome := outcomeCompleted

	// 読んだ行だけ消す。失敗しても注文は返す
	if _, err := u.cartItems.DeleteByIDs(persistCtx, p.ID, lineIDs); err != nil {
		log.Warn("checkout: cart not cleared", "order_id", order.ID, "error", err)
		res.CartClearErr = apperr.Wrap(apperr.KindCartClearFailed, "order placed but the cart could not be cleared", err).WithState(string(state))
		outcome = outcomeCompletedWithWarning
	} else {
		state = StateCartCleared
	}

	if res.CartClearErr == nil {
		state = StateComplete
	}
	log.Info("checkout: completed", "order_id", order.ID, "amount_charged", charge.AmountCharged, "state", state)
	return res, outcome, nil
}

// 失敗してもcheckoutの結果は変えない。ログだけ残す。
// fromから変わっていたら（運用者が解決済みなど）上書きしない。
func (u *CheckoutUsecase) saveAttempt(ctx context.Context, log *slog.Logger, a model.CheckoutAttempt, from model.CheckoutStatus) bool {
	a.UpdatedAt = u.clock.Now()
	err := u.attempts.Update(context.WithoutCancel(ctx), a, from)
	switch {
	case err == nil:
		return true
	case errors.Is(err, repo.ErrStale):
		log.Error("checkout: attempt changed underneath, not overwritten", "from", from, "status", a.Status)
	default:
		log.Error("checkout: update attempt", "status", a.Status, "error", err)
	}
	return false
}

func (u *CheckoutUsecase) loadOrder(ctx context.Context, orderID int64) (OrderOutput, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o, items), nil
}

// priceLines は price*quantity の合計。int64を超えたら入力エラー。
func priceLines(lines []model.CartItem) (int64, error) {
	var total int64
	for _, l := range lines {
		if l.Item.ID == 0 {
			return 0, apperr.New(apperr.KindValidation, "an item in your cart is no longer available")
		}
		if l.Quantity < 1 || l.Item.Price < 0 {
			return 0, apperr.New(apperr.KindValidation, "invalid cart line")
		}
		if l.Item.Price != 0 && l.Quantity > math.MaxInt64/l.Item.Price {
			return 0, apperr.New(apperr.KindValidation, "cart total is too large")
		}
		sub := l.Item.Price * l.Quantity
		if total > math.MaxInt64-sub {
			return 0, apperr.New(apperr.KindValidation, "cart total is too large")
		}
		total += sub
	}
	return total, nil
}

// 注文明細は購入時点の商品のコピー
func snapshotLines(userID int64, lines []model.CartItem, now time.Time) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.OrderItem{
			UserID:      userID,
			Title:       l.Item.Title,
			Description: l.Item.Description,
			Image:       l.Item.Image,
			LargeImage:  l.Item.LargeImage,
			Price:       l.Item.Price,
			Quantity:    l.Quantity,
			CreatedAt:   now,
		})
	}
	return items
}

func asAppErr(err error) *apperr.Error {
	if e, ok := apperr.AsError(err); ok {
		return e
	}
	return apperr.Wrap(apperr.KindInternal, "internal error", err)
}

// ユーザー単位のcheckoutロックのキー。運用者の解決も同じキーを取る
func checkoutLockKey(userID int64) string {
	return fmt.Sprintf("checkout:%d", userID)
}
