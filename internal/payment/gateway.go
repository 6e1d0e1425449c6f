// Package payment は決済代行とのやりとりの約束だけを置く。
package payment

import (
	"context"
	"errors"
)

var (
	// 決済が拒否された。お金は動いていない
	ErrDeclined = errors.New("payment declined")
	// 送信後に結果が分からなくなった。課金されているかもしれない
	ErrAmbiguous = errors.New("payment outcome unknown")
)

type ChargeRequest struct {
	Amount   int64 // 最小通貨単位
	Currency string
	Token    string // クライアントが取得した支払いトークン
	// 同じキーなら決済代行側で二重課金されない
	IdempotencyKey string
	Metadata       map[string]string
}

type Charge struct {
	ID            string
	AmountCharged int64
}

type Refund struct {
	ID     string
	Amount int64
}

// Gateway は決済代行。
// Charge のエラーは ErrDeclined か ErrAmbiguous を %w で包んで返す。
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
	// amountが0なら全額
	Refund(ctx context.Context, chargeID string, amount int64, idempotencyKey string) (Refund, error)
}
