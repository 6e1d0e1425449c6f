package usecase

import (
	"context"
	"log/slog"
	"time"
)

// 現在の時間
type Clock interface {
	Now() time.Time
}

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 署名付きトークンからユーザーIDとtoken versionを取り出す約束
type TokenVerifier interface {
	Verify(credential string) (userID int64, tokenVersion int, err error)
}

// ユーザー単位の排他。取れなかったら ok=false
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// checkoutの結果を数える
type CheckoutMetrics interface {
	ObserveCheckout(outcome string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCheckout(string, time.Duration) {}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
