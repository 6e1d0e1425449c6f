package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 管理者用の一覧条件
type CheckoutAttemptFilter struct {
	Status *model.CheckoutStatus
	UserID *int64
	Limit  int
	Offset int
}

type CheckoutAttemptRepository interface {
	Create(ctx context.Context, attempt model.CheckoutAttempt) error
	FindByID(ctx context.Context, id string) (model.CheckoutAttempt, error)
	// 未解決（PENDING / CHARGED / RECONCILIATION_REQUIRED）の最新1件
	FindUnresolvedByUserID(ctx context.Context, userID int64) (model.CheckoutAttempt, bool, error)
	//検索（同じキーなら同じ結果を返す）
	FindCompletedByClientKey(ctx context.Context, userID int64, key string) (model.CheckoutAttempt, bool, error)
	List(ctx context.Context, f CheckoutAttemptFilter) ([]model.CheckoutAttempt, error)
	// DB上の状態がfromのときだけ更新する。違えば ErrStale
	Update(ctx context.Context, attempt model.CheckoutAttempt, from model.CheckoutStatus) error
}
