package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	// 同一商品はプラス1。1文で行うので同時に呼ばれても行は1つ
	IncrementOrCreate(ctx context.Context, userID int64, itemID int64) (model.CartItem, error)
	FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error)
	// 商品情報付きで返す
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	DeleteByID(ctx context.Context, cartItemID int64) error
	// 指定IDだけ消す（userIDが違う行は消さない）。消した件数を返す
	DeleteByIDs(ctx context.Context, userID int64, cartItemIDs []int64) (int64, error)
}
