package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 一覧検索
type ItemListQuery struct {
	Page  int
	Limit int
}

// 商品の永続化（保存・取得）だけを約束。
type ItemRepository interface {
	List(ctx context.Context, q ItemListQuery) ([]model.Item, int64, error)
	FindByID(ctx context.Context, id int64) (model.Item, error)

	Create(ctx context.Context, item model.Item) (model.Item, error)
	Update(ctx context.Context, item model.Item) (model.Item, error)
	// 商品と、それを入れているカート明細を消す
	Delete(ctx context.Context, id int64) error
}
