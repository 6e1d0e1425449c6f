package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type ItemGormRepository struct {
	db *gorm.DB
}

// DI
func NewItemGormRepository(db *gorm.DB) *ItemGormRepository {
	return &ItemGormRepository{db: db}
}

// 新しい順にページングして返す。
func (r *ItemGormRepository) List(ctx context.Context, q repo.ItemListQuery) ([]model.Item, int64, error) {
	var items []model.Item
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Item{})

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Item{}, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Order("created_at desc").Order("id desc").
		Offset(offset).Limit(q.Limit).Find(&items).Error; err != nil {
		return []model.Item{}, 0, err
	}

	return items, total, nil
}

// IDで商品を取得
func (r *ItemGormRepository) FindByID(ctx context.Context, id int64) (model.Item, error) {
	var it model.Item
	if err := r.db.WithContext(ctx).First(&it, id).Error; err != nil {
		return model.Item{}, translate(err)
	}
	return it, nil
}

// 商品の作成
func (r *ItemGormRepository) Create(ctx context.Context, it model.Item) (model.Item, error) {
	if err := r.db.WithContext(ctx).Create(&it).Error; err != nil {
		return model.Item{}, err
	}
	return it, nil
}

// 商品の更新（作成者は変えない）
func (r *ItemGormRepository) Update(ctx context.Context, it model.Item) (model.Item, error) {
	res := r.db.WithContext(ctx).Model(&model.Item{}).Where("id = ?", it.ID).Updates(map[string]interface{}{
		"title":       it.Title,
		"description": it.Description,
		"image":       it.Image,
		"large_image": it.LargeImage,
		"price":       it.Price,
	})
	if res.Error != nil {
		return model.Item{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.Item{}, repo.ErrNotFound
	}
	return r.FindByID(ctx, it.ID)
}

// 商品削除。カートに入っている分も一緒に消す
func (r *ItemGormRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", id).Delete(&model.CartItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Item{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}
