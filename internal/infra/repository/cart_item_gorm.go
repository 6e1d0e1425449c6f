package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartItemGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartItemGormRepository(db *gorm.DB) *CartItemGormRepository {
	return &CartItemGormRepository{db: db}
}

// INSERT ... ON CONFLICT (user_id, item_id) DO UPDATE SET quantity = quantity + 1
func (r *CartItemGormRepository) IncrementOrCreate(ctx context.Context, userID int64, itemID int64) (model.CartItem, error) {
	line := model.CartItem{
		UserID:   userID,
		ItemID:   itemID,
		Quantity: 1,
	}

	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
				DoUpdates: clause.Set{
					{Column: clause.Column{Name: "quantity"}, Value: gorm.Expr("cart_items.quantity + 1")},
					{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("now()")},
				},
			},
			clause.Returning{},
		).
		Create(&line).Error
	if err != nil {
		return model.CartItem{}, err
	}
	return line, nil
}

// 明細を取得
func (r *CartItemGormRepository) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	var line model.CartItem

	err := r.db.WithContext(ctx).
		Preload("Item").
		Where("id = ?", cartItemID).
		First(&line).Error
	if err != nil {
		return model.CartItem{}, translate(err)
	}
	return line, nil
}

// カート明細を商品付きで一覧取得
func (r *CartItemGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var lines []model.CartItem

	if err := r.db.WithContext(ctx).
		Preload("Item").
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&lines).Error; err != nil {
		return []model.CartItem{}, err
	}

	return lines, nil
}

// 明細を削除
func (r *CartItemGormRepository) DeleteByID(ctx context.Context, cartItemID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.CartItem{}, cartItemID)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// checkoutで読んだ行だけ消す。後から足された行は残る
func (r *CartItemGormRepository) DeleteByIDs(ctx context.Context, userID int64, cartItemIDs []int64) (int64, error) {
	if len(cartItemIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, cartItemIDs).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
