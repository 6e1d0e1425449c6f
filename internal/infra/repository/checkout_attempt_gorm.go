package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type checkoutAttemptGormRepository struct {
	db *gorm.DB
}

func NewCheckoutAttemptGormRepository(db *gorm.DB) repo.CheckoutAttemptRepository {
	return &checkoutAttemptGormRepository{db: db}
}

func (r *checkoutAttemptGormRepository) Create(ctx context.Context, a model.CheckoutAttempt) error {
	return translate(r.db.WithContext(ctx).Create(&a).Error)
}

func (r *checkoutAttemptGormRepository) FindByID(ctx context.Context, id string) (model.CheckoutAttempt, error) {
	var a model.CheckoutAttempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return model.CheckoutAttempt{}, translate(err)
	}
	return a, nil
}

func (r *checkoutAttemptGormRepository) FindUnresolvedByUserID(ctx context.Context, userID int64) (model.CheckoutAttempt, bool, error) {
	var a model.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, model.UnresolvedCheckoutStatuses).
		Order("created_at desc").
		First(&a).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CheckoutAttempt{}, false, nil
	}
	if err != nil {
		return model.CheckoutAttempt{}, false, err
	}
	return a, true, nil
}

func (r *checkoutAttemptGormRepository) FindCompletedByClientKey(ctx context.Context, userID int64, key string) (model.CheckoutAttempt, bool, error) {
	var a model.CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND client_key = ? AND status = ?", userID, key, model.CheckoutStatusCompleted).
		First(&a).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CheckoutAttempt{}, false, nil
	}
	if err != nil {
		return model.CheckoutAttempt{}, false, err
	}
	return a, true, nil
}

func (r *checkoutAttemptGormRepository) List(ctx context.Context, f repo.CheckoutAttemptFilter) ([]model.CheckoutAttempt, error) {
	q := r.db.WithContext(ctx).Model(&model.CheckoutAttempt{})

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var items []model.CheckoutAttempt
	if err := q.Order("created_at desc").Limit(limit).Offset(f.Offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *checkoutAttemptGormRepository) Update(ctx context.Context, a model.CheckoutAttempt, from model.CheckoutStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.CheckoutAttempt{ID: a.ID}).
		Where("status = ?", from).
		Select("*").
		Omit("id", "created_at").
		Updates(&a)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// 0件は「行がない」か「状態が変わっていた」
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.CheckoutAttempt{}).Where("id = ?", a.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return repo.ErrStale
}
