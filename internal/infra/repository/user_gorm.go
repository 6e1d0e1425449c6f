package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	domainrepo "storefront/internal/repository"

	"gorm.io/gorm"
)

type userGormRepository struct {
	db *gorm.DB
}

// DI
// main.goでこれをnewしてusecaseに注入します。
func NewUserGormRepository(db *gorm.DB) domainrepo.UserRepository {
	return &userGormRepository{db: db}
}

// Create はユーザーを新規作成
func (r *userGormRepository) Create(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// emailでユーザーを1件取得
func (r *userGormRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// IDでユーザーを1件取得
func (r *userGormRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// 期限切れのトークンは見つからない扱い
func (r *userGormRepository) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_token_expiry >= ?", tokenHash, now).
		First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userGormRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id asc").Find(&users).Error; err != nil {
		return []model.User{}, err
	}
	return users, nil
}

// パスワードとリセットトークンだけ更新。
// token_version と permissions は専用の更新でしか触らない
func (r *userGormRepository) Update(ctx context.Context, user *model.User) error {
	return translate(r.db.WithContext(ctx).
		Model(&model.User{ID: user.ID}).
		Select("password_hash", "reset_token_hash", "reset_token_expiry", "updated_at").
		Updates(user).Error)
}

func (r *userGormRepository) UpdatePermissions(ctx context.Context, id int64, perms []model.Role) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{ID: id}).
		Select("permissions").
		Updates(&model.User{Permissions: perms})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domainrepo.ErrNotFound
	}
	return nil
}

// token_versionを+1 します。
func (r *userGormRepository) IncrementTokenVersion(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("token_version", gorm.Expr("token_version + ?", 1))

	if res.Error != nil {
		return res.Error
	}

	// 0件更新は「対象がない」
	if res.RowsAffected == 0 {
		return domainrepo.ErrNotFound
	}
	return nil
}
