package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成。メール重複はErrDuplicate
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する。
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	//メールからユーザーを一件取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	//期限内のリセットトークン（ハッシュ）から取得
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	//全ユーザー（権限管理画面用）
	List(ctx context.Context) ([]model.User, error)
	// パスワードとリセットトークンだけ更新（権限・token_versionは変えない）
	Update(ctx context.Context, user *model.User) error
	//権限だけを書き換える
	UpdatePermissions(ctx context.Context, userID int64, perms []model.Role) error
	//トークンのバージョンを＋１
	IncrementTokenVersion(ctx context.Context, userID int64) error
}
