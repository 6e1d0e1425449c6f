package model

import "time"

type Role string

const (
	RoleUser             Role = "USER"
	RoleAdmin            Role = "ADMIN"
	// 既存データのロール集合に合わせて残している。
	// 商品登録はログインユーザーなら誰でもできるので、どこでも検査しない
	RoleItemCreate       Role = "ITEMCREATE"
	RoleItemUpdate       Role = "ITEMUPDATE"
	RoleItemDelete       Role = "ITEMDELETE"
	RolePermissionUpdate Role = "PERMISSIONUPDATE"
)

// 付与できるロール一覧
var AllRoles = []Role{
	RoleUser,
	RoleAdmin,
	RoleItemCreate,
	RoleItemUpdate,
	RoleItemDelete,
	RolePermissionUpdate,
}

func (r Role) Valid() bool {
	for _, v := range AllRoles {
		if r == v {
			return true
		}
	}
	return false
}

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	// jsonで保存（["USER","ADMIN"]）
	Permissions  []Role `gorm:"serializer:json;type:jsonb;not null" json:"permissions"`
	TokenVersion int    `gorm:"not null;default:0" json:"-"`

	//パスワードリセット（平文は保存しない）
	ResetTokenHash   *string    `gorm:"index" json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal はこのユーザーを呼び出し元として扱うときの形。
func (u User) Principal() Principal {
	perms := make([]Role, len(u.Permissions))
	copy(perms, u.Permissions)
	return Principal{ID: u.ID, Permissions: perms}
}
