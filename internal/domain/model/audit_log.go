package model

import "time"

// 監査ログの操作種別
type AuditAction string

const (
	//権限を変更した
	AuditActionUpdatePermissions AuditAction = "UPDATE_PERMISSIONS"
	//他人の商品も含めて削除した
	AuditActionDeleteItem AuditAction = "DELETE_ITEM"
	//要照合のcheckoutを解決した
	AuditActionResolveCheckout AuditAction = "RESOLVE_CHECKOUT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceUser     AuditResourceType = "user"
	AuditResourceItem     AuditResourceType = "item"
	AuditResourceCheckout AuditResourceType = "checkout"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//対象のID（checkoutはuuidなので文字列）。
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
