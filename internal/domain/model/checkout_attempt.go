package model

import "time"

type CheckoutStatus string

const (
	CheckoutStatusPending                CheckoutStatus = "PENDING"
	CheckoutStatusCharged                CheckoutStatus = "CHARGED"
	CheckoutStatusDeclined               CheckoutStatus = "DECLINED"
	CheckoutStatusCompleted              CheckoutStatus = "COMPLETED"
	CheckoutStatusReconciliationRequired CheckoutStatus = "RECONCILIATION_REQUIRED"
	CheckoutStatusResolved               CheckoutStatus = "RESOLVED"
)

// Unresolved のあいだは同じユーザーの次のcheckoutで課金しない。
func (s CheckoutStatus) Unresolved() bool {
	switch s {
	case CheckoutStatusPending, CheckoutStatusCharged, CheckoutStatusReconciliationRequired:
		return true
	}
	return false
}

// UnresolvedCheckoutStatuses はUnresolvedなステータス一覧（検索用）。
var UnresolvedCheckoutStatuses = []CheckoutStatus{
	CheckoutStatusPending,
	CheckoutStatusCharged,
	CheckoutStatusReconciliationRequired,
}

// checkout 1回分の記録。課金の前に作る。
// IDは決済代行へのidempotency keyにも使う。
type CheckoutAttempt struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        int64          `gorm:"not null;index" json:"user_id"`
	Status        CheckoutStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	ClientKey     string         `gorm:"type:varchar(255);index" json:"client_key,omitempty"`
	Amount        int64          `gorm:"not null" json:"amount"`
	AmountCharged int64          `gorm:"not null;default:0" json:"amount_charged"`
	Currency      string         `gorm:"type:varchar(3);not null" json:"currency"`
	ChargeID      string         `gorm:"type:varchar(255);index" json:"charge_id,omitempty"`
	OrderID       *int64         `json:"order_id,omitempty"`
	LineIDs       []int64        `gorm:"serializer:json;type:jsonb" json:"line_ids"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	ResolvedBy    *int64         `json:"resolved_by,omitempty"`
	RefundID      string         `gorm:"type:varchar(255)" json:"refund_id,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}
