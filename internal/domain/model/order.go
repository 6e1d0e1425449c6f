package model

import "time"

// 注文。作成後は変更しない。
// Totalは決済代行が実際に請求した金額。
type Order struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Total     int64     `gorm:"not null" json:"total"`
	Currency  string    `gorm:"type:varchar(3);not null" json:"currency"`
	ChargeID  string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"charge_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
