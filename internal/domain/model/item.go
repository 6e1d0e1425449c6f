package model

import "time"

// 出品された商品。UserIDは作成者（参照のみ）。
type Item struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Image       string    `gorm:"type:text" json:"image"`
	LargeImage  string    `gorm:"type:text" json:"large_image"`
	Price       int64     `gorm:"not null" json:"price"` // 最小通貨単位（セント）
	UserID      int64     `gorm:"not null;index" json:"user_id"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
