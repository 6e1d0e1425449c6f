package model

import "time"

// 注文明細。購入時点の商品のコピーでItemとは紐付かない。
type OrderItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64     `gorm:"not null;index" json:"order_id"`
	UserID      int64     `gorm:"not null;index" json:"user_id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Image       string    `gorm:"type:text" json:"image"`
	LargeImage  string    `gorm:"type:text" json:"large_image"`
	Price       int64     `gorm:"not null" json:"price"`
	Quantity    int64     `gorm:"not null" json:"quantity"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
