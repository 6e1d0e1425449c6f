package model

import "time"

// カートの明細。(user_id, item_id) で1行だけ。
// 価格は持たない（確定はcheckout時のスナップショット）。
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_cart_items_user_item" json:"user_id"`
	ItemID    int64     `gorm:"not null;uniqueIndex:idx_cart_items_user_item;index" json:"item_id"`
	Quantity  int64     `gorm:"not null;default:1" json:"quantity"`
	Item      Item      `gorm:"foreignKey:ItemID" json:"item"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
