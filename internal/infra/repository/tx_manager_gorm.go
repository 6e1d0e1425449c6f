package repository

import (
	"context"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	attempts   repo.CheckoutAttemptRepository
	cartItems  repo.CartItemRepository
	auditLogs  repo.AuditLogRepository
	users      repo.UserRepository
	items      repo.ItemRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository                     { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository             { return r.orderItems }
func (r *txReposGorm) CheckoutAttempts() repo.CheckoutAttemptRepository { return r.attempts }
func (r *txReposGorm) CartItems() repo.CartItemRepository               { return r.cartItems }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository               { return r.auditLogs }
func (r *txReposGorm) Users() repo.UserRepository                       { return r.users }
func (r *txReposGorm) Items() repo.ItemRepository                       { return r.items }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:     NewOrderGormRepository(tx),
			orderItems: NewOrderItemGormRepository(tx),
			attempts:   NewCheckoutAttemptGormRepository(tx),
			cartItems:  NewCartItemGormRepository(tx),
			auditLogs:  NewAuditLogGormRepository(tx),
			users:      NewUserGormRepository(tx),
			items:      NewItemGormRepository(tx),
		}
		return fn(r)
	})
}
