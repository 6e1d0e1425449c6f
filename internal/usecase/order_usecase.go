package usecase

import (
	"context"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
)

type OrderUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
}

func NewOrderUsecase(orders repo.OrderRepository, orderItems repo.OrderItemRepository) *OrderUsecase {
	return &OrderUsecase{orders: orders, orderItems: orderItems}
}

type OrderItemOutput struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	LargeImage  string `json:"large_image"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

type OrderOutput struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Total     int64             `json:"total"`
	Currency  string            `json:"currency"`
	ChargeID  string            `json:"charge_id"`
	CreatedAt time.Time         `json:"created_at"`
	Items     []OrderItemOutput `json:"items"`
}

// GetOrder は本人かADMINだけが見られる。
func (u *OrderUsecase) GetOrder(ctx context.Context, p *model.Principal, orderID int64) (OrderOutput, error) {
	if err := policy.Authorize(p); err != nil {
		return OrderOutput{}, err
	}
	if orderID <= 0 {
		return OrderOutput{}, apperr.New(apperr.KindValidation, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, storeErr(err, "order not found")
	}
	if !policy.CanReadOrder(p, o) {
		return OrderOutput{}, apperr.New(apperr.KindForbidden, "you can't see this order")
	}

	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, storeErr(err, "order not found")
	}
	return toOrderOutput(o, items), nil
}

// ListOrders は自分の注文を新しい順に返す。
func (u *OrderUsecase) ListOrders(ctx context.Context, p *model.Principal) ([]OrderOutput, error) {
	if err := policy.Authorize(p); err != nil {
		return nil, err
	}

	orders, err := u.orders.ListByUserID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, "orders not found")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.orderItems.ListByOrderID(ctx, o.ID)
		if err != nil {
			return nil, storeErr(err, "order not found")
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return outs, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:          it.ID,
			Title:       it.Title,
			Description: it.Description,
			Image:       it.Image,
			LargeImage:  it.LargeImage,
			Price:       it.Price,
			Quantity:    it.Quantity,
		})
	}

	return OrderOutput{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Currency:  o.Currency,
		ChargeID:  o.ChargeID,
		CreatedAt: o.CreatedAt,
		Items:     outItems,
	}
}
