package usecase

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
)

// CartUsecase は /cart の業務ロジックです。
type CartUsecase struct {
	cartItemRepo repo.CartItemRepository
	itemRepo     repo.ItemRepository
}

func NewCartUsecase(
	cartItemRepo repo.CartItemRepository,
	itemRepo repo.ItemRepository,
) *CartUsecase {
	return &CartUsecase{
		cartItemRepo: cartItemRepo,
		itemRepo:     itemRepo,
	}
}

type CartLineOutput struct {
	ID       int64      `json:"id"`
	ItemID   int64      `json:"item_id"`
	Quantity int64      `json:"quantity"`
	Item     model.Item `json:"item"`
}

// AddLine は商品をカートに1つ追加する。同じ商品は数量+1。
func (u *CartUsecase) AddLine(ctx context.Context, p *model.Principal, itemID int64) (CartLineOutput, error) {
	if err := policy.Authorize(p); err != nil {
		return CartLineOutput{}, err
	}
	if itemID <= 0 {
		return CartLineOutput{}, apperr.New(apperr.KindValidation, "invalid item_id")
	}

	item, err := u.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return CartLineOutput{}, storeErr(err, "item not found")
	}

	line, err := u.cartItemRepo.IncrementOrCreate(ctx, p.ID, itemID)
	if err != nil {
		return CartLineOutput{}, storeErr(err, "item not found")
	}

	line.Item = item
	return toCartLineOutput(line), nil
}

// RemoveLine は自分のカート明細だけ消せる。
func (u *CartUsecase) RemoveLine(ctx context.Context, p *model.Principal, lineID int64) (CartLineOutput, error) {
	if err := policy.Authorize(p); err != nil {
		return CartLineOutput{}, err
	}
	if lineID <= 0 {
		return CartLineOutput{}, apperr.New(apperr.KindValidation, "invalid id")
	}

	line, err := u.cartItemRepo.FindByID(ctx, lineID)
	if err != nil {
		return CartLineOutput{}, storeErr(err, "no item found for that id")
	}
	if line.UserID != p.ID {
		return CartLineOutput{}, apperr.New(apperr.KindForbidden, "that cart item is not yours")
	}

	if err := u.cartItemRepo.DeleteByID(ctx, lineID); err != nil {
		return CartLineOutput{}, storeErr(err, "no item found for that id")
	}
	return toCartLineOutput(line), nil
}

// ListLines は自分のカートを現在の商品情報付きで返す。
func (u *CartUsecase) ListLines(ctx context.Context, p *model.Principal) ([]CartLineOutput, error) {
	if err := policy.Authorize(p); err != nil {
		return nil, err
	}

	lines, err := u.cartItemRepo.ListByUserID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, "cart not found")
	}

	out := make([]CartLineOutput, 0, len(lines))
	for _, l := range lines {
		out = append(out, toCartLineOutput(l))
	}
	return out, nil
}

func toCartLineOutput(l model.CartItem) CartLineOutput {
	return CartLineOutput{
		ID:       l.ID,
		ItemID:   l.ItemID,
		Quantity: l.Quantity,
		Item:     l.Item,
	}
}
