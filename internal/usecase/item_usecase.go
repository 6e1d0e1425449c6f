package usecase

import (
	"context"
	"strconv"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
	"storefront/internal/validator"
)

type ItemUsecase struct {
	itemRepo repo.ItemRepository
	tx       repo.TransactionManager
	clock    Clock
}

// DI
func NewItemUsecase(itemRepo repo.ItemRepository, tx repo.TransactionManager, clock Clock) *ItemUsecase {
	return &ItemUsecase{itemRepo: itemRepo, tx: tx, clock: clock}
}

// GET /itemsの入力DTO
type ListItemsInput struct {
	Page  int
	Limit int
}

type ListItemsOutput struct {
	Items []model.Item `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

type CreateItemInput struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Image       string `json:"image"`
	LargeImage  string `json:"large_image"`
	Price       int64  `json:"price" validate:"gte=0"`
}

// 指定されたフィールドだけ変える
type UpdateItemInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	LargeImage  *string `json:"large_image"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
}

func (u *ItemUsecase) ListItems(ctx context.Context, in ListItemsInput) (ListItemsOutput, error) {
	//デフォルト
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit <= 0 {
		in.Limit = 20
	}
	if in.Limit > 100 {
		in.Limit = 100
	}

	items, total, err := u.itemRepo.List(ctx, repo.ItemListQuery{Page: in.Page, Limit: in.Limit})
	if err != nil {
		return ListItemsOutput{}, storeErr(err, "items not found")
	}
	return ListItemsOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

func (u *ItemUsecase) GetItem(ctx context.Context, id int64) (model.Item, error) {
	if id <= 0 {
		return model.Item{}, apperr.New(apperr.KindValidation, "invalid id")
	}
	it, err := u.itemRepo.FindByID(ctx, id)
	if err != nil {
		return model.Item{}, storeErr(err, "item not found")
	}
	return it, nil
}

// CreateItem はログインしていれば誰でも出品できる。作成者が所有者。
func (u *ItemUsecase) CreateItem(ctx context.Context, p *model.Principal, in CreateItemInput) (model.Item, error) {
	// ITEMCREATEは要らない。ログインしていれば登録できる
	if err := policy.Authorize(p); err != nil {
		return model.Item{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validator.Struct(in); err != nil {
		return model.Item{}, err
	}

	it, err := u.itemRepo.Create(ctx, model.Item{
		Title:       in.Title,
		Description: in.Description,
		Image:       in.Image,
		LargeImage:  in.LargeImage,
		Price:       in.Price,
		UserID:      p.ID,
	})
	if err != nil {
		return model.Item{}, storeErr(err, "item not found")
	}
	return it, nil
}

// UpdateItem は所有者か ADMIN / ITEMUPDATE。
func (u *ItemUsecase) UpdateItem(ctx context.Context, p *model.Principal, id int64, in UpdateItemInput) (model.Item, error) {
	if err := policy.Authorize(p); err != nil {
		return model.Item{}, err
	}
	if err := validator.Struct(in); err != nil {
		return model.Item{}, err
	}

	it, err := u.itemRepo.FindByID(ctx, id)
	if err != nil {
		return model.Item{}, storeErr(err, "item not found")
	}
	if err := policy.AuthorizeOwnerOr(p, it.UserID, model.RoleAdmin, model.RoleItemUpdate); err != nil {
		return model.Item{}, err
	}

	if in.Title != nil {
		it.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		it.Description = *in.Description
	}
	if in.Image != nil {
		it.Image = *in.Image
	}
	if in.LargeImage != nil {
		it.LargeImage = *in.LargeImage
	}
	if in.Price != nil {
		it.Price = *in.Price
	}

	updated, err := u.itemRepo.Update(ctx, it)
	if err != nil {
		return model.Item{}, storeErr(err, "item not found")
	}
	return updated, nil
}

// DeleteItem は所有者か ADMIN / ITEMDELETE。監査ログを残す。
func (u *ItemUsecase) DeleteItem(ctx context.Context, p *model.Principal, id int64) (model.Item, error) {
	if err := policy.Authorize(p); err != nil {
		return model.Item{}, err
	}

	it, err := u.itemRepo.FindByID(ctx, id)
	if err != nil {
		return model.Item{}, storeErr(err, "item not found")
	}
	if err := policy.AuthorizeOwnerOr(p, it.UserID, model.RoleAdmin, model.RoleItemDelete); err != nil {
		return model.Item{}, err
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Items().Delete(ctx, id); err != nil {
			return err
		}
		//「誰が」「何を」「どの対象に」「どう変えたか」を残す
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  p.ID,
			Action:       model.AuditActionDeleteItem,
			ResourceType: model.AuditResourceItem,
			ResourceID:   strconv.FormatInt(id, 10),
			BeforeJSON:   auditJSON(it),
			AfterJSON:    "{}",
			CreatedAt:    u.clock.Now(),
		})
	})
	if err != nil {
		return model.Item{}, storeErr(err, "item not found")
	}
	return it, nil
}
