package usecase

import (
	"context"
	"strconv"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
)

type UserUsecase struct {
	users repo.UserRepository
	tx    repo.TransactionManager
	clock Clock
}

func NewUserUsecase(users repo.UserRepository, tx repo.TransactionManager, clock Clock) *UserUsecase {
	return &UserUsecase{users: users, tx: tx, clock: clock}
}

type UserOutput struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Permissions []model.Role `json:"permissions"`
}

func toUserOutput(u model.User) UserOutput {
	return UserOutput{ID: u.ID, Name: u.Name, Email: u.Email, Permissions: u.Permissions}
}

// Me は未ログインならnilを返す（エラーではない）。
func (u *UserUsecase) Me(ctx context.Context, p *model.Principal) (*UserOutput, error) {
	if p == nil {
		return nil, nil
	}
	user, err := u.users.FindByID(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	out := toUserOutput(*user)
	return &out, nil
}

func (u *UserUsecase) ListUsers(ctx context.Context, p *model.Principal) ([]UserOutput, error) {
	if err := policy.Authorize(p, model.RoleAdmin, model.RolePermissionUpdate); err != nil {
		return nil, err
	}

	users, err := u.users.List(ctx)
	if err != nil {
		return nil, storeErr(err, "users not found")
	}
	out := make([]UserOutput, 0, len(users))
	for _, us := range users {
		out = append(out, toUserOutput(us))
	}
	return out, nil
}

// UpdatePermissions は権限を丸ごと置き換える。監査ログを残す。
func (u *UserUsecase) UpdatePermissions(ctx context.Context, p *model.Principal, userID int64, perms []model.Role) (UserOutput, error) {
	if err := policy.Authorize(p, model.RoleAdmin, model.RolePermissionUpdate); err != nil {
		return UserOutput{}, err
	}

	// 重複は落とす
	seen := make(map[model.Role]struct{}, len(perms))
	cleaned := make([]model.Role, 0, len(perms))
	for _, r := range perms {
		if !r.Valid() {
			return UserOutput{}, apperr.New(apperr.KindValidation, "unknown permission: "+string(r))
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		cleaned = append(cleaned, r)
	}

	var out UserOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		target, err := r.Users().FindByID(ctx, userID)
		if err != nil {
			return err
		}
		before := target.Permissions

		if err := r.Users().UpdatePermissions(ctx, userID, cleaned); err != nil {
			return err
		}

		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  p.ID,
			Action:       model.AuditActionUpdatePermissions,
			ResourceType: model.AuditResourceUser,
			ResourceID:   strconv.FormatInt(userID, 10),
			BeforeJSON:   auditJSON(map[string]any{"permissions": before}),
			AfterJSON:    auditJSON(map[string]any{"permissions": cleaned}),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return err
		}

		target.Permissions = cleaned
		out = toUserOutput(*target)
		return nil
	})
	if err != nil {
		return UserOutput{}, storeErr(err, "user not found")
	}
	return out, nil
}
