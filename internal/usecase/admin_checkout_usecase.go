package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/domain/model"
	"storefront/internal/payment"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
)

// AdminCheckoutUsecase は照合待ちのcheckoutを運用者が片付けるためのもの。
type AdminCheckoutUsecase struct {
	attempts repo.CheckoutAttemptRepository
	tx       repo.TransactionManager
	gateway  payment.Gateway
	locker   Locker
	lockTTL  time.Duration
	clock    Clock
	logger   *slog.Logger
}

func NewAdminCheckoutUsecase(
	attempts repo.CheckoutAttemptRepository,
	tx repo.TransactionManager,
	gateway payment.Gateway,
	locker Locker,
	lockTTL time.Duration,
	clock Clock,
	logger *slog.Logger,
) *AdminCheckoutUsecase {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &AdminCheckoutUsecase{
		attempts: attempts,
		tx:       tx,
		gateway:  gateway,
		locker:   locker,
		lockTTL:  lockTTL,
		clock:    clock,
		logger:   loggerOrDefault(logger),
	}
}

type ListAttemptsInput struct {
	Status string
	UserID *int64
	Limit  int
	Offset int
}

type ResolveAttemptInput struct {
	// 課金済みなら返金してから解決する
	Refund bool `json:"refund"`
}

func (u *AdminCheckoutUsecase) ListAttempts(ctx context.Context, p *model.Principal, in ListAttemptsInput) ([]model.CheckoutAttempt, error) {
	if err := policy.Authorize(p, model.RoleAdmin); err != nil {
		return nil, err
	}

	f := repo.CheckoutAttemptFilter{UserID: in.UserID, Limit: in.Limit, Offset: in.Offset}
	if in.Status != "" {
		st := model.CheckoutStatus(in.Status)
		switch st {
		case model.CheckoutStatusPending, model.CheckoutStatusCharged, model.CheckoutStatusDeclined,
			model.CheckoutStatusCompleted, model.CheckoutStatusReconciliationRequired, model.CheckoutStatusResolved:
		default:
			return nil, apperr.New(apperr.KindValidation, "invalid status")
		}
		f.Status = &st
	}

	items, err := u.attempts.List(ctx, f)
	if err != nil {
		return nil, storeErr(err, "attempts not found")
	}
	return items, nil
}

// ResolveAttempt は未解決のattemptをRESOLVEDにする。これでユーザーは次のcheckoutができる。
func (u *AdminCheckoutUsecase) ResolveAttempt(ctx context.Context, p *model.Principal, attemptID string, in ResolveAttemptInput) (model.CheckoutAttempt, error) {
	if err := policy.Authorize(p, model.RoleAdmin); err != nil {
		return model.CheckoutAttempt{}, err
	}

	a, err := u.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return model.CheckoutAttempt{}, storeErr(err, "checkout attempt not found")
	}

	// 進行中のcheckoutとは同時に触らない
	release, ok, err := u.locker.Acquire(ctx, checkoutLockKey(a.UserID), u.lockTTL)
	if err != nil {
		return model.CheckoutAttempt{}, apperr.Wrap(apperr.KindInternal, "could not lock checkout", err)
	}
	if !ok {
		return model.CheckoutAttempt{}, apperr.New(apperr.KindConflict, "checkout for this user is in progress; try again later")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			u.logger.Warn("checkout: release lock", "attempt_id", a.ID, "error", err)
		}
	}()

	// ロック前に読んだ状態は古いかもしれない
	a, err = u.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return model.CheckoutAttempt{}, storeErr(err, "checkout attempt not found")
	}
	if !a.Status.Unresolved() {
		return model.CheckoutAttempt{}, apperr.New(apperr.KindConflict, "checkout attempt is already "+string(a.Status))
	}
	before := a

	if in.Refund {
		if a.ChargeID == "" {
			return model.CheckoutAttempt{}, apperr.New(apperr.KindValidation, "no charge to refund")
		}
		ref, err := u.gateway.Refund(ctx, a.ChargeID, 0, a.ID+"-refund")
		if err != nil {
			return model.CheckoutAttempt{}, apperr.Wrap(apperr.KindInternal, "refund failed", err)
		}
		a.RefundID = ref.ID
	}

	a.Status = model.CheckoutStatusResolved
	resolvedBy := p.ID
	a.ResolvedBy = &resolvedBy
	a.UpdatedAt = u.clock.Now()

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.CheckoutAttempts().Update(ctx, a, before.Status); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  p.ID,
			Action:       model.AuditActionResolveCheckout,
			ResourceType: model.AuditResourceCheckout,
			ResourceID:   a.ID,
			BeforeJSON:   auditJSON(map[string]any{"status": before.Status, "charge_id": before.ChargeID}),
			AfterJSON:    auditJSON(map[string]any{"status": a.Status, "refund_id": a.RefundID}),
			CreatedAt:    a.UpdatedAt,
		})
	})
	if errors.Is(err, repo.ErrStale) {
		return model.CheckoutAttempt{}, apperr.New(apperr.KindConflict, "checkout attempt changed while resolving; reload and retry")
	}
	if err != nil {
		return model.CheckoutAttempt{}, storeErr(err, "checkout attempt not found")
	}

	u.logger.Info("checkout: attempt resolved", "attempt_id", a.ID, "user_id", a.UserID, "resolved_by", p.ID, "refund_id", a.RefundID)
	return a, nil
}
