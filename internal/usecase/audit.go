package usecase

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/policy"
	repo "storefront/internal/repository"
)

// 監査ログ用。失敗したら空オブジェクト
func auditJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// AuditUsecase は監査ログの閲覧（ADMIN）。
type AuditUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditUsecase(logs repo.AuditLogRepository) *AuditUsecase {
	return &AuditUsecase{logs: logs}
}

type ListAuditLogsInput struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

func (u *AuditUsecase) ListAuditLogs(ctx context.Context, p *model.Principal, in ListAuditLogsInput) ([]model.AuditLog, error) {
	if err := policy.Authorize(p, model.RoleAdmin); err != nil {
		return nil, err
	}

	f := repo.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		CreatedFrom: in.From,
		CreatedTo:   in.To,
		Limit:       in.Limit,
		Offset:      in.Offset,
	}
	if in.Action != "" {
		a := model.AuditAction(in.Action)
		f.Action = &a
	}
	if in.ResourceType != "" {
		rt := model.AuditResourceType(in.ResourceType)
		f.ResourceType = &rt
	}
	if in.ResourceID != "" {
		f.ResourceID = &in.ResourceID
	}

	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return nil, storeErr(err, "audit logs not found")
	}
	return logs, nil
}
