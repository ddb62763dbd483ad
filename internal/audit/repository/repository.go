package repository

import (
	"context"

	"maeul-board/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
