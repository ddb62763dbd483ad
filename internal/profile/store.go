// Package profile persists account profile documents: the durable side of an
// account, reconciled against the identity provider by the lifecycle
// controller. The store has no transactional relationship with the provider;
// writes can fail independently, which is what the recovery cache exists for.
package profile

import (
	"context"

	"maeul-board/backend/internal/account/domain"
)

// Patch is a partial update of a profile document. Only non-nil fields are
// written; nil fields keep their stored value. This is what makes concurrent
// reconciles of the same account idempotent.
type Patch struct {
	Email           *string
	DisplayName     *string
	Region          *string
	IsLocal         *bool
	EmailVerified   *bool
	SignupCompleted *bool
}

// Store defines persistence for profile documents, one per account.
type Store interface {
	// Get returns the profile for accountID, or nil if no document exists.
	// It returns an error only for store failures, not for missing documents.
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	// Upsert merges patch into the document for accountID, creating it if
	// absent. Merge semantics: non-nil patch fields win, everything else is
	// preserved. Safe to run concurrently for the same account.
	Upsert(ctx context.Context, accountID string, patch Patch) error
}

// String returns a *string for use in a Patch.
func String(s string) *string { return &s }

// Bool returns a *bool for use in a Patch.
func Bool(b bool) *bool { return &b }
