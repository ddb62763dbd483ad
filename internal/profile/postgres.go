package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maeul-board/backend/internal/account/domain"
)

// PostgresStore is a Store backed by the profiles table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a profile store that uses the given db for persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the profile for accountID, or nil if no document exists.
// It returns an error only for database failures, not for missing rows.
func (s *PostgresStore) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	query := `
SELECT account_id, email, display_name, region, is_local, email_verified, signup_completed, created_at, updated_at
FROM profiles
WHERE account_id = $1`

	a := &domain.Account{}
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&a.AccountID, &a.Email, &a.DisplayName, &a.Region, &a.IsLocal,
		&a.EmailVerified, &a.SignupCompleted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile: get: %w", err)
	}
	return a, nil
}

// Upsert merges patch into the document for accountID, creating it if absent.
// COALESCE keeps stored values for nil patch fields, so two reconciles racing
// on the same account converge on the same row.
func (s *PostgresStore) Upsert(ctx context.Context, accountID string, patch Patch) error {
	query := `
INSERT INTO profiles (account_id, email, display_name, region, is_local, email_verified, signup_completed, created_at, updated_at)
VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, FALSE), COALESCE($6, FALSE), COALESCE($7, FALSE), now(), now())
ON CONFLICT (account_id) DO UPDATE SET
    email            = COALESCE($2, profiles.email),
    display_name     = COALESCE($3, profiles.display_name),
    region           = COALESCE($4, profiles.region),
    is_local         = COALESCE($5, profiles.is_local),
    email_verified   = COALESCE($6, profiles.email_verified),
    signup_completed = COALESCE($7, profiles.signup_completed),
    updated_at       = now()`

	_, err := s.db.ExecContext(ctx, query, accountID,
		nullString(patch.Email), nullString(patch.DisplayName), nullString(patch.Region),
		nullBool(patch.IsLocal), nullBool(patch.EmailVerified), nullBool(patch.SignupCompleted))
	if err != nil {
		return fmt.Errorf("profile: upsert: %w", err)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}
