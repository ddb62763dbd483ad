// Package audit records account-lifecycle events: signups, logins, lockouts,
// and suspicious submissions. Writes are best-effort and never fail the
// operation being audited.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"maeul-board/backend/internal/audit/domain"
	auditrepo "maeul-board/backend/internal/audit/repository"
)

// SentinelAccountID is the account_id recorded for events with no known
// account (failed logins for unknown emails, honeypot submissions).
const SentinelAccountID = "_anonymous"

// Audit actions recorded by the account lifecycle.
const (
	ActionSignup            = "signup"
	ActionSignupFailure     = "signup_failure"
	ActionSignupCompleted   = "signup_completed"
	ActionLogin             = "login"
	ActionLoginFailure      = "login_failure"
	ActionLoginLocked       = "login_locked"
	ActionLogout            = "logout"
	ActionSuspiciousRequest = "suspicious_request"
)

// ResourceAccount is the resource all lifecycle events act on.
const ResourceAccount = "account"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, accountID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if accountID == "" {
		accountID = SentinelAccountID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// Nop is an AuditLogger that drops every event. Used when no database is configured.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}
