package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the account lifecycle.
const (
	EventSignup     = "signup"
	EventLogin      = "login"
	EventLogout     = "logout"
	EventVerified   = "email_verified"
	EventLockout    = "login_lockout"
	EventSuspicious = "suspicious_request"
)

// Event represents a telemetry event (account-scoped, optional metadata).
// The JSON form is what goes over Kafka and into Loki.
type Event struct {
	AccountID string          `json:"accountId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
