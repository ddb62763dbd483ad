// Package recovery stores signup inputs between the moment an identity
// provider account exists and the moment a profile document is durably
// written. The two writes are not transactional; a record here is the only
// trace of the signup form if the profile write fails.
package recovery

import (
	"context"
	"time"
)

// DefaultTTL bounds how long a failed profile write can be silently recovered.
const DefaultTTL = 24 * time.Hour

// Record holds the signup inputs that the identity provider does not keep.
// Records are write-once: created right after account creation, read until
// consumed by a successful profile reconcile, then deleted.
type Record struct {
	DisplayName string
	Region      string
	IsLocal     bool
	CreatedAt   time.Time
}

// Cache is a device-local key/value store for recovery records, keyed by
// account id. Implementations survive a process restart where the backing
// medium allows, but are never synchronized across devices.
//
// Readers treat a record older than the cache's TTL as absent; expired
// records are not proactively deleted. Get returns (nil, nil) for a missing
// or expired record. Delete of a missing record is a no-op, so concurrent
// reconciles can race on consumption safely.
type Cache interface {
	Put(ctx context.Context, accountID string, rec Record) error
	Get(ctx context.Context, accountID string) (*Record, error)
	Delete(ctx context.Context, accountID string) error
}
