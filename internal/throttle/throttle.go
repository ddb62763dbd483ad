// Package throttle bounds credential-guessing per browser session. It is
// advisory client-side friction: the identity provider is assumed to rate
// limit on its side; this exists to slow casual automated retries and give
// the user a concrete retry-after.
package throttle

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrSuspiciousRequest is returned when the hidden anti-automation field
	// is populated. The submission never reaches the identity provider.
	ErrSuspiciousRequest = errors.New("suspicious request")
	// ErrCooldown is returned when a submission arrives inside the fixed
	// post-submission cooldown window.
	ErrCooldown = errors.New("submission cooldown")
)

const (
	// DefaultThreshold is the failure count at which lockout starts.
	DefaultThreshold = 5
	// DefaultLockBase is the first lockout duration; it doubles per failure past the threshold.
	DefaultLockBase = 60 * time.Second
	// DefaultCooldown is the fixed pause after every submission.
	DefaultCooldown = 1500 * time.Millisecond
	// maxLockShift caps the lockout exponent so the shift cannot overflow
	// time.Duration. At the default base that is roughly 728 hours.
	maxLockShift = 20
)

// Throttle tracks failed login attempts for one browser session. State lives
// only for the life of the session; it is never persisted or shared across
// devices.
type Throttle struct {
	mu            sync.Mutex
	threshold     int
	lockBase      time.Duration
	cooldown      time.Duration
	failureCount  int
	lockUntil     time.Time
	cooldownUntil time.Time
	nowF          func() time.Time
}

// New returns a Throttle. Zero arguments select the defaults.
func New(threshold int, lockBase, cooldown time.Duration) *Throttle {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if lockBase <= 0 {
		lockBase = DefaultLockBase
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Throttle{
		threshold: threshold,
		lockBase:  lockBase,
		cooldown:  cooldown,
		nowF:      time.Now,
	}
}

// CheckSubmission gates one interactive submission. A submission inside the
// cooldown window fails with ErrCooldown; a populated honeypot fails with
// ErrSuspiciousRequest and counts as a failure. Every submission that gets
// past the cooldown check stamps a fresh cooldown window, whatever its
// outcome.
func (t *Throttle) CheckSubmission(honeypot string) (retryAfter time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowF()
	if t.cooldownUntil.After(now) {
		return t.cooldownUntil.Sub(now), ErrCooldown
	}
	t.cooldownUntil = now.Add(t.cooldown)
	if honeypot != "" {
		t.recordFailureLocked(now)
		return 0, ErrSuspiciousRequest
	}
	return 0, nil
}

// RecordFailure counts one failed login. At the threshold and beyond it sets
// an exponentially growing lockout: lock = lockBase * 2^(failures-threshold).
func (t *Throttle) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordFailureLocked(t.nowF())
}

func (t *Throttle) recordFailureLocked(now time.Time) {
	t.failureCount++
	if t.failureCount >= t.threshold {
		shift := t.failureCount - t.threshold
		if shift > maxLockShift {
			shift = maxLockShift
		}
		// A later failure never shortens an existing lockout.
		if until := now.Add(t.lockBase << uint(shift)); until.After(t.lockUntil) {
			t.lockUntil = until
		}
	}
}

// IsLocked reports whether the session is locked out and for how much longer.
func (t *Throttle) IsLocked() (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowF()
	if t.lockUntil.After(now) {
		return true, t.lockUntil.Sub(now)
	}
	return false, 0
}

// Reset clears the failure count and any lockout. Called on successful login.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failureCount = 0
	t.lockUntil = time.Time{}
}

// FailureCount returns the current failure count.
func (t *Throttle) FailureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failureCount
}
