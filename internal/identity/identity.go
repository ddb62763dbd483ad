// Package identity defines the contract with the external identity provider:
// the authority that owns accounts, credentials, and email verification.
// The account lifecycle controller consumes this contract and never looks
// behind it; sub-packages provide a hosted REST client and a self-hosted
// development authority.
package identity

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors mapped from provider responses. The lifecycle controller
// translates these into its user-facing taxonomy.
var (
	ErrDuplicateEmail      = errors.New("email already in use")
	ErrWeakPassword        = errors.New("password rejected by provider")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrNotFound            = errors.New("account not found")
	ErrWrongPassword       = errors.New("wrong password")
	ErrTooManyRequests     = errors.New("too many requests")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrSubscribed          = errors.New("session stream already has a subscriber")
)

// Session is the provider's view of the signed-in account for one client
// session, or nil when signed out. EmailVerified is authoritative here.
type Session struct {
	AccountID     string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// Provider is a per-browser-session client of the identity authority.
// All methods may touch the network; callers pass a context and must not
// assume ordering between calls and session-change notifications.
type Provider interface {
	// CreateAccount registers email/password and returns the new account id.
	// The new account starts unverified and signed in; callers that must not
	// keep an unverified session follow up with SignOut.
	CreateAccount(ctx context.Context, email, password string) (string, error)

	// SendVerificationEmail asks the authority to mail a verification link for
	// the current account. redirectURL is where the link lands after
	// verification. Best-effort for callers: failures are non-fatal to signup.
	SendVerificationEmail(ctx context.Context, redirectURL string) error

	// SignIn checks credentials and establishes a session. The returned
	// Session reports the authoritative EmailVerified flag.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut drops the current session. Signing out while already signed out is a no-op.
	SignOut(ctx context.Context) error

	// Refresh re-reads the authoritative account record for the current
	// session and re-emits a session change. Used by the email-verification
	// landing flow to observe a verification performed out of band.
	Refresh(ctx context.Context) error

	// Subscribe registers the single session-change handler. The handler
	// receives the new Session (nil when signed out) for every change.
	// A second active subscription fails with ErrSubscribed.
	Subscribe(handler func(*Session)) (unsubscribe func(), err error)
}

// Stream is a single-subscriber session-change stream shared by provider
// implementations. The zero value is ready to use.
type Stream struct {
	mu      sync.Mutex
	handler func(*Session)
}

// Subscribe registers handler as the stream's only subscriber.
// Returns ErrSubscribed if a subscription is already active.
func (s *Stream) Subscribe(handler func(*Session)) (func(), error) {
	if handler == nil {
		return nil, errors.New("identity: nil session handler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return nil, ErrSubscribed
	}
	s.handler = handler
	unsubscribe := func() {
		s.mu.Lock()
		s.handler = nil
		s.mu.Unlock()
	}
	return unsubscribe, nil
}

// Emit delivers session to the subscriber, if any. A copy is delivered so the
// handler cannot mutate provider state.
func (s *Stream) Emit(session *Session) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	if session == nil {
		h(nil)
		return
	}
	cp := *session
	h(&cp)
}
