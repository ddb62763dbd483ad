// Package service is the account lifecycle controller: signup, the
// email-verification gate on login and on every session change, recovery of
// signup inputs when the profile write fails, and per-session login
// throttling. One Controller exists per browser session and owns that
// session's provider subscription.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"maeul-board/backend/internal/account/domain"
	"maeul-board/backend/internal/audit"
	"maeul-board/backend/internal/identity"
	"maeul-board/backend/internal/profile"
	"maeul-board/backend/internal/recovery"
	"maeul-board/backend/internal/telemetry"
	telemetrydomain "maeul-board/backend/internal/telemetry/domain"
	"maeul-board/backend/internal/throttle"
)

var (
	// ErrValidation is returned for input rejected before any provider call.
	ErrValidation = errors.New("validation failed")
	// ErrEmailNotVerified is returned when credentials are correct but the
	// email has not been verified. The session is signed out before this is
	// returned.
	ErrEmailNotVerified = errors.New("email not verified")
)

// RateLimitedError is returned while the login throttle has the session
// locked out, with the concrete wait so the UI can show a countdown.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

// SignupInput is the signup form payload. Honeypot is the hidden
// anti-automation field and must be empty.
type SignupInput struct {
	Email           string
	Password        string
	PasswordConfirm string
	DisplayName     string
	Region          string
	IsLocal         bool
	Honeypot        string
}

// LoginInput is the login form payload.
type LoginInput struct {
	Email    string
	Password string
	Honeypot string
}

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	// VerifyRedirectURL is where the verification-mail link lands the user
	// after verification.
	VerifyRedirectURL string
	// ProfileTimeout bounds each profile store operation.
	ProfileTimeout time.Duration
	// SignoutDelay is how long the "signup complete" confirmation stays
	// signed in before the deferred sign-out fires.
	SignoutDelay time.Duration
	// RecoveryTTL is the age beyond which a recovery record is ignored.
	RecoveryTTL time.Duration
}

const (
	defaultProfileTimeout = 10 * time.Second
	defaultSignoutDelay   = 2 * time.Second
)

// Controller orchestrates the account lifecycle for one browser session.
// All state transitions converge through HandleSessionChange, which the
// provider stream invokes; the signup and login entry points only start
// flows, they never finalize them.
type Controller struct {
	provider identity.Provider
	profiles profile.Store
	recovery recovery.Cache
	throttle *throttle.Throttle
	auditor  audit.AuditLogger
	emitter  telemetry.EventEmitter

	verifyRedirectURL string
	profileTimeout    time.Duration
	signoutDelay      time.Duration
	recoveryTTL       time.Duration
	nowF              func() time.Time

	mu           sync.Mutex
	principal    *domain.Principal
	flows        int // interactive auth flows in flight; suppresses the forced sign-out for unverified sessions
	signoutTimer *time.Timer
	unsubscribe  func()
	closed       bool
}

// NewController builds a Controller and subscribes it to the provider's
// session-change stream. Call Close when the browser session ends.
func NewController(provider identity.Provider, profiles profile.Store, cache recovery.Cache, thr *throttle.Throttle, auditor audit.AuditLogger, emitter telemetry.EventEmitter, opts Options) (*Controller, error) {
	if provider == nil || profiles == nil || cache == nil {
		return nil, errors.New("service: provider, profile store, and recovery cache are required")
	}
	if thr == nil {
		thr = throttle.New(0, 0, 0)
	}
	if auditor == nil {
		auditor = audit.Nop{}
	}
	if opts.ProfileTimeout <= 0 {
		opts.ProfileTimeout = defaultProfileTimeout
	}
	if opts.SignoutDelay <= 0 {
		opts.SignoutDelay = defaultSignoutDelay
	}
	if opts.RecoveryTTL <= 0 {
		opts.RecoveryTTL = recovery.DefaultTTL
	}
	c := &Controller{
		provider:          provider,
		profiles:          profiles,
		recovery:          cache,
		throttle:          thr,
		auditor:           auditor,
		emitter:           emitter,
		verifyRedirectURL: opts.VerifyRedirectURL,
		profileTimeout:    opts.ProfileTimeout,
		signoutDelay:      opts.SignoutDelay,
		recoveryTTL:       opts.RecoveryTTL,
		nowF:              time.Now,
	}
	unsubscribe, err := provider.Subscribe(c.HandleSessionChange)
	if err != nil {
		return nil, err
	}
	c.unsubscribe = unsubscribe
	return c, nil
}

// Signup registers a new account. On success the verification email has been
// requested and the session is signed out; the account becomes usable only
// after the email is verified. Profile store failures never fail the signup;
// the recovery record written right after account creation covers them.
func (c *Controller) Signup(ctx context.Context, in SignupInput) error {
	if retryAfter, err := c.throttle.CheckSubmission(in.Honeypot); err != nil {
		if errors.Is(err, throttle.ErrCooldown) {
			return &RateLimitedError{RetryAfter: retryAfter}
		}
		c.auditor.LogEvent(ctx, "", audit.ActionSuspiciousRequest, audit.ResourceAccount, "signup honeypot")
		c.emit("", telemetrydomain.EventSuspicious)
		return err
	}
	if err := validateSignup(in); err != nil {
		return err
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = domain.DefaultDisplayName(in.Email)
	}

	c.beginFlow()
	defer c.endFlow()

	accountID, err := c.provider.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		c.auditor.LogEvent(ctx, "", audit.ActionSignupFailure, audit.ResourceAccount, err.Error())
		return err
	}

	// The recovery record is the sole durable trace of the form inputs until
	// a profile document confirmed to contain them exists.
	rec := recovery.Record{
		DisplayName: displayName,
		Region:      in.Region,
		IsLocal:     in.IsLocal,
		CreatedAt:   c.nowF().UTC(),
	}
	if err := c.recovery.Put(ctx, accountID, rec); err != nil {
		log.Printf("service: recovery record write failed for %s: %v", accountID, err)
	}

	if err := c.provider.SendVerificationEmail(ctx, c.verifyRedirectURL); err != nil {
		log.Printf("service: verification email for %s failed: %v", accountID, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.profileTimeout)
	err = c.profiles.Upsert(storeCtx, accountID, profile.Patch{
		Email:           profile.String(in.Email),
		DisplayName:     profile.String(displayName),
		Region:          profile.String(in.Region),
		IsLocal:         &in.IsLocal,
		EmailVerified:   profile.Bool(false),
		SignupCompleted: profile.Bool(false),
	})
	cancel()
	if err != nil {
		log.Printf("service: initial profile write failed for %s: %v", accountID, err)
	}

	// Never leave the fresh, unverified account signed in.
	if err := c.provider.SignOut(ctx); err != nil {
		log.Printf("service: post-signup sign-out failed for %s: %v", accountID, err)
	}

	c.auditor.LogEvent(ctx, accountID, audit.ActionSignup, audit.ResourceAccount, "")
	c.emit(accountID, telemetrydomain.EventSignup)
	return nil
}

// Login checks the throttle, then credentials, then the verification gate.
// An unverified account is forcibly signed out and never returned as a
// principal.
func (c *Controller) Login(ctx context.Context, in LoginInput) (*domain.Principal, error) {
	if locked, retryAfter := c.throttle.IsLocked(); locked {
		c.auditor.LogEvent(ctx, "", audit.ActionLoginLocked, audit.ResourceAccount, "")
		c.emit("", telemetrydomain.EventLockout)
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}
	if retryAfter, err := c.throttle.CheckSubmission(in.Honeypot); err != nil {
		if errors.Is(err, throttle.ErrCooldown) {
			return nil, &RateLimitedError{RetryAfter: retryAfter}
		}
		c.auditor.LogEvent(ctx, "", audit.ActionSuspiciousRequest, audit.ResourceAccount, "login honeypot")
		c.emit("", telemetrydomain.EventSuspicious)
		return nil, err
	}

	sess, err := c.provider.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		c.throttle.RecordFailure()
		c.auditor.LogEvent(ctx, "", audit.ActionLoginFailure, audit.ResourceAccount, err.Error())
		return nil, err
	}

	if !sess.EmailVerified {
		if err := c.provider.SignOut(ctx); err != nil {
			log.Printf("service: forced sign-out of unverified %s failed: %v", sess.AccountID, err)
		}
		c.auditor.LogEvent(ctx, sess.AccountID, audit.ActionLoginFailure, audit.ResourceAccount, "email not verified")
		return nil, ErrEmailNotVerified
	}

	c.throttle.Reset()
	c.auditor.LogEvent(ctx, sess.AccountID, audit.ActionLogin, audit.ResourceAccount, "")
	c.emit(sess.AccountID, telemetrydomain.EventLogin)

	// The reconcile ran on the session-change push; fall back to a direct
	// read if the store was unreachable at that moment.
	if p := c.CurrentPrincipal(); p != nil {
		return p, nil
	}
	return c.principalFromSession(ctx, sess), nil
}

// HandleSessionChange is the provider stream handler and the only place
// signup completion and recovery are finalized. It is idempotent: two
// sessions observing the same change converge on the same document.
func (c *Controller) HandleSessionChange(session *identity.Session) {
	if session == nil {
		c.setPrincipal(nil)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.profileTimeout)
	defer cancel()

	if !session.EmailVerified {
		// Mirror of the login-time gate. During an interactive signup or
		// resend flow the flow itself signs out after it is done with the
		// session, so the push handler stays out of the way.
		if !c.inFlow() {
			if err := c.provider.SignOut(ctx); err != nil {
				log.Printf("service: forced sign-out of unverified %s failed: %v", session.AccountID, err)
			}
		}
		c.setPrincipal(nil)
		return
	}

	doc, err := c.profiles.Get(ctx, session.AccountID)
	if err != nil {
		log.Printf("service: profile read failed for %s: %v", session.AccountID, err)
		doc = nil
	}

	switch {
	case doc != nil && doc.SignupCompleted:
		// Normal path: adopt the stored profile.
		c.setPrincipal(principalFromDoc(session, doc))

	case doc != nil:
		c.completeSignup(ctx, session, doc)

	default:
		c.reconstructProfile(ctx, session)
	}
}

// completeSignup handles the verification-just-completed transition: merge
// any fresh recovery record into still-empty fields, mark the document
// verified and complete, and schedule the deferred sign-out that returns the
// user to the login surface after the confirmation.
func (c *Controller) completeSignup(ctx context.Context, session *identity.Session, doc *domain.Account) {
	patch := profile.Patch{
		EmailVerified:   profile.Bool(true),
		SignupCompleted: profile.Bool(true),
	}
	rec := c.freshRecovery(ctx, session.AccountID)
	if rec != nil {
		if doc.DisplayName == "" && rec.DisplayName != "" {
			patch.DisplayName = profile.String(rec.DisplayName)
			doc.DisplayName = rec.DisplayName
		}
		if doc.Region == "" && rec.Region != "" {
			patch.Region = profile.String(rec.Region)
			doc.Region = rec.Region
		}
		if !doc.IsLocal && rec.IsLocal {
			patch.IsLocal = profile.Bool(true)
			doc.IsLocal = true
		}
	}
	if err := c.profiles.Upsert(ctx, session.AccountID, patch); err != nil {
		// Leave the record in place; a later session change retries. The
		// session is still verified, so keep the principal usable.
		log.Printf("service: signup completion write failed for %s: %v", session.AccountID, err)
		doc.EmailVerified = true
		c.setPrincipal(principalFromDoc(session, doc))
		return
	}
	if err := c.recovery.Delete(ctx, session.AccountID); err != nil {
		log.Printf("service: recovery record delete failed for %s: %v", session.AccountID, err)
	}

	doc.EmailVerified = true
	doc.SignupCompleted = true
	c.setPrincipal(principalFromDoc(session, doc))
	c.auditor.LogEvent(ctx, session.AccountID, audit.ActionSignupCompleted, audit.ResourceAccount, "")
	c.emit(session.AccountID, telemetrydomain.EventVerified)
	c.scheduleSignout()
}

// reconstructProfile handles the document-missing path: the signup-time
// profile write failed outright, so rebuild the document from the recovery
// record, or from the provider's own view of the account when the record is
// gone (signup on another device, expired record).
func (c *Controller) reconstructProfile(ctx context.Context, session *identity.Session) {
	doc := &domain.Account{
		AccountID:       session.AccountID,
		Email:           session.Email,
		DisplayName:     session.DisplayName,
		EmailVerified:   true,
		SignupCompleted: true,
	}
	if rec := c.freshRecovery(ctx, session.AccountID); rec != nil {
		doc.DisplayName = rec.DisplayName
		doc.Region = rec.Region
		doc.IsLocal = rec.IsLocal
	}
	if doc.DisplayName == "" {
		doc.DisplayName = domain.DefaultDisplayName(session.Email)
	}
	if err := doc.Validate(); err != nil {
		// The region is the only rebuilt field Validate can reject; drop it
		// rather than persist a bad document.
		log.Printf("service: reconstructed profile for %s invalid: %v", session.AccountID, err)
		doc.Region = ""
		if err := doc.Validate(); err != nil {
			c.setPrincipal(principalFromDoc(session, doc))
			return
		}
	}

	err := c.profiles.Upsert(ctx, session.AccountID, profile.Patch{
		Email:           profile.String(doc.Email),
		DisplayName:     profile.String(doc.DisplayName),
		Region:          profile.String(doc.Region),
		IsLocal:         &doc.IsLocal,
		EmailVerified:   profile.Bool(true),
		SignupCompleted: profile.Bool(true),
	})
	if err != nil {
		log.Printf("service: profile reconstruction failed for %s: %v", session.AccountID, err)
		c.setPrincipal(principalFromDoc(session, doc))
		return
	}
	if err := c.recovery.Delete(ctx, session.AccountID); err != nil {
		log.Printf("service: recovery record delete failed for %s: %v", session.AccountID, err)
	}

	c.setPrincipal(principalFromDoc(session, doc))
	c.auditor.LogEvent(ctx, session.AccountID, audit.ActionSignupCompleted, audit.ResourceAccount, "reconstructed")
	c.emit(session.AccountID, telemetrydomain.EventVerified)
	c.scheduleSignout()
}

// ResendVerification signs in just long enough to request a fresh
// verification mail, then signs out again. Already-verified accounts are
// rejected so the mail cannot be used as a login probe.
func (c *Controller) ResendVerification(ctx context.Context, email, password string) error {
	if locked, retryAfter := c.throttle.IsLocked(); locked {
		return &RateLimitedError{RetryAfter: retryAfter}
	}

	c.beginFlow()
	defer c.endFlow()

	sess, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		c.throttle.RecordFailure()
		return err
	}
	defer func() {
		if err := c.provider.SignOut(ctx); err != nil {
			log.Printf("service: sign-out after resend failed for %s: %v", sess.AccountID, err)
		}
	}()
	if sess.EmailVerified {
		return identity.ErrAlreadyVerified
	}
	return c.provider.SendVerificationEmail(ctx, c.verifyRedirectURL)
}

// Logout signs the session out. The principal clears via the session-change push.
func (c *Controller) Logout(ctx context.Context) error {
	p := c.CurrentPrincipal()
	if err := c.provider.SignOut(ctx); err != nil {
		return err
	}
	if p != nil {
		c.auditor.LogEvent(ctx, p.AccountID, audit.ActionLogout, audit.ResourceAccount, "")
		c.emit(p.AccountID, telemetrydomain.EventLogout)
	}
	return nil
}

// RefreshProfile asks the provider to re-read the account and re-emit the
// session, re-running the reconcile. This is how a session picks up an email
// verification performed in another browser.
func (c *Controller) RefreshProfile(ctx context.Context) error {
	return c.provider.Refresh(ctx)
}

// CurrentPrincipal returns the active principal, or nil when signed out.
// Only verified accounts ever appear here.
func (c *Controller) CurrentPrincipal() *domain.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return nil
	}
	cp := *c.principal
	return &cp
}

// Close unsubscribes from the provider stream and stops any pending deferred
// sign-out. The Controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	timer := c.signoutTimer
	c.signoutTimer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

// scheduleSignout arms the post-completion deferred sign-out. The delay is a
// UX courtesy for the "signup complete" confirmation, not a security
// boundary.
func (c *Controller) scheduleSignout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.signoutTimer != nil {
		return
	}
	c.signoutTimer = time.AfterFunc(c.signoutDelay, func() {
		c.mu.Lock()
		c.signoutTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.provider.SignOut(context.Background()); err != nil {
			log.Printf("service: deferred sign-out failed: %v", err)
		}
	})
}

// freshRecovery returns the recovery record for accountID if present and
// younger than the TTL, else nil. Read failures count as absent.
func (c *Controller) freshRecovery(ctx context.Context, accountID string) *recovery.Record {
	rec, err := c.recovery.Get(ctx, accountID)
	if err != nil {
		log.Printf("service: recovery record read failed for %s: %v", accountID, err)
		return nil
	}
	if rec == nil {
		return nil
	}
	if c.nowF().UTC().Sub(rec.CreatedAt) > c.recoveryTTL {
		return nil
	}
	return rec
}

func (c *Controller) principalFromSession(ctx context.Context, sess *identity.Session) *domain.Principal {
	doc, err := c.profiles.Get(ctx, sess.AccountID)
	if err != nil || doc == nil {
		doc = &domain.Account{
			AccountID:     sess.AccountID,
			Email:         sess.Email,
			DisplayName:   sess.DisplayName,
			EmailVerified: sess.EmailVerified,
		}
	}
	return principalFromDoc(sess, doc)
}

func (c *Controller) setPrincipal(p *domain.Principal) {
	c.mu.Lock()
	c.principal = p
	c.mu.Unlock()
}

func (c *Controller) beginFlow() {
	c.mu.Lock()
	c.flows++
	c.mu.Unlock()
}

func (c *Controller) endFlow() {
	c.mu.Lock()
	c.flows--
	c.mu.Unlock()
}

func (c *Controller) inFlow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flows > 0
}

func (c *Controller) emit(accountID, eventType string) {
	telemetry.EmitAsync(c.emitter, context.Background(), &telemetrydomain.Event{
		AccountID: accountID,
		EventType: eventType,
		Source:    "account-service",
		CreatedAt: c.nowF().UTC(),
	})
}

func principalFromDoc(sess *identity.Session, doc *domain.Account) *domain.Principal {
	return &domain.Principal{
		AccountID: sess.AccountID,
		Email:     sess.Email,
		Profile:   *doc,
	}
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const passwordSymbols = "!@#$%^&*"

// validateSignup applies the form's local rules before any network call.
func validateSignup(in SignupInput) error {
	if !emailRe.MatchString(in.Email) {
		return fmt.Errorf("%w: malformed email address", ErrValidation)
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if in.PasswordConfirm != "" && in.Password != in.PasswordConfirm {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}
	if in.Region == "" {
		return fmt.Errorf("%w: region is required", ErrValidation)
	}
	if !domain.ValidRegion(in.Region) {
		return fmt.Errorf("%w: unknown region", ErrValidation)
	}
	return nil
}

// validatePassword enforces the password policy: at least 8 characters with
// a letter, a digit, and a symbol from the fixed set.
func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	var letter, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !letter || !digit || !symbol {
		return fmt.Errorf("%w: password needs a letter, a digit, and one of %s", ErrValidation, passwordSymbols)
	}
	return nil
}
