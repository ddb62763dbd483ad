// Package local is a self-hosted identity authority for development and
// tests: bcrypt-hashed passwords, signed email-verification links, and
// per-session clients implementing identity.Provider. It fills the role a
// hosted provider plays in production without leaving the process.
package local

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"maeul-board/backend/internal/identity"
	"maeul-board/backend/internal/mailer"
	"maeul-board/backend/internal/security"
)

// account is the authority's own record: credentials plus the authoritative
// verified flag. Profile attributes live in the profile store, not here.
type account struct {
	id            string
	email         string
	passwordHash  string
	emailVerified bool
	createdAt     time.Time
}

// Authority owns the account table. One per process; sessions are opened with
// NewClient.
type Authority struct {
	mu      sync.Mutex
	byID    map[string]*account
	byEmail map[string]*account

	hasher  *security.Hasher
	tokens  *security.TokenProvider
	mail    mailer.Sender
	baseURL string // public base URL of this server, used in verification links
	nowF    func() time.Time
}

// NewAuthority returns an Authority. baseURL is the public base URL of the
// server hosting the verification landing endpoint.
func NewAuthority(hasher *security.Hasher, tokens *security.TokenProvider, mail mailer.Sender, baseURL string) *Authority {
	if mail == nil {
		mail = mailer.LogSender{}
	}
	return &Authority{
		byID:    make(map[string]*account),
		byEmail: make(map[string]*account),
		hasher:  hasher,
		tokens:  tokens,
		mail:    mail,
		baseURL: strings.TrimRight(baseURL, "/"),
		nowF:    time.Now().UTC,
	}
}

// NewClient opens a fresh, signed-out session client for this authority.
func (a *Authority) NewClient() *Client {
	return &Client{authority: a}
}

// createAccount registers email/password and returns the new account id.
// The authority applies its own credential rules, independent of any
// client-side validation.
func (a *Authority) createAccount(email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") {
		return "", identity.ErrInvalidEmail
	}
	if len(password) < 6 {
		return "", identity.ErrWeakPassword
	}
	hash, err := a.hasher.Hash([]byte(password))
	if err != nil {
		return "", fmt.Errorf("local: hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[email]; ok {
		return "", identity.ErrDuplicateEmail
	}
	acc := &account{
		id:           uuid.New().String(),
		email:        email,
		passwordHash: hash,
		createdAt:    a.nowF(),
	}
	a.byID[acc.id] = acc
	a.byEmail[email] = acc
	return acc.id, nil
}

// authenticate checks credentials and returns a snapshot of the account.
func (a *Authority) authenticate(email, password string) (*identity.Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	a.mu.Lock()
	acc, ok := a.byEmail[email]
	a.mu.Unlock()
	if !ok {
		return nil, identity.ErrNotFound
	}
	if err := a.hasher.Compare(acc.passwordHash, []byte(password)); err != nil {
		return nil, identity.ErrWrongPassword
	}
	return a.snapshot(acc.id)
}

// snapshot returns the provider's current view of the account.
func (a *Authority) snapshot(accountID string) (*identity.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[accountID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &identity.Session{
		AccountID:     acc.id,
		Email:         acc.email,
		EmailVerified: acc.emailVerified,
	}, nil
}

// sendVerificationEmail mails a verification link for accountID. The link
// targets this server's landing endpoint and carries the signed token plus
// the post-verification redirect.
func (a *Authority) sendVerificationEmail(accountID, redirectURL string) error {
	sess, err := a.snapshot(accountID)
	if err != nil {
		return err
	}
	token, err := a.tokens.IssueVerification(accountID, sess.Email)
	if err != nil {
		return fmt.Errorf("local: issue verification token: %w", err)
	}
	link := fmt.Sprintf("%s/v1/auth/verify?token=%s&redirect=%s",
		a.baseURL, url.QueryEscape(token), url.QueryEscape(redirectURL))
	body := fmt.Sprintf("마을보드 가입을 완료하려면 아래 링크를 눌러 이메일 인증을 마쳐주세요.\n\n%s\n\n이 링크는 24시간 동안 유효합니다.", link)
	return a.mail.Send(sess.Email, "[마을보드] 이메일 인증을 완료해주세요", body)
}

// VerifyEmail consumes a verification-link token and marks the account
// verified. Verifying an already-verified account is a no-op; the link can be
// clicked twice.
func (a *Authority) VerifyEmail(ctx context.Context, token string) (string, error) {
	accountID, err := a.tokens.ValidateVerification(token)
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[accountID]
	if !ok {
		return "", identity.ErrNotFound
	}
	acc.emailVerified = true
	return accountID, nil
}
