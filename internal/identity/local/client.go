package local

import (
	"context"
	"sync"

	"maeul-board/backend/internal/identity"
)

// Client is one browser session against the Authority. It holds the session
// token and pushes session changes to its single subscriber.
type Client struct {
	authority *Authority
	stream    identity.Stream

	mu        sync.Mutex
	token     string
	accountID string
}

var _ identity.Provider = (*Client)(nil)

// CreateAccount registers the account and signs this session in as it,
// unverified. Mirrors hosted providers, which hand out a live session on
// signup.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (string, error) {
	accountID, err := c.authority.createAccount(email, password)
	if err != nil {
		return "", err
	}
	if err := c.establish(accountID); err != nil {
		return "", err
	}
	return accountID, nil
}

// SendVerificationEmail mails a verification link for the session's account.
func (c *Client) SendVerificationEmail(ctx context.Context, redirectURL string) error {
	c.mu.Lock()
	accountID := c.accountID
	c.mu.Unlock()
	if accountID == "" {
		return identity.ErrNotFound
	}
	return c.authority.sendVerificationEmail(accountID, redirectURL)
}

// SignIn authenticates and establishes the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	sess, err := c.authority.authenticate(email, password)
	if err != nil {
		return nil, err
	}
	if err := c.establish(sess.AccountID); err != nil {
		return nil, err
	}
	return sess, nil
}

// SignOut clears the session and notifies the subscriber.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	wasSignedIn := c.accountID != ""
	c.token = ""
	c.accountID = ""
	c.mu.Unlock()
	if wasSignedIn {
		c.stream.Emit(nil)
	}
	return nil
}

// Refresh re-validates the session token and re-emits the authority's current
// view of the account. This is how a session learns its email was verified
// from another tab.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil
	}
	accountID, err := c.authority.tokens.ValidateSession(token)
	if err != nil {
		// Expired session: drop it like a provider would.
		return c.SignOut(ctx)
	}
	sess, err := c.authority.snapshot(accountID)
	if err != nil {
		return c.SignOut(ctx)
	}
	c.stream.Emit(sess)
	return nil
}

// Subscribe registers the session-change handler.
func (c *Client) Subscribe(handler func(*identity.Session)) (func(), error) {
	return c.stream.Subscribe(handler)
}

// establish stores a fresh session token for accountID and emits the change.
func (c *Client) establish(accountID string) error {
	sess, err := c.authority.snapshot(accountID)
	if err != nil {
		return err
	}
	token, err := c.authority.tokens.IssueSession(sess.AccountID, sess.Email)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.accountID = sess.AccountID
	c.mu.Unlock()
	c.stream.Emit(sess)
	return nil
}
