// Package rest is an identity.Provider over the hosted identity-toolkit REST
// API. Provider error codes are mapped to the identity sentinels so the rest
// of the system never sees raw provider responses.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"maeul-board/backend/internal/identity"
)

const defaultTimeout = 15 * time.Second

// Client is one browser session against the hosted identity API.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	stream identity.Stream

	mu      sync.Mutex
	idToken string
}

var _ identity.Provider = (*Client)(nil)

// NewClient returns a session client for the hosted identity API at baseURL.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type signUpResponse struct {
	LocalID string `json:"localId"`
	IDToken string `json:"idToken"`
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		DisplayName   string `json:"displayName"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

// CreateAccount registers email/password. The provider signs this session in
// as the new, unverified account.
func (c *Client) CreateAccount(ctx context.Context, email, password string) (string, error) {
	var out signUpResponse
	err := c.post(ctx, "accounts:signUp", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return "", err
	}
	c.setToken(out.IDToken)
	sess, err := c.lookup(ctx, out.IDToken)
	if err != nil {
		return "", err
	}
	c.stream.Emit(sess)
	return out.LocalID, nil
}

// SendVerificationEmail asks the provider to mail a verification link for the
// current session's account.
func (c *Client) SendVerificationEmail(ctx context.Context, redirectURL string) error {
	token := c.token()
	if token == "" {
		return identity.ErrNotFound
	}
	return c.post(ctx, "accounts:sendOobCode", map[string]interface{}{
		"requestType": "VERIFY_EMAIL",
		"idToken":     token,
		"continueUrl": redirectURL,
	}, nil)
}

// SignIn checks credentials and establishes the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	var out signInResponse
	err := c.post(ctx, "accounts:signInWithPassword", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.setToken(out.IDToken)
	sess, err := c.lookup(ctx, out.IDToken)
	if err != nil {
		return nil, err
	}
	c.stream.Emit(sess)
	return sess, nil
}

// SignOut drops the session token. The hosted API has no sign-out call; the
// token is simply discarded.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	wasSignedIn := c.idToken != ""
	c.idToken = ""
	c.mu.Unlock()
	if wasSignedIn {
		c.stream.Emit(nil)
	}
	return nil
}

// Refresh re-reads the account record and re-emits the session, picking up an
// email verification performed out of band.
func (c *Client) Refresh(ctx context.Context) error {
	token := c.token()
	if token == "" {
		return nil
	}
	sess, err := c.lookup(ctx, token)
	if err != nil {
		if err == identity.ErrNotFound {
			return c.SignOut(ctx)
		}
		return err
	}
	c.stream.Emit(sess)
	return nil
}

// Subscribe registers the session-change handler.
func (c *Client) Subscribe(handler func(*identity.Session)) (func(), error) {
	return c.stream.Subscribe(handler)
}

func (c *Client) lookup(ctx context.Context, idToken string) (*identity.Session, error) {
	var out lookupResponse
	err := c.post(ctx, "accounts:lookup", map[string]interface{}{"idToken": idToken}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Users) == 0 {
		return nil, identity.ErrNotFound
	}
	u := out.Users[0]
	return &identity.Session{
		AccountID:     u.LocalID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
	}, nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idToken
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.idToken = token
	c.mu.Unlock()
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// post calls one identity-toolkit endpoint and decodes the response into out.
func (c *Client) post(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s?key=%s", c.BaseURL, endpoint, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return identity.ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return identity.ErrProviderUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error.Message != "" {
			return mapErrorCode(apiErr.Error.Message)
		}
		return fmt.Errorf("identity: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapErrorCode translates provider error codes into identity sentinels.
// Codes may carry a suffix ("WEAK_PASSWORD : Password should be ..."), so
// match on the leading code.
func mapErrorCode(message string) error {
	code := message
	if i := strings.IndexAny(code, " :"); i >= 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_EXISTS":
		return identity.ErrDuplicateEmail
	case "WEAK_PASSWORD":
		return identity.ErrWeakPassword
	case "INVALID_EMAIL":
		return identity.ErrInvalidEmail
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND", "USER_DISABLED":
		return identity.ErrNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return identity.ErrWrongPassword
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return identity.ErrTooManyRequests
	default:
		return fmt.Errorf("identity: provider error %s", message)
	}
}
