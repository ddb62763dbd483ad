package local

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"
	"time"

	"maeul-board/backend/internal/identity"
	"maeul-board/backend/internal/security"
)

type capturingSender struct {
	to      string
	subject string
	body    string
}

func (s *capturingSender) Send(to, subject, body string) error {
	s.to, s.subject, s.body = to, subject, body
	return nil
}

func newTestAuthority(t *testing.T, mail *capturingSender) *Authority {
	t.Helper()
	tokens, err := security.NewTokenProvider([]byte("test-secret"), "test", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	return NewAuthority(security.NewHasher(4), tokens, mail, "http://localhost:8080")
}

func TestCreateAccount(t *testing.T) {
	a := newTestAuthority(t, &capturingSender{})
	ctx := context.Background()

	c := a.NewClient()
	id, err := c.CreateAccount(ctx, "Ava@Example.com", "Abc12345!")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty account id")
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"duplicate email", "ava@example.com", "Abc12345!", identity.ErrDuplicateEmail},
		{"duplicate email differs by case", "AVA@EXAMPLE.COM", "Abc12345!", identity.ErrDuplicateEmail},
		{"short password", "bob@example.com", "ab1", identity.ErrWeakPassword},
		{"no at sign", "not-an-email", "Abc12345!", identity.ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.NewClient().CreateAccount(ctx, tt.email, tt.password); !errors.Is(err, tt.want) {
				t.Fatalf("CreateAccount(%q) = %v, want %v", tt.email, err, tt.want)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	a := newTestAuthority(t, &capturingSender{})
	ctx := context.Background()
	if _, err := a.NewClient().CreateAccount(ctx, "ava@example.com", "Abc12345!"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	c := a.NewClient()
	if _, err := c.SignIn(ctx, "ava@example.com", "wrong-password"); !errors.Is(err, identity.ErrWrongPassword) {
		t.Fatalf("wrong password: got %v, want %v", err, identity.ErrWrongPassword)
	}
	if _, err := c.SignIn(ctx, "nobody@example.com", "Abc12345!"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("unknown email: got %v, want %v", err, identity.ErrNotFound)
	}

	sess, err := c.SignIn(ctx, "ava@example.com", "Abc12345!")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.Email != "ava@example.com" || sess.EmailVerified {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestVerificationFlow(t *testing.T) {
	mail := &capturingSender{}
	a := newTestAuthority(t, mail)
	ctx := context.Background()

	c := a.NewClient()
	var changes []*identity.Session
	if _, err := c.Subscribe(func(s *identity.Session) { changes = append(changes, s) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := c.CreateAccount(ctx, "ava@example.com", "Abc12345!"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := c.SendVerificationEmail(ctx, "http://localhost:3000/welcome"); err != nil {
		t.Fatalf("SendVerificationEmail: %v", err)
	}
	if mail.to != "ava@example.com" {
		t.Fatalf("mail sent to %q, want ava@example.com", mail.to)
	}

	// Pull the token out of the mailed link and verify through it.
	m := regexp.MustCompile(`token=([^&\s]+)`).FindStringSubmatch(mail.body)
	if m == nil {
		t.Fatalf("no token in mail body:\n%s", mail.body)
	}
	token, err := url.QueryUnescape(m[1])
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	if _, err := a.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	// Clicking the link twice must not fail.
	if _, err := a.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail (second click): %v", err)
	}

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	last := changes[len(changes)-1]
	if last == nil || !last.EmailVerified {
		t.Fatalf("expected verified session after refresh, got %+v", last)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if got := changes[len(changes)-1]; got != nil {
		t.Fatalf("expected nil session after sign-out, got %+v", got)
	}
}

func TestVerifyEmailRejectsGarbage(t *testing.T) {
	a := newTestAuthority(t, &capturingSender{})
	if _, err := a.VerifyEmail(context.Background(), "not-a-token"); !errors.Is(err, security.ErrInvalidToken) {
		t.Fatalf("got %v, want %v", err, security.ErrInvalidToken)
	}
}

func TestSubscribeSingleSubscriber(t *testing.T) {
	c := newTestAuthority(t, &capturingSender{}).NewClient()
	unsub, err := c.Subscribe(func(*identity.Session) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := c.Subscribe(func(*identity.Session) {}); !errors.Is(err, identity.ErrSubscribed) {
		t.Fatalf("second Subscribe: got %v, want %v", err, identity.ErrSubscribed)
	}
	unsub()
	if _, err := c.Subscribe(func(*identity.Session) {}); err != nil {
		t.Fatalf("Subscribe after unsubscribe: %v", err)
	}
}
