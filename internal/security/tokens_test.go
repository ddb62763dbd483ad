package security

import (
	"errors"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *TokenProvider {
	t.Helper()
	p, err := NewTokenProvider([]byte("test-secret"), "maeul-auth", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	return p
}

func TestTokenProvider_SessionRoundTrip(t *testing.T) {
	p := newTestProvider(t)

	token, err := p.IssueSession("acc-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	accountID, err := p.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if accountID != "acc-1" {
		t.Errorf("accountID = %q, want %q", accountID, "acc-1")
	}
}

func TestTokenProvider_VerificationRoundTrip(t *testing.T) {
	p := newTestProvider(t)

	token, err := p.IssueVerification("acc-2", "b@x.com")
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	accountID, err := p.ValidateVerification(token)
	if err != nil {
		t.Fatalf("ValidateVerification: %v", err)
	}
	if accountID != "acc-2" {
		t.Errorf("accountID = %q, want %q", accountID, "acc-2")
	}
}

func TestTokenProvider_PurposesNotInterchangeable(t *testing.T) {
	p := newTestProvider(t)

	session, err := p.IssueSession("acc-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := p.ValidateVerification(session); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateVerification(session token) err = %v, want ErrInvalidToken", err)
	}

	verify, err := p.IssueVerification("acc-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if _, err := p.ValidateSession(verify); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateSession(verification token) err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_ExpiredToken(t *testing.T) {
	p, err := NewTokenProvider([]byte("test-secret"), "maeul-auth", -time.Minute, -time.Minute)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	token, err := p.IssueSession("acc-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := p.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_WrongSecret(t *testing.T) {
	p := newTestProvider(t)
	other, err := NewTokenProvider([]byte("other-secret"), "maeul-auth", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}

	token, err := p.IssueSession("acc-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := other.ValidateSession(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign-secret token err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_MalformedToken(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.ValidateSession("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("malformed token err = %v, want ErrInvalidToken", err)
	}
}

func TestNewTokenProvider_RandomSecret(t *testing.T) {
	p, err := NewTokenProvider(nil, "", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	token, err := p.IssueSession("acc-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := p.ValidateSession(token); err != nil {
		t.Errorf("ValidateSession with generated secret: %v", err)
	}
}
