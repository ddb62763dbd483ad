package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"maeul-board/backend/internal/identity"
)

// fakeAPI mimics the hosted identity endpoints closely enough for the client:
// one account, configurable verified flag, canned error codes.
type fakeAPI struct {
	email    string
	password string
	verified bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeErr := func(w http.ResponseWriter, code string) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":{"message":%q}}`, code)
	}
	decode := func(r *http.Request) map[string]interface{} {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		return body
	}
	mux.HandleFunc("/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
		if f.email != "" {
			writeErr(w, "EMAIL_EXISTS")
			return
		}
		body := decode(r)
		f.email, _ = body["email"].(string)
		f.password, _ = body["password"].(string)
		json.NewEncoder(w).Encode(map[string]string{"localId": "acct-1", "idToken": "token-1"})
	})
	mux.HandleFunc("/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		if body["email"] != f.email {
			writeErr(w, "EMAIL_NOT_FOUND")
			return
		}
		if body["password"] != f.password {
			writeErr(w, "INVALID_LOGIN_CREDENTIALS")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"localId": "acct-1", "email": f.email, "idToken": "token-1"})
	})
	mux.HandleFunc("/accounts:lookup", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]interface{}{{
				"localId":       "acct-1",
				"email":         f.email,
				"emailVerified": f.verified,
			}},
		})
	})
	mux.HandleFunc("/accounts:sendOobCode", func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		if body["idToken"] != "token-1" {
			writeErr(w, "INVALID_ID_TOKEN")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"email": f.email})
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL)
}

func TestSignUpAndSignIn(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	ctx := context.Background()

	var changes []*identity.Session
	if _, err := c.Subscribe(func(s *identity.Session) { changes = append(changes, s) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	id, err := c.CreateAccount(ctx, "ava@example.com", "Abc12345!")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if id != "acct-1" {
		t.Fatalf("account id = %q, want acct-1", id)
	}
	if len(changes) != 1 || changes[0] == nil || changes[0].EmailVerified {
		t.Fatalf("expected one unverified session change, got %+v", changes)
	}

	if err := c.SendVerificationEmail(ctx, "http://localhost:3000/welcome"); err != nil {
		t.Fatalf("SendVerificationEmail: %v", err)
	}

	sess, err := c.SignIn(ctx, "ava@example.com", "Abc12345!")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.AccountID != "acct-1" || sess.Email != "ava@example.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// Verification happens out of band; Refresh must surface it.
	api.verified = true
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if last := changes[len(changes)-1]; last == nil || !last.EmailVerified {
		t.Fatalf("expected verified session after refresh, got %+v", last)
	}

	if err := c.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if last := changes[len(changes)-1]; last != nil {
		t.Fatalf("expected nil session after sign-out, got %+v", last)
	}
}

func TestCreateAccountDuplicate(t *testing.T) {
	api := &fakeAPI{email: "ava@example.com", password: "Abc12345!"}
	c := newTestClient(t, api)
	if _, err := c.CreateAccount(context.Background(), "ava@example.com", "Abc12345!"); !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("got %v, want %v", err, identity.ErrDuplicateEmail)
	}
}

func TestSignInErrors(t *testing.T) {
	api := &fakeAPI{email: "ava@example.com", password: "Abc12345!"}
	c := newTestClient(t, api)
	ctx := context.Background()

	if _, err := c.SignIn(ctx, "nobody@example.com", "Abc12345!"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("unknown email: got %v, want %v", err, identity.ErrNotFound)
	}
	if _, err := c.SignIn(ctx, "ava@example.com", "wrong"); !errors.Is(err, identity.ErrWrongPassword) {
		t.Fatalf("wrong password: got %v, want %v", err, identity.ErrWrongPassword)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		message string
		want    error
	}{
		{"EMAIL_EXISTS", identity.ErrDuplicateEmail},
		{"WEAK_PASSWORD : Password should be at least 6 characters", identity.ErrWeakPassword},
		{"INVALID_EMAIL", identity.ErrInvalidEmail},
		{"EMAIL_NOT_FOUND", identity.ErrNotFound},
		{"INVALID_PASSWORD", identity.ErrWrongPassword},
		{"INVALID_LOGIN_CREDENTIALS", identity.ErrWrongPassword},
		{"TOO_MANY_ATTEMPTS_TRY_LATER", identity.ErrTooManyRequests},
	}
	for _, tt := range tests {
		if got := mapErrorCode(tt.message); !errors.Is(got, tt.want) {
			t.Errorf("mapErrorCode(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
	if got := mapErrorCode("SOMETHING_NEW"); got == nil || !strings.Contains(got.Error(), "SOMETHING_NEW") {
		t.Errorf("unknown code should surface verbatim, got %v", got)
	}
}

func TestServerErrorsMapToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-key", srv.URL)
	if _, err := c.CreateAccount(context.Background(), "a@x.com", "Abc12345!"); !errors.Is(err, identity.ErrProviderUnavailable) {
		t.Fatalf("got %v, want %v", err, identity.ErrProviderUnavailable)
	}
}
