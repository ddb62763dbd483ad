// Package web is the HTTP surface over the account lifecycle controller:
// thin JSON handlers, one controller per browser session, and the
// email-verification landing endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"maeul-board/backend/internal/account/domain"
	"maeul-board/backend/internal/account/service"
	auditdomain "maeul-board/backend/internal/audit/domain"
	"maeul-board/backend/internal/identity"
	"maeul-board/backend/internal/security"
	"maeul-board/backend/internal/throttle"
)

// EmailVerifier consumes a verification-link token. Implemented by the local
// identity authority; nil when the hosted provider handles its own links.
type EmailVerifier interface {
	VerifyEmail(ctx context.Context, token string) (accountID string, err error)
}

// ActivityReader lists the audit trail for one account, newest first.
// Implemented by the audit repository; nil when no database is configured.
type ActivityReader interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*auditdomain.AuditLog, error)
}

// Handler routes the identity endpoints.
type Handler struct {
	registry *Registry
	verifier EmailVerifier
	activity ActivityReader
}

// NewHandler returns the HTTP handler set. verifier and activity may be nil.
func NewHandler(registry *Registry, verifier EmailVerifier, activity ActivityReader) *Handler {
	return &Handler{registry: registry, verifier: verifier, activity: activity}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/auth/signup", h.signup)
	mux.HandleFunc("POST /v1/auth/login", h.login)
	mux.HandleFunc("POST /v1/auth/logout", h.logout)
	mux.HandleFunc("POST /v1/auth/resend-verification", h.resendVerification)
	mux.HandleFunc("GET /v1/auth/me", h.me)
	mux.HandleFunc("GET /v1/auth/activity", h.listActivity)
	mux.HandleFunc("GET /v1/auth/verify", h.verify)
	mux.HandleFunc("GET /v1/auth/regions", h.regions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	DisplayName     string `json:"displayName"`
	Region          string `json:"region"`
	IsLocal         bool   `json:"isLocal"`
	// Website is the hidden anti-automation field; real clients leave it empty.
	Website string `json:"website"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctrl, err := h.registry.Controller(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = ctrl.Signup(r.Context(), service.SignupInput{
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		DisplayName:     req.DisplayName,
		Region:          req.Region,
		IsLocal:         req.IsLocal,
		Honeypot:        req.Website,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "email_sent"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Website  string `json:"website"`
}

type principalResponse struct {
	AccountID       string `json:"accountId"`
	Email           string `json:"email"`
	DisplayName     string `json:"displayName"`
	Region          string `json:"region"`
	IsLocal         bool   `json:"isLocal"`
	SignupCompleted bool   `json:"signupCompleted"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctrl, err := h.registry.Controller(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := ctrl.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Honeypot: req.Website,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPrincipalResponse(p))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	ctrl := h.registry.Peek(r)
	if ctrl == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := ctrl.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resendRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctrl, err := h.registry.Controller(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ctrl.ResendVerification(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	ctrl := h.registry.Peek(r)
	if ctrl == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	p := ctrl.CurrentPrincipal()
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	writeJSON(w, http.StatusOK, toPrincipalResponse(p))
}

type activityEntry struct {
	Action    string    `json:"action"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// listActivity returns the signed-in account's own audit trail, newest first.
func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		http.NotFound(w, r)
		return
	}
	ctrl := h.registry.Peek(r)
	if ctrl == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	p := ctrl.CurrentPrincipal()
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	limit := queryInt(r, "limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	logs, err := h.activity.ListByAccount(r.Context(), p.AccountID, int32(limit), int32(offset))
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]activityEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, activityEntry{Action: l.Action, Metadata: l.Metadata, CreatedAt: l.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// verify is the verification-link landing endpoint for the local authority.
// It marks the account verified, nudges the clicking browser's own session to
// re-read its state, and forwards to the redirect from the mail link.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		http.NotFound(w, r)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing token"})
		return
	}
	if _, err := h.verifier.VerifyEmail(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	if ctrl := h.registry.Peek(r); ctrl != nil {
		if err := ctrl.RefreshProfile(r.Context()); err != nil {
			log.Printf("web: post-verification refresh failed: %v", err)
		}
	}
	if redirect := r.URL.Query().Get("redirect"); redirect != "" {
		if u, err := url.Parse(redirect); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			http.Redirect(w, r, redirect, http.StatusFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "verified"})
}

func (h *Handler) regions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"regions": domain.Regions})
}

func toPrincipalResponse(p *domain.Principal) principalResponse {
	return principalResponse{
		AccountID:       p.AccountID,
		Email:           p.Email,
		DisplayName:     p.Profile.DisplayName,
		Region:          p.Profile.Region,
		IsLocal:         p.Profile.IsLocal,
		SignupCompleted: p.Profile.SignupCompleted,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("web: response encode failed: %v", err)
	}
}

// writeError maps service and provider errors onto HTTP statuses. Wrong
// password and unknown email collapse into one message so the endpoint does
// not confirm which emails have accounts.
func writeError(w http.ResponseWriter, err error) {
	var rl *service.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(rl.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "too many attempts",
			"retryAfter": secs,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, security.ErrInvalidToken):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, throttle.ErrSuspiciousRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request rejected"})
	case errors.Is(err, identity.ErrWrongPassword), errors.Is(err, identity.ErrNotFound):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "email or password is incorrect"})
	case errors.Is(err, service.ErrEmailNotVerified):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "email not verified"})
	case errors.Is(err, identity.ErrDuplicateEmail), errors.Is(err, identity.ErrAlreadyVerified):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, identity.ErrTooManyRequests):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many attempts"})
	case errors.Is(err, identity.ErrProviderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "identity provider unavailable"})
	default:
		log.Printf("web: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
