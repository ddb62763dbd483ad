package web

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"maeul-board/backend/internal/account/service"
)

const sessionCookie = "maeul_session"

// defaultIdleTTL is how long a browser session's controller survives without
// a request before the registry drops it.
const defaultIdleTTL = 30 * time.Minute

// ControllerFactory builds a fresh lifecycle controller for a new browser
// session.
type ControllerFactory func() (*service.Controller, error)

type sessionEntry struct {
	ctrl     *service.Controller
	lastSeen time.Time
}

// Registry owns one lifecycle controller per browser session, keyed by the
// session cookie. Idle sessions are swept so abandoned browsers do not leak
// controllers and their provider subscriptions.
type Registry struct {
	factory ControllerFactory
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	stop     chan struct{}
	stopped  bool
}

// NewRegistry returns a Registry sweeping idle sessions after idleTTL
// (<= 0 selects the default).
func NewRegistry(factory ControllerFactory, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	r := &Registry{
		factory:  factory,
		idleTTL:  idleTTL,
		sessions: make(map[string]*sessionEntry),
		stop:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Controller returns the controller for the request's session, creating the
// session (and setting its cookie) when absent.
func (r *Registry) Controller(w http.ResponseWriter, req *http.Request) (*service.Controller, error) {
	var sid string
	if c, err := req.Cookie(sessionCookie); err == nil && c.Value != "" {
		sid = c.Value
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sid != "" {
		if entry, ok := r.sessions[sid]; ok {
			entry.lastSeen = time.Now()
			return entry.ctrl, nil
		}
	}

	ctrl, err := r.factory()
	if err != nil {
		return nil, err
	}
	sid = uuid.New().String()
	r.sessions[sid] = &sessionEntry{ctrl: ctrl, lastSeen: time.Now()}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return ctrl, nil
}

// Peek returns the controller for the request's session without creating one.
func (r *Registry) Peek(req *http.Request) *service.Controller {
	c, err := req.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[c.Value]
	if !ok {
		return nil
	}
	entry.lastSeen = time.Now()
	return entry.ctrl
}

// Close stops the sweeper and closes every live controller.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stop)
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.sessions = make(map[string]*sessionEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Close()
	}
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.idleTTL)
			var expired []*sessionEntry
			r.mu.Lock()
			for sid, e := range r.sessions {
				if e.lastSeen.Before(cutoff) {
					expired = append(expired, e)
					delete(r.sessions, sid)
				}
			}
			n := len(expired)
			r.mu.Unlock()
			for _, e := range expired {
				e.ctrl.Close()
			}
			if n > 0 {
				log.Printf("web: swept %d idle sessions", n)
			}
		}
	}
}
