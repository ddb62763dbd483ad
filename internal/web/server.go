package web

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

type clientIPKey struct{}

// ClientIP returns the request's client IP stored by the server middleware.
// Used by the audit logger's IP extractor.
func ClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok
}

// withClientIP stores the client IP (X-Forwarded-For when present, else the
// peer address) in the request context.
func withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Forwarded-For")
		if ip != "" {
			if i := strings.IndexByte(ip, ','); i >= 0 {
				ip = ip[:i]
			}
			ip = strings.TrimSpace(ip)
		} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
	})
}

// Server wraps the HTTP server around the handler set.
type Server struct {
	httpServer *http.Server
	registry   *Registry
}

// NewServer builds the server on addr with the given session registry,
// optional email verifier, and optional activity reader.
func NewServer(addr string, registry *Registry, verifier EmailVerifier, activity ActivityReader) *Server {
	mux := http.NewServeMux()
	NewHandler(registry, verifier, activity).Routes(mux)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           withClientIP(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		registry: registry,
	}
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests, then closes every session controller.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.registry.Close()
	return err
}
