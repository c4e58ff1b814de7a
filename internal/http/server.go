// Package http exposes the ledger over a JSON API.
//
// Requests are tied to a user via the X-User-ID header; the first request of
// a user hydrates their session from the store. Mutations optionally publish
// collection-changed messages so the mirror worker can propagate state.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"financas/internal/log"
	"financas/internal/middleware/ratelimit"
	"financas/internal/middleware/security"
	"financas/internal/middleware/trace"
	"financas/internal/session"
	"financas/internal/store"
)

const userIDHeader = "X-User-ID"

// Notifier publishes collection-changed events after mutations. Publish
// failures never fail the request; the periodic mirror pass covers the gap.
type Notifier interface {
	PublishCollectionSync(ctx context.Context, userID string, kind store.Kind) error
}

type Server struct {
	httpServer *http.Server
	sessions   *session.Manager
	notifier   Notifier
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	ready      func(context.Context) error
}

type Option func(*Server)

// WithNotifier wires the AMQP publisher for mutation events.
func WithNotifier(n Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithReadyCheck sets the probe behind GET /readyz.
func WithReadyCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithRateLimit overrides the default mutation rate limit.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) { s.limiter = ratelimit.NewLimiter(cfg) }
}

func NewServer(addr string, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		tracer:   trace.NewMiddleware(clientIP),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the routed, middleware-wrapped handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /logout", s.withSession(s.handleLogout))

	mux.HandleFunc("POST /expenses", s.limited(s.withSession(s.handleAddExpense)))
	mux.HandleFunc("POST /expenses/edit", s.limited(s.withSession(s.handleEditExpense)))
	mux.HandleFunc("POST /expenses/snapshot", s.limited(s.withSession(s.handleExpenseSnapshot)))
	mux.HandleFunc("GET /expenses", s.withSession(s.handleListExpenses))

	mux.HandleFunc("POST /savings", s.limited(s.withSession(s.handleAddSavings)))
	mux.HandleFunc("POST /savings/edit", s.limited(s.withSession(s.handleEditSavings)))
	mux.HandleFunc("POST /savings/snapshot", s.limited(s.withSession(s.handleSavingsSnapshot)))
	mux.HandleFunc("GET /savings", s.withSession(s.handleListSavings))

	mux.HandleFunc("GET /summary", s.withSession(s.handleSummary))

	mux.HandleFunc("POST /import/csv", s.limited(s.withSession(s.handleImportCSV)))
	mux.HandleFunc("GET /export/expenses.csv", s.withSession(s.handleExportExpenses))
	mux.HandleFunc("GET /export/savings.csv", s.withSession(s.handleExportSavings))

	mux.HandleFunc("POST /sync", s.limited(s.withSession(s.handleSync)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	return s.tracer.Middleware(headers.Middleware(mux))
}

// withSession resolves the caller's session from X-User-ID, logging in on
// first contact.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userIDHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
			return
		}
		sess, err := s.sessions.Login(r.Context(), userID)
		if err != nil {
			slog.ErrorContext(r.Context(), "Session login failed",
				log.FieldUserID, userID, log.FieldError, err)
			writeError(w, http.StatusBadGateway, "could not load user data")
			return
		}
		next(w, r, sess)
	}
}

// limited applies the per-IP rate limit to mutating endpoints.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	wrapped := s.limiter.Middleware(clientIP)(next)
	return wrapped.ServeHTTP
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.sessions.Logout(r.Context(), sess.UserID); err != nil {
		var syncErr *store.SyncError
		if errors.As(err, &syncErr) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "logged out",
				"warning": "some changes could not be stored: " + syncErr.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
