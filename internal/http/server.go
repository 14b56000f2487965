// Package http exposes the session, level and membership services to the
// browser UI as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"kincore/internal/finance"
	"kincore/internal/levels"
	"kincore/internal/log"
	"kincore/internal/membership"
	"kincore/internal/middleware/ratelimit"
	"kincore/internal/middleware/security"
	"kincore/internal/middleware/trace"
	"kincore/internal/session"
)

// Services are the single instances the handlers drive.
type Services struct {
	Session      *session.Session
	Auth         *session.Authenticator
	Levels       *levels.Provider
	Membership   *membership.Workflows
	Finance      *finance.Service
	Holdings     *finance.Holdings
	Dictionaries *finance.Dictionaries

	// Ready reports whether backing resources are usable. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      ratelimit.Config
	Logger         *log.Logger
}

type Server struct {
	http.Server
	svc      Services
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	origins  []string
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, svc Services) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		svc:      svc,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
		detector: detector,
		origins:  origins,
		now:      time.Now,
	}
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(security.CORS(s.origins))
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleSession)
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/logout", s.handleLogout)
			r.Patch("/profile", s.handleProfile)
		})

		r.Route("/levels", func(r chi.Router) {
			r.Get("/", s.handleLevels)
			r.Post("/refresh", s.requireSession(s.handleRefreshLevels))
			r.Post("/select", s.requireSession(s.handleSelectLevel))
		})

		r.Route("/membership", func(r chi.Router) {
			r.Use(s.requireSessionMiddleware)
			r.Get("/circle-gate", s.handleCircleGate)
			r.Post("/regenerate", s.handleRegenerate)
			r.Post("/{kind}/join", s.handleJoin)
			r.Post("/{kind}/create", s.handleCreate)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Use(s.requireSessionMiddleware)
			r.Get("/", s.handleExpenses)
			r.Post("/", s.handleCreateExpense)
			r.Delete("/{id}", s.handleDeleteExpense)
			r.Post("/{id}/pay", s.handlePay)
			r.Post("/{id}/unpay", s.handleUnpay)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Use(s.requireSessionMiddleware)
			r.Get("/", s.handleAssets)
			r.Post("/", s.handleCreateAsset)
			r.Patch("/{id}", s.handleUpdateAsset)
			r.Delete("/{id}", s.handleDeleteAsset)
		})

		r.Route("/liabilities", func(r chi.Router) {
			r.Use(s.requireSessionMiddleware)
			r.Get("/", s.handleLiabilities)
			r.Post("/", s.handleCreateLiability)
			r.Patch("/{id}", s.handleUpdateLiability)
			r.Delete("/{id}", s.handleDeleteLiability)
		})
	})

	return r
}

// Shutdown stops background cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.svc.Session.IsAuthenticated() {
			writeError(w, r, session.ErrNotAuthenticated)
			return
		}
		next(w, r)
	}
}

func (s *Server) requireSessionMiddleware(next http.Handler) http.Handler {
	return s.requireSession(next.ServeHTTP)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"requests": s.tracer.GetMetrics(),
		"security": s.detector.GetMetrics(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
