package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callaudit/callaudit/internal/api/middleware"
	"github.com/callaudit/callaudit/internal/config"
	"github.com/callaudit/callaudit/internal/database"
	"github.com/callaudit/callaudit/internal/gaps"
	"github.com/callaudit/callaudit/internal/metrics"
	"github.com/callaudit/callaudit/internal/session"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router        *chi.Mux
	store         database.Store
	cfg           *config.Config
	jwtSecret     []byte
	defaultWindow gaps.OfficeHours

	// One workflow session per agency, created on first use.
	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(store database.Store, cfg *config.Config, jwtSecret []byte) (*Server, error) {
	window, err := cfg.OfficeHours()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:        chi.NewRouter(),
		store:         store,
		cfg:           cfg,
		jwtSecret:     jwtSecret,
		defaultWindow: window,
		sessions:      make(map[string]*session.Session),
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// session returns the agency's workflow session, creating it on first use.
func (s *Server) session(agencyID string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[agencyID]
	if !ok {
		sess = session.New(agencyID, s.store)
		s.sessions[agencyID] = sess
	}
	return sess
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))
	r.Use(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())))

	r.Get("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Agency-scoped routes behind the bearer-token middleware.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAgency(s.jwtSecret))

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.handleSessionStatus)
				r.Delete("/warning", s.handleDismissSaveWarning)
			})

			r.Route("/uploads", func(r chi.Router) {
				r.With(middleware.RateLimit(middleware.NewIPRateLimiter(middleware.UploadRateLimitConfig()))).
					Post("/", s.handleUpload)
				r.Get("/", s.handleListUploads)
				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", s.handleDeleteUpload)
					r.Get("/view", s.handleGetView)
					r.Get("/view/export", s.handleExportView)
				})
			})
		})
	})

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}
