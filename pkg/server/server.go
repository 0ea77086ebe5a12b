// Package server exposes CreatorPass discovery and payment endpoints over
// HTTP. All chain reads go through the scanner; the only state the server
// itself holds is the in-memory payment request book.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/creatorpass/creatorpass/pkg/metrics"
)

type Server struct {
	log         *slog.Logger
	cfg         Config
	router      *chi.Mux
	httpSrv     *http.Server
	payStore    *payStore
	scanLimiter *RateLimiter
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.ScanRequestsPerMinute == 0 {
		cfg.ScanRequestsPerMinute = 60
	}
	if cfg.ScanBurst == 0 {
		cfg.ScanBurst = 10
	}
	if cfg.PaymentRequestTTL == 0 {
		cfg.PaymentRequestTTL = time.Hour
	}

	s := &Server{
		log:      cfg.Logger,
		cfg:      cfg,
		router:   chi.NewRouter(),
		payStore: newPayStore(cfg.Clock, cfg.PaymentRequestTTL),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/healthz", s.healthzHandler)
	s.router.Get("/readyz", s.readyzHandler)
	s.router.Get("/version", s.versionHandler)
	s.router.Handle("/metrics", promhttp.Handler())

	s.scanLimiter = NewRateLimiter(rate.Every(time.Minute/time.Duration(s.cfg.ScanRequestsPerMinute)), s.cfg.ScanBurst)

	s.router.Route("/api", func(r chi.Router) {
		// Program scans are the expensive calls; keep them behind the
		// per-IP limiter.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.scanLimiter))
			r.Get("/creators", s.handleListCreators)
			r.Get("/subscriptions", s.handleListSubscriptions)
		})

		r.Get("/creators/{owner}", s.handleGetCreator)
		r.Get("/access", s.handleCheckAccess)

		r.Post("/pay/requests", s.handleCreatePaymentRequest)
		r.Get("/pay/requests/{reference}", s.handleGetPaymentRequest)
		r.Get("/pay/requests/{reference}/qr", s.handlePaymentRequestQR)
	})
}

// Run starts the HTTP server and blocks until ctx is done or the listener
// fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.scanLimiter.Stop()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	// The server carries no warm-up state; readiness equals liveness.
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
