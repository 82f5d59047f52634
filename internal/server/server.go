// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects stores, services, handlers
// and middleware, and decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go opens the resources that can fail at startup (database, Redis,
// Docker) and hands them over in Options. New builds everything else:
//
//	sqlite.DB ─┬─ Users() ──────┐
//	           ├─ Sessions() ───┼─→ AuthService ───→ AuthHandler
//	           │  (or Redis)    │         └──────────→ auth.Identify
//	           └─ Snippets() ───┴─→ SnippetService ─→ SnippetHandler
//	runner ─────────────────────────────┘
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/snippetbox/internal/auth"
	"github.com/sakif/snippetbox/internal/config"
	"github.com/sakif/snippetbox/internal/executor"
	"github.com/sakif/snippetbox/internal/flash"
	"github.com/sakif/snippetbox/internal/handler"
	"github.com/sakif/snippetbox/internal/middleware"
	"github.com/sakif/snippetbox/internal/repository"
	sqliteRepo "github.com/sakif/snippetbox/internal/repository/sqlite"
	"github.com/sakif/snippetbox/internal/service"
	"github.com/sakif/snippetbox/web"
)

// limiterIdle is how long a client's rate-limit bucket survives unused.
const limiterIdle = 15 * time.Minute

// Options carries the resources main opened. The server takes ownership of
// everything in it and closes it on shutdown.
type Options struct {
	// DB is required; it stores users and snippets, and sessions unless
	// Sessions is set.
	DB *sqliteRepo.DB
	// Sessions overrides the session store (e.g. Redis).
	Sessions repository.SessionStore
	// Runner executes snippets. Nil disables the Run button.
	Runner executor.Executor
	// Passwords defaults to bcrypt at auth.DefaultCost.
	Passwords *auth.PasswordService
	// Closers are closed in reverse order after the database.
	Closers []io.Closer
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sessions repository.SessionStore
	closers  []io.Closer

	auth     *service.AuthService
	metrics  *middleware.Metrics
	limiters *middleware.LimiterRegistry
	purged   prometheus.Counter
}

// New assembles the application from cfg and the opened resources.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Server, error) {
	if opts.DB == nil {
		return nil, errors.New("server: database is required")
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = opts.DB.Sessions()
	}
	passwords := opts.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}

	tokens, err := auth.NewTokenService(cfg.Session.Secret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       opts.DB,
		sessions: sessions,
		closers:  opts.Closers,
		auth:     service.NewAuthService(opts.DB.Users(), sessions, tokens, passwords, cfg.Session.TTL, logger),
		metrics:  middleware.NewMetrics(),
		limiters: middleware.NewLimiterRegistry(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	}
	s.purged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "snippetbox",
		Name:      "sessions_purged_total",
		Help:      "Expired sessions removed by the background purge.",
	})
	s.metrics.Registry().MustRegister(s.purged)

	if err := s.setupRoutes(opts.Runner); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET        /                         → snippet list
// GET/POST   /register/, /login/       → account forms (rate limited)
// GET        /logout/                  → end the session
// GET        /auth/github/{login,callback}
// GET/POST   /new/                     → new snippet          (login)
// GET        /{id}/                    → snippet + related
// GET/POST   /{id}/edit/               → edit snippet         (login)
// POST       /{id}/run/                → run snippet          (login)
// ANY        /{id}/new_snippet/, /{id}/edit_snippet/ → redirects
// GET        /language/{language}/, /tag/{tag}/
// GET        /static/*, /metrics, /healthz
//
// MIDDLEWARE ORDER MATTERS:
// RequestID and RealIP come first so the logger and the rate limiter see
// their values. Identify runs last so every handler sees the request user.
func (s *Server) setupRoutes(runner executor.Executor) error {
	// Session, OAuth state and flash cookies share one Secure setting.
	cookies := auth.Cookies{Secure: s.config.Session.CookieSecure}
	flashes := flash.Store{Secure: s.config.Session.CookieSecure}

	render, err := handler.NewRenderer(web.Files, s.config.GitHubEnabled(), flashes, s.logger)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHub.ClientID, s.config.GitHub.ClientSecret, s.config.GitHubCallback())
	}

	snippetService := service.NewSnippetService(s.db.Snippets(), runner, s.logger)
	snippets := handler.NewSnippetHandler(snippetService, render, s.logger)
	accounts := handler.NewAuthHandler(s.auth, github, cookies, render, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(auth.Identify(s.auth, cookies, s.logger))

	s.router.NotFound(render.NotFound)

	// === Static Files & Operations ===
	static, err := fs.Sub(web.Files, "static")
	if err != nil {
		return fmt.Errorf("opening static files: %w", err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	s.router.Get("/healthz", s.handleHealth)

	// === Accounts ===
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit("accounts", s.limiters, s.metrics))
		r.Get("/register/", accounts.ShowRegister)
		r.Post("/register/", accounts.Register)
		r.Get("/login/", accounts.ShowLogin)
		r.Post("/login/", accounts.Login)
	})
	s.router.Get("/logout/", accounts.Logout)
	s.router.Get("/auth/github/login", accounts.GitHubLogin)
	s.router.Get("/auth/github/callback", accounts.GitHubCallback)

	// === Snippets ===
	s.router.Get("/", snippets.Index)
	s.router.Get("/language/{language}/", snippets.ByLanguage)
	s.router.Get("/tag/{tag}/", snippets.ByTag)
	s.router.Get("/{id}/", snippets.View)
	s.router.HandleFunc("/{id}/new_snippet/", snippets.RedirectNew)
	s.router.HandleFunc("/{id}/edit_snippet/", snippets.RedirectEdit)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin)
		r.Get("/new/", snippets.ShowCreate)
		r.Post("/new/", snippets.Create)
		r.Get("/{id}/edit/", snippets.ShowEdit)
		r.Post("/{id}/edit/", snippets.Update)
		r.Post("/{id}/run/", snippets.Run)
	})

	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth reports whether the database and session store answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check: database", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	if p, ok := s.sessions.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("health check: session store", slog.String("error", err.Error()))
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

// maintain periodically purges expired sessions and idle rate-limit
// buckets until ctx is cancelled.
func (s *Server) maintain(ctx context.Context) {
	interval := s.config.Session.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *Server) purge(ctx context.Context) {
	n, err := s.auth.PurgeExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("purging expired sessions", slog.String("error", err.Error()))
	} else {
		s.purged.Add(float64(n))
	}
	if dropped := s.limiters.Sweep(limiterIdle); dropped > 0 {
		s.logger.Debug("dropped idle rate limiters", slog.Int("count", dropped))
	}
}

// Close releases the database and every other owned resource.
func (s *Server) Close() error {
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start runs the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the background purge
//  4. Close the database, the session store and the runner
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	// WriteTimeout leaves room for a snippet run.
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + s.config.Runner.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.maintain(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("database", s.config.Database.Path),
			slog.String("sessions", s.config.Session.Store),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
