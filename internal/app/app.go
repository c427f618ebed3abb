// Package app wires the console server: identity provider client, query
// service client, session manager and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"sqlspeak-console/internal/config"
	"sqlspeak-console/internal/console"
	"sqlspeak-console/internal/identity"
	"sqlspeak-console/internal/middleware"
	"sqlspeak-console/internal/queryclient"
	"sqlspeak-console/internal/session"
	"sqlspeak-console/internal/ui"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// App holds the fully-wired console server.
type App struct {
	Config   *config.Config
	Sessions *console.Manager
	Router   http.Handler

	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// New builds the console from cfg. Identity provider discovery runs only when
// sign-in is configured; without it the console serves pages but every
// query ends with a sign-in error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := console.Options{
		Service: queryclient.New(cfg.QueryAPIURL, queryclient.Options{
			Timeout:        cfg.QueryTimeout,
			RateLimitRPS:   cfg.QueryRateLimitRPS,
			RateLimitBurst: cfg.QueryRateLimitBurst,
			Logger:         logger,
		}),
		Scopes:  cfg.Auth.Scopes(),
		Session: session.Options{Timeout: cfg.QueryTimeout, Logger: logger},
		IdleTTL: cfg.SessionIdleTTL,
		Logger:  logger,
	}

	if cfg.Auth.Enabled() {
		client, err := identity.Discover(ctx, cfg.Auth, logger.With("component", "identity"))
		if err != nil {
			return nil, fmt.Errorf("identity provider: %w", err)
		}
		opts.OAuth = client.OAuth
		opts.HTTPClient = client.HTTPClient
		opts.Completer = identity.NewCompleter(client)
		logger.Info("sign-in enabled", "authority", cfg.Auth.AuthorityURL(), "client_id", cfg.Auth.ClientID)
	}

	sessions := console.NewManager(opts)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	h := ui.NewHandler(sessions, cfg.DataSources, cfg.Profiles, cfg.IsProduction(), logger)

	return &App{
		Config:   cfg,
		Sessions: sessions,
		Router:   newRouter(h, limiter, cfg.CORSAllowedOrigins, logger),
		limiter:  limiter,
		logger:   logger,
	}, nil
}

func newRouter(h *ui.Handler, limiter *middleware.RateLimiter, corsOrigins []string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)
	ui.MountRoutes(r, h, corsOrigins)
	return r
}

// Serve listens on the configured address until ctx is canceled, then shuts
// the server down gracefully. Idle sessions and rate-limit buckets are swept
// in the background while it runs.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if a.Config.QueryTimeout > 0 {
		srv.WriteTimeout = a.Config.QueryTimeout + 30*time.Second
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Sessions.ReapIdle(ctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		a.limiter.Cleanup(ctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down console")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		a.logger.Info("console listening", "addr", a.Config.ListenAddr, "public_url", a.Config.PublicURL, "query_api", a.Config.QueryAPIURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
