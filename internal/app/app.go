package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/core"
	"github.com/vovakirdan/snuz/internal/service/groups"
	"github.com/vovakirdan/snuz/internal/service/sleep"
	"github.com/vovakirdan/snuz/internal/service/users"
	"github.com/vovakirdan/snuz/internal/store"
	"github.com/vovakirdan/snuz/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/snuz/internal/transport/http"
)

// App wires together storage, services, the presence hub and the HTTP server.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	return newApp(st, cfg, logger), nil
}

func newApp(st store.Store, cfg *config.Config, logger *zerolog.Logger) *App {
	hub := core.NewHub(logger)
	svc := transporthttp.Services{
		Users:  users.New(st),
		Sleep:  sleep.New(st, logger, sleep.WithDissolveHook(hub.CloseGroup)),
		Groups: groups.New(st, nil),
	}

	return &App{
		server:          transporthttp.NewServer(hub, svc, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}
}

// Run starts the hub and the HTTP server and blocks until ctx is cancelled or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
