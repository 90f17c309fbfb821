package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kitalumni/alumnichat/internal/config"
	"github.com/kitalumni/alumnichat/internal/core"
	"github.com/kitalumni/alumnichat/internal/moderation"
	"github.com/kitalumni/alumnichat/internal/store"
	"github.com/kitalumni/alumnichat/internal/store/mongo"
	"github.com/kitalumni/alumnichat/internal/store/postgres"
	"github.com/kitalumni/alumnichat/internal/store/sqlite"
	transporthttp "github.com/kitalumni/alumnichat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New opens the configured store, clears stale presence flags and builds the hub
// and the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("store initialized")

	// Presence lives in memory, so flags left by a previous process are stale.
	resetCtx, cancel := storeContext(ctx, cfg.Store.OperationTimeout)
	n, err := st.ResetOnline(resetCtx)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to reset online flags")
	} else if n > 0 {
		logger.Info().Int64("users", n).Msg("reset stale online flags")
	}

	opts := core.Options{
		ClientBuffer:          cfg.Hub.ClientBuffer,
		RequireBoundSender:    cfg.Hub.RequireBoundSender,
		EvictReplacedSessions: cfg.Hub.EvictReplacedSessions,
		ReportErrors:          cfg.Hub.ReportErrors,
		OperationTimeout:      cfg.Store.OperationTimeout,
	}

	censor, err := moderation.NewCensor(cfg.Moderation.CensoredWords, cfg.Moderation.Replacement)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init moderation: %w", err)
	}
	if censor != nil {
		opts.Moderator = censor
		logger.Info().Int("words", len(cfg.Moderation.CensoredWords)).Msg("chat moderation enabled")
	}

	hub := core.NewHub(st, st, logger, opts)
	server := transporthttp.NewServer(hub, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// storeContext bounds a store call by timeout; zero leaves it unbounded.
func storeContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(parent, timeout)
	}
	return context.WithCancel(parent)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongo.New(connectCtx, mongo.Options{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			AppName:        "alumnichat",
			MinPoolSize:    cfg.MongoMinPoolSize,
			MaxPoolSize:    cfg.MongoMaxPoolSize,
			ConnectTimeout: 10 * time.Second,
		}, logger)
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return postgres.New(connectCtx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Run starts the hub and the HTTP server and blocks until context cancellation or
// fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	// The hub outlives the listener so open sessions are released only after
	// Shutdown stopped accepting new ones.
	hubCtx, stopHub := context.WithCancel(context.Background())
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.stopHub(stopHub)
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		a.stopHub(stopHub)
		a.cleanup()
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

func (a *App) stopHub(stop context.CancelFunc) {
	stop()
	<-a.hub.Done()
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
