package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/api"
	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/config"
	"github.com/matheus3301/wisp/internal/live"
	"github.com/matheus3301/wisp/internal/lock"
	"github.com/matheus3301/wisp/internal/logging"
	"github.com/matheus3301/wisp/internal/profile"
	"github.com/matheus3301/wisp/internal/quota"
	"github.com/matheus3301/wisp/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ListenAddr  string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideFeed,
			provideQuotaWorker,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = config.GenerateSecret()
		if err := config.Save(profile.ConfigPath(), cfg); err != nil {
			return nil, err
		}
		logger.Info("generated auth secret", zap.String("path", profile.ConfigPath()))
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath, store.Options{FreeDailyMessageLimit: cfg.FreeDailyMessageLimit})
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideFeed(db *store.DB, b *bus.Bus, logger *zap.Logger) *live.Feed {
	return live.NewFeed(db, b, logger)
}

func provideQuotaWorker(db *store.DB, b *bus.Bus, logger *zap.Logger) *quota.Worker {
	return quota.NewWorker(db, b, logger)
}

func provideAPI(db *store.DB, feed *live.Feed, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *api.Server {
	return api.NewServer(db, feed, b, logger, cfg.AuthSecret, cfg.PageSize)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, worker *quota.Worker, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			worker.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			worker.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
