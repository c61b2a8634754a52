package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/seed"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
	"go.uber.org/fx"
)

// Module is the whole server graph. It expects a *config.Config to be supplied.
var Module = fx.Options(
	LoggerModule,
	StoreModule,
	DomainModule,
	HTTPModule,
)

var LoggerModule = fx.Module("logger",
	fx.Provide(NewLogger),
)

var StoreModule = fx.Module("store",
	fx.Provide(NewRepository),
)

var DomainModule = fx.Module("domain",
	fx.Provide(
		func() generic.Clock { return generic.SystemClock{} },
		NewHolidayProvider,
		NewRegistry,
		NewRequestService,
		leave.NewAccrualService,
	),
	fx.Invoke(LoadSeedFile),
)

var HTTPModule = fx.Module("http",
	fx.Provide(
		api.NewHandler,
		NewHTTPServer,
		NewScheduler,
	),
	fx.Invoke(startScheduler, startServer),
)

// =============================================================================
// PROVIDERS
// =============================================================================

func NewLogger(cfg *config.Config) *slog.Logger {
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// NewRepository opens the configured store and closes it on stop.
func NewRepository(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (leave.TxRepository, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil

	case config.DriverSQLite:
		store, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite store")
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return store.Close() }})
		logger.Info("store opened", "driver", cfg.Store.Driver, "path", cfg.Store.SQLitePath)
		return store, nil

	case config.DriverPostgres:
		if cfg.Store.Postgres.Migrate {
			if err := postgres.Migrate(cfg.Store.Postgres.DSN); err != nil {
				return nil, err
			}
			logger.Info("postgres migrations applied")
		}
		pool, err := postgres.NewPool(context.Background(), cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})
		logger.Info("store opened", "driver", cfg.Store.Driver)
		return postgres.New(pool), nil
	}
	return nil, errors.Newf("unknown store driver %q", cfg.Store.Driver)
}

func NewHolidayProvider(cfg *config.Config) (*calendar.Provider, error) {
	if cfg.Holidays.OverridesFile == "" {
		return calendar.NewProvider(), nil
	}
	overrides, err := calendar.LoadOverrides(cfg.Holidays.OverridesFile)
	if err != nil {
		return nil, err
	}
	return calendar.NewProvider(overrides), nil
}

func NewRegistry(cfg *config.Config, clock generic.Clock) *leave.Registry {
	return leave.NewDefaultRegistry(cfg.Policies.PolicyConfig(), clock)
}

// NewRequestService narrows the provider to the leave.HolidaySource it needs.
func NewRequestService(repo leave.TxRepository, registry *leave.Registry, holidays *calendar.Provider,
	clock generic.Clock, logger *slog.Logger) *leave.RequestService {
	return leave.NewRequestService(repo, registry, holidays, clock, logger)
}

func NewHTTPServer(cfg *config.Config, h *api.Handler) *http.Server {
	return api.NewHTTPServer(cfg.Server, api.NewRouter(h, cfg.Server))
}

func NewScheduler(cfg *config.Config, accruals *leave.AccrualService, logger *slog.Logger) *api.AccrualScheduler {
	return api.NewAccrualScheduler(accruals, cfg.Accrual.Interval, logger)
}

// =============================================================================
// INVOKES
// =============================================================================

// LoadSeedFile applies store.seed_file before the server starts.
func LoadSeedFile(cfg *config.Config, repo leave.TxRepository, clock generic.Clock, logger *slog.Logger) error {
	if cfg.Store.SeedFile == "" {
		return nil
	}
	f, err := seed.LoadFile(cfg.Store.SeedFile)
	if err != nil {
		return err
	}
	report, err := seed.Load(context.Background(), repo, clock, f)
	if err != nil {
		return err
	}
	logger.Info("seed file loaded", "file", cfg.Store.SeedFile,
		"users", report.Users, "pools", report.Pools, "grants", report.Grants, "skipped", report.Skipped)
	return nil
}

func startScheduler(lc fx.Lifecycle, cfg *config.Config, s *api.AccrualScheduler, logger *slog.Logger) {
	if !cfg.Accrual.Enabled {
		logger.Info("accrual scheduler disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { s.Start(); return nil },
		OnStop:  func(context.Context) error { s.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, srv *http.Server, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return errors.Wrapf(err, "listen on %s", srv.Addr)
			}
			logger.Info("server starting", "addr", srv.Addr)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("server shutting down")
			return srv.Shutdown(ctx)
		},
	})
}
