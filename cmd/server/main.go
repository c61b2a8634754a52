/*
main.go - Application entry point

PURPOSE:
  Starts the leave engine HTTP server. Configuration is loaded, the
  dependency graph is assembled with fx, and the process runs until
  SIGINT/SIGTERM.

STARTUP SEQUENCE:
  1. Parse command-line flags and load config (YAML, .env, LEAVE_*)
  2. Open the store selected by store.driver (memory, sqlite, postgres)
  3. Build the holiday provider, policy registry and leave services
  4. Load store.seed_file, if set
  5. Start the accrual scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -config  YAML config file (default: $LEAVE_CONFIG)
  -port    HTTP server port, overrides server.port
  -db      SQLite database path, overrides store.sqlite_path and
           selects the sqlite driver. Use ":memory:" for a throwaway DB

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM fx runs OnStop hooks in reverse order:
  1. Stop accepting new connections, drain active requests
  2. Stop the accrual scheduler
  3. Close the store

EXAMPLES:
  ./server -db=./data/leave.db
  LEAVE_STORE_DRIVER=postgres LEAVE_STORE_POSTGRES_DSN=postgres://... ./server
  ./server -config=deploy/leave.yaml -port=3000

SEE ALSO:
  - modules.go: fx providers and lifecycle hooks
  - config/config.go: Configuration layers
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/warp/leave-engine/config"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEAVE_CONFIG"), "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.SQLitePath = *dbPath
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		Module,
	)

	if err := app.Start(context.Background()); err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	<-app.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		slog.Error("failed to stop cleanly", "error", err)
		os.Exit(1)
	}
}
