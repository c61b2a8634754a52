/*
main.go - Schema migrations for the postgres store

PURPOSE:
  Runs the SQL migrations embedded in store/postgres against the database
  named by store.postgres.dsn (or -dsn).

USAGE:
  migrate [-config file] [-dsn url] [up|down|version|force N|drop]

  up        apply every pending migration (default)
  down      roll back one migration
  version   print the current version and dirty flag
  force N   set the version without running anything, to clear a dirty state
  drop      drop everything in the database

SEE ALSO:
  - store/postgres/migrations: SQL files
  - store/postgres/migrate.go: Embedded source
*/
package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/store/postgres"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("LEAVE_CONFIG"), "YAML config file")
		dsn        = flag.String("dsn", "", "postgres URL (overrides config)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	target := *dsn
	if target == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		target = cfg.Store.Postgres.DSN
	}
	if target == "" {
		logger.Error("no postgres DSN: set -dsn or store.postgres.dsn")
		os.Exit(2)
	}

	action := "up"
	if flag.NArg() > 0 {
		action = flag.Arg(0)
	}

	m, err := postgres.NewMigrator(target)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := run(m, action, flag.Args(), logger); err != nil {
		logger.Error("migration failed", "action", action, "error", err)
		os.Exit(1)
	}
	logger.Info("migration completed", "action", action)
}

// migrator is the subset of *migrate.Migrate used here.
type migrator interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Drop() error
}

func run(m migrator, action string, args []string, logger *slog.Logger) error {
	switch action {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		return ignoreNoChange(m.Steps(-1))
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migration applied")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("current version", "version", v, "dirty", dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return errors.Wrapf(err, "invalid version %q", args[1])
		}
		return m.Force(v)
	case "drop":
		return m.Drop()
	}
	return errors.Newf("unsupported action %q", action)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
