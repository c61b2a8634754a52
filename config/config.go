/*
config.go - Server configuration

PURPOSE:
  One Config value for cmd/server and cmd/migrate. Values are layered:

    1. Default()            built-in values
    2. YAML file            optional, -config flag or LEAVE_CONFIG
    3. .env + environment   LEAVE_* variables, e.g. LEAVE_STORE_DRIVER
    4. command-line flags   applied by cmd/server on top of Load

  Environment variables only override what they set; envconfig tags carry
  no defaults so YAML values survive.

SEE ALSO:
  - cmd/server/main.go: Flag layer and fx wiring
  - store/postgres:     Pool settings consumer
*/
package config

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LEAVE"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
	Holidays HolidaysConfig `yaml:"holidays" envconfig:"HOLIDAYS"`
	Policies PoliciesConfig `yaml:"policies" envconfig:"POLICIES"`
	Accrual  AccrualConfig  `yaml:"accrual" envconfig:"ACCRUAL"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	// EnableScenarios mounts the demo fixture endpoints.
	EnableScenarios bool `yaml:"enable_scenarios" envconfig:"ENABLE_SCENARIOS"`
}

type StoreConfig struct {
	Driver     string         `yaml:"driver" envconfig:"DRIVER"`
	SQLitePath string         `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	Postgres   PostgresConfig `yaml:"postgres" envconfig:"POSTGRES"`
	// SeedFile is a fixture file loaded at startup, if set.
	SeedFile string `yaml:"seed_file" envconfig:"SEED_FILE"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxConns        int           `yaml:"max_conns" envconfig:"MAX_CONNS"`
	MinConns        int           `yaml:"min_conns" envconfig:"MIN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" envconfig:"CONN_MAX_IDLE_TIME"`
	// Migrate applies embedded migrations at startup.
	Migrate bool `yaml:"migrate" envconfig:"MIGRATE"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"` // json or text
}

type HolidaysConfig struct {
	OverridesFile string `yaml:"overrides_file" envconfig:"OVERRIDES_FILE"`
}

type PoliciesConfig struct {
	RTTAnnualDays        float64 `yaml:"rtt_annual_days" envconfig:"RTT_ANNUAL_DAYS"`
	LUCPNominalDays      float64 `yaml:"lu_cp_nominal_days" envconfig:"LU_CP_NOMINAL_DAYS"`
	LUHoursPerDay        float64 `yaml:"lu_hours_per_day" envconfig:"LU_HOURS_PER_DAY"`
	LUSeniorityMonths    int     `yaml:"lu_seniority_months" envconfig:"LU_SENIORITY_MONTHS"`
	RecoveryWindowMonths int     `yaml:"recovery_window_months" envconfig:"RECOVERY_WINDOW_MONTHS"`
}

type AccrualConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
}

// Default returns a configuration that runs a local SQLite server.
func Default() Config {
	p := leave.DefaultPolicyConfig()
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "leave.db",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Policies: PoliciesConfig{
			RTTAnnualDays:        p.RTTAnnualDays.InexactFloat64(),
			LUCPNominalDays:      p.LUCPNominalDays.InexactFloat64(),
			LUHoursPerDay:        p.LUHoursPerDay.InexactFloat64(),
			LUSeniorityMonths:    p.LUSeniorityMonths,
			RecoveryWindowMonths: p.RecoveryWindowMonths,
		},
		Accrual: AccrualConfig{Enabled: true, Interval: time.Hour},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), a .env file in the working directory (if present) and the
// environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "config: load .env")
	}
	return load(path)
}

func load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: read file %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, errors.Wrap(err, "config: parse yaml")
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: process env")
	}
	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("config: server.port %d out of range", c.Server.Port)
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("config: store.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("config: store.postgres.dsn must be set for the postgres driver")
		}
	default:
		return errors.Newf("config: unknown store.driver %q", c.Store.Driver)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return errors.Newf("config: log.format must be json or text, got %q", c.Log.Format)
	}

	p := c.Policies
	if p.RTTAnnualDays <= 0 || p.LUCPNominalDays <= 0 || p.LUHoursPerDay <= 0 {
		return errors.New("config: policies allotments must be positive")
	}
	if p.LUSeniorityMonths < 0 || p.RecoveryWindowMonths <= 0 {
		return errors.New("config: policies month counts out of range")
	}

	if c.Accrual.Enabled && c.Accrual.Interval <= 0 {
		return errors.New("config: accrual.interval must be positive when enabled")
	}
	return nil
}

// PolicyConfig converts the policies section for leave.DefaultPolicies.
func (p PoliciesConfig) PolicyConfig() leave.PolicyConfig {
	return leave.PolicyConfig{
		RTTAnnualDays:        decimal.NewFromFloat(p.RTTAnnualDays),
		LUCPNominalDays:      decimal.NewFromFloat(p.LUCPNominalDays),
		LUHoursPerDay:        decimal.NewFromFloat(p.LUHoursPerDay),
		LUSeniorityMonths:    p.LUSeniorityMonths,
		RecoveryWindowMonths: p.RecoveryWindowMonths,
	}
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.Wrapf(err, "config: log.level %q", l.Level)
	}
	return lvl, nil
}

// NewLogger builds the process logger. The level was validated by Load.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
