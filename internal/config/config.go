package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when GAS_CONFIG is not set.
const DefaultPath = "config/gas.yaml"

// envPrefix is prepended to every environment override.
const envPrefix = "GAS_"

// Engine holds all configuration for the gas daemon.
type Engine struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Simulation
	TickRate      int    `yaml:"tick_rate"      env:"TICK_RATE"`      // Hz
	MaxIterations int    `yaml:"max_iterations" env:"MAX_ITERATIONS"` // actions per flush
	MaxTicks      int    `yaml:"max_ticks"      env:"MAX_TICKS"`      // 0 runs until signalled
	CatalogPath   string `yaml:"catalog_path"   env:"CATALOG_PATH"`

	Database  DatabaseConfig  `yaml:"database"  envPrefix:"DB_"`
	Journal   JournalConfig   `yaml:"journal"   envPrefix:"JOURNAL_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"     env:"HOST"`
	Port     int    `yaml:"port"     env:"PORT"`
	User     string `yaml:"user"     env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	DBName   string `yaml:"dbname"   env:"NAME"`
	SSLMode  string `yaml:"sslmode"  env:"SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// JournalConfig controls the action journal written to Postgres.
type JournalConfig struct {
	Enabled   bool `yaml:"enabled"    env:"ENABLED"`
	BatchSize int  `yaml:"batch_size" env:"BATCH_SIZE"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"      env:"ENABLED"`
	Endpoint    string `yaml:"endpoint"     env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// DefaultEngine returns Engine config with sensible defaults.
func DefaultEngine() Engine {
	return Engine{
		LogLevel:      "info",
		TickRate:      20,
		MaxIterations: 4096,
		CatalogPath:   "config/catalog.yaml",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "gas",
			Password: "gas",
			DBName:   "gas",
			SSLMode:  "disable",
			MaxConns: 4,
		},
		Journal: JournalConfig{
			BatchSize: 256,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "gasd",
		},
	}
}

// Path returns the config file path, honouring GAS_CONFIG.
func Path() string {
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// LoadEngine loads engine config from a YAML file and applies GAS_* environment overrides.
// If the file doesn't exist, defaults are used.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing env: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports settings the daemon cannot run with.
func (c Engine) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate must be positive, got %d", c.TickRate))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("max_ticks must not be negative, got %d", c.MaxTicks))
	}
	if c.Journal.Enabled && c.Journal.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("journal.batch_size must be positive, got %d", c.Journal.BatchSize))
	}
	return errors.Join(errs...)
}
