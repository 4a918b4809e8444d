package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/Simplici0/costeo/internal/costing"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Port            string        `mapstructure:"port"`
	DBPath          string        `mapstructure:"db_path"`
	LogLevel        string        `mapstructure:"log_level"`
	Env             string        `mapstructure:"app_env"`
	TaxRatePercent  float64       `mapstructure:"tax_rate_percent"`
	SplitPolicy     string        `mapstructure:"synthetic_split_policy"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Seed            Seed          `mapstructure:",squash"`
}

// Seed holds the values written by the startup seed into empty tables.
type Seed struct {
	BenefitsRate         float64 `mapstructure:"seed_benefits_rate"`
	HoursPerHead         float64 `mapstructure:"seed_hours_per_head"`
	AverageMonthlyVolume int64   `mapstructure:"seed_average_monthly_volume"`
}

var defaults = map[string]any{
	"PORT":                        "8080",
	"DB_PATH":                     "./costeo.db",
	"LOG_LEVEL":                   "info",
	"APP_ENV":                     "development",
	"TAX_RATE_PERCENT":            12,
	"SYNTHETIC_SPLIT_POLICY":      string(costing.SplitByRole),
	"RUN_MIGRATIONS":              true,
	"SHUTDOWN_TIMEOUT":            "10s",
	"SEED_BENEFITS_RATE":          41.83,
	"SEED_HOURS_PER_HEAD":         176,
	"SEED_AVERAGE_MONTHLY_VOLUME": 1000,
}

// Load reads environment variables and returns a validated Config.
func Load() (Config, error) {
	// Best-effort: a local .env fills in variables the environment lacks.
	if _, err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	))
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.TaxRatePercent < 0 {
		return fmt.Errorf("TAX_RATE_PERCENT must not be negative, got %v", c.TaxRatePercent)
	}
	if _, err := costing.ParseSplitPolicy(c.SplitPolicy); err != nil {
		return fmt.Errorf("SYNTHETIC_SPLIT_POLICY: %w", err)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// TaxRate returns the tax rate as a fraction.
func (c Config) TaxRate() float64 {
	return c.TaxRatePercent / 100
}

// Policy returns the parsed synthetic split policy. Validate must have passed.
func (c Config) Policy() costing.SplitPolicy {
	p, _ := costing.ParseSplitPolicy(c.SplitPolicy)
	return p
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev" || c.Env == "local"
}
