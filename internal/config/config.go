// Package config loads the deptrack configuration from a TOML file with
// DEPTRACK_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	SQLite  SQLiteConfig  `koanf:"sqlite"`
	Logging LoggingConfig `koanf:"logging"`
	Alerts  AlertsConfig  `koanf:"alerts"`
	Facts   FactsConfig   `koanf:"facts"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// SQLiteConfig holds settings for the alert state database.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// FactsConfig points the standalone server at a course facts fixture. In
// an embedded deployment the host app supplies facts directly and this is
// unused.
type FactsConfig struct {
	Path string `koanf:"path"`
}

// AlertsConfig carries the rule policy knobs. The values mirror the
// long-standing departmental practice; they are configuration, not law.
type AlertsConfig struct {
	// HorizonDays bounds the schedule rules to courses overlapping
	// now ± horizon.
	HorizonDays int `koanf:"horizon_days"`
	// CardCriticalLeadDays escalates a card mismatch to critical when the
	// course starts within this many days.
	CardCriticalLeadDays int `koanf:"card_critical_lead_days"`
	// CardWarnDiff is the mismatch magnitude at which a card mismatch is
	// a warning rather than a notice.
	CardWarnDiff int `koanf:"card_warn_diff"`
	// ActiveWindowFraction sizes the post-start window (fraction of the
	// course duration, minimum one day) inside which a card mismatch on a
	// running course escalates progressively.
	ActiveWindowFraction float64 `koanf:"active_window_fraction"`
	// EndedCriticalAfterDays is the day count after course end beyond
	// which lingering cards become critical instead of a warning.
	EndedCriticalAfterDays int `koanf:"ended_critical_after_days"`

	// LaptopLeadDays is the short horizon (days before start) inside
	// which the laptop rules fire.
	LaptopLeadDays int `koanf:"laptop_lead_days"`
	// LaptopReadyStatuses are the operational statuses considered
	// acceptable on the start day.
	LaptopReadyStatuses []string `koanf:"laptop_ready_statuses"`
	// OverdueCriticalAfterDays escalates an overdue laptop return to
	// critical after this many days past course end.
	OverdueCriticalAfterDays int `koanf:"overdue_critical_after_days"`
	// MarkLostAfterDays is the stricter threshold after which the engine
	// emits mark_lost instructions for still-checked-out devices.
	MarkLostAfterDays int `koanf:"mark_lost_after_days"`

	// EvaluationTimeout bounds one evaluation pass; a pass exceeding it
	// fails fast and contributes no reasons.
	EvaluationTimeout time.Duration `koanf:"evaluation_timeout"`
}

// Default returns the configuration defaults applied before file and
// environment loading.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			IdleTimeout: time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "deptrack.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Alerts: AlertsConfig{
			HorizonDays:              30,
			CardCriticalLeadDays:     2,
			CardWarnDiff:             3,
			ActiveWindowFraction:     0.25,
			EndedCriticalAfterDays:   7,
			LaptopLeadDays:           3,
			LaptopReadyStatuses:      []string{"issued", "deployed"},
			OverdueCriticalAfterDays: 7,
			MarkLostAfterDays:        14,
			EvaluationTimeout:        10 * time.Second,
		},
	}
}

// Load reads configuration from the given TOML file (if present) and
// applies DEPTRACK_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// DEPTRACK_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("DEPTRACK_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "DEPTRACK_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	if c.Alerts.HorizonDays <= 0 {
		return fmt.Errorf("alerts.horizon_days must be positive")
	}
	if c.Alerts.ActiveWindowFraction <= 0 || c.Alerts.ActiveWindowFraction > 1 {
		return fmt.Errorf("alerts.active_window_fraction must be in (0, 1]")
	}
	if c.Alerts.MarkLostAfterDays < c.Alerts.OverdueCriticalAfterDays {
		return fmt.Errorf("alerts.mark_lost_after_days must not be below alerts.overdue_critical_after_days")
	}
	return nil
}
