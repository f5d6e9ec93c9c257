// Package daemon manages the puntos daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	API        APIConfig         `toml:"api"`
	Storage    StorageConfig     `toml:"storage"`
	Engine     EngineConfig      `toml:"engine"`
	Logging    LoggingConfig     `toml:"logging"`
	Telemetry  TelemetryConfig   `toml:"telemetry"`
	Challenges []ChallengeConfig `toml:"challenges"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StorageConfig selects where profile documents live.
type StorageConfig struct {
	Driver string `toml:"driver"` // sqlite | postgres | memory
	Dir    string `toml:"dir"`    // sqlite data directory
	DSN    string `toml:"dsn"`    // postgres connection string
}

// EngineConfig controls the gamification engine.
type EngineConfig struct {
	// Timezone decides which calendar day an action falls on for
	// streaks and the daily login bonus.
	Timezone string `toml:"timezone"`

	// ConflictRetries is how often a write is replayed when another
	// instance updated the same profile first (postgres deployments).
	// 0 disables replays.
	ConflictRetries int `toml:"conflict_retries"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"` // info | debug
	File  string `toml:"file"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// ChallengeConfig is a challenge assigned to every new profile.
type ChallengeConfig struct {
	ID       string `toml:"id"`
	Title    string `toml:"title"`
	Action   string `toml:"action"`
	Target   int64  `toml:"target"`
	Reward   int64  `toml:"reward"`
	Duration string `toml:"duration"` // Go duration, e.g. "168h"
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := puntosHome()
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Dir:    homeDir,
		},
		Engine: EngineConfig{
			Timezone:        "UTC",
			ConflictRetries: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "puntos.log"),
		},
		Challenges: []ChallengeConfig{
			{
				ID:       "bienvenida_compartir",
				Title:    "Comparte 3 promociones",
				Action:   string(domain.ActionSharePromo),
				Target:   3,
				Reward:   100,
				Duration: "168h",
			},
			{
				ID:       "bienvenida_verificar",
				Title:    "Verifica 5 promociones",
				Action:   string(domain.ActionVerifyPromo),
				Target:   5,
				Reward:   75,
				Duration: "168h",
			},
		},
	}
}

// LoadConfig reads ~/.puntos/config.toml, falling back to defaults, then
// applies .env files and PUNTOS_* environment overrides.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	path := filepath.Join(puntosHome(), "config.toml")

	if _, err := os.Stat(path); err == nil {
		// A file that lists challenges replaces the default set.
		cfg.Challenges = nil
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// SaveConfig writes the config to ~/.puntos/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(puntosHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate checks the values the daemon cannot start without.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q (sqlite, postgres, memory)", c.Storage.Driver)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Engine.ConflictRetries < 0 {
		return fmt.Errorf("engine.conflict_retries %d must not be negative", c.Engine.ConflictRetries)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	_, err := c.ChallengeTemplates()
	return err
}

// Location resolves engine.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// ChallengeTemplates converts [[challenges]] into engine seeds.
func (c Config) ChallengeTemplates() ([]gamification.ChallengeTemplate, error) {
	out := make([]gamification.ChallengeTemplate, 0, len(c.Challenges))
	seen := make(map[string]bool, len(c.Challenges))
	for i, ch := range c.Challenges {
		if ch.ID == "" || seen[ch.ID] {
			return nil, fmt.Errorf("challenges[%d]: missing or duplicate id %q", i, ch.ID)
		}
		seen[ch.ID] = true

		kind := domain.ActionKind(ch.Action)
		if ch.Action != "" && !kind.Valid() {
			return nil, fmt.Errorf("challenges[%d]: unknown action %q", i, ch.Action)
		}
		if ch.Target <= 0 || ch.Reward < 0 {
			return nil, fmt.Errorf("challenges[%d]: target must be > 0 and reward >= 0", i)
		}
		d := parseDuration(ch.Duration, 0)
		if d <= 0 {
			return nil, fmt.Errorf("challenges[%d]: invalid duration %q", i, ch.Duration)
		}
		out = append(out, gamification.ChallengeTemplate{
			ID:       ch.ID,
			Title:    ch.Title,
			Action:   kind,
			Target:   ch.Target,
			Reward:   ch.Reward,
			Duration: d,
		})
	}
	return out, nil
}

// ─── Environment ────────────────────────────────────────────────────────────

// loadDotEnv loads ./.env and $PUNTOS_HOME/.env when present. Variables
// already set in the environment win.
func loadDotEnv() error {
	for _, path := range []string{".env", filepath.Join(puntosHome(), ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv overrides config values from PUNTOS_* variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PUNTOS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PUNTOS_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PUNTOS_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("PUNTOS_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("PUNTOS_DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("PUNTOS_TIMEZONE"); v != "" {
		cfg.Engine.Timezone = v
	}
	if v := os.Getenv("PUNTOS_METRICS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PUNTOS_METRICS: %w", err)
		}
		cfg.Telemetry.Prometheus = on
	}
	return nil
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// puntosHome returns the puntos data directory.
func puntosHome() string {
	if env := os.Getenv("PUNTOS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".puntos")
}

// PuntosHome is exported for use by other packages.
func PuntosHome() string {
	return puntosHome()
}
