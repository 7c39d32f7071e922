// Package config loads the gateway configuration.
//
// Values are layered, later layers winning:
//
//  1. Defaults from defaultConfig()
//  2. A YAML file (--config flag, CONFIG_PATH, or the first of DefaultConfigPaths)
//  3. Environment variables listed in envKeys
//
// The loaded *Config is treated as read-only for the life of the process.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/energygate/core"
)

// Ledger drivers.
const (
	LedgerMemory = "memory"
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
	LedgerBadger = "badger"
)

// Config is the full gateway configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Gateway GatewayConfig `koanf:"gateway"`
	Schema  SchemaConfig  `koanf:"schema"`
	Ledger  LedgerConfig  `koanf:"ledger"`
	Events  EventsConfig  `koanf:"events"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	ReadLimit       int64         `koanf:"read_limit"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// GatewayConfig controls the connection protocol.
type GatewayConfig struct {
	// MaxEnergy is the daily allowance per wallet.
	MaxEnergy int `koanf:"max_energy"`

	// RequireChallengeBinding rejects a ClientAuth whose uuid is not the
	// challenge issued on the same connection.
	RequireChallengeBinding bool `koanf:"require_challenge_binding"`

	// QuotaFailOpen reports a usage count of 0 when the ledger is unavailable.
	// When false the connection is closed instead.
	QuotaFailOpen bool `koanf:"quota_fail_open"`

	// AuthTimeout closes connections that have not authenticated in time.
	// Zero disables the timeout.
	AuthTimeout time.Duration `koanf:"auth_timeout"`
}

// SchemaConfig locates the wire schema. An empty path uses the built-in schema.
type SchemaConfig struct {
	Path string `koanf:"path"`
}

// LedgerConfig selects and configures usage storage.
type LedgerConfig struct {
	Driver     string `koanf:"driver"`
	SQLitePath string `koanf:"sqlite_path"`
	BadgerPath string `koanf:"badger_path"`
	RedisURL   string `koanf:"redis_url"`
}

// EventsConfig controls the authentication event feed.
type EventsConfig struct {
	Enabled  bool   `koanf:"enabled"`
	RedisURL string `koanf:"redis_url"`
	Topic    string `koanf:"topic"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8999,
			ShutdownTimeout: 10 * time.Second,
			ReadLimit:       64 * 1024,
			AllowedOrigins:  []string{"*"},
		},
		Gateway: GatewayConfig{
			MaxEnergy:               core.MaxEnergy,
			RequireChallengeBinding: true,
			QuotaFailOpen:           true,
			AuthTimeout:             60 * time.Second,
		},
		Ledger: LedgerConfig{
			Driver:     LedgerSQLite,
			SQLitePath: "database.sqlite",
			BadgerPath: "data/usage",
			RedisURL:   "redis://localhost:6379/0",
		},
		Events: EventsConfig{
			Enabled:  false,
			RedisURL: "redis://localhost:6379/0",
			Topic:    "energygate.authenticated",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 7,
		},
	}
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("server.read_limit must be positive"))
	}
	if c.Gateway.MaxEnergy < 0 || c.Gateway.MaxEnergy > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("gateway.max_energy must be 0-%d, got %d", math.MaxInt32, c.Gateway.MaxEnergy))
	}
	if c.Gateway.AuthTimeout < 0 {
		errs = append(errs, fmt.Errorf("gateway.auth_timeout must not be negative"))
	}

	switch strings.ToLower(c.Ledger.Driver) {
	case LedgerMemory:
	case LedgerSQLite:
		if c.Ledger.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("ledger.sqlite_path is required for the sqlite driver"))
		}
	case LedgerBadger:
		if c.Ledger.BadgerPath == "" {
			errs = append(errs, fmt.Errorf("ledger.badger_path is required for the badger driver"))
		}
	case LedgerRedis:
		if c.Ledger.RedisURL == "" {
			errs = append(errs, fmt.Errorf("ledger.redis_url is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver))
	}

	if c.Events.Enabled && c.Events.RedisURL == "" {
		errs = append(errs, fmt.Errorf("events.redis_url is required when events are enabled"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
