package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/energygate/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envKeys maps environment variables to koanf paths.
var envKeys = map[string]string{
	"SERVER_HOST":               "server.host",
	"SERVER_PORT":               "server.port",
	"SHUTDOWN_TIMEOUT":          "server.shutdown_timeout",
	"READ_LIMIT":                "server.read_limit",
	"ALLOWED_ORIGINS":           "server.allowed_origins",
	"MAX_ENERGY":                "gateway.max_energy",
	"REQUIRE_CHALLENGE_BINDING": "gateway.require_challenge_binding",
	"QUOTA_FAIL_OPEN":           "gateway.quota_fail_open",
	"AUTH_TIMEOUT":              "gateway.auth_timeout",
	"SCHEMA_PATH":               "schema.path",
	"LEDGER_DRIVER":             "ledger.driver",
	"SQLITE_PATH":               "ledger.sqlite_path",
	"BADGER_PATH":               "ledger.badger_path",
	"REDIS_URL":                 "ledger.redis_url",
	"EVENTS_ENABLED":            "events.enabled",
	"EVENTS_REDIS_URL":          "events.redis_url",
	"EVENTS_TOPIC":              "events.topic",
	"LOG_LEVEL":                 "logging.level",
	"LOG_FORMAT":                "logging.format",
	"LOG_FILE":                  "logging.file",
}

// sliceKeys are split on commas when they come from the environment.
var sliceKeys = map[string]bool{
	"server.allowed_origins": true,
}

// Load builds the configuration. path may be empty, in which case CONFIG_PATH
// and DefaultConfigPaths are consulted; a missing default file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional unless given explicitly)
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.ProviderWithValue("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform returns "" for variables that are not configuration.
func envTransform(key, value string) (string, interface{}) {
	path, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	if sliceKeys[path] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return path, out
	}
	return path, value
}
