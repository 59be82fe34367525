package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, EMBER_CONFIG env, ./config.yaml, /etc/ember/config.yaml)
//  3. EMBER_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Path returns the file Load would read for configPath, or "" when no
// config file exists.
func Path(configPath string) string {
	return discoverConfigFile(configPath)
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. EMBER_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/ember/config.yaml
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("EMBER_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/ember/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envBinding ties one EMBER_* variable to a config field.
type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

var envBindings = []envBinding{
	{"EMBER_HOST", setString(func(c *Config) *string { return &c.Server.Host })},
	{"EMBER_PORT", setParsed(strconv.Atoi, func(c *Config) *int { return &c.Server.Port })},
	{"EMBER_MAX_BODY_BYTES", setParsed(parseInt64, func(c *Config) *int64 { return &c.Server.MaxBodyBytes })},
	{"EMBER_IDLE_TIMEOUT", setParsed(time.ParseDuration, func(c *Config) *time.Duration { return &c.Server.IdleTimeout })},
	{"EMBER_SHUTDOWN_TIMEOUT", setParsed(time.ParseDuration, func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"EMBER_PRODUCTION", setParsed(strconv.ParseBool, func(c *Config) *bool { return &c.Server.Production })},
	{"EMBER_INSECURE_COOKIES", setParsed(strconv.ParseBool, func(c *Config) *bool { return &c.Server.InsecureCookies })},
	{"EMBER_LOG_FORMAT", setString(func(c *Config) *string { return &c.Logging.Format })},
	{"EMBER_AUTH_TYPE", setString(func(c *Config) *string { return &c.Auth.Type })},
	{"EMBER_JWT_SECRET", setString(func(c *Config) *string { return &c.Auth.JWT.Secret })},
	{"EMBER_JWKS_URL", setString(func(c *Config) *string { return &c.Auth.JWT.JWKSURL })},
	{"EMBER_METRICS_ENABLED", setParsed(strconv.ParseBool, func(c *Config) *bool { return &c.Observability.Metrics.Enabled })},
	{"EMBER_API_KEYS", setJSON(func(c *Config) *[]APIKeyConfig { return &c.Auth.APIKeys })},
	{"EMBER_STATIC_MOUNTS", setJSON(func(c *Config) *[]MountConfig { return &c.Static.Mounts })},
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setParsed[T any](parse func(string) (T, error), field func(*Config) *T) func(*Config, string) error {
	return func(c *Config, v string) error {
		parsed, err := parse(v)
		if err != nil {
			return err
		}
		*field(c) = parsed
		return nil
	}
}

// setJSON decodes a JSON array, e.g. EMBER_STATIC_MOUNTS='[{"prefix":"files/","dir":"/srv"}]'.
func setJSON[T any](field func(*Config) *T) func(*Config, string) error {
	return func(c *Config, v string) error {
		var parsed T
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return err
		}
		*field(c) = parsed
		return nil
	}
}

func parseInt64(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}

// applyEnvOverrides applies every set EMBER_* variable. Malformed values
// are all reported together instead of being skipped.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, b := range envBindings {
		v := os.Getenv(b.name)
		if v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// resolveFileReferences reads _file fields into the corresponding value
// fields when the value field is empty.
func resolveFileReferences(cfg *Config) error {
	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}
	return nil
}

// normalize strips leading slashes from route paths, which are stored
// without one.
func normalize(cfg *Config) {
	cfg.Observability.Metrics.Path = strings.TrimPrefix(cfg.Observability.Metrics.Path, "/")
	for i, p := range cfg.Auth.Bypass {
		cfg.Auth.Bypass[i] = strings.TrimPrefix(p, "/")
	}
	for i := range cfg.Static.Mounts {
		cfg.Static.Mounts[i].Prefix = strings.TrimPrefix(cfg.Static.Mounts[i].Prefix, "/")
	}
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
