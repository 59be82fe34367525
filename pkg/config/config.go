// Package config provides unified configuration for an ember server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (EMBER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// Watch reloads the file whenever it changes on disk.
package config

import "time"

// Config holds all configuration for an ember server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Static        StaticConfig        `yaml:"static"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds connection-level settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: "" (all interfaces)
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 GiB
	IdleTimeout     time.Duration `yaml:"idle_timeout"`     // default: 0 (none)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	InsecureCookies bool          `yaml:"insecure_cookies"` // default: false
	Production      bool          `yaml:"production"`       // default: false
}

// LoggingConfig controls the slog handler and debug categories.
// EMBER_LOG_LEVEL and EMBER_DEBUG take precedence over the file.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated categories
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`
	Bypass  []string       `yaml:"bypass"` // paths served without authentication
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string   `yaml:"key" json:"key"`
	KeyFile string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject string   `yaml:"subject" json:"subject"`
	Scopes  []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig configures bearer token validation. Either JWKSURL (RSA keys)
// or Secret (HMAC) must be set.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	Secret      string `yaml:"secret"`
	SecretFile  string `yaml:"secret_file"` // _file variant for secret
	UserClaim   string `yaml:"user_claim"`  // default: "sub"
	ScopesClaim string `yaml:"scopes_claim"`
}

// StaticConfig lists directories served as static files.
type StaticConfig struct {
	Mounts []MountConfig `yaml:"mounts"`
	Watch  bool          `yaml:"watch"` // rebuild routes when files change
}

// MountConfig maps a route prefix onto a directory.
type MountConfig struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Dir    string `yaml:"dir" json:"dir"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodyBytes:    1 << 30,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Type:   "none",
			Bypass: []string{"metrics"},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "metrics",
			},
		},
	}
}
