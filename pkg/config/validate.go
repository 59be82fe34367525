package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes))
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.idle_timeout must not be negative, got %v", c.Server.IdleTimeout))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative, got %v", c.Server.ShutdownTimeout))
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" && c.Auth.JWT.Secret == "" {
			errs = append(errs, errors.New("auth.jwt.jwks_url or auth.jwt.secret is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	prefixes := make(map[string]bool, len(c.Static.Mounts))
	for i, m := range c.Static.Mounts {
		if m.Dir == "" {
			errs = append(errs, fmt.Errorf("static.mounts[%d].dir is required", i))
		}
		if m.Prefix != "" && !strings.HasSuffix(m.Prefix, "/") {
			errs = append(errs, fmt.Errorf("static.mounts[%d].prefix must end with \"/\", got %q", i, m.Prefix))
		}
		if prefixes[m.Prefix] {
			errs = append(errs, fmt.Errorf("static.mounts[%d].prefix %q is mounted twice", i, m.Prefix))
		}
		prefixes[m.Prefix] = true
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		errs = append(errs, errors.New("observability.metrics.path is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}
