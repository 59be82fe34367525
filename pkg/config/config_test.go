package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes != 1<<30 {
		t.Errorf("default server.max_body_bytes = %d, want 1 GiB", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("default server.shutdown_timeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.IdleTimeout != 0 {
		t.Errorf("default server.idle_timeout = %v, want 0", cfg.Server.IdleTimeout)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("default auth.type = %q, want \"none\"", cfg.Auth.Type)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "metrics" {
		t.Errorf("default metrics = %+v, want enabled at \"metrics\"", cfg.Observability.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  host: 127.0.0.1
  port: 9090
  max_body_bytes: 1048576
  idle_timeout: 90s
  shutdown_timeout: 5s
  insecure_cookies: true
  production: true
logging:
  level: debug
  format: json
  debug: wire,routing
auth:
  type: apikey
  api_keys:
    - key: key-1
      subject: alice
      scopes: [read, write]
    - key: key-2
      subject: bob
  bypass: [/metrics, Public/Ping]
static:
  watch: true
  mounts:
    - prefix: /assets/
      dir: ./public
observability:
  metrics:
    path: /Metrics/Prometheus
`
	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("server address = %s:%d, want 127.0.0.1:9090", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes != 1<<20 {
		t.Errorf("server.max_body_bytes = %d, want 1048576", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.IdleTimeout != 90*time.Second {
		t.Errorf("server.idle_timeout = %v, want 90s", cfg.Server.IdleTimeout)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("server.shutdown_timeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if !cfg.Server.InsecureCookies || !cfg.Server.Production {
		t.Errorf("server flags = %+v, want insecure_cookies and production", cfg.Server)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.Debug != "wire,routing" {
		t.Errorf("logging = %+v", cfg.Logging)
	}

	if cfg.Auth.Type != "apikey" {
		t.Errorf("auth.type = %q, want \"apikey\"", cfg.Auth.Type)
	}
	if len(cfg.Auth.APIKeys) != 2 {
		t.Fatalf("auth.api_keys length = %d, want 2", len(cfg.Auth.APIKeys))
	}
	if k := cfg.Auth.APIKeys[0]; k.Key != "key-1" || k.Subject != "alice" || len(k.Scopes) != 2 {
		t.Errorf("auth.api_keys[0] = %+v", k)
	}
	if got := strings.Join(cfg.Auth.Bypass, ","); got != "metrics,Public/Ping" {
		t.Errorf("auth.bypass = %s, want leading slashes stripped", got)
	}

	if !cfg.Static.Watch || len(cfg.Static.Mounts) != 1 {
		t.Fatalf("static = %+v", cfg.Static)
	}
	if m := cfg.Static.Mounts[0]; m.Prefix != "assets/" || m.Dir != "./public" {
		t.Errorf("static.mounts[0] = %+v", m)
	}

	if !cfg.Observability.Metrics.Enabled {
		t.Error("observability.metrics.enabled = false, want default true")
	}
	if cfg.Observability.Metrics.Path != "Metrics/Prometheus" {
		t.Errorf("observability.metrics.path = %q", cfg.Observability.Metrics.Path)
	}
}

func TestEnvOverride(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", "server:\n  port: 9090\n")

	t.Setenv("EMBER_PORT", "7070")
	t.Setenv("EMBER_IDLE_TIMEOUT", "15s")
	t.Setenv("EMBER_PRODUCTION", "true")
	t.Setenv("EMBER_LOG_FORMAT", "json")
	t.Setenv("EMBER_AUTH_TYPE", "jwt")
	t.Setenv("EMBER_JWT_SECRET", "s3cret")
	t.Setenv("EMBER_STATIC_MOUNTS", `[{"prefix":"files/","dir":"/srv/files"}]`)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070 (env should override file)", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 15*time.Second {
		t.Errorf("server.idle_timeout = %v, want 15s", cfg.Server.IdleTimeout)
	}
	if !cfg.Server.Production {
		t.Error("server.production = false, want true")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Auth.Type != "jwt" || cfg.Auth.JWT.Secret != "s3cret" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if len(cfg.Static.Mounts) != 1 || cfg.Static.Mounts[0].Dir != "/srv/files" {
		t.Errorf("static.mounts = %+v", cfg.Static.Mounts)
	}
}

func TestEnvOverrideAPIKeys(t *testing.T) {
	t.Setenv("EMBER_CONFIG", "")
	t.Setenv("EMBER_AUTH_TYPE", "apikey")
	t.Setenv("EMBER_API_KEYS", `[{"key":"k1","subject":"svc","scopes":["admin"]}]`)

	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Subject != "svc" || cfg.Auth.APIKeys[0].Scopes[0] != "admin" {
		t.Errorf("auth.api_keys = %+v", cfg.Auth.APIKeys)
	}
}

func TestMalformedEnvIsAnError(t *testing.T) {
	tests := map[string]string{
		"EMBER_PORT":           "eighty",
		"EMBER_IDLE_TIMEOUT":   "forever",
		"EMBER_PRODUCTION":     "sometimes",
		"EMBER_MAX_BODY_BYTES": "1GB",
		"EMBER_API_KEYS":       "not json",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := Load(writeTemp(t, "config-*.yaml", ""))
			if err == nil || !strings.Contains(err.Error(), name) {
				t.Errorf("Load() error = %v, want mention of %s", err, name)
			}
		})
	}
}

func TestMalformedEnvErrorsAreJoined(t *testing.T) {
	t.Setenv("EMBER_PORT", "eighty")
	t.Setenv("EMBER_SHUTDOWN_TIMEOUT", "soon")
	t.Setenv("EMBER_METRICS_ENABLED", "maybe")

	_, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err == nil {
		t.Fatal("Load() succeeded with malformed env")
	}
	for _, name := range []string{"EMBER_PORT", "EMBER_SHUTDOWN_TIMEOUT", "EMBER_METRICS_ENABLED"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Load() error = %v, want mention of %s", err, name)
		}
	}
}

func TestMetricsCanBeDisabledFromEnv(t *testing.T) {
	t.Setenv("EMBER_METRICS_ENABLED", "false")
	t.Setenv("EMBER_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Observability.Metrics.Enabled {
		t.Error("observability.metrics.enabled = true, want false")
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("server.shutdown_timeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
}

func TestFileReference(t *testing.T) {
	secretFile := writeTemp(t, "secret-*.txt", "  hmac-from-file  \n")
	keyFile := writeTemp(t, "apikey-*.txt", "key-from-file\n")

	yamlContent := `
auth:
  type: jwt
  jwt:
    secret_file: ` + secretFile + `
  api_keys:
    - key_file: ` + keyFile + `
      subject: file-user
`
	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.JWT.Secret != "hmac-from-file" {
		t.Errorf("auth.jwt.secret = %q, want trimmed file content", cfg.Auth.JWT.Secret)
	}
	if cfg.Auth.APIKeys[0].Key != "key-from-file" {
		t.Errorf("auth.api_keys[0].key = %q, want trimmed file content", cfg.Auth.APIKeys[0].Key)
	}
}

func TestFileReferenceDoesNotOverrideExplicitValue(t *testing.T) {
	secretFile := writeTemp(t, "secret-*.txt", "from-file")

	yamlContent := `
auth:
  type: jwt
  jwt:
    secret: explicit
    secret_file: ` + secretFile + `
`
	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.JWT.Secret != "explicit" {
		t.Errorf("auth.jwt.secret = %q, want explicit value", cfg.Auth.JWT.Secret)
	}
}

func TestMissingSecretFile(t *testing.T) {
	yamlContent := `
auth:
  type: jwt
  jwt:
    secret_file: /nonexistent/secret
`
	_, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err == nil || !strings.Contains(err.Error(), "auth.jwt.secret_file") {
		t.Errorf("Load() error = %v, want auth.jwt.secret_file failure", err)
	}
}

func TestFileDiscovery(t *testing.T) {
	t.Run("EMBER_CONFIG", func(t *testing.T) {
		path := writeTemp(t, "config-*.yaml", "server:\n  port: 6060\n")
		t.Setenv("EMBER_CONFIG", path)

		if got := Path(""); got != path {
			t.Errorf("Path() = %q, want %q", got, path)
		}
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Server.Port != 6060 {
			t.Errorf("server.port = %d, want 6060", cfg.Server.Port)
		}
	})

	t.Run("working directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 5050\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("EMBER_CONFIG", "")
		t.Chdir(dir)

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Server.Port != 5050 {
			t.Errorf("server.port = %d, want 5050", cfg.Server.Port)
		}
	})

	t.Run("explicit path wins", func(t *testing.T) {
		t.Setenv("EMBER_CONFIG", writeTemp(t, "config-*.yaml", "server:\n  port: 1111\n"))
		explicit := writeTemp(t, "config-*.yaml", "server:\n  port: 2222\n")

		cfg, err := Load(explicit)
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Server.Port != 2222 {
			t.Errorf("server.port = %d, want 2222", cfg.Server.Port)
		}
	})
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"body limit", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "server.max_body_bytes"},
		{"negative idle", func(c *Config) { c.Server.IdleTimeout = -time.Second }, "server.idle_timeout"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"auth type", func(c *Config) { c.Auth.Type = "oauth" }, "auth.type"},
		{"apikey without keys", func(c *Config) { c.Auth.Type = "apikey" }, "auth.api_keys must not be empty"},
		{"apikey without subject", func(c *Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []APIKeyConfig{{Key: "k"}}
		}, "auth.api_keys[0].subject"},
		{"jwt without keys", func(c *Config) { c.Auth.Type = "jwt" }, "auth.jwt.jwks_url"},
		{"jwt with jwks", func(c *Config) {
			c.Auth.Type = "jwt"
			c.Auth.JWT.JWKSURL = "https://auth.example.com/jwks"
		}, ""},
		{"mount without dir", func(c *Config) { c.Static.Mounts = []MountConfig{{Prefix: "a/"}} }, "static.mounts[0].dir"},
		{"mount prefix without slash", func(c *Config) { c.Static.Mounts = []MountConfig{{Prefix: "a", Dir: "."}} }, "must end with"},
		{"mount twice", func(c *Config) {
			c.Static.Mounts = []MountConfig{{Prefix: "a/", Dir: "."}, {Prefix: "a/", Dir: ".."}}
		}, "mounted twice"},
		{"metrics without path", func(c *Config) { c.Observability.Metrics.Path = "" }, "observability.metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidationReportsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Auth.Type = "bogus"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"server.port", "auth.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	failed := make(chan error, 4)
	if err := Watch(ctx, path, func(c *Config) { changed <- c }, func(err error) { failed <- err }); err != nil {
		t.Fatalf("Watch() error: %v", err)
	}

	if err := os.WriteFile(path, []byte("server:\n  port: 8082\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-changed:
		if cfg.Server.Port != 8082 {
			t.Errorf("reloaded server.port = %d, want 8082", cfg.Server.Port)
		}
	case err := <-failed:
		t.Fatalf("reload failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after file change")
	}

	if err := os.WriteFile(path, []byte("server:\n  port: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-failed:
		if !strings.Contains(err.Error(), "server.port") {
			t.Errorf("reload error = %v, want validation failure", err)
		}
	case cfg := <-changed:
		t.Errorf("invalid config delivered: %+v", cfg.Server)
	case <-time.After(3 * time.Second):
		t.Fatal("no error after writing an invalid file")
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return f.Name()
}
