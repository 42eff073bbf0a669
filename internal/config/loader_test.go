package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wudi/urlforward/internal/errors"
)

func TestLoaderParse(t *testing.T) {
	yaml := `
server:
  address: ":9090"
  read_timeout: 10s
  write_timeout: 20s

routes:
  files:
    - local.yaml
    - routes.yaml
  defaults: defaults.yaml
  watch: true

forwarding:
  timeout: 3s
  retries: 2
  circuit_breaker:
    enabled: true
    failure_threshold: 4

debug: true
`

	loader := NewLoader()
	cfg, err := loader.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("expected address :9090, got %s", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read_timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 20*time.Second {
		t.Errorf("expected write_timeout 20s, got %v", cfg.Server.WriteTimeout)
	}
	if len(cfg.Routes.Files) != 2 || cfg.Routes.Files[0] != "local.yaml" {
		t.Errorf("unexpected route files %v", cfg.Routes.Files)
	}
	if cfg.Routes.Defaults != "defaults.yaml" {
		t.Errorf("expected defaults.yaml, got %s", cfg.Routes.Defaults)
	}
	if !cfg.Routes.Watch {
		t.Error("expected watch enabled")
	}
	if cfg.Forwarding.Timeout != 3*time.Second {
		t.Errorf("expected forwarding timeout 3s, got %v", cfg.Forwarding.Timeout)
	}
	if cfg.Forwarding.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.Forwarding.Retries)
	}
	if !cfg.Forwarding.CircuitBreaker.Enabled || cfg.Forwarding.CircuitBreaker.FailureThreshold != 4 {
		t.Errorf("unexpected breaker config %+v", cfg.Forwarding.CircuitBreaker)
	}
	// Untouched fields keep their defaults
	if cfg.Forwarding.CircuitBreaker.Timeout != 30*time.Second {
		t.Errorf("expected default breaker timeout, got %v", cfg.Forwarding.CircuitBreaker.Timeout)
	}
	if !cfg.Debug {
		t.Error("expected debug enabled")
	}
}

func TestLoaderEnvExpansion(t *testing.T) {
	t.Setenv("TEST_LISTEN", ":7777")
	t.Setenv("TEST_ROUTES", "/etc/urlforward/routes.yaml")

	yaml := `
server:
  address: ${TEST_LISTEN}
routes:
  files:
    - ${TEST_ROUTES}
    - ${TEST_UNSET_VARIABLE}
`

	loader := NewLoader()
	cfg, err := loader.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Address != ":7777" {
		t.Errorf("expected address :7777, got %s", cfg.Server.Address)
	}
	if cfg.Routes.Files[0] != "/etc/urlforward/routes.yaml" {
		t.Errorf("expected expanded route file, got %s", cfg.Routes.Files[0])
	}
	if cfg.Routes.Files[1] != "${TEST_UNSET_VARIABLE}" {
		t.Errorf("unset variables should be kept, got %s", cfg.Routes.Files[1])
	}
}

func TestLoaderEnvFallback(t *testing.T) {
	l := &Loader{lookupEnv: func(name string) (string, bool) {
		if name == "SET" {
			return "value", true
		}
		return "", false
	}}

	tests := []struct {
		in, want string
	}{
		{"${SET}", "value"},
		{"${SET:-other}", "value"},
		{"${UNSET:-fallback}", "fallback"},
		{"${UNSET:-}", ""},
		{"${UNSET}", "${UNSET}"},
		{"a-${SET}-b", "a-value-b"},
	}
	for _, tt := range tests {
		if got := l.expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoaderParseInvalidYAML(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Parse([]byte("server: [unclosed")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "urlforward.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \":1234\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":1234" {
		t.Errorf("expected :1234, got %s", cfg.Server.Address)
	}

	_, err = NewLoader().Load(filepath.Join(dir, "missing.yaml"))
	if _, ok := errors.AsConfigError(err); !ok {
		t.Errorf("expected ConfigError for missing file, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Routes.Files = []string{"routes.yaml"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: "server.address",
		},
		{
			name:    "no route files",
			mutate:  func(c *Config) { c.Routes.Files = nil },
			wantErr: "routes.files",
		},
		{
			name:    "blank route file",
			mutate:  func(c *Config) { c.Routes.Files = []string{" "} },
			wantErr: "routes.files[0]",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Forwarding.Retries = -1 },
			wantErr: "forwarding.retries",
		},
		{
			name: "breaker without threshold",
			mutate: func(c *Config) {
				c.Forwarding.CircuitBreaker.Enabled = true
				c.Forwarding.CircuitBreaker.FailureThreshold = 0
			},
			wantErr: "failure_threshold",
		},
		{
			name: "admin on server address",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
				c.Admin.Address = c.Server.Address
			},
			wantErr: "admin.address",
		},
		{
			name: "metrics path without slash",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
				c.Admin.Metrics.Path = "metrics"
			},
			wantErr: "admin.metrics.path",
		},
		{
			name: "sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
			wantErr: "tracing.sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Forwarding.Timeout != 10*time.Second {
		t.Errorf("expected default forward timeout 10s, got %v", cfg.Forwarding.Timeout)
	}
	if cfg.Forwarding.Retries != 0 {
		t.Errorf("expected no retries by default, got %d", cfg.Forwarding.Retries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info level, got %s", cfg.Logging.Level)
	}
	if cfg.Debug {
		t.Error("debug must be off by default")
	}
	if cfg.Admin.Metrics.Path != "/metrics" {
		t.Errorf("expected /metrics, got %s", cfg.Admin.Metrics.Path)
	}
}
