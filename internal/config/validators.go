package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the service configuration after command-line overrides
// have been applied.
func Validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must be >= 0")
	}

	if len(cfg.Routes.Files) == 0 {
		return fmt.Errorf("routes.files: at least one route file is required")
	}
	for i, f := range cfg.Routes.Files {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("routes.files[%d]: empty path", i)
		}
	}
	if cfg.Routes.Debounce < 0 {
		return fmt.Errorf("routes.debounce must be >= 0")
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}

	if err := validateForwarding(cfg.Forwarding); err != nil {
		return err
	}

	if cfg.Admin.Enabled {
		if cfg.Admin.Address == "" {
			return fmt.Errorf("admin.address is required when admin is enabled")
		}
		if cfg.Admin.Address == cfg.Server.Address {
			return fmt.Errorf("admin.address must differ from server.address")
		}
		if cfg.Admin.ReloadRate < 0 || cfg.Admin.ReloadBurst < 0 {
			return fmt.Errorf("admin.reload_rate and admin.reload_burst must be >= 0")
		}
		if cfg.Admin.Metrics.Enabled && !strings.HasPrefix(cfg.Admin.Metrics.Path, "/") {
			return fmt.Errorf("admin.metrics.path must start with /")
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
		}
	}

	if cfg.Shutdown.Timeout < 0 {
		return fmt.Errorf("shutdown.timeout must be >= 0")
	}
	return nil
}

func validateForwarding(f ForwardingConfig) error {
	if f.Timeout < 0 {
		return fmt.Errorf("forwarding.timeout must be >= 0")
	}
	if f.Retries < 0 {
		return fmt.Errorf("forwarding.retries must be >= 0")
	}
	if f.RetryBackoff < 0 {
		return fmt.Errorf("forwarding.retry_backoff must be >= 0")
	}
	if f.CircuitBreaker.Enabled {
		if f.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("forwarding.circuit_breaker.failure_threshold must be > 0")
		}
		if f.CircuitBreaker.Timeout <= 0 {
			return fmt.Errorf("forwarding.circuit_breaker.timeout must be > 0")
		}
	}
	if f.Transport.MaxRedirects < 0 {
		return fmt.Errorf("forwarding.transport.max_redirects must be >= 0")
	}
	return nil
}
