package config

import (
	"time"
)

// Config is the service configuration. Routing tables are loaded separately
// from the files named in Routes.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Admin      AdminConfig      `yaml:"admin"`
	Logging    LoggingConfig    `yaml:"logging"`
	Routes     RoutesConfig     `yaml:"routes"`
	Forwarding ForwardingConfig `yaml:"forwarding"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`

	// Debug reloads the routing table on every request and includes failure
	// details in 500 responses. Never enable it in production.
	Debug bool `yaml:"debug"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address      string        `yaml:"address"` // e.g. ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // inbound form body limit
}

// AdminConfig defines admin API settings
type AdminConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Address     string        `yaml:"address"`
	Metrics     MetricsConfig `yaml:"metrics"`
	ReloadRate  float64       `yaml:"reload_rate"`  // reloads per second accepted on POST /reload
	ReloadBurst int           `yaml:"reload_burst"`
}

// MetricsConfig defines Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default "/metrics"
}

// LoggingConfig defines log level and destination.
type LoggingConfig struct {
	Level    string            `yaml:"level"`
	Output   string            `yaml:"output"` // stdout, stderr or a file path
	Rotation LogRotationConfig `yaml:"rotation"`
}

// LogRotationConfig defines log file rotation settings (powered by lumberjack).
type LogRotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // max megabytes before rotation (default 100)
	MaxBackups int  `yaml:"max_backups"` // old rotated files to keep (default 3)
	MaxAge     int  `yaml:"max_age"`     // days to retain old files (default 28)
	Compress   bool `yaml:"compress"`
	LocalTime  bool `yaml:"local_time"`
}

// RoutesConfig points at the routing table files.
type RoutesConfig struct {
	// Files are paths or glob patterns. For a path declared in several files
	// the file listed first wins.
	Files []string `yaml:"files"`
	// Defaults holds the template record. When empty the template is looked
	// up in Files.
	Defaults string        `yaml:"defaults"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// ForwardingConfig tunes outbound calls.
type ForwardingConfig struct {
	Timeout        time.Duration        `yaml:"timeout"` // per forward, overridable per forward
	Retries        int                  `yaml:"retries"` // transport-level retries of failed exchanges
	RetryBackoff   time.Duration        `yaml:"retry_backoff"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Transport      TransportConfig      `yaml:"transport"`
	UserAgent      string               `yaml:"user_agent"`
}

// CircuitBreakerConfig defines per-forward circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"` // consecutive transport failures
	MaxRequests      int           `yaml:"max_requests"`      // probes allowed while half-open
	Timeout          time.Duration `yaml:"timeout"`           // open duration before half-open
}

// TransportConfig defines outbound connection settings.
type TransportConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	DisableKeepAlives     bool          `yaml:"disable_keep_alives"`
	InsecureSkipVerify    bool          `yaml:"insecure_skip_verify"`
	CAFile                string        `yaml:"ca_file"`
	MaxRedirects          int           `yaml:"max_redirects"`
}

// TracingConfig defines OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	ServiceName string            `yaml:"service_name"`
	SampleRate  float64           `yaml:"sample_rate"` // 0.0 to 1.0
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
}

// ShutdownConfig defines graceful shutdown settings.
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used for every field a file omits.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Admin: AdminConfig{
			Address:     ":8081",
			ReloadRate:  1,
			ReloadBurst: 3,
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Routes: RoutesConfig{
			Debounce: 500 * time.Millisecond,
		},
		Forwarding: ForwardingConfig{
			Timeout:      10 * time.Second,
			RetryBackoff: 100 * time.Millisecond,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				MaxRequests:      1,
				Timeout:          30 * time.Second,
			},
			Transport: TransportConfig{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialTimeout:         10 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxRedirects:        10,
			},
			UserAgent: "urlforward",
		},
		Tracing: TracingConfig{
			ServiceName: "urlforward",
			SampleRate:  1.0,
		},
		Shutdown: ShutdownConfig{
			Timeout: 30 * time.Second,
		},
	}
}
