package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/wudi/urlforward/internal/errors"
)

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Loader reads service and route configuration files. ${NAME} references
// are replaced from the environment before parsing.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// Load reads and parses a service configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(err, path, "failed to read config file")
	}
	cfg, err := l.Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, filepath.Base(path), "failed to parse YAML")
	}
	return cfg, nil
}

// Parse decodes service configuration on top of DefaultConfig. The result
// is not validated: command-line overrides are applied first and Validate
// runs on the merged configuration.
func (l *Loader) Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(l.expandEnvVars(string(data))), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars substitutes environment references. An unset variable with
// a fallback takes the fallback; without one the reference is left as is.
func (l *Loader) expandEnvVars(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if value, ok := l.lookupEnv(m[1]); ok {
			return value
		}
		if m[2] != "" {
			return m[3]
		}
		return ref
	})
}
