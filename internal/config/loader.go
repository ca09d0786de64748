package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Default service parameters applied by ApplyDefaults when a field is left
// unset in the stack file. Probe timeout matches the 5s the serving stack's
// health endpoints are tuned for.
const (
	DefaultProbeInterval  = 10 * time.Second
	DefaultProbeTimeout   = 5 * time.Second
	DefaultStartTimeout   = 30 * time.Second
	DefaultStopGrace      = 10 * time.Second
	DefaultMaxAttempts    = 3
	DefaultWindow         = 5 * time.Minute
	DefaultRestartBackoff = 2 * time.Second
)

// DefaultListen is the management API address when the stack file leaves
// listen unset. Loopback only; the API is an operator surface.
const DefaultListen = "127.0.0.1:7071"

// ProbeConfig declares how a service's liveness is checked.
type ProbeConfig struct {
	// URL of the liveness endpoint, e.g. http://127.0.0.1:8001/health.
	URL      string   `json:"url" yaml:"url" toml:"url"`
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty" toml:"interval,omitempty"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// RestartConfig bounds automatic recovery for one service.
type RestartConfig struct {
	// Maximum failures tolerated inside Window before the service is
	// marked failed and left to manual intervention.
	MaxAttempts int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" toml:"max_attempts,omitempty"`
	Window      Duration `json:"window,omitempty" yaml:"window,omitempty" toml:"window,omitempty"`
	// Delay between stopping and re-starting during a recovery restart.
	Backoff Duration `json:"backoff,omitempty" yaml:"backoff,omitempty" toml:"backoff,omitempty"`
}

// ServiceConfig declares one supervised service.
type ServiceConfig struct {
	Name      string   `json:"name" yaml:"name" toml:"name"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty"`
	// Command launches the underlying process (argv form).
	Command []string          `json:"command" yaml:"command" toml:"command"`
	Workdir string            `json:"workdir,omitempty" yaml:"workdir,omitempty" toml:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Probe   ProbeConfig       `json:"probe" yaml:"probe" toml:"probe"`
	Restart RestartConfig     `json:"restart,omitempty" yaml:"restart,omitempty" toml:"restart,omitempty"`
	// StartTimeout bounds how long the start hook may take to report ready.
	StartTimeout Duration `json:"start_timeout,omitempty" yaml:"start_timeout,omitempty" toml:"start_timeout,omitempty"`
	// StopGrace bounds graceful termination before a forced stop.
	StopGrace Duration `json:"stop_grace,omitempty" yaml:"stop_grace,omitempty" toml:"stop_grace,omitempty"`
}

// CORSConfig configures CORS for the management API. Disabled unless
// explicitly enabled.
type CORSConfig struct {
	Enabled        bool     `json:"enabled,omitempty" yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
	AllowedMethods []string `json:"allowed_methods,omitempty" yaml:"allowed_methods,omitempty" toml:"allowed_methods,omitempty"`
	AllowedHeaders []string `json:"allowed_headers,omitempty" yaml:"allowed_headers,omitempty" toml:"allowed_headers,omitempty"`
}

// Config is the root of a stack file.
// Zero values mean "unspecified" and are replaced by defaults in ApplyDefaults.
type Config struct {
	// Listen address of the management API, e.g. 127.0.0.1:7071.
	Listen   string          `json:"listen,omitempty" yaml:"listen,omitempty" toml:"listen,omitempty"`
	LogLevel string          `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	CORS     CORSConfig      `json:"cors,omitempty" yaml:"cors,omitempty" toml:"cors,omitempty"`
	Services []ServiceConfig `json:"services" yaml:"services" toml:"services"`
}

// Load reads a stack file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset per-service parameters with package defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	for i := range c.Services {
		s := &c.Services[i]
		if s.Probe.Interval == 0 {
			s.Probe.Interval = Duration(DefaultProbeInterval)
		}
		if s.Probe.Timeout == 0 {
			s.Probe.Timeout = Duration(DefaultProbeTimeout)
		}
		if s.Restart.MaxAttempts == 0 {
			s.Restart.MaxAttempts = DefaultMaxAttempts
		}
		if s.Restart.Window == 0 {
			s.Restart.Window = Duration(DefaultWindow)
		}
		if s.Restart.Backoff == 0 {
			s.Restart.Backoff = Duration(DefaultRestartBackoff)
		}
		if s.StartTimeout == 0 {
			s.StartTimeout = Duration(DefaultStartTimeout)
		}
		if s.StopGrace == 0 {
			s.StopGrace = Duration(DefaultStopGrace)
		}
	}
}
