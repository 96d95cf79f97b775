// Package config handles workspace configuration for steadyhand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// Driver kinds.
const (
	DriverWebDriver  = "webdriver"
	DriverCDP        = "cdp"
	DriverPlaywright = "playwright"
)

// Backoff kinds.
const (
	BackoffNone        = "none"
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Config represents the workspace configuration (steadyhand.yaml).
type Config struct {
	// Scenario selection
	Scenarios []string `yaml:"scenarios"` // Glob patterns for scenario files

	// Execution settings
	Env map[string]string `yaml:"env"` // Variables available to every scenario

	Driver   Driver   `yaml:"driver"`
	Defaults Defaults `yaml:"defaults"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Driver selects and configures the automation backend.
type Driver struct {
	Kind         string                 `yaml:"kind"`         // webdriver, cdp, playwright
	URL          string                 `yaml:"url"`          // WebDriver endpoint or CDP websocket/devtools URL
	Browser      string                 `yaml:"browser"`      // chrome, firefox, chromium, webkit
	Headless     bool                   `yaml:"headless"`     // Launch headless when the backend starts the browser
	Capabilities map[string]interface{} `yaml:"capabilities"` // Extra W3C capabilities
}

// Defaults are the per-step parameters used when a step sets none.
type Defaults struct {
	Timeout       time.Duration `yaml:"timeout"`
	Poll          time.Duration `yaml:"poll"`
	Attempts      int           `yaml:"attempts"`
	Backoff       string        `yaml:"backoff"`
	BackoffBase   time.Duration `yaml:"backoffBase"`
	BackoffMax    time.Duration `yaml:"backoffMax"`
	WindowTimeout time.Duration `yaml:"windowTimeout"` // new window / URL change detection
	VerifyTimeout time.Duration `yaml:"verifyTimeout"` // expected domain verification
}

// Logging configures pkg/logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr"` // e.g. ":9464"; empty disables the endpoint
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Driver.Kind == "" {
		c.Driver.Kind = DriverWebDriver
	}
	if c.Driver.URL == "" && c.Driver.Kind == DriverWebDriver {
		c.Driver.URL = "http://127.0.0.1:4444"
	}
	if c.Driver.Browser == "" {
		c.Driver.Browser = "chrome"
	}

	d := &c.Defaults
	if d.Timeout == 0 {
		d.Timeout = 10 * time.Second
	}
	if d.Poll == 0 {
		d.Poll = 200 * time.Millisecond
	}
	if d.Attempts == 0 {
		d.Attempts = 3
	}
	if d.Backoff == "" {
		d.Backoff = BackoffExponential
	}
	if d.BackoffBase == 0 {
		d.BackoffBase = 250 * time.Millisecond
	}
	if d.BackoffMax == 0 {
		d.BackoffMax = 2 * time.Second
	}
	if d.WindowTimeout == 0 {
		d.WindowTimeout = d.Timeout
	}
	if d.VerifyTimeout == 0 {
		d.VerifyTimeout = d.Timeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Driver.Kind {
	case DriverWebDriver, DriverCDP, DriverPlaywright:
	default:
		return invalid("driver.kind", fmt.Sprintf("unknown driver kind %q", c.Driver.Kind))
	}
	switch c.Defaults.Backoff {
	case BackoffNone, BackoffConstant, BackoffExponential:
	default:
		return invalid("defaults.backoff", fmt.Sprintf("unknown backoff %q", c.Defaults.Backoff))
	}
	if c.Defaults.Attempts < 1 {
		return invalid("defaults.attempts", "attempts must be at least 1")
	}
	if c.Defaults.Timeout < 0 || c.Defaults.Poll < 0 {
		return invalid("defaults", "durations must not be negative")
	}
	if c.Defaults.Poll > c.Defaults.Timeout {
		return invalid("defaults.poll", "poll interval exceeds timeout")
	}
	return nil
}

func invalid(field, msg string) error {
	return core.ErrInvalidConfig.WithMessage(msg).WithDetails(map[string]interface{}{"field": field})
}

// Load loads configuration from a file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("cannot parse " + path).WithCause(err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFromDir looks for steadyhand.yaml or steadyhand.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"steadyhand.yaml", "steadyhand.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return defaults
	return Default(), nil
}
