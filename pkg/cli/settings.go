package cli

import (
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/logger"
)

// loadSettings reads the workspace config and applies flag overrides.
// Flags win over the file; the file wins over built-in defaults.
func loadSettings(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}

	if c.IsSet("driver") {
		cfg.Driver.Kind = strings.ToLower(c.String("driver"))
	}
	if c.IsSet("driver-url") {
		cfg.Driver.URL = c.String("driver-url")
	}
	if c.IsSet("browser") {
		cfg.Driver.Browser = strings.ToLower(c.String("browser"))
	}
	if c.IsSet("headless") {
		cfg.Driver.Headless = c.Bool("headless")
	}
	if c.IsSet("timeout") {
		cfg.Defaults.Timeout = c.Duration("timeout")
	}
	if c.IsSet("attempts") {
		cfg.Defaults.Attempts = c.Int("attempts")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.Bool("verbose") {
		cfg.Logging.Level = "debug"
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.Logging.File = c.String("log-file")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}

	// CLI env overrides workspace env
	if env := parseEnvVars(c.StringSlice("env")); len(env) > 0 {
		if cfg.Env == nil {
			cfg.Env = make(map[string]string)
		}
		for k, v := range env {
			cfg.Env[k] = v
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	return logger.Init(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   logFilePath(cfg.Logging.File),
	})
}

// logFilePath places a bare file name under the steadyhand log dir.
func logFilePath(file string) string {
	if file == "" || filepath.Base(file) != file {
		return file
	}
	return filepath.Join(config.GetLogDir(), file)
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
