// Package config loads the ini2clash configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/xxxbrian/ini2clash/internal/logging"
)

const (
	// DefaultPath is read when --config is not given; it may be absent.
	DefaultPath = "ini2clash.yaml"

	DefaultRulesSource    = "https://raw.githubusercontent.com/nikiiii0319/OPENCLASH/refs/heads/main/clashmini.ini"
	DefaultTemplateSource = "https://raw.githubusercontent.com/qichiyuhub/rule/refs/heads/master/config/Clash/config.yaml"
	DefaultOutput         = "output.yaml"
)

// Environment overrides.
const (
	EnvRules    = "INI2CLASH_RULES"
	EnvTemplate = "INI2CLASH_TEMPLATE"
	EnvOutput   = "INI2CLASH_OUTPUT"
	EnvListen   = "INI2CLASH_LISTEN"
	EnvLogLevel = "INI2CLASH_LOG_LEVEL"
)

// Config is the full ini2clash configuration.
type Config struct {
	Sources struct {
		// Rules is the rule-definition document (ruleset= / custom_proxy_group= lines).
		Rules string `yaml:"rules"`
		// Template is the Clash document the generated sections are spliced into.
		Template string `yaml:"template"`
	} `yaml:"sources"`

	// Output is the file the merged document is written to; "-" means stdout.
	Output string `yaml:"output"`
	// Strict turns missing target headers or a missing provider anchor into errors.
	Strict bool `yaml:"strict"`
	// VerifyOutput parses the merged document before it is written.
	VerifyOutput *bool `yaml:"verify_output"`

	Fetch struct {
		Timeout   time.Duration `yaml:"timeout"`
		UserAgent string        `yaml:"user_agent"`
	} `yaml:"fetch"`

	Cache struct {
		TTL         time.Duration `yaml:"ttl"`
		ResultTTL   time.Duration `yaml:"result_ttl"`
		PersistPath string        `yaml:"persist_path"`
	} `yaml:"cache"`

	Server struct {
		Listen          string        `yaml:"listen"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
	} `yaml:"server"`

	Watch struct {
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"watch"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	GeoIP struct {
		// Database is an mmdb file path or URL used by the check command.
		Database string `yaml:"database"`
	} `yaml:"geoip"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads path and applies defaults and environment overrides. When
// optional is set a missing file yields the defaults. The result is not
// validated, so callers can layer flags on top first and then call Validate.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config
	// #nosec G304 -- path is provided by trusted flag.
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// ShouldVerifyOutput reports whether the merged document must parse as YAML.
func (c *Config) ShouldVerifyOutput() bool {
	return c.VerifyOutput == nil || *c.VerifyOutput
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Sources.Rules) == "" {
		cfg.Sources.Rules = DefaultRulesSource
	}
	if strings.TrimSpace(cfg.Sources.Template) == "" {
		cfg.Sources.Template = DefaultTemplateSource
	}
	if strings.TrimSpace(cfg.Output) == "" {
		cfg.Output = DefaultOutput
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 60 * time.Second
	}
	if strings.TrimSpace(cfg.Fetch.UserAgent) == "" {
		cfg.Fetch.UserAgent = "ini2clash/1.0"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Minute
	}
	if cfg.Cache.ResultTTL == 0 {
		cfg.Cache.ResultTTL = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Logging.Format) == "" {
		cfg.Logging.Format = logging.FormatAuto
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRules)); v != "" {
		cfg.Sources.Rules = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTemplate)); v != "" {
		cfg.Sources.Template = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOutput)); v != "" {
		cfg.Output = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Sources.Rules) == "" {
		err = multierr.Append(err, errors.New("sources.rules is required"))
	}
	if strings.TrimSpace(c.Sources.Template) == "" {
		err = multierr.Append(err, errors.New("sources.template is required"))
	}
	if c.Fetch.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("fetch.timeout must be positive (got %s)", c.Fetch.Timeout))
	}
	if c.Cache.TTL < 0 {
		err = multierr.Append(err, fmt.Errorf("cache.ttl must not be negative (got %s)", c.Cache.TTL))
	}
	if c.Cache.ResultTTL < 0 {
		err = multierr.Append(err, fmt.Errorf("cache.result_ttl must not be negative (got %s)", c.Cache.ResultTTL))
	}
	if c.Server.RefreshInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("server.refresh_interval must not be negative (got %s)", c.Server.RefreshInterval))
	}
	if c.Watch.Debounce < 0 {
		err = multierr.Append(err, fmt.Errorf("watch.debounce must not be negative (got %s)", c.Watch.Debounce))
	}
	if _, lvlErr := logging.ParseLevel(c.Logging.Level); lvlErr != nil {
		err = multierr.Append(err, fmt.Errorf("logging.level: %w", lvlErr))
	}
	if !logging.ValidFormat(c.Logging.Format) {
		err = multierr.Append(err, fmt.Errorf("logging.format must be one of auto, console, json (got %q)", c.Logging.Format))
	}
	return err
}
