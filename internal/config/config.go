package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen             = "127.0.0.1:8080"
	defaultRefreshCron        = "0 * * * *"
	defaultHTTPTimeoutSeconds = 15
	defaultConcurrency        = 1
	defaultLogLevel           = "info"

	// DefaultPath is used when neither -config nor RELEASECAL_CONFIG is set.
	DefaultPath = "/etc/releasecal/config.yaml"
)

// ProjectConfig pairs a tracked project with its release calendar feed.
type ProjectConfig struct {
	// Name is matched as a prefix of event summaries and stripped from them.
	Name string `yaml:"name" json:"name"`
	// URL is the iCalendar endpoint (http, https or file).
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API. Empty disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is an optional IANA zone that timed event starts are
	// converted into before their date is taken. Empty keeps each event's
	// own zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is the standard 5-field cron schedule for periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`

	// Concurrency bounds parallel project fetches. 1 fetches sequentially.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Projects is the ordered list of tracked projects.
	Projects []ProjectConfig `yaml:"projects" json:"projects"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Env holds environment overrides applied on top of the YAML file.
type Env struct {
	ConfigPath string `env:"RELEASECAL_CONFIG"`
	Listen     string `env:"RELEASECAL_LISTEN"`
	Timezone   string `env:"RELEASECAL_TIMEZONE"`
	LogLevel   string `env:"RELEASECAL_LOG_LEVEL"`
}

// DefaultProjects is the compiled-in project list written on first run.
func DefaultProjects() []ProjectConfig {
	return []ProjectConfig{
		{
			Name: "Spring Data",
			URL:  "https://outlook.office365.com/owa/calendar/9d3cecb6098e4d7d884561cf288d70b7@vmware.com/4f8a123268f047d0b0b9319040506e2a3791298319254920500/calendar.ics",
		},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             defaultListen,
		RefreshCron:        defaultRefreshCron,
		HTTPTimeoutSeconds: defaultHTTPTimeoutSeconds,
		Concurrency:        defaultConcurrency,
		LogLevel:           defaultLogLevel,
		Projects:           DefaultProjects(),
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = defaultHTTPTimeoutSeconds
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Projects == nil {
		c.Projects = []ProjectConfig{}
	}
}

// Validate reports the first setting that cannot be used. Project URLs are
// checked when the registry is built from the config; an empty project
// list selects the compiled-in registry.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	return nil
}

// HTTPTimeout returns the configured transport timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Location returns the configured display zone, or nil when events keep
// their own zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ParseEnv reads the RELEASECAL_* overrides from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// ApplyEnv overrides file settings with non-empty environment values.
func (c *Config) ApplyEnv(e Env) {
	if e.Listen != "" {
		c.Listen = e.Listen
	}
	if e.Timezone != "" {
		c.Timezone = e.Timezone
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
}

// Load reads, normalizes and validates the YAML config at path. A missing
// file is seeded with DefaultConfig first, so a first run is held to the
// same checks as an edited file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := readConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("write default config %s: %w", path, err)
		}
	} else if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save normalizes cfg and writes it to path as YAML, readable only by the
// owner. The file is replaced atomically.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, data, 0o600)
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never observe a partially written file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
