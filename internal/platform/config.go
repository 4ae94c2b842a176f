package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/furrow/pkg/adapters/github"
	"github.com/aretw0/furrow/pkg/engine"
	"github.com/aretw0/furrow/pkg/worker"
)

// ConfigFile is the name of the project configuration file.
const ConfigFile = "furrow.yaml"

// Environment overrides.
const (
	EnvToken = "FURROW_TOKEN"
	EnvStore = "FURROW_STORE"
)

// Config is the on-disk configuration of the CLI and daemon.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
}

type StoreConfig struct {
	Adapter string `yaml:"adapter"` // fs or sqlite
	Path    string `yaml:"path"`
	Format  string `yaml:"format,omitempty"`
	Strict  bool   `yaml:"strict,omitempty"`
}

type RemoteConfig struct {
	BaseURL string        `yaml:"base_url,omitempty"`
	Token   string        `yaml:"-"` // only from the environment
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Retries int           `yaml:"retries,omitempty"`
	Rate    float64       `yaml:"rate,omitempty"`
	Burst   int           `yaml:"burst,omitempty"`
}

type SyncConfig struct {
	Space     string        `yaml:"space,omitempty"`
	Cooldown  time.Duration `yaml:"cooldown,omitempty"`
	Interval  time.Duration `yaml:"interval,omitempty"`
	PushDelay time.Duration `yaml:"push_delay,omitempty"`
	Force     bool          `yaml:"force,omitempty"`
	Include   string        `yaml:"include,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{Adapter: "fs", Path: ".", Format: "json"},
		Remote: RemoteConfig{
			BaseURL: github.DefaultBaseURL,
			Timeout: github.DefaultTimeout,
			Retries: github.DefaultRetries,
			Rate:    github.DefaultRate,
			Burst:   github.DefaultBurst,
		},
		Sync: SyncConfig{
			Cooldown:  engine.DefaultCooldown,
			Interval:  worker.DefaultInterval,
			PushDelay: worker.DefaultPushDelay,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults and applies environment
// overrides. A missing file is not an error. Relative store paths, the
// default "." included, are resolved against the file's directory.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(filepath.Dir(path), cfg.Store.Path)
	}

	if v := os.Getenv(EnvToken); v != "" {
		cfg.Remote.Token = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		cfg.Store.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Adapter {
	case "fs", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.adapter: unknown adapter %q", c.Store.Adapter))
	}
	switch c.Store.Format {
	case "", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("store.format: unknown format %q", c.Store.Format))
	}
	if c.Remote.Timeout < 0 {
		errs = append(errs, errors.New("remote.timeout: must not be negative"))
	}
	if c.Remote.Retries < 0 {
		errs = append(errs, errors.New("remote.retries: must not be negative"))
	}
	if c.Sync.Cooldown < 0 || c.Sync.Interval < 0 || c.Sync.PushDelay < 0 {
		errs = append(errs, errors.New("sync: durations must not be negative"))
	}
	if c.Sync.Include != "" && !doublestar.ValidatePattern(c.Sync.Include) {
		errs = append(errs, fmt.Errorf("sync.include: invalid pattern %q", c.Sync.Include))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	level, _ := parseLevel(c.Logging.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// Options turns the configuration into platform options.
func (c Config) Options(logger *slog.Logger) []Option {
	remoteOpts := []github.Option{
		github.WithTimeout(c.Remote.Timeout),
		github.WithRetries(c.Remote.Retries),
		github.WithRateLimit(c.Remote.Rate, c.Remote.Burst),
	}
	if c.Remote.BaseURL != "" {
		remoteOpts = append(remoteOpts, github.WithBaseURL(c.Remote.BaseURL))
	}

	opts := []Option{
		WithAdapter(c.Store.Adapter),
		WithFormat(c.Store.Format),
		WithStrict(c.Store.Strict),
		WithLogger(logger),
		WithRemoteOptions(remoteOpts...),
		WithEngineOptions(
			engine.WithCooldown(c.Sync.Cooldown),
			engine.WithForceUpdate(c.Sync.Force),
		),
	}
	if c.Remote.Token != "" {
		opts = append(opts, WithToken(c.Remote.Token))
	}
	return opts
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
