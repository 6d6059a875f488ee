package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/chatdock/chatdock/api/schemas"
)

// Config is the root configuration for the chatdock process. It is built from
// defaults, an optional YAML file and CHATDOCK_* environment variables, in
// that order of precedence (lowest first).
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Bridge     BridgeConfig     `mapstructure:"bridge" yaml:"bridge"`
	Visibility VisibilityConfig `mapstructure:"visibility" yaml:"visibility"`
	Templates  TemplatesConfig  `mapstructure:"templates" yaml:"templates"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	QuickAsk   QuickAskConfig   `mapstructure:"quickask" yaml:"quickask"`
	Proxy      ProxyConfig      `mapstructure:"proxy" yaml:"proxy"`
	Platforms  []PlatformConfig `mapstructure:"platforms" yaml:"platforms"`
}

// LoggingConfig controls the zap logger built by the observability package.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	Color       bool   `mapstructure:"color" yaml:"color"`
	AddCaller   bool   `mapstructure:"add_caller" yaml:"add_caller"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	File        string `mapstructure:"file" yaml:"file"`
	MaxSizeMB   int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chromium instance hosting the embedded contexts.
type BrowserConfig struct {
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// DataDir is the base directory for per-proxy browser profiles.
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	WindowWidth  int64  `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int64  `mapstructure:"window_height" yaml:"window_height"`
}

// BridgeConfig controls result correlation.
type BridgeConfig struct {
	// Timeout is the default wait for a correlated result event.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// UnmatchedBuffer bounds the ring of late/unknown events kept for diagnostics.
	UnmatchedBuffer int `mapstructure:"unmatched_buffer" yaml:"unmatched_buffer"`
}

// VisibilityConfig controls the two-phase hide protocol.
type VisibilityConfig struct {
	// SettleDelay is the pause between hiding the last embedded context and
	// hiding the host window.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// TemplatesConfig controls template loading.
type TemplatesConfig struct {
	// File optionally points at a YAML/JSON file with additional templates.
	File string `mapstructure:"file" yaml:"file"`
	// Builtins enables the shipped chatgpt/claude/gemini templates.
	Builtins bool `mapstructure:"builtins" yaml:"builtins"`
}

// HistoryConfig controls the optional execution history store.
type HistoryConfig struct {
	// DSN is a PostgreSQL connection string; empty disables history entirely.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// QuickAskConfig controls the ask orchestration.
type QuickAskConfig struct {
	// Throttle is the minimum spacing between dispatches.
	Throttle        time.Duration `mapstructure:"throttle" yaml:"throttle"`
	DefaultPlatform string        `mapstructure:"default_platform" yaml:"default_platform"`
}

// ProxyConfig controls the proxy connectivity probe.
type ProxyConfig struct {
	CheckURL     string        `mapstructure:"check_url" yaml:"check_url"`
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout"`
	MaxRedirects int           `mapstructure:"max_redirects" yaml:"max_redirects"`
}

// PlatformConfig declares one chat platform the engine may embed.
type PlatformConfig struct {
	ID       string         `mapstructure:"id" yaml:"id"`
	URL      string         `mapstructure:"url" yaml:"url"`
	ProxyURL string         `mapstructure:"proxy_url" yaml:"proxy_url"`
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Bounds   schemas.Bounds `mapstructure:"bounds" yaml:"bounds"`
}

// SetDefaults installs every default into the given viper instance. Callers
// bind flags and the environment on top before unmarshalling.
func SetDefaults(v *viper.Viper) {
	// -- Logging --
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.add_caller", false)
	v.SetDefault("logging.service_name", "chatdock")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 14)
	v.SetDefault("logging.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.data_dir", "")
	v.SetDefault("browser.window_width", 480)
	v.SetDefault("browser.window_height", 720)

	// -- Bridge --
	v.SetDefault("bridge.timeout", "10s")
	v.SetDefault("bridge.unmatched_buffer", 32)

	// -- Visibility --
	v.SetDefault("visibility.settle_delay", "100ms")

	// -- Templates --
	v.SetDefault("templates.file", "")
	v.SetDefault("templates.builtins", true)

	// -- History --
	v.SetDefault("history.dsn", "")

	// -- Quick ask --
	v.SetDefault("quickask.throttle", "350ms")
	v.SetDefault("quickask.default_platform", "chatgpt")

	// -- Proxy --
	v.SetDefault("proxy.check_url", "https://www.google.com/generate_204")
	v.SetDefault("proxy.check_timeout", "10s")
	v.SetDefault("proxy.max_redirects", 5)

	v.SetDefault("platforms", defaultPlatforms())
}

func defaultPlatforms() []map[string]interface{} {
	bounds := func() map[string]interface{} {
		return map[string]interface{}{"x": 0, "y": 0, "width": 480, "height": 720}
	}
	return []map[string]interface{}{
		{"id": "chatgpt", "url": "https://chatgpt.com/", "enabled": true, "bounds": bounds()},
		{"id": "claude", "url": "https://claude.ai/new", "enabled": false, "bounds": bounds()},
		{"id": "gemini", "url": "https://gemini.google.com/app", "enabled": false, "bounds": bounds()},
	}
}

// New builds a Config from the viper instance and validates it.
func New(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.applyPathDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPathDefaults resolves paths that depend on the user's home directory.
func (c *Config) applyPathDefaults() error {
	if c.Browser.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return err
		}
		c.Browser.DataDir = dir
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Bridge.Timeout <= 0 {
		return fmt.Errorf("bridge.timeout must be positive, got %v", c.Bridge.Timeout)
	}
	if c.Visibility.SettleDelay < 0 {
		return fmt.Errorf("visibility.settle_delay must be >= 0, got %v", c.Visibility.SettleDelay)
	}
	if c.QuickAsk.Throttle < 0 {
		return fmt.Errorf("quickask.throttle must be >= 0, got %v", c.QuickAsk.Throttle)
	}
	seen := make(map[string]bool, len(c.Platforms))
	for i, p := range c.Platforms {
		if p.ID == "" {
			return fmt.Errorf("platforms[%d] is missing an id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("platform id %q declared twice", p.ID)
		}
		seen[p.ID] = true
		if p.Enabled && p.URL == "" {
			return fmt.Errorf("platform %q is enabled but has no url", p.ID)
		}
	}
	return nil
}

// Platform returns the declared platform with the given id.
func (c *Config) Platform(id string) (PlatformConfig, bool) {
	for _, p := range c.Platforms {
		if p.ID == id {
			return p, true
		}
	}
	return PlatformConfig{}, false
}

// EnabledPlatforms returns the platforms flagged enabled, declaration order kept.
func (c *Config) EnabledPlatforms() []PlatformConfig {
	var out []PlatformConfig
	for _, p := range c.Platforms {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// DefaultConfigDir is ~/.chatdock, the root for config, profiles and logs.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatdock"), nil
}

// DefaultDataDir is the base directory for browser profiles.
func DefaultDataDir() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles"), nil
}
