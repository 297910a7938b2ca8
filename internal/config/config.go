// Package config provides YAML-based configuration loading for Concierge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hbeckert/concierge/internal/models"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Concierge configuration, loaded from config.yaml.
type Config struct {
	HTTPPort  int                                `yaml:"http_port"`
	DataDir   string                             `yaml:"data_dir"`
	Browser   BrowserConfig                      `yaml:"browser"`
	Store     StoreConfig                        `yaml:"store"`
	Platforms map[models.Platform]PlatformConfig `yaml:"platforms"`
	Notify    NotifyConfig                       `yaml:"notify"`
	Slack     SlackConfig                        `yaml:"slack"`
	Discord   DiscordConfig                      `yaml:"discord"`
	Mirror    MirrorConfig                       `yaml:"mirror"`
}

// BrowserConfig holds settings for the browser surfaces.
type BrowserConfig struct {
	Binary   string `yaml:"binary"` // empty = let the driver find Chrome
	Headless bool   `yaml:"headless"`
}

// StoreConfig selects the bindings store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // mysql DSN
}

// PlatformConfig tunes one platform's surface and detection heuristic.
// The selectors, intervals and dot-size threshold approximate undocumented
// third-party UIs and are expected to need adjustment as those UIs change.
type PlatformConfig struct {
	LandingURL    string        `yaml:"landing_url"`
	UserAgent     string        `yaml:"user_agent"`
	Strategy      string        `yaml:"strategy"` // "badge", "dots" or "title"
	PollInterval  time.Duration `yaml:"poll_interval"`
	BadgeSelector string        `yaml:"badge_selector"`
	DotSelector   string        `yaml:"dot_selector"`
	DotMaxSize    int           `yaml:"dot_max_size"` // px; elements at or under this count as unread dots
}

// NotifyConfig controls local notification delivery for activity events.
type NotifyConfig struct {
	Command      string `yaml:"command"`       // shell template, e.g. "notify-send '{{.Title}}' '{{.Body}}'"
	SoundCommand string `yaml:"sound_command"` // e.g. "paplay /usr/share/sounds/freedesktop/stereo/message.oga"
}

// SlackConfig enables the optional Slack notification sink.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig enables the optional Discord notification sink.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// MirrorConfig controls mirroring of the dashboard backend's bindings.
type MirrorConfig struct {
	BaseURL  string `yaml:"base_url"`
	Schedule string `yaml:"schedule"` // 5-field cron expression
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = 8321
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataDir = filepath.Join(home, ".concierge")
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "concierge.db")
	}
	if c.Mirror.Schedule == "" {
		c.Mirror.Schedule = "*/15 * * * *"
	}
	if c.Platforms == nil {
		c.Platforms = map[models.Platform]PlatformConfig{}
	}
	for _, p := range models.Platforms() {
		pc := c.Platforms[p]
		def := defaultPlatform(p)
		if pc.LandingURL == "" {
			pc.LandingURL = def.LandingURL
		}
		if pc.UserAgent == "" {
			pc.UserAgent = def.UserAgent
		}
		if pc.Strategy == "" {
			pc.Strategy = def.Strategy
		}
		if pc.PollInterval <= 0 {
			pc.PollInterval = def.PollInterval
		}
		if pc.BadgeSelector == "" {
			pc.BadgeSelector = def.BadgeSelector
		}
		if pc.DotSelector == "" {
			pc.DotSelector = def.DotSelector
		}
		if pc.DotMaxSize <= 0 {
			pc.DotMaxSize = def.DotMaxSize
		}
		c.Platforms[p] = pc
	}
}

// defaultPlatform returns the shipped tuning for a platform.
func defaultPlatform(p models.Platform) PlatformConfig {
	const ua = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	switch p {
	case models.PlatformBookingA:
		return PlatformConfig{
			LandingURL:    "https://host.booking-a.example/inbox",
			UserAgent:     ua,
			Strategy:      "badge",
			PollInterval:  20 * time.Second,
			BadgeSelector: "[data-testid=unread-count], .msg-badge",
		}
	case models.PlatformBookingB:
		return PlatformConfig{
			LandingURL:   "https://partner.booking-b.example/messages",
			UserAgent:    ua,
			Strategy:     "dots",
			PollInterval: 30 * time.Second,
			DotSelector:  "span[class*=unread], span[class*=badge]",
			DotMaxSize:   14,
		}
	case models.PlatformMessenger:
		return PlatformConfig{
			LandingURL:   "https://web.messenger.example/",
			UserAgent:    ua,
			Strategy:     "title",
			PollInterval: 10 * time.Second,
		}
	}
	return PlatformConfig{}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port %d out of range", c.HTTPPort))
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for sqlite")
		}
	case "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	for p, pc := range c.Platforms {
		if !p.Valid() {
			errs = append(errs, fmt.Sprintf("platforms: unknown platform %q", p))
			continue
		}
		switch pc.Strategy {
		case "badge", "dots", "title":
		default:
			errs = append(errs, fmt.Sprintf("platforms.%s.strategy %q is not supported", p, pc.Strategy))
		}
		if pc.LandingURL == "" {
			errs = append(errs, fmt.Sprintf("platforms.%s.landing_url is required", p))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
