package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	ServerPort    int                 `json:"server_port" yaml:"server_port"`
	LogLevel      string              `json:"log_level" yaml:"log_level"`
	LogPretty     bool                `json:"log_pretty" yaml:"log_pretty"`
	Accessibility AccessibilityConfig `json:"accessibility" yaml:"accessibility"`
	Fallback      FallbackConfig      `json:"fallback" yaml:"fallback"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Screenshot    ScreenshotConfig    `json:"screenshot" yaml:"screenshot"`
}

// AccessibilityConfig configures the AT-SPI tree capture
type AccessibilityConfig struct {
	// BusAddress overrides discovery of the accessibility bus via org.a11y.Bus
	BusAddress string `json:"bus_address,omitempty" yaml:"bus_address,omitempty"`
	// MaxDepth truncates subtrees deeper than this; 0 disables the limit
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

// FallbackConfig configures the window-manager listing used when the
// accessibility tree is empty
type FallbackConfig struct {
	Command []string      `json:"command" yaml:"command"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// EWMH reads _NET_CLIENT_LIST when the command lists nothing
	EWMH bool `json:"ewmh" yaml:"ewmh"`
	// KWin asks KWin's windows runner when the sources above list nothing
	KWin bool `json:"kwin" yaml:"kwin"`
}

// ServerConfig configures command dispatch
type ServerConfig struct {
	CaptureTimeout time.Duration `json:"capture_timeout" yaml:"capture_timeout"`
	MaxConcurrent  int           `json:"max_concurrent" yaml:"max_concurrent"`
}

// ScreenshotConfig configures screenshot encoding
type ScreenshotConfig struct {
	// MaxWidth downscales captures wider than this; 0 keeps native size
	MaxWidth int `json:"max_width" yaml:"max_width"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/deskctl/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "deskctl", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile
// selects the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("port", m.config.ServerPort).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Accessibility: AccessibilityConfig{
			MaxDepth: 128,
		},
		Fallback: FallbackConfig{
			Command: []string{"wmctrl", "-l"},
			Timeout: 5 * time.Second,
			EWMH:    true,
			KWin:    true,
		},
		Server: ServerConfig{
			CaptureTimeout: 10 * time.Second,
			MaxConcurrent:  8,
		},
	}
}

// load reads the configuration from disk, filling unset fields from defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// normalize replaces values that cannot be used with their defaults
func (c *Config) normalize() {
	d := Defaults()
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		c.ServerPort = d.ServerPort
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Accessibility.MaxDepth < 0 {
		c.Accessibility.MaxDepth = 0
	}
	if len(c.Fallback.Command) == 0 {
		c.Fallback.Command = d.Fallback.Command
	}
	if c.Fallback.Timeout <= 0 {
		c.Fallback.Timeout = d.Fallback.Timeout
	}
	if c.Server.CaptureTimeout <= 0 {
		c.Server.CaptureTimeout = d.Server.CaptureTimeout
	}
	if c.Server.MaxConcurrent <= 0 {
		c.Server.MaxConcurrent = d.Server.MaxConcurrent
	}
	if c.Screenshot.MaxWidth < 0 {
		c.Screenshot.MaxWidth = 0
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Fallback.Command = append([]string(nil), m.config.Fallback.Command...)
	return &cfg
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration and persists it
func (m *Manager) Update(cfg *Config) error {
	c := *cfg
	c.normalize()
	m.mu.Lock()
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// setters maps dotted config keys to functions that parse and apply a value
var setters = map[string]func(c *Config, v string) error{
	"server_port": func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", v)
		}
		c.ServerPort = port
		return nil
	},
	"log_level": func(c *Config, v string) error {
		switch strings.ToLower(v) {
		case "trace", "debug", "info", "warn", "warning", "error", "off", "disabled":
			c.LogLevel = strings.ToLower(v)
			return nil
		}
		return fmt.Errorf("invalid log level %q", v)
	},
	"log_pretty": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		c.LogPretty = b
		return nil
	},
	"accessibility.bus_address": func(c *Config, v string) error {
		c.Accessibility.BusAddress = v
		return nil
	},
	"accessibility.max_depth": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid depth %q", v)
		}
		c.Accessibility.MaxDepth = n
		return nil
	},
	"fallback.command": func(c *Config, v string) error {
		fields := strings.Fields(v)
		if len(fields) == 0 {
			return fmt.Errorf("fallback command cannot be empty")
		}
		c.Fallback.Command = fields
		return nil
	},
	"fallback.timeout": func(c *Config, v string) error {
		return setDuration(&c.Fallback.Timeout, v)
	},
	"fallback.ewmh": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		c.Fallback.EWMH = b
		return nil
	},
	"fallback.kwin": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		c.Fallback.KWin = b
		return nil
	},
	"server.capture_timeout": func(c *Config, v string) error {
		return setDuration(&c.Server.CaptureTimeout, v)
	},
	"server.max_concurrent": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid concurrency %q", v)
		}
		c.Server.MaxConcurrent = n
		return nil
	},
	"screenshot.max_width": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid width %q", v)
		}
		c.Screenshot.MaxWidth = n
		return nil
	},
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid duration %q", v)
	}
	*dst = d
	return nil
}

// Keys returns the settable configuration keys in sorted order
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value for the dotted key, applies it and saves
func (m *Manager) Set(key, value string) error {
	apply, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	m.mu.Lock()
	if m.config == nil {
		m.config = Defaults()
	}
	next := *m.config
	if err := apply(&next, value); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = &next
	m.mu.Unlock()

	return m.Save()
}

// Value returns the string form of the dotted key
func (m *Manager) Value(key string) (string, error) {
	cfg := m.Get()
	switch key {
	case "server_port":
		return strconv.Itoa(cfg.ServerPort), nil
	case "log_level":
		return cfg.LogLevel, nil
	case "log_pretty":
		return strconv.FormatBool(cfg.LogPretty), nil
	case "accessibility.bus_address":
		return cfg.Accessibility.BusAddress, nil
	case "accessibility.max_depth":
		return strconv.Itoa(cfg.Accessibility.MaxDepth), nil
	case "fallback.command":
		return strings.Join(cfg.Fallback.Command, " "), nil
	case "fallback.timeout":
		return cfg.Fallback.Timeout.String(), nil
	case "fallback.ewmh":
		return strconv.FormatBool(cfg.Fallback.EWMH), nil
	case "fallback.kwin":
		return strconv.FormatBool(cfg.Fallback.KWin), nil
	case "server.capture_timeout":
		return cfg.Server.CaptureTimeout.String(), nil
	case "server.max_concurrent":
		return strconv.Itoa(cfg.Server.MaxConcurrent), nil
	case "screenshot.max_width":
		return strconv.Itoa(cfg.Screenshot.MaxWidth), nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	return m.Set("server_port", strconv.Itoa(port))
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.Set("log_level", level)
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
