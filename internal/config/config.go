package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Capture backends
const (
	BackendAuto       = "auto"
	BackendX11        = "x11"
	BackendScreenshot = "screenshot"
	BackendFile       = "file"
)

// Config represents the application configuration
type Config struct {
	ServerPort int           `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	Capture    CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Encoder    EncoderConfig `json:"encoder" yaml:"encoder" mapstructure:"encoder"`
	Preview    PreviewConfig `json:"preview" yaml:"preview" mapstructure:"preview"`
}

// CaptureConfig selects where frames come from
type CaptureConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	// Display is the monitor index for the screenshot backend
	Display int `json:"display" yaml:"display" mapstructure:"display"`
	// Clip is a "WxH+X+Y" region of the screen, empty for the whole screen
	Clip string `json:"clip" yaml:"clip" mapstructure:"clip"`
	// Files are replayed in order by the file backend
	Files []string `json:"files" yaml:"files" mapstructure:"files"`
}

// EncoderConfig controls block tracking and frame emission
type EncoderConfig struct {
	BlockSize        int    `json:"block_size" yaml:"block_size" mapstructure:"block_size"`
	FrameRate        int    `json:"frame_rate" yaml:"frame_rate" mapstructure:"frame_rate"`
	KeyframeInterval int    `json:"keyframe_interval" yaml:"keyframe_interval" mapstructure:"keyframe_interval"`
	PanWindow        string `json:"pan_window" yaml:"pan_window" mapstructure:"pan_window"`
	PanSpeed         int    `json:"pan_speed" yaml:"pan_speed" mapstructure:"pan_speed"`
}

// PreviewConfig controls the MJPEG preview stream
type PreviewConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Quality int     `json:"quality" yaml:"quality" mapstructure:"quality"`
	Scale   float64 `json:"scale" yaml:"scale" mapstructure:"scale"`
	Grid    bool    `json:"grid" yaml:"grid" mapstructure:"grid"`

	// Overlays are extra widgets drawn over the preview
	Overlays []OverlayConfig `json:"overlays" yaml:"overlays" mapstructure:"overlays"`
}

// OverlayConfig describes one preview overlay widget
type OverlayConfig struct {
	ID       string                 `json:"id" yaml:"id" mapstructure:"id"`
	Type     string                 `json:"type" yaml:"type" mapstructure:"type"`
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty" mapstructure:"settings"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Capture: CaptureConfig{
			Backend: BackendAuto,
			Files:   []string{},
		},
		Encoder: EncoderConfig{
			BlockSize:        32,
			FrameRate:        12,
			KeyframeInterval: 120,
			PanSpeed:         1,
		},
		Preview: PreviewConfig{
			Enabled:  true,
			Quality:  80,
			Scale:    1.0,
			Overlays: []OverlayConfig{},
		},
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}
	switch c.Capture.Backend {
	case BackendAuto, BackendX11, BackendScreenshot, BackendFile:
	default:
		return fmt.Errorf("invalid capture.backend: %q (use auto, x11, screenshot or file)", c.Capture.Backend)
	}
	if c.Capture.Clip != "" {
		if _, err := ParseClip(c.Capture.Clip); err != nil {
			return fmt.Errorf("invalid capture.clip: %w", err)
		}
	}
	// block sizes are stored in a 4 bit field as size/16-1 by ScreenVideo
	if bs := c.Encoder.BlockSize; bs < 16 || bs > 256 || bs%16 != 0 {
		return fmt.Errorf("invalid encoder.block_size: %d (multiple of 16 from 16 to 256)", bs)
	}
	if c.Encoder.FrameRate <= 0 || c.Encoder.FrameRate > 120 {
		return fmt.Errorf("invalid encoder.frame_rate: %d", c.Encoder.FrameRate)
	}
	if c.Encoder.KeyframeInterval < 0 {
		return fmt.Errorf("invalid encoder.keyframe_interval: %d", c.Encoder.KeyframeInterval)
	}
	if c.Encoder.PanWindow != "" {
		if _, err := ParseSize(c.Encoder.PanWindow); err != nil {
			return fmt.Errorf("invalid encoder.pan_window: %w", err)
		}
	}
	if c.Encoder.PanSpeed < 0 {
		return fmt.Errorf("invalid encoder.pan_speed: %d", c.Encoder.PanSpeed)
	}
	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		return fmt.Errorf("invalid preview.quality: %d", c.Preview.Quality)
	}
	if c.Preview.Scale <= 0 || c.Preview.Scale > 4 {
		return fmt.Errorf("invalid preview.scale: %v", c.Preview.Scale)
	}
	seen := make(map[string]bool, len(c.Preview.Overlays))
	for i, o := range c.Preview.Overlays {
		switch {
		case o.ID == "":
			return fmt.Errorf("invalid preview.overlays[%d]: missing id", i)
		case seen[o.ID]:
			return fmt.Errorf("invalid preview.overlays[%d]: duplicate id %q", i, o.ID)
		case o.Type != "text" && o.Type != "grid":
			return fmt.Errorf("invalid preview.overlays[%d]: unknown type %q", i, o.Type)
		}
		seen[o.ID] = true
	}
	return nil
}

// fillEmpty replaces nil lists so they encode as [] rather than null
func (c *Config) fillEmpty() {
	if c.Capture.Files == nil {
		c.Capture.Files = []string{}
	}
	if c.Preview.Overlays == nil {
		c.Preview.Overlays = []OverlayConfig{}
	}
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/blockcast/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "blockcast", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{configPath: path}
	log := logger.WithComponent("config")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return m, nil
	}

	if err := m.load(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	log.Info().
		Str("path", m.configPath).
		Str("backend", m.config.Capture.Backend).
		Int("block_size", m.config.Encoder.BlockSize).
		Msg("Config loaded")
	return m, nil
}

// newViper returns a viper instance preloaded with the defaults
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	d := Defaults()
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.display", d.Capture.Display)
	v.SetDefault("capture.clip", d.Capture.Clip)
	v.SetDefault("capture.files", d.Capture.Files)
	v.SetDefault("encoder.block_size", d.Encoder.BlockSize)
	v.SetDefault("encoder.frame_rate", d.Encoder.FrameRate)
	v.SetDefault("encoder.keyframe_interval", d.Encoder.KeyframeInterval)
	v.SetDefault("encoder.pan_window", d.Encoder.PanWindow)
	v.SetDefault("encoder.pan_speed", d.Encoder.PanSpeed)
	v.SetDefault("preview.enabled", d.Preview.Enabled)
	v.SetDefault("preview.quality", d.Preview.Quality)
	v.SetDefault("preview.scale", d.Preview.Scale)
	v.SetDefault("preview.grid", d.Preview.Grid)
	v.SetDefault("preview.overlays", d.Preview.Overlays)
	return v
}

// load reads the configuration from disk; keys absent from the file keep
// their defaults
func (m *Manager) load() error {
	v := newViper()
	v.SetConfigFile(m.configPath)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.fillEmpty()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	cfg.Capture.Files = append([]string(nil), m.config.Capture.Files...)
	return &cfg
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()
	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().Err(err).Str("config_dir", configDir).Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// Update validates and replaces the entire configuration, then saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// snapshot returns a viper instance holding the current configuration
func (m *Manager) snapshot() (*viper.Viper, error) {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	v := newViper()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// Lookup returns the value of a dotted key such as "encoder.block_size"
func (m *Manager) Lookup(key string) (interface{}, bool) {
	v, err := m.snapshot()
	if err != nil || !v.IsSet(key) {
		return nil, false
	}
	return v.Get(key), true
}

// Override applies a dotted key in memory only. String values are converted
// to the key's type.
func (m *Manager) Override(key string, value interface{}) error {
	v, err := m.snapshot()
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	v.Set(key, value)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	cfg.fillEmpty()
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Set applies a dotted key and saves the result
func (m *Manager) Set(key string, value interface{}) error {
	if err := m.Override(key, value); err != nil {
		return err
	}
	return m.Save()
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
