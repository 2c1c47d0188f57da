package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Transport names
const (
	TransportMIDI     = "midi"
	TransportLoopback = "loopback"
)

const (
	MinFPS           = 1
	MaxFPS           = 120
	MinStabilization = 10 * time.Millisecond
	MaxStabilization = 2 * time.Second
)

// EngineConfig selects how the surface reaches the engine
type EngineConfig struct {
	Transport  string `json:"transport"`
	PortName   string `json:"portName,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// RefreshConfig tunes the frame loop
type RefreshConfig struct {
	FPS             int `json:"fps"`
	StabilizationMs int `json:"stabilizationMs"`
}

// ContentConfig is one selectable source. Frames is used when Path is empty.
type ContentConfig struct {
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	Frames int    `json:"frames,omitempty"`
}

// MappingConfig binds a CC to a parameter. Channel is 1-16, 0 for any.
type MappingConfig struct {
	CC      int    `json:"cc"`
	Param   string `json:"param"`
	Channel int    `json:"channel,omitempty"`
}

// ControllerConfig defines the knob controller
type ControllerConfig struct {
	PortName    string          `json:"portName,omitempty"`
	AutoConnect bool            `json:"autoConnect"`
	Mappings    []MappingConfig `json:"mappings,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette     string `json:"palette,omitempty"`
	LastContent int    `json:"lastContent,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Engine     EngineConfig     `json:"engine"`
	Refresh    RefreshConfig    `json:"refresh"`
	Content    []ContentConfig  `json:"content,omitempty"`
	Controller ControllerConfig `json:"controller"`
	UI         UIConfig         `json:"ui,omitempty"`
	Debug      bool             `json:"debug,omitempty"`
	LogPath    string           `json:"logPath,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Transport:  TransportLoopback,
			PortName:   "Grain",
			SampleRate: 44100,
		},
		Refresh: RefreshConfig{
			FPS:             30,
			StabilizationMs: 120,
		},
		Content: []ContentConfig{
			{Name: "short", Frames: 44100},
			{Name: "medium", Frames: 441000},
			{Name: "long", Frames: 2646000},
		},
		Controller: ControllerConfig{
			AutoConnect: true,
			Mappings: []MappingConfig{
				{CC: 20, Param: "source.position"},
				{CC: 21, Param: "grain.length"},
				{CC: 22, Param: "grain.rate"},
				{CC: 23, Param: "grain.scatter"},
				{CC: 24, Param: "window.modifier"},
				{CC: 25, Param: "lowpass.cutoff"},
				{CC: 26, Param: "highpass.cutoff"},
				{CC: 27, Param: "output.gain"},
			},
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "grain-surface"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Missing keys keep their defaults. Lists are replaced, never merged.
	def := DefaultConfig()
	cfg := DefaultConfig()
	cfg.Content, cfg.Controller.Mappings = nil, nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Content == nil {
		cfg.Content = def.Content
	}
	if cfg.Controller.Mappings == nil {
		cfg.Controller.Mappings = def.Controller.Mappings
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate clamps tuning values into their safe ranges and rejects
// settings nothing can run with
func (c *Config) Validate() error {
	switch c.Engine.Transport {
	case TransportMIDI, TransportLoopback:
	case "":
		c.Engine.Transport = TransportLoopback
	default:
		return fmt.Errorf("unknown engine transport %q", c.Engine.Transport)
	}
	if c.Engine.SampleRate <= 0 {
		c.Engine.SampleRate = 44100
	}

	c.Refresh.FPS = max(MinFPS, min(MaxFPS, c.Refresh.FPS))
	d := time.Duration(c.Refresh.StabilizationMs) * time.Millisecond
	d = max(MinStabilization, min(MaxStabilization, d))
	c.Refresh.StabilizationMs = int(d / time.Millisecond)

	for i, m := range c.Controller.Mappings {
		if m.CC < 0 || m.CC > 127 {
			return fmt.Errorf("mapping %d: cc %d out of range", i, m.CC)
		}
		if m.Channel < 0 || m.Channel > 16 {
			return fmt.Errorf("mapping %d: channel %d out of range", i, m.Channel)
		}
	}
	if c.UI.LastContent < 0 || c.UI.LastContent >= len(c.Content) {
		c.UI.LastContent = 0
	}
	return nil
}

// Stabilization returns the window stabilization delay
func (c *Config) Stabilization() time.Duration {
	return time.Duration(c.Refresh.StabilizationMs) * time.Millisecond
}

// ContentPaths returns the content list with ~ expanded in paths
func (c *Config) ContentPaths() ([]ContentConfig, error) {
	out := make([]ContentConfig, len(c.Content))
	for i, item := range c.Content {
		out[i] = item
		if item.Path == "" {
			continue
		}
		p, err := homedir.Expand(item.Path)
		if err != nil {
			return nil, fmt.Errorf("content %q: %w", item.Name, err)
		}
		out[i].Path = p
	}
	return out, nil
}

// ContentNames returns the display names by index
func (c *Config) ContentNames() []string {
	names := make([]string, len(c.Content))
	for i, item := range c.Content {
		names[i] = item.Name
	}
	return names
}
