// Package config persists user preferences as plain JSON under
// ~/.config/mvmnt. Only serializable settings live here; runtime state never
// does.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// TransportConfig stores the last transport setup.
type TransportConfig struct {
	Rate        float64 `json:"rate,omitempty"`
	LoopStart   int64   `json:"loopStart,omitempty"`
	LoopEnd     int64   `json:"loopEnd,omitempty"`
	LoopEnabled bool    `json:"loopEnabled,omitempty"`
	Quantize    string  `json:"quantize,omitempty"` // "off" or "bar"
	BeatsPerBar int     `json:"beatsPerBar,omitempty"`
}

// MIDIConfig stores output routing preferences.
type MIDIConfig struct {
	DefaultPort string `json:"defaultPort,omitempty"`
}

// ExportConfig stores offline render preferences.
type ExportConfig struct {
	FPS float64 `json:"fps,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	Transport TransportConfig `json:"transport,omitempty"`
	MIDI      MIDIConfig      `json:"midi,omitempty"`
	Export    ExportConfig    `json:"export,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Rate:        1.0,
			Quantize:    "off",
			BeatsPerBar: 4,
		},
		Export: ExportConfig{
			FPS: 30,
		},
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mvmnt"), nil
}

// ConfigPath returns the full path to config.json.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads a config from an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to an explicit path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
