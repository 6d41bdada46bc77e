package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TimingConfig holds the session's timing model.
type TimingConfig struct {
	Tempo       float64 `yaml:"tempo,omitempty"`
	SampleRate  float64 `yaml:"sampleRate,omitempty"`
	BeatsPerBar uint8   `yaml:"beatsPerBar,omitempty"`
	BeatUnit    uint8   `yaml:"beatUnit,omitempty"`
}

// SchedulerConfig tunes the lookahead window and tick cadence.
type SchedulerConfig struct {
	HorizonBeats   float64 `yaml:"horizonBeats,omitempty"`
	MaxLookaheadMs int     `yaml:"maxLookaheadMs,omitempty"`
	TickIntervalMs int     `yaml:"tickIntervalMs,omitempty"`
	QueueCapacity  int     `yaml:"queueCapacity,omitempty"`
}

// ClickConfig tunes the metronome voice.
type ClickConfig struct {
	Enabled  bool  `yaml:"enabled"`
	Channel  uint8 `yaml:"channel,omitempty"`
	Key      uint8 `yaml:"key,omitempty"`
	Accent   uint8 `yaml:"accent,omitempty"`
	Velocity uint8 `yaml:"velocity,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	PortName    string          `yaml:"portName,omitempty"`
	MetricsPort int             `yaml:"metricsPort,omitempty"`
	Timing      TimingConfig    `yaml:"timing,omitempty"`
	Scheduler   SchedulerConfig `yaml:"scheduler,omitempty"`
	Click       ClickConfig     `yaml:"click,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timing: TimingConfig{
			Tempo:       120,
			SampleRate:  44100,
			BeatsPerBar: 4,
			BeatUnit:    4,
		},
		Scheduler: SchedulerConfig{
			HorizonBeats:   2,
			MaxLookaheadMs: 150,
			TickIntervalMs: 25,
			QueueCapacity:  256,
		},
		Click: ClickConfig{Enabled: true},
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-pulse"), nil
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path, falling back to the default location when
// path is empty, and to defaults when no file exists. Loaded values are
// merged over defaults so a partial file stays valid.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default location.
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
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
