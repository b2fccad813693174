// Package config provides configuration management for the scene player.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Robertoarce/wakatto-sub005/internal/playback"
	"github.com/Robertoarce/wakatto-sub005/internal/scene"
)

// Config holds all application configuration
type Config struct {
	Playback PlaybackConfig         `mapstructure:"playback"`
	Sounds   SoundsConfig           `mapstructure:"sounds"`
	Feed     FeedConfig             `mapstructure:"feed"`
	Log      LogConfig              `mapstructure:"log"`
	Scenes   ScenesConfig           `mapstructure:"scenes"`
	Voices   map[string]VoiceConfig `mapstructure:"voices"`
}

// PlaybackConfig tunes the playback engine
type PlaybackConfig struct {
	TickInterval           time.Duration `mapstructure:"tick_interval"`
	ExternalNotifyInterval time.Duration `mapstructure:"external_notify_interval"`
	RevealLookahead        int           `mapstructure:"reveal_lookahead"`
	MaxSubscribers         int           `mapstructure:"max_subscribers"`
}

// SoundsConfig configures talking-sound cues
type SoundsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Volume  float64       `mapstructure:"volume"` // 0.0-1.0
	MinGap  time.Duration `mapstructure:"min_gap"`
}

// FeedConfig configures the websocket state feed
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"` // debug, info, warn, error
	Console bool   `mapstructure:"console"`
}

// ScenesConfig locates scene files
type ScenesConfig struct {
	Dir string `mapstructure:"dir"`
}

// VoiceConfig is a character's base voice profile
type VoiceConfig struct {
	Pitch float64 `mapstructure:"pitch"`
	Pace  float64 `mapstructure:"pace"`
	Tone  string  `mapstructure:"tone"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Playback: PlaybackConfig{
			TickInterval:           16 * time.Millisecond,
			ExternalNotifyInterval: 50 * time.Millisecond,
			RevealLookahead:        2,
			MaxSubscribers:         10,
		},
		Sounds: SoundsConfig{
			Enabled: true,
			Volume:  0.7,
			MinGap:  65 * time.Millisecond,
		},
		Feed: FeedConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8974,
		},
		Log: LogConfig{
			Dir:     filepath.Join(home, ".wakatto", "logs"),
			Level:   "debug",
			Console: true,
		},
		Scenes: ScenesConfig{
			Dir: filepath.Join(home, ".wakatto", "scenes"),
		},
		Voices: map[string]VoiceConfig{},
	}
}

// EngineConfig converts the playback section into engine settings.
func (c *Config) EngineConfig() playback.Config {
	return playback.Config{
		TickInterval:           c.Playback.TickInterval,
		ExternalNotifyInterval: c.Playback.ExternalNotifyInterval,
		RevealLookahead:        c.Playback.RevealLookahead,
		SoundMinGap:            c.Sounds.MinGap,
		MaxSubscribers:         c.Playback.MaxSubscribers,
	}
}

// VoiceProfiles converts the voices section into engine voice profiles.
func (c *Config) VoiceProfiles() map[string]scene.VoiceProfile {
	profiles := make(map[string]scene.VoiceProfile, len(c.Voices))
	for id, v := range c.Voices {
		profiles[id] = scene.VoiceProfile{Pitch: v.Pitch, Pace: v.Pace, Tone: v.Tone}
	}
	return profiles
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".wakatto")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("WAKATTO")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadFile reads configuration from a specific file plus environment
// overrides, bypassing the default search paths.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigFile(path)

	viper.SetEnvPrefix("WAKATTO")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".wakatto")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("playback", cfg.Playback)
	viper.Set("sounds", cfg.Sounds)
	viper.Set("feed", cfg.Feed)
	viper.Set("log", cfg.Log)
	viper.Set("scenes", cfg.Scenes)
	viper.Set("voices", cfg.Voices)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".wakatto"), nil
}
