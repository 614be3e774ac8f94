package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CatalogConfig holds catalog backend configuration
type CatalogConfig struct {
	URL   string `mapstructure:"url"`   // Catalog base URL
	Token string `mapstructure:"token"` // Optional bearer token
}

// CacheConfig holds audio cache configuration
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`       // Cache directory
	MaxBytes int64  `mapstructure:"max_bytes"` // Eviction budget for cached audio
}

// DownloadsConfig holds download worker pool configuration
type DownloadsConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`    // Parallel download workers
	MaxAttempts   int           `mapstructure:"max_attempts"`   // Attempts before a job is failed
	RetryCooldown time.Duration `mapstructure:"retry_cooldown"` // Base backoff delay
	RetryExponent float64       `mapstructure:"retry_exponent"` // Backoff multiplier per attempt
}

// PlaybackConfig holds playback engine configuration
type PlaybackConfig struct {
	Prebuffer time.Duration `mapstructure:"prebuffer"` // Decoded audio required before audible start
	Volume    float64       `mapstructure:"volume"`    // Initial volume, 0.0-1.0
	SeekStep  time.Duration `mapstructure:"seek_step"` // Arrow-key seek increment
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			URL: "",
		},
		Cache: CacheConfig{
			Dir:      defaultCachePath(),
			MaxBytes: 2 << 30, // 2 GiB
		},
		Downloads: DownloadsConfig{
			Concurrency:   4,
			MaxAttempts:   3,
			RetryCooldown: 500 * time.Millisecond,
			RetryExponent: 2.0,
		},
		Playback: PlaybackConfig{
			Prebuffer: 200 * time.Millisecond,
			Volume:    0.5,
			SeekStep:  5 * time.Second,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "warble", "warble.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "warble", "warble.log")
	}
}

// defaultCachePath returns the default cache directory for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "warble", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "warble", "cache")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "warble")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "warble")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("WARBLE")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	viper.Set("catalog.url", cfg.Catalog.URL)
	viper.Set("catalog.token", cfg.Catalog.Token)
	viper.Set("cache.dir", cfg.Cache.Dir)
	viper.Set("cache.max_bytes", cfg.Cache.MaxBytes)
	viper.Set("downloads.concurrency", cfg.Downloads.Concurrency)
	viper.Set("downloads.max_attempts", cfg.Downloads.MaxAttempts)
	viper.Set("downloads.retry_cooldown", cfg.Downloads.RetryCooldown)
	viper.Set("downloads.retry_exponent", cfg.Downloads.RetryExponent)
	viper.Set("playback.prebuffer", cfg.Playback.Prebuffer)
	viper.Set("playback.volume", cfg.Playback.Volume)
	viper.Set("playback.seek_step", cfg.Playback.SeekStep)
	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if a catalog URL is set
func (c *Config) IsConfigured() bool {
	return c.Catalog.URL != ""
}
