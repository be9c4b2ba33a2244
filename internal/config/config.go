// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	GithubToken        string        `mapstructure:"GITHUB_TOKEN"`
	DataFile           string        `mapstructure:"DATA_FILE"`
	CheckpointDir      string        `mapstructure:"CHECKPOINT_DIR"`
	MaxTotal           int           `mapstructure:"MAX_TOTAL"`
	RefreshDays        int           `mapstructure:"REFRESH_DAYS"`
	CheckpointInterval int           `mapstructure:"CHECKPOINT_INTERVAL"`
	PageDelay          time.Duration `mapstructure:"PAGE_DELAY"`
	HTTPTimeout        time.Duration `mapstructure:"HTTP_TIMEOUT"`
	SearchQueries      []string      `mapstructure:"SEARCH_QUERIES"`
	CollectConcurrency int           `mapstructure:"COLLECT_CONCURRENCY"`
	ReplaceStrategy    string        `mapstructure:"REPLACE_STRATEGY"`
	ListenAddr         string        `mapstructure:"LISTEN_ADDR"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATA_FILE", "data/seattle_projects.json")
	viper.SetDefault("CHECKPOINT_DIR", "data/checkpoints")
	viper.SetDefault("MAX_TOTAL", 10000)
	viper.SetDefault("REFRESH_DAYS", 7)
	viper.SetDefault("CHECKPOINT_INTERVAL", 1000)
	viper.SetDefault("PAGE_DELAY", "500ms")
	viper.SetDefault("HTTP_TIMEOUT", "30s")
	viper.SetDefault("SEARCH_QUERIES", []string{
		"location:seattle stars:>10",
		"location:redmond stars:>5",
		"location:bellevue stars:>5",
	})
	viper.SetDefault("COLLECT_CONCURRENCY", 3)
	viper.SetDefault("REPLACE_STRATEGY", "lowest_stars")
	viper.SetDefault("LISTEN_ADDR", ":8080")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if cfg.MaxTotal <= 0 {
		return nil, errors.New("MAX_TOTAL must be a positive integer")
	}
	if cfg.CheckpointInterval <= 0 {
		return nil, errors.New("CHECKPOINT_INTERVAL must be a positive integer")
	}
	if len(cfg.SearchQueries) == 0 {
		return nil, errors.New("SEARCH_QUERIES must contain at least one query")
	}

	return &cfg, nil
}
