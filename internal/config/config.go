// Package config loads process settings from an optional config file and
// the environment, with the environment taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/liamcoop/timestamps/internal/logger"
	"github.com/liamcoop/timestamps/rules"
)

// Config holds the settings shared by the server and the CLI
type Config struct {
	Port            int
	DatabaseURL     string
	LogLevel        string
	RulesFile       string
	MatchTimeout    time.Duration
	OmitEmptyFormat bool
	AutoMigrate     bool
}

var defaults = map[string]any{
	"port":              8080,
	"database_url":      "",
	"log_level":         "INFO",
	"rules_file":        "",
	"match_timeout":     rules.DefaultMatchTimeout,
	"omit_empty_format": false,
	"auto_migrate":      false,
}

// Load reads path (YAML, TOML or JSON, chosen by extension) when it is not
// empty, then overlays PORT, DATABASE_URL, LOG_LEVEL, RULES_FILE,
// MATCH_TIMEOUT, OMIT_EMPTY_FORMAT and AUTO_MIGRATE from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:            v.GetInt("port"),
		DatabaseURL:     v.GetString("database_url"),
		LogLevel:        v.GetString("log_level"),
		RulesFile:       v.GetString("rules_file"),
		MatchTimeout:    v.GetDuration("match_timeout"),
		OmitEmptyFormat: v.GetBool("omit_empty_format"),
		AutoMigrate:     v.GetBool("auto_migrate"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MatchTimeout < 0 {
		return fmt.Errorf("match timeout cannot be negative")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level
func (c *Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// EngineOptions returns the engine settings the config describes
func (c *Config) EngineOptions() []rules.Option {
	return []rules.Option{
		rules.WithMatchTimeout(c.MatchTimeout),
		rules.WithOmitEmptyFormat(c.OmitEmptyFormat),
	}
}

// NewEngine builds the default engine: the rules file when one is set,
// the built-in rules otherwise
func (c *Config) NewEngine(extra ...rules.Option) (*rules.Engine, error) {
	return rules.NewFileEngine(c.RulesFile, append(c.EngineOptions(), extra...)...)
}
