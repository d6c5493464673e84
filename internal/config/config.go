// Package config loads the service configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig is optional; an empty Addr selects the in-process queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

type ScoringConfig struct {
	Pace                 time.Duration `yaml:"pace"`
	PersonalizationDelay time.Duration `yaml:"personalization_delay"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	Timezone             string        `yaml:"timezone"`
}

type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ScrapeInterval time.Duration `yaml:"scrape_interval"`
	TideInterval   time.Duration `yaml:"tide_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads, defaults, and validates the configuration at path.
// SPOTLINE_LLM_API_KEY and SPOTLINE_DB_DSN override their file values so
// secrets stay out of the YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if key := os.Getenv("SPOTLINE_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if dsn := os.Getenv("SPOTLINE_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 800
	}
	if c.LLM.HTTPTimeout <= 0 {
		c.LLM.HTTPTimeout = 60 * time.Second
	}
	if c.Scoring.Pace <= 0 {
		c.Scoring.Pace = 100 * time.Millisecond
	}
	if c.Scoring.PersonalizationDelay <= 0 {
		c.Scoring.PersonalizationDelay = 30 * time.Second
	}
	if c.Scoring.QueueCapacity <= 0 {
		c.Scoring.QueueCapacity = 256
	}
	if c.Scheduler.ScrapeInterval <= 0 {
		c.Scheduler.ScrapeInterval = 6 * time.Hour
	}
	if c.Scheduler.TideInterval <= 0 {
		c.Scheduler.TideInterval = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Scoring.Timezone != "" {
		if _, err := time.LoadLocation(c.Scoring.Timezone); err != nil {
			return fmt.Errorf("invalid scoring.timezone %q: %w", c.Scoring.Timezone, err)
		}
	}
	return nil
}

// Location resolves the scoring timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Scoring.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Scoring.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
