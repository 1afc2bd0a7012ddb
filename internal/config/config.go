package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Source   SourceConfig   `yaml:"source"`
	Batch    BatchConfig    `yaml:"batch"`
	Server   ServerConfig   `yaml:"server"`
}

// AnalysisConfig holds market analysis defaults
type AnalysisConfig struct {
	DefaultCountry      string  `yaml:"default_country"`
	DefaultUnit         string  `yaml:"default_unit"`
	HistoryLimit        int     `yaml:"history_limit"`
	CanStore            bool    `yaml:"can_store"`
	StorageCostPerMonth float64 `yaml:"storage_cost_per_month"`
	HarvestHorizonDays  int     `yaml:"harvest_horizon_days"` // used when no harvest date is given
}

// SourceConfig selects where price observations are read from
type SourceConfig struct {
	Kind        string `yaml:"kind"` // csv, postgres
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	Cache       bool   `yaml:"cache"`
}

// BatchConfig holds batch analysis settings
type BatchConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port      int `yaml:"port"`
	RateLimit int `yaml:"rate_limit"` // requests per minute per client
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			DefaultCountry:      "Nigeria",
			DefaultUnit:         "kg",
			HistoryLimit:        20,
			CanStore:            true,
			StorageCostPerMonth: 0,
			HarvestHorizonDays:  90,
		},
		Source: SourceConfig{
			Kind:        "csv",
			Path:        "prices.csv",
			Cache:       true,
		},
		Batch: BatchConfig{
			Workers: 4,
			Timeout: 2 * time.Minute,
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 120,
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg) // Use defaults if file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config values with environment variables if set
func applyEnv(cfg *Config) {
	if url := os.Getenv("AGRIMARKET_DATABASE_URL"); url != "" {
		cfg.Source.DatabaseURL = url
	}
	if country := os.Getenv("AGRIMARKET_DEFAULT_COUNTRY"); country != "" {
		cfg.Analysis.DefaultCountry = country
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "csv":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for csv source")
		}
	case "postgres":
		if c.Source.DatabaseURL == "" {
			return fmt.Errorf("source.database_url (or AGRIMARKET_DATABASE_URL) is required for postgres source")
		}
	default:
		return fmt.Errorf("unknown source kind: %q", c.Source.Kind)
	}
	if c.Analysis.HistoryLimit < 1 {
		return fmt.Errorf("history_limit must be at least 1")
	}
	if c.Analysis.StorageCostPerMonth < 0 {
		return fmt.Errorf("storage_cost_per_month must not be negative")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
