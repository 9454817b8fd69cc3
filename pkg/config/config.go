// Package config loads the engine configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// SourceConfig points the crawler at the disclosure source.
type SourceConfig struct {
	BaseURL    string `yaml:"base_url"`
	Proxy      string `yaml:"proxy"`
	UserAgent  string `yaml:"user_agent"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CrawlConfig controls pacing and fan-out.
type CrawlConfig struct {
	Concurrency   int     `yaml:"concurrency"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	MaxRetries    int     `yaml:"max_retries"`
}

// StoreConfig locates the local database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig wires optional NATS progress publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Config is the root configuration document.
type Config struct {
	Source      SourceConfig `yaml:"source"`
	Crawl       CrawlConfig  `yaml:"crawl"`
	Store       StoreConfig  `yaml:"store"`
	Events      EventsConfig `yaml:"events"`
	DownloadDir string       `yaml:"download_dir"`
	MetricsPort int          `yaml:"metrics_port"`
	User        string       `yaml:"user"`
}

// Defaults returns a Config with workable local defaults.
func Defaults() Config {
	return Config{
		Source: SourceConfig{
			BaseURL:    "https://www.asx.com.au",
			TimeoutSec: 60,
		},
		Crawl: CrawlConfig{
			Concurrency:   3,
			RatePerSecond: 1,
			MaxRetries:    3,
		},
		Store:       StoreConfig{Path: "disclosures.db"},
		DownloadDir: "downloads",
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Timeout returns the source timeout as a duration.
func (c Config) Timeout() time.Duration {
	if c.Source.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Source.TimeoutSec) * time.Second
}
