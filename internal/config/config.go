// Package config reads and writes banksync.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/banksync/internal/model"
)

// FileName is the config file at the repository root.
const FileName = "banksync.yaml"

// Config represents the top-level banksync.yaml configuration.
type Config struct {
	Business BusinessConfig `yaml:"business"`
	Sync     SyncConfig     `yaml:"sync"`
	Feeds    []Feed         `yaml:"feeds,omitempty"`
	Git      GitConfig      `yaml:"git"`
}

// BusinessConfig identifies the business entity.
type BusinessConfig struct {
	Name string `yaml:"name"`
}

// SyncConfig controls ingestion.
type SyncConfig struct {
	// Grouping is used for journals created by `banksync init`.
	Grouping    string `yaml:"grouping"`
	LogLevel    string `yaml:"log_level"`
	MetricsFile string `yaml:"metrics_file,omitempty"` // Prometheus textfile output
}

// Feed maps feed files in import/ to an online account.
type Feed struct {
	Pattern string `yaml:"pattern"` // glob matched against the file name
	Account string `yaml:"account"`
	Format  string `yaml:"format"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a banksync.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the grouping mode and the feed patterns.
func (c *Config) Validate() error {
	if _, err := model.ParseGroupingMode(c.Sync.Grouping); err != nil {
		return fmt.Errorf("sync.grouping: %w", err)
	}
	for i, f := range c.Feeds {
		if f.Account == "" {
			return fmt.Errorf("feeds[%d]: account is required", i)
		}
		if _, err := filepath.Match(f.Pattern, ""); err != nil {
			return fmt.Errorf("feeds[%d]: bad pattern %q: %w", i, f.Pattern, err)
		}
	}
	return nil
}

// Grouping returns the configured grouping mode.
func (c *Config) Grouping() model.GroupingMode {
	mode, err := model.ParseGroupingMode(c.Sync.Grouping)
	if err != nil {
		return model.DefaultGrouping
	}
	return mode
}

// FeedFor returns the first feed whose pattern matches fileName.
func (c *Config) FeedFor(fileName string) (Feed, bool) {
	for _, f := range c.Feeds {
		if ok, _ := filepath.Match(f.Pattern, fileName); ok {
			return f, true
		}
	}
	return Feed{}, false
}

// Default returns a Config with sensible defaults for a new project.
func Default(businessName string, grouping model.GroupingMode) *Config {
	return &Config{
		Business: BusinessConfig{
			Name: businessName,
		},
		Sync: SyncConfig{
			Grouping: string(grouping),
			LogLevel: "info",
		},
		Feeds: []Feed{
			{Pattern: "*.csv", Account: "checking", Format: "chase"},
			{Pattern: "*.json", Account: "checking", Format: "json"},
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "banksync",
			AuthorEmail: "banksync@localhost",
		},
	}
}
