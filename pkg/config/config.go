// Package config handles loading and managing Pagepulse project
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pagepulse/pagepulse/pkg/run"
)

// Config is the per-project configuration read from .pagepulse.yml.
type Config struct {
	Product    string     `yaml:"product"`
	Pages      string     `yaml:"pages"`       // default pages file
	KPIConfig  string     `yaml:"kpi_config"`  // KPI config path
	HistoryDir string     `yaml:"history_dir"` // run store root override
	ReportDir  string     `yaml:"report_dir"`  // rendered report output dir
	FailUnder  int        `yaml:"fail_under"`  // minimum passing score100
	Format     string     `yaml:"format"`      // default output format
	Push       PushConfig `yaml:"push"`
}

// PushConfig points score runs at a hosted Pagepulse server.
type PushConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"` // seconds
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Format: "terminal",
		Push: PushConfig{
			Timeout: 10,
		},
	}
}

// Load reads a config file from the given path.
// If the file does not exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Format == "" {
		cfg.Format = "terminal"
	}
	if cfg.Push.Timeout <= 0 {
		cfg.Push.Timeout = 10
	}

	return cfg, nil
}

// FindConfigFile looks for .pagepulse.yml (or .yaml) in the given
// directory and its parents, returning the path if found, or "" if
// not.
func FindConfigFile(dir string) string {
	for {
		for _, name := range []string{".pagepulse.yml", ".pagepulse.yaml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// CacheDir returns the shared Pagepulse cache directory.
// Uses ~/.cache/pagepulse/ to avoid polluting project trees.
func CacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to temp dir if HOME isn't available
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "pagepulse")
}

// StoreDir returns the run store root: the configured override when
// set, otherwise the runs/ directory under the shared cache.
func (c *Config) StoreDir() string {
	if c.HistoryDir != "" {
		return c.HistoryDir
	}
	return filepath.Join(CacheDir(), "runs")
}

// ProductDir returns where a product's runs land under the store root.
func (c *Config) ProductDir(product string) string {
	return filepath.Join(c.StoreDir(), run.Slug(product))
}
