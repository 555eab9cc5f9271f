package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the fully resolved runtime configuration: built-in defaults,
// overridden by ~/.sleuth/config.yaml, overridden by environment variables.
type Config struct {
	// CacheDir holds the per-domain selector JSON files.
	CacheDir string
	// StatsDB is the SQLite database for per-domain usage accounting.
	StatsDB string
	// QueueDB is the SQLite database for the resumable batch queue.
	QueueDB string

	SimpleTimeout      time.Duration
	BrowserTimeout     time.Duration
	DisableBrowser     bool
	PolitenessInterval time.Duration

	// Workers bounds batch concurrency.
	Workers int

	APIKey       string
	Model        string
	ModelBaseURL string
}

// Default returns the built-in configuration, rooted under ~/.sleuth.
func Default() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	root := filepath.Join(homeDir, ".sleuth")

	return &Config{
		CacheDir:           filepath.Join(root, "selectors"),
		StatsDB:            filepath.Join(root, "usage.db"),
		QueueDB:            filepath.Join(root, "queue.db"),
		SimpleTimeout:      15 * time.Second,
		BrowserTimeout:     45 * time.Second,
		PolitenessInterval: 2 * time.Second,
		Workers:            3,
	}, nil
}

// Load resolves the effective configuration: defaults, then the config file
// if present, then environment variables. The API key is only ever read from
// the environment; it never lives in the config file.
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	fileCfg, err := LoadConfigFile()
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := cfg.applyFile(fileCfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyFile overlays config-file values onto the defaults. Durations are
// parsed here so a bad config file fails loudly at startup rather than
// silently falling back.
func (c *Config) applyFile(f *FileConfig) error {
	if f.Storage.CacheDir != "" {
		c.CacheDir = f.Storage.CacheDir
	}
	if f.Storage.StatsDB != "" {
		c.StatsDB = f.Storage.StatsDB
	}
	if f.Storage.QueueDB != "" {
		c.QueueDB = f.Storage.QueueDB
	}
	if f.Workers > 0 {
		c.Workers = f.Workers
	}
	if f.Model.Name != "" {
		c.Model = f.Model.Name
	}
	if f.Model.BaseURL != "" {
		c.ModelBaseURL = f.Model.BaseURL
	}
	c.DisableBrowser = c.DisableBrowser || f.Fetch.DisableBrowser

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{f.Fetch.SimpleTimeout, &c.SimpleTimeout, "fetch.simple_timeout"},
		{f.Fetch.BrowserTimeout, &c.BrowserTimeout, "fetch.browser_timeout"},
		{f.Fetch.PolitenessInterval, &c.PolitenessInterval, "fetch.politeness_interval"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return nil
}

// applyEnv overlays environment variables. SLEUTH_OPENAI_API_KEY wins over
// the generic OPENAI_API_KEY so the tool can use its own key alongside other
// software sharing the shell environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("SLEUTH_OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("SLEUTH_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SLEUTH_MODEL_BASE_URL"); v != "" {
		c.ModelBaseURL = v
	}
	if v := os.Getenv("SLEUTH_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
}
