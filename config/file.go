package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FetchFileConfig is the fetch section of the config file.
type FetchFileConfig struct {
	SimpleTimeout      string `yaml:"simple_timeout"`
	BrowserTimeout     string `yaml:"browser_timeout"`
	DisableBrowser     bool   `yaml:"disable_browser"`
	PolitenessInterval string `yaml:"politeness_interval"`
}

// ModelFileConfig is the model-provider section of the config file.
type ModelFileConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// StorageFileConfig is the storage section of the config file.
type StorageFileConfig struct {
	CacheDir string `yaml:"cache_dir"`
	StatsDB  string `yaml:"stats_db"`
	QueueDB  string `yaml:"queue_db"`
}

// FileConfig represents the structure of ~/.sleuth/config.yaml.
type FileConfig struct {
	Fetch   FetchFileConfig   `yaml:"fetch"`
	Model   ModelFileConfig   `yaml:"model"`
	Storage StorageFileConfig `yaml:"storage"`
	Workers int               `yaml:"workers"`
}

// LoadConfigFile loads configuration from ~/.sleuth/config.yaml. Returns nil
// if the file doesn't exist (not an error). Returns error if the file exists
// but cannot be parsed.
func LoadConfigFile() (*FileConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".sleuth", "config.yaml")

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}

	// Read file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
