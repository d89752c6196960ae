package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// ChainConfig stores common chain configuration across all chain types
type ChainConfig struct {
	// --- Chain Type Selection ---
	ChainType string `yaml:"chain_type"` // "condenser", etc.

	// --- Common Behavior Configuration ---
	RetryLimit     int `yaml:"retry_limit"`
	RetryInterval  int `yaml:"retry_interval"` // milliseconds between RPC retries
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// --- Chain-specific Configuration ---
	// This will be loaded separately based on chain type
	ChainSpecific any `yaml:"-"`
}

// LoadChainConfig loads chain configuration from the specified YAML file path
func LoadChainConfig(path string) (*ChainConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
	}

	var cfg ChainConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 15
	}

	return &cfg, nil
}
