package blockchain

import (
	"fmt"
	"log"
	"path/filepath"

	"acctforge/blockchain/client/condenser"
	"acctforge/config"
)

// ChainType represents the type of chain client
type ChainType string

const (
	Condenser ChainType = "condenser"
	// Future chain types can be added here:
	// Ethereum ChainType = "ethereum"
)

// LoadChainSpecificConfig loads chain-specific configuration based on chain type
func LoadChainSpecificConfig(chainType string, configDir string) (any, error) {
	switch ChainType(chainType) {
	case Condenser, "":
		// Default to the condenser client if not specified
		condenserConfigPath := filepath.Join(configDir, "clients", "condenser.yml")
		return condenser.LoadCondenserConfig(condenserConfigPath)
	default:
		return nil, fmt.Errorf("unsupported chain type: %s", chainType)
	}
}

// NewChainClient creates a chain client based on the configuration
func NewChainClient(cfg *config.ChainConfig, logger *log.Logger) (ChainClient, error) {
	switch ChainType(cfg.ChainType) {
	case Condenser, "":
		return condenser.NewClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported chain type: %s", cfg.ChainType)
	}
}

// NewChainClientFromFile creates a chain client from configuration files
func NewChainClientFromFile(configPath string, logger *log.Logger) (ChainClient, error) {
	// Load common configuration
	cfg, err := config.LoadChainConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load common config from file '%s': %w", configPath, err)
	}

	// Load chain-specific configuration
	configDir := filepath.Dir(configPath)
	chainSpecificCfg, err := LoadChainSpecificConfig(cfg.ChainType, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain-specific config: %w", err)
	}

	cfg.ChainSpecific = chainSpecificCfg
	return NewChainClient(cfg, logger)
}
