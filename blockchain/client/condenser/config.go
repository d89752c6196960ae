package condenser

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// CondenserConfig stores configuration specific to the condenser JSON-RPC
// client.
type CondenserConfig struct {
	// --- RPC Connection ---
	Nodes []string `yaml:"nodes"` // API node URLs, first is primary

	// --- Chain Identity ---
	ChainID       string `yaml:"chain_id"`       // 32-byte hex chain id mixed into signing digests
	AddressPrefix string `yaml:"address_prefix"` // public key text prefix, e.g. "STM"

	// --- Transaction Signing Credentials ---
	CreatorAccount   string `yaml:"creator_account"`
	CreatorActiveWIF string `yaml:"creator_active_wif"`

	// --- Transaction Behavior ---
	ExpirationSeconds int `yaml:"expiration_seconds"`
}

// LoadCondenserConfig loads condenser configuration from the specified YAML file path
func LoadCondenserConfig(path string) (*CondenserConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of condenser config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read condenser config file '%s': %w", absPath, err)
	}

	var cfg CondenserConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse condenser YAML config file: %w", err)
	}

	if cfg.AddressPrefix == "" {
		cfg.AddressPrefix = "STM"
	}
	if cfg.ExpirationSeconds <= 0 {
		cfg.ExpirationSeconds = 30
	}

	return &cfg, nil
}
