package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// PumpConfig defines configuration for the block pump
type PumpConfig struct {
	CustomJSONID  string `yaml:"custom_json_id"` // tracked custom operation id
	StartHeight   uint32 `yaml:"start_height"`   // first height when no cursor file exists
	PollInterval  string `yaml:"poll_interval"`  // wait before re-fetching a not-yet-produced block
	RetryInterval string `yaml:"retry_interval"` // wait after a transient fetch error
	SaveInterval  int    `yaml:"save_interval"`  // cursor persist stride, in blocks
}

// SetDefaults sets reasonable default values for pump configuration
func (c *PumpConfig) SetDefaults() {
	if c.CustomJSONID == "" {
		c.CustomJSONID = "acctforge_request"
		fmt.Printf("Warning: pump.custom_json_id not set, defaulting to %s\n", c.CustomJSONID)
	}
	if c.PollInterval == "" {
		c.PollInterval = "3s"
		fmt.Printf("Warning: pump.poll_interval not set, defaulting to %s\n", c.PollInterval)
	}
	if c.RetryInterval == "" {
		c.RetryInterval = "5s"
		fmt.Printf("Warning: pump.retry_interval not set, defaulting to %s\n", c.RetryInterval)
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = 20
		fmt.Printf("Warning: pump.save_interval not set or invalid, defaulting to %d\n", c.SaveInterval)
	}
}

// StorageConfig defines where the flat-file ledgers live
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	CursorFile  string `yaml:"cursor_file"`
	PendingFile string `yaml:"pending_file"`
	QuotaFile   string `yaml:"quota_file"`
}

// SetDefaults sets reasonable default values for storage configuration
func (c *StorageConfig) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
		fmt.Printf("Warning: storage.data_dir not set, defaulting to %s\n", c.DataDir)
	}
	if c.CursorFile == "" {
		c.CursorFile = "cursor.json"
	}
	if c.PendingFile == "" {
		c.PendingFile = "pending_credentials.json"
	}
	if c.QuotaFile == "" {
		c.QuotaFile = "quota.json"
	}
}

// CursorPath returns the absolute cursor file path.
func (c *StorageConfig) CursorPath() string { return filepath.Join(c.DataDir, c.CursorFile) }

// PendingPath returns the absolute pending-credentials file path.
func (c *StorageConfig) PendingPath() string { return filepath.Join(c.DataDir, c.PendingFile) }

// QuotaPath returns the absolute quota ledger file path.
func (c *StorageConfig) QuotaPath() string { return filepath.Join(c.DataDir, c.QuotaFile) }

// QuotaConfig selects the quota ledger backend
type QuotaConfig struct {
	Backend  string         `yaml:"backend"` // "file" (default) or "postgres"
	Database DatabaseConfig `yaml:"database"`
}

// SetDefaults sets reasonable default values for quota configuration
func (c *QuotaConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
		fmt.Printf("Warning: quota.backend not set, defaulting to %s\n", c.Backend)
	}
}

// Validate validates the quota configuration
func (c *QuotaConfig) Validate() error {
	switch c.Backend {
	case "file":
		return nil
	case "postgres":
		return c.Database.Validate()
	default:
		return fmt.Errorf("unsupported quota backend: %s", c.Backend)
	}
}

// KafkaProducerConfig defines configuration for the lifecycle-event producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// Enabled reports whether a real Kafka producer should be started.
func (c *KafkaProducerConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// MonitorConfig defines all configuration for the account monitor service
type MonitorConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`

	// Chain Client Configuration
	ChainClientConfigPath string `yaml:"chain_client_config_path"`

	Pump          PumpConfig          `yaml:"pump"`
	Storage       StorageConfig       `yaml:"storage"`
	Quota         QuotaConfig         `yaml:"quota"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"`
	HttpServer    HttpServerConfig    `yaml:"http_server"`
}

// LoadMonitorConfig loads configuration from the specified YAML file path
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg MonitorConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	// Set default values for all configurations
	cfg.Pump.SetDefaults()
	cfg.Storage.SetDefaults()
	cfg.Quota.SetDefaults()
	cfg.Delivery.SetDefaults()

	if cfg.ChainClientConfigPath == "" {
		cfg.ChainClientConfigPath = "./config/chain_config.yml"
		fmt.Printf("Warning: chain_client_config_path not set, defaulting to %s\n", cfg.ChainClientConfigPath)
	}

	// Validation
	if err := cfg.Quota.Validate(); err != nil {
		return nil, fmt.Errorf("quota configuration error: %w", err)
	}
	if err := cfg.Delivery.Validate(); err != nil {
		return nil, fmt.Errorf("delivery configuration error: %w", err)
	}

	return &cfg, nil
}
