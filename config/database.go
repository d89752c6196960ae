package config

import "fmt"

// DatabaseConfig defines the connection settings for the optional
// Postgres-backed quota ledger.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" json:"dsn"`                         // PostgreSQL connection string
	MaxConnections int    `yaml:"max_connections" json:"max_connections"` // Maximum number of connections
	MinConnections int    `yaml:"min_connections" json:"min_connections"` // Minimum number of connections
}

// SetDefaults sets sensible default values for the database configuration
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
		fmt.Printf("Warning: database.max_connections not set or invalid, defaulting to %d\n", c.MaxConnections)
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 2
		fmt.Printf("Warning: database.min_connections not set or invalid, defaulting to %d\n", c.MinConnections)
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.MinConnections > c.MaxConnections && c.MaxConnections > 0 {
		return fmt.Errorf("database min_connections (%d) cannot be greater than max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	return nil
}
