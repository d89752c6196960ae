package config

import "fmt"

// EmailConfig defines the SMTP transport used by the email delivery channel
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Configured reports whether the email channel has a usable transport.
func (c *EmailConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// MemoConfig defines the encrypted-memo delivery channel
type MemoConfig struct {
	// PrivateWIF is the creator's private memo key used to encrypt
	// credentials to the requester's public memo key.
	PrivateWIF string `yaml:"private_wif"`

	// MinBalance is the creator balance required before the channel is
	// considered usable, legacy asset form, e.g. "0.100 HIVE".
	MinBalance string `yaml:"min_balance"`

	// TransferAmount is the minimal-value transfer carrying the memo.
	TransferAmount string `yaml:"transfer_amount"`
}

// DeliveryConfig defines all configuration for the delivery router
type DeliveryConfig struct {
	// CreatorAccount is the account that creates accounts and sends memo
	// transfers. Must match the creator configured for the chain client.
	CreatorAccount string `yaml:"creator_account"`

	Email EmailConfig `yaml:"email"`
	Memo  MemoConfig  `yaml:"memo"`
}

// SetDefaults sets reasonable default values for delivery configuration
func (c *DeliveryConfig) SetDefaults() {
	if c.Memo.MinBalance == "" {
		c.Memo.MinBalance = "0.100 HIVE"
		fmt.Printf("Warning: delivery.memo.min_balance not set, defaulting to %s\n", c.Memo.MinBalance)
	}
	if c.Memo.TransferAmount == "" {
		c.Memo.TransferAmount = "0.001 HIVE"
		fmt.Printf("Warning: delivery.memo.transfer_amount not set, defaulting to %s\n", c.Memo.TransferAmount)
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
}

// Validate validates the delivery configuration
func (c *DeliveryConfig) Validate() error {
	if c.CreatorAccount == "" {
		return fmt.Errorf("delivery.creator_account is required")
	}
	return nil
}
