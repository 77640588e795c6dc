package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"tokenmart/crypto"
)

// Config carries the daemon's service configuration. Operator and vault
// addresses are bech32 strings validated on load.
type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	MetricsAddress  string `toml:"MetricsAddress"`
	OperatorAddress string `toml:"OperatorAddress"`
	VaultAddress    string `toml:"VaultAddress"`
	Environment     string `toml:"Environment"`
	PauseMarket     bool   `toml:"PauseMarket"`
}

// Pauses adapts the static pause flags into the view the native modules
// consult on every state-changing call.
type Pauses struct {
	Market bool
}

// IsPaused implements the pause view consumed by native/common.Guard.
func (p Pauses) IsPaused(module string) bool {
	return module == "market" && p.Market
}

// Load reads the configuration from the given path, applying defaults for
// optional fields and validating the address fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the required identity fields parse as addresses.
func (c *Config) Validate() error {
	if _, err := c.Operator(); err != nil {
		return fmt.Errorf("invalid OperatorAddress: %w", err)
	}
	vault, err := c.Vault()
	if err != nil {
		return fmt.Errorf("invalid VaultAddress: %w", err)
	}
	operator, _ := c.Operator()
	if vault == operator {
		return fmt.Errorf("VaultAddress must differ from OperatorAddress")
	}
	return nil
}

// Operator returns the decoded operator identity.
func (c *Config) Operator() ([20]byte, error) {
	return decodeAddress(c.OperatorAddress)
}

// Vault returns the decoded module custody account.
func (c *Config) Vault() ([20]byte, error) {
	return decodeAddress(c.VaultAddress)
}

func decodeAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out, nil
}
