package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"loanchain/crypto"
)

// Config carries the daemon settings for a loan ledger node.
type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	NetworkName  string `toml:"NetworkName"`
	AdminAddress string `toml:"AdminAddress"`

	// PausedModules lists engine modules halted at startup, e.g.
	// ["syndication"].
	PausedModules []string `toml:"PausedModules,omitempty"`

	MaxParticipants        int `toml:"MaxParticipants"`
	MaxCollateralPositions int `toml:"MaxCollateralPositions"`
}

const (
	defaultRPCAddress      = "127.0.0.1:8645"
	defaultDataDir         = "./loand-data"
	defaultNetworkName     = "loanchain-local"
	defaultMaxParticipants = 256
	defaultMaxCollateral   = 64
)

// Load reads the configuration from the given path, writing defaults when the
// file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = defaultNetworkName
	}
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = defaultMaxParticipants
	}
	if c.MaxCollateralPositions <= 0 {
		c.MaxCollateralPositions = defaultMaxCollateral
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
}

// Validate rejects malformed settings before the daemon wires anything.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AdminAddress) != "" {
		if _, err := crypto.DecodeAddress(c.AdminAddress); err != nil {
			return fmt.Errorf("config: invalid AdminAddress: %w", err)
		}
	}
	return nil
}

// Admin decodes the configured administrator address. The zero address is
// returned when no admin is configured, which disables admin-gated methods.
func (c *Config) Admin() ([20]byte, error) {
	var admin [20]byte
	if strings.TrimSpace(c.AdminAddress) == "" {
		return admin, nil
	}
	decoded, err := crypto.DecodeAddress(c.AdminAddress)
	if err != nil {
		return admin, err
	}
	copy(admin[:], decoded.Bytes())
	return admin, nil
}

// Pauses converts the configured pause list into the engines' view.
func (c *Config) Pauses() map[string]bool {
	paused := make(map[string]bool, len(c.PausedModules))
	for _, module := range c.PausedModules {
		module = strings.TrimSpace(module)
		if module != "" {
			paused[module] = true
		}
	}
	return paused
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
