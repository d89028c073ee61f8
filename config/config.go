package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"forgechain/crypto"
	"forgechain/native/common"
)

// Economy captures the deployable parameters of the game economy.
type Economy struct {
	ReferenceAsset   string   `toml:"ReferenceAsset"`
	BridgeAsset      string   `toml:"BridgeAsset"`
	DustThreshold    string   `toml:"DustThreshold"`
	ReferralLevels   []uint64 `toml:"ReferralLevels"`
	VaultShare       uint64   `toml:"VaultShare"`
	BurnShare        uint64   `toml:"BurnShare"`
	StoreTeamAccount string   `toml:"StoreTeamAccount"`
	ForgeTeamAccount string   `toml:"ForgeTeamAccount"`
	ForgeBurnAccount string   `toml:"ForgeBurnAccount"`
	AdminAccounts    []string `toml:"AdminAccounts"`
	UnlockTime       int64    `toml:"UnlockTime"`
	RedeemDeadline   int64    `toml:"RedeemDeadline"`
	AllowedAssets    []string `toml:"AllowedAssets"`
	ForgeAssets      []string `toml:"ForgeAssets"`
	MasterType       uint64   `toml:"MasterType"`
}

// Gateway configures the read-only HTTP surface.
type Gateway struct {
	ListenAddress     string  `toml:"ListenAddress"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Config is the daemon's top-level configuration.
type Config struct {
	DataDir     string  `toml:"DataDir"`
	NetworkName string  `toml:"NetworkName"`
	Environment string  `toml:"Environment"`
	Economy     Economy `toml:"economy"`
	Gateway     Gateway `toml:"gateway"`
}

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "forge-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./forgechain-data"
	}
	if strings.TrimSpace(cfg.Gateway.ListenAddress) == "" {
		cfg.Gateway.ListenAddress = ":8645"
	}
	if cfg.Gateway.RequestsPerMinute <= 0 {
		cfg.Gateway.RequestsPerMinute = 600
	}
	if cfg.Gateway.Burst <= 0 {
		cfg.Gateway.Burst = 20
	}
	if strings.TrimSpace(cfg.Economy.ReferenceAsset) == "" {
		cfg.Economy.ReferenceAsset = "USDT"
	}
	if strings.TrimSpace(cfg.Economy.BridgeAsset) == "" {
		cfg.Economy.BridgeAsset = common.NativeAsset
	}
	if len(cfg.Economy.ReferralLevels) == 0 {
		cfg.Economy.ReferralLevels = []uint64{80_000, 40_000}
	}
	if cfg.Economy.VaultShare == 0 {
		cfg.Economy.VaultShare = common.PercentPrecision
	}
	if cfg.Economy.BurnShare == 0 {
		cfg.Economy.BurnShare = common.PercentPrecision
	}
	if cfg.Economy.MasterType == 0 {
		cfg.Economy.MasterType = 1
	}
}

// Validate rejects percentage tables and accounts a deployment could not
// run with.
func (c *Config) Validate() error {
	total := uint64(0)
	for _, level := range c.Economy.ReferralLevels {
		// Per-entry bound keeps the sum from wrapping uint64.
		if level > common.PercentPrecision {
			return fmt.Errorf("config: referral level %d exceeds 100%%", level)
		}
		total += level
	}
	if total > common.PercentPrecision {
		return fmt.Errorf("config: referral levels sum %d exceeds 100%%", total)
	}
	if c.Economy.VaultShare > common.PercentPrecision {
		return fmt.Errorf("config: vault share %d exceeds 100%%", c.Economy.VaultShare)
	}
	if c.Economy.BurnShare > common.PercentPrecision {
		return fmt.Errorf("config: burn share %d exceeds 100%%", c.Economy.BurnShare)
	}
	for _, addr := range append([]string{
		c.Economy.StoreTeamAccount,
		c.Economy.ForgeTeamAccount,
		c.Economy.ForgeBurnAccount,
	}, c.Economy.AdminAccounts...) {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid account %q: %w", addr, err)
		}
	}
	return nil
}

// Address decodes a configured bech32 account into its raw form, returning
// the zero address for an empty string.
func Address(encoded string) ([20]byte, error) {
	var out [20]byte
	if strings.TrimSpace(encoded) == "" {
		return out, nil
	}
	decoded, err := crypto.DecodeAddress(encoded)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
