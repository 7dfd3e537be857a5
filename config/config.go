package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"craftledger/crypto"
)

// GenesisAllocation seeds a ledger account balance when a fresh data
// directory is initialised.
type GenesisAllocation struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

// Config is the node configuration loaded from TOML.
type Config struct {
	RPCAddress       string              `toml:"RPCAddress"`
	MetricsAddress   string              `toml:"MetricsAddress"`
	DataDir          string              `toml:"DataDir"`
	NetworkName      string              `toml:"NetworkName"`
	RegistryAdmin    string              `toml:"RegistryAdmin"`
	SettlementFeeBps uint32              `toml:"SettlementFeeBps"`
	FeeTreasury      string              `toml:"FeeTreasury"`
	Genesis          []GenesisAllocation `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing defaults when the
// file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %s", path, undecoded[0])
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9465"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./craftd-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "craft-local"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
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

// Validate checks address formats and fee bounds.
func (cfg *Config) Validate() error {
	if cfg.SettlementFeeBps > 10_000 {
		return fmt.Errorf("SettlementFeeBps must not exceed 10000, got %d", cfg.SettlementFeeBps)
	}
	if cfg.SettlementFeeBps > 0 && strings.TrimSpace(cfg.FeeTreasury) == "" {
		return fmt.Errorf("FeeTreasury is required when SettlementFeeBps is set")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"RegistryAdmin", cfg.RegistryAdmin},
		{"FeeTreasury", cfg.FeeTreasury},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	for i, alloc := range cfg.Genesis {
		if _, err := crypto.DecodeAddress(alloc.Address); err != nil {
			return fmt.Errorf("Genesis[%d].Address: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("Genesis[%d].Amount must be a positive integer", i)
		}
	}
	return nil
}

// AddressField decodes a configured bech32 address into its 20-byte form. An
// empty value yields the zero address.
func AddressField(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}
