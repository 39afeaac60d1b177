package config

import (
	"fmt"
	"os"
	"time"

	"cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/strangelove-ventures/xion-cctp-bridge/bridge"
	"github.com/strangelove-ventures/xion-cctp-bridge/cosmos"
	"github.com/strangelove-ventures/xion-cctp-bridge/ethereum"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// chain names, also used for <NAME>_PRIV_KEY lookups
const (
	SourceChainName      = "xion"
	BridgeChainName      = "noble"
	DestinationChainName = "base"
)

type Config struct {
	Network         string          `yaml:"network" json:"network"`
	Chains          Chains          `yaml:"chains" json:"chains"`
	Route           RouteSettings   `yaml:"route" json:"route"`
	Circle          CircleSettings  `yaml:"circle" json:"circle"`
	OffRamp         OffRampSettings `yaml:"offramp" json:"offramp"`
	Store           StoreSettings   `yaml:"store" json:"store"`
	Api             ApiSettings     `yaml:"api" json:"api"`
	BalanceInterval int             `yaml:"balance-interval" json:"balance-interval"`
}

// Chains are the three legs of the route. Xion may be omitted to only burn funds
// already on noble.
type Chains struct {
	Xion  *cosmos.ChainConfig   `yaml:"xion" json:"xion"`
	Noble *cosmos.ChainConfig   `yaml:"noble" json:"noble"`
	Base  *ethereum.ChainConfig `yaml:"base" json:"base"`
}

// RouteSettings are amounts in the smallest unit and durations in seconds. Zero means default.
type RouteSettings struct {
	SourceChannel          string `yaml:"source-channel" json:"source-channel"`
	ReverseChannel         string `yaml:"reverse-channel" json:"reverse-channel"`
	SourceGasReserve       uint64 `yaml:"source-gas-reserve" json:"source-gas-reserve"`
	BurnGasReserve         uint64 `yaml:"burn-gas-reserve" json:"burn-gas-reserve"`
	ReverseGasReserve      uint64 `yaml:"reverse-gas-reserve" json:"reverse-gas-reserve"`
	IBCTimeout             int    `yaml:"ibc-timeout" json:"ibc-timeout"`
	SettlementPollInterval int    `yaml:"settlement-poll-interval" json:"settlement-poll-interval"`
	SettlementTimeout      int    `yaml:"settlement-timeout" json:"settlement-timeout"`
	Memo                   string `yaml:"memo" json:"memo"`
}

type CircleSettings struct {
	AttestationBaseURL string `yaml:"attestation-base-url" json:"attestation-base-url"`
	FetchRetries       int    `yaml:"fetch-retries" json:"fetch-retries"`
	FetchRetryInterval int    `yaml:"fetch-retry-interval" json:"fetch-retry-interval"`
	RequestsPerSecond  int    `yaml:"requests-per-second" json:"requests-per-second"`
}

type OffRampSettings struct {
	BaseURL    string `yaml:"base-url" json:"base-url"`
	Blockchain string `yaml:"blockchain" json:"blockchain"`
	Token      string `yaml:"token" json:"token"`
	Timeout    int    `yaml:"timeout" json:"timeout"`
}

type StoreSettings struct {
	// Path of the pebble database. Empty keeps state in memory only.
	Path string `yaml:"path" json:"path"`
}

type ApiSettings struct {
	Listen         string   `yaml:"listen" json:"listen"`
	TrustedProxies []string `yaml:"trusted-proxies" json:"trusted-proxies"`
}

// Parse reads the config file, names the chains and applies the network presets.
func Parse(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if cfg.Chains.Xion != nil {
		cfg.Chains.Xion.Name = SourceChainName
	}
	if cfg.Chains.Noble != nil {
		cfg.Chains.Noble.Name = BridgeChainName
	}
	if cfg.Chains.Base != nil {
		cfg.Chains.Base.Name = DestinationChainName
	}

	if err := cfg.ApplyNetworkDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything needed to run a bridge transfer. Off-ramp settings are
// checked by the commands that use them.
func (c *Config) Validate() error {
	if c.Chains.Noble == nil {
		return types.Validationf("chains.noble is required")
	}
	if c.Chains.Base == nil {
		return types.Validationf("chains.base is required")
	}
	if err := c.Chains.Noble.Validate(); err != nil {
		return err
	}
	if err := c.Chains.Base.Validate(); err != nil {
		return err
	}
	if c.Chains.Xion != nil {
		if err := c.Chains.Xion.Validate(); err != nil {
			return err
		}
		if c.Route.SourceChannel == "" {
			return types.Validationf("route.source-channel is required when chains.xion is set")
		}
	}

	if c.Circle.AttestationBaseURL == "" {
		return types.Validationf("circle.attestation-base-url is required")
	}
	if c.Circle.FetchRetries <= 0 {
		return types.Validationf("circle.fetch-retries must be greater than zero")
	}
	if c.Circle.FetchRetryInterval <= 0 {
		return types.Validationf("circle.fetch-retry-interval must be greater than zero")
	}
	return nil
}

// ValidateOffRamp checks the settings needed for quotes and withdrawals.
func (c *Config) ValidateOffRamp() error {
	if c.OffRamp.BaseURL == "" {
		return types.Validationf("offramp.base-url is required")
	}
	if c.Chains.Base == nil {
		return types.Validationf("chains.base is required for withdrawals")
	}
	return nil
}

// LoadPrivateKeys fills signing keys from <NAME>_PRIV_KEY variables.
func (c *Config) LoadPrivateKeys(getenv func(string) string) error {
	if c.Chains.Xion != nil {
		if err := c.Chains.Xion.LoadPrivateKey(getenv); err != nil {
			return err
		}
	}
	if c.Chains.Noble != nil {
		if err := c.Chains.Noble.LoadPrivateKey(getenv); err != nil {
			return err
		}
	}
	if c.Chains.Base != nil {
		if err := c.Chains.Base.LoadPrivateKey(getenv); err != nil {
			return err
		}
	}
	return nil
}

// BridgeConfig maps the route settings to the orchestrator's configuration.
func (c *Config) BridgeConfig() bridge.Config {
	cfg := bridge.Config{
		SourceChannel:          c.Route.SourceChannel,
		ReverseChannel:         c.Route.ReverseChannel,
		IBCTimeout:             seconds(c.Route.IBCTimeout),
		SettlementPollInterval: seconds(c.Route.SettlementPollInterval),
		SettlementTimeout:      seconds(c.Route.SettlementTimeout),
		Memo:                   c.Route.Memo,
	}
	if c.Chains.Xion != nil {
		cfg.SourcePrefix = c.Chains.Xion.Bech32Prefix
		cfg.SourceDenom = c.Chains.Xion.Denom
	}
	if c.Chains.Noble != nil {
		cfg.BridgePrefix = c.Chains.Noble.Bech32Prefix
		cfg.BridgeDenom = c.Chains.Noble.Denom
	}
	if c.Chains.Base != nil {
		cfg.DestinationDomain = c.Chains.Base.Domain()
	}
	if c.Route.SourceGasReserve > 0 {
		cfg.SourceGasReserve = math.NewIntFromUint64(c.Route.SourceGasReserve)
	}
	if c.Route.BurnGasReserve > 0 {
		cfg.BurnGasReserve = math.NewIntFromUint64(c.Route.BurnGasReserve)
	}
	if c.Route.ReverseGasReserve > 0 {
		cfg.ReverseGasReserve = math.NewIntFromUint64(c.Route.ReverseGasReserve)
	}
	return cfg
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
