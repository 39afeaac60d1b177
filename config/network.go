package config

import (
	"github.com/strangelove-ventures/xion-cctp-bridge/circle"
	"github.com/strangelove-ventures/xion-cctp-bridge/offramp"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// networkPreset holds the well known CCTP parameters of a network.
type networkPreset struct {
	attestationBaseURL string
	baseChainID        int64
	messageTransmitter string
	usdc               string
	offRampBlockchain  string
}

var presets = map[string]networkPreset{
	NetworkMainnet: {
		attestationBaseURL: circle.IrisMainnetURL,
		baseChainID:        8453,
		messageTransmitter: "0xAD09780d193884d503182aD4588450C416D6F9D4",
		usdc:               "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		offRampBlockchain:  "base",
	},
	NetworkTestnet: {
		attestationBaseURL: circle.IrisSandboxURL,
		baseChainID:        84532,
		messageTransmitter: "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
		usdc:               "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		offRampBlockchain:  "base-sepolia",
	},
}

// ApplyNetworkDefaults fills unset fields from the network preset. Explicit values win.
// An empty network only applies the network independent defaults.
func (c *Config) ApplyNetworkDefaults() error {
	if c.Circle.FetchRetries == 0 {
		c.Circle.FetchRetries = circle.DefaultFetchRetries
	}
	if c.Circle.FetchRetryInterval == 0 {
		c.Circle.FetchRetryInterval = int(circle.DefaultFetchRetryInterval.Seconds())
	}
	if c.OffRamp.Token == "" {
		c.OffRamp.Token = offramp.DefaultToken
	}
	if c.Chains.Noble != nil && c.Chains.Noble.Denom == "" {
		c.Chains.Noble.Denom = "uusdc"
	}
	if base := c.Chains.Base; base != nil && base.DomainID == nil {
		domain := types.DomainBase
		base.DomainID = &domain
	}

	if c.Network == "" {
		return nil
	}
	preset, ok := presets[c.Network]
	if !ok {
		return types.Validationf("unknown network %q (expected %s or %s)", c.Network, NetworkMainnet, NetworkTestnet)
	}

	if c.Circle.AttestationBaseURL == "" {
		c.Circle.AttestationBaseURL = preset.attestationBaseURL
	}
	if c.OffRamp.Blockchain == "" {
		c.OffRamp.Blockchain = preset.offRampBlockchain
	}
	if base := c.Chains.Base; base != nil {
		if base.ChainID == 0 {
			base.ChainID = preset.baseChainID
		}
		if base.MessageTransmitter == "" {
			base.MessageTransmitter = preset.messageTransmitter
		}
		if base.USDC == "" {
			base.USDC = preset.usdc
		}
	}
	return nil
}
