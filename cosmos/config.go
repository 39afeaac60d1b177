package cosmos

import (
	"fmt"
	"os"
	"strings"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// ChainConfig describes one cosmos chain the bridge signs on.
type ChainConfig struct {
	Name         string `yaml:"-" json:"-"`
	RPC          string `yaml:"rpc" json:"rpc"`
	ChainID      string `yaml:"chain-id" json:"chain-id"`
	Bech32Prefix string `yaml:"bech32-prefix" json:"bech32-prefix"`
	Denom        string `yaml:"denom" json:"denom"`

	GasLimit   uint64 `yaml:"gas-limit" json:"gas-limit"`
	GasPrice   string `yaml:"gas-price" json:"gas-price"`
	FeeDenom   string `yaml:"fee-denom" json:"fee-denom"`
	RPCTimeout int    `yaml:"rpc-timeout" json:"rpc-timeout"`

	BroadcastRetries       int `yaml:"broadcast-retries" json:"broadcast-retries"`
	BroadcastRetryInterval int `yaml:"broadcast-retry-interval" json:"broadcast-retry-interval"`
	ConfirmTimeout         int `yaml:"confirm-timeout" json:"confirm-timeout"`

	PrivateKey string `yaml:"private-key" json:"-"`
}

// LoadPrivateKey fills PrivateKey from <NAME>_PRIV_KEY when that variable is set.
// The variable takes precedence over the file.
func (c *ChainConfig) LoadPrivateKey(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	envKey := strings.ToUpper(c.Name) + "_PRIV_KEY"
	privKey := getenv(envKey)

	if len(c.PrivateKey) == 0 || len(privKey) != 0 {
		if len(privKey) == 0 {
			return fmt.Errorf("env variable %s is empty, priv key not found for chain %s", envKey, c.Name)
		}
		c.PrivateKey = strings.TrimPrefix(privKey, "0x")
	}
	return nil
}

func (c *ChainConfig) Validate() error {
	switch {
	case c.RPC == "":
		return types.Validationf("%s: rpc is required", c.Name)
	case c.ChainID == "":
		return types.Validationf("%s: chain-id is required", c.Name)
	case c.Bech32Prefix == "":
		return types.Validationf("%s: bech32-prefix is required", c.Name)
	case c.Denom == "":
		return types.Validationf("%s: denom is required", c.Name)
	case c.GasLimit == 0:
		return types.Validationf("%s: gas-limit must be positive", c.Name)
	case c.BroadcastRetries <= 0:
		return types.Validationf("%s: broadcast-retries must be positive", c.Name)
	}
	return nil
}
