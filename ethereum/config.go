package ethereum

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	SignerModeKey    = "key"
	SignerModeRemote = "remote"
)

// ChainConfig describes the EVM destination chain.
type ChainConfig struct {
	Name string `yaml:"-" json:"-"`

	// DomainID is the CCTP domain of the chain. Unset means Base.
	DomainID           *types.Domain `yaml:"domain-id" json:"domain-id"`
	ChainID            int64         `yaml:"chain-id" json:"chain-id"`
	RPC                string        `yaml:"rpc" json:"rpc"`
	MessageTransmitter string        `yaml:"message-transmitter" json:"message-transmitter"`
	USDC               string        `yaml:"usdc" json:"usdc"`

	ReceiptTimeout int `yaml:"receipt-timeout" json:"receipt-timeout"`

	// SignerMode is "key" (sign locally with PrivateKey) or "remote" (JSON-RPC wallet at SignerRPC).
	SignerMode    string `yaml:"signer-mode" json:"signer-mode"`
	SignerRPC     string `yaml:"signer-rpc" json:"signer-rpc"`
	SignerAddress string `yaml:"signer-address" json:"signer-address"`

	PrivateKey string `yaml:"private-key" json:"-"`
}

func (c *ChainConfig) Domain() types.Domain {
	if c.DomainID == nil {
		return types.DomainBase
	}
	return *c.DomainID
}

func (c *ChainConfig) Validate() error {
	switch {
	case c.RPC == "":
		return types.Validationf("%s: rpc is required", c.Name)
	case c.ChainID == 0:
		return types.Validationf("%s: chain-id is required", c.Name)
	case !common.IsHexAddress(c.MessageTransmitter):
		return types.Validationf("%s: message-transmitter must be an evm address", c.Name)
	case !common.IsHexAddress(c.USDC):
		return types.Validationf("%s: usdc must be an evm address", c.Name)
	}
	switch c.SignerMode {
	case "", SignerModeKey:
	case SignerModeRemote:
		if c.SignerRPC == "" || !common.IsHexAddress(c.SignerAddress) {
			return types.Validationf("%s: remote signer needs signer-rpc and signer-address", c.Name)
		}
	default:
		return types.Validationf("%s: unknown signer-mode %q", c.Name, c.SignerMode)
	}
	return nil
}

// LoadPrivateKey fills PrivateKey from <NAME>_PRIV_KEY when that variable is set.
func (c *ChainConfig) LoadPrivateKey(getenv func(string) string) error {
	if c.SignerMode == SignerModeRemote {
		return nil
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	envKey := strings.ToUpper(c.Name) + "_PRIV_KEY"
	if privKey := getenv(envKey); privKey != "" {
		c.PrivateKey = privKey
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("env variable %s is empty, priv key not found for chain %s", envKey, c.Name)
	}
	return nil
}

// Dial connects to the chain RPC and returns a read client.
func (c *ChainConfig) Dial(ctx context.Context) (*Client, error) {
	rpcClient, err := ethclient.DialContext(ctx, c.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC at %s: %w", c.Name, c.RPC, err)
	}
	return NewClient(rpcClient, common.HexToAddress(c.USDC), common.HexToAddress(c.MessageTransmitter)), nil
}

// Signer builds the signing capability selected by SignerMode.
func (c *ChainConfig) Signer(ctx context.Context, client *Client, sequenceMap *types.SequenceMap, logger log.Logger) (Signer, error) {
	receiptTimeout := time.Duration(c.ReceiptTimeout) * time.Second

	if c.SignerMode == SignerModeRemote {
		signerRPC, err := rpc.DialContext(ctx, c.SignerRPC)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to remote signer at %s: %w", c.SignerRPC, err)
		}
		return NewRemoteSigner(c.Name, signerRPC, client.RPC(), common.HexToAddress(c.SignerAddress), receiptTimeout, logger), nil
	}

	privateKey, _, err := GetEcdsaKeyAddress(c.PrivateKey)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(c.Name, client.RPC(), privateKey, c.ChainID, sequenceMap, receiptTimeout, logger), nil
}
