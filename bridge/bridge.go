package bridge

import (
	"context"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	DefaultBurnGasReserve         = 40000
	DefaultReverseGasReserve      = 25000
	DefaultIBCTimeout             = 10 * time.Minute
	DefaultSettlementPollInterval = 2 * time.Second
	DefaultSettlementTimeout      = 60 * time.Second
)

// CosmosSigner signs and broadcasts on a cosmos chain and waits for inclusion.
type CosmosSigner interface {
	Address() string
	SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (*types.TxResult, error)
}

// BalanceQuerier reads an authoritative balance in the denom's smallest unit.
type BalanceQuerier interface {
	Balance(ctx context.Context, address, denom string) (math.Int, error)
}

type AttestationPoller interface {
	Poll(ctx context.Context, sourceDomain types.Domain, txHash string) (*types.Attestation, error)
}

// Minter submits an attested message to the destination chain and returns the tx hash.
type Minter interface {
	ReceiveMessage(ctx context.Context, message, attestation []byte) (string, error)
}

// MintChecker is implemented by minters that can tell whether a message was already minted.
type MintChecker interface {
	MessageReceived(ctx context.Context, message []byte) (bool, error)
}

// PendingStore persists burns awaiting mint and transfer history.
type PendingStore interface {
	SavePendingBurn(burn *types.BurnMessage) error
	PendingBurn(sourceTxHash string) (*types.BurnMessage, error)
	DeletePendingBurn(sourceTxHash string) error
	PendingBurns() ([]*types.BurnMessage, error)
	SaveTransfer(t *types.BridgeTransfer) error
}

// Config holds the route parameters of the bridge.
type Config struct {
	// Source (xion) side of the IBC leg.
	SourcePrefix     string
	SourceDenom      string
	SourceChannel    string
	SourceGasReserve math.Int

	// Bridge (noble) side.
	BridgePrefix      string
	BridgeDenom       string
	ReverseChannel    string
	BurnGasReserve    math.Int
	ReverseGasReserve math.Int

	DestinationDomain types.Domain

	IBCTimeout             time.Duration
	SettlementPollInterval time.Duration
	SettlementTimeout      time.Duration
	Memo                   string
}

// withDefaults fills zero values with the reference route parameters.
func (c Config) withDefaults() Config {
	if c.SourceGasReserve.IsNil() {
		c.SourceGasReserve = math.ZeroInt()
	}
	if c.BurnGasReserve.IsNil() {
		c.BurnGasReserve = math.NewInt(DefaultBurnGasReserve)
	}
	if c.ReverseGasReserve.IsNil() {
		c.ReverseGasReserve = math.NewInt(DefaultReverseGasReserve)
	}
	if c.BridgeDenom == "" {
		c.BridgeDenom = "uusdc"
	}
	if c.IBCTimeout <= 0 {
		c.IBCTimeout = DefaultIBCTimeout
	}
	if c.SettlementPollInterval <= 0 {
		c.SettlementPollInterval = DefaultSettlementPollInterval
	}
	if c.SettlementTimeout <= 0 {
		c.SettlementTimeout = DefaultSettlementTimeout
	}
	return c
}
