package bridge

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/strangelove-ventures/xion-cctp-bridge/amount"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// Reverser moves USDC from the bridge chain back to the source chain in a single IBC transfer.
type Reverser struct {
	step       *TransferStep
	balances   BalanceQuerier
	denom      string
	gasReserve math.Int
	logger     log.Logger
}

func NewReverser(cfg Config, signer CosmosSigner, balances BalanceQuerier, logger log.Logger) *Reverser {
	cfg = cfg.withDefaults()
	return &Reverser{
		step: &TransferStep{
			signer:         signer,
			chain:          "noble",
			channel:        cfg.ReverseChannel,
			denom:          cfg.BridgeDenom,
			receiverPrefix: cfg.SourcePrefix,
			timeout:        cfg.IBCTimeout,
			memo:           cfg.Memo,
			now:            time.Now,
		},
		balances:   balances,
		denom:      cfg.BridgeDenom,
		gasReserve: cfg.ReverseGasReserve,
		logger:     logger.With("component", "reverse"),
	}
}

// Reverse sends humanAmount (or everything above the reserve when empty) to the source chain.
// It returns the confirmed tx and the amount sent in the smallest unit.
func (r *Reverser) Reverse(ctx context.Context, humanAmount string) (*types.TxResult, math.Int, error) {
	var requested *math.Int
	if humanAmount != "" {
		amt, err := amount.ParseUnits(humanAmount, amount.USDCExponent)
		if err != nil {
			return nil, math.Int{}, err
		}
		requested = &amt
	}

	receiver, err := r.step.Receiver()
	if err != nil {
		return nil, math.Int{}, err
	}

	balance, err := r.balances.Balance(ctx, r.step.signer.Address(), r.denom)
	if err != nil {
		return nil, math.Int{}, fmt.Errorf("unable to query bridge balance: %w", err)
	}
	sendable, err := amount.ComputeSendable(balance, r.gasReserve, requested)
	if err != nil {
		return nil, math.Int{}, err
	}

	r.logger.Info(fmt.Sprintf("Returning %s%s to %s", sendable, r.denom, receiver))

	res, err := r.step.Execute(ctx, sendable)
	if err != nil {
		return nil, math.Int{}, err
	}
	return res, sendable, nil
}
