package cosmos

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"cosmossdk.io/math"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// Balance queries the bank balance of address in denom, in the denom's smallest unit.
func (cc *CosmosProvider) Balance(ctx context.Context, address, denom string) (math.Int, error) {
	res, err := banktypes.NewQueryClient(cc).Balance(ctx, &banktypes.QueryBalanceRequest{
		Address: address,
		Denom:   denom,
	})
	if err != nil {
		return math.Int{}, fmt.Errorf("unable to query %s balance of %s: %w", denom, address, err)
	}
	if res.Balance == nil || res.Balance.Amount.IsNil() {
		return math.ZeroInt(), nil
	}
	return math.NewIntFromBigInt(res.Balance.Amount.BigInt()), nil
}

// AccountInfo returns the account number and sequence of address.
func (cc *CosmosProvider) AccountInfo(ctx context.Context, address string) (uint64, uint64, error) {
	res, err := authtypes.NewQueryClient(cc).Account(ctx, &authtypes.QueryAccountRequest{
		Address: address,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("unable to query account %s: %w", address, err)
	}
	var acc authtypes.AccountI
	if err := cc.Cdc.InterfaceRegistry.UnpackAny(res.Account, &acc); err != nil {
		return 0, 0, fmt.Errorf("unable to unpack account %s: %w", address, err)
	}

	return acc.GetAccountNumber(), acc.GetSequence(), nil
}

// QueryLatestHeight queries the latest height from the RPC client
func (cc *CosmosProvider) QueryLatestHeight(ctx context.Context) (int64, error) {
	status, err := cc.RPCClient.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.SyncInfo.LatestBlockHeight, nil
}

// Tx looks up an included transaction by its hex hash.
func (cc *CosmosProvider) Tx(ctx context.Context, txHash string) (*types.TxResult, error) {
	hash, err := hex.DecodeString(strings.TrimPrefix(txHash, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", txHash, err)
	}
	res, err := cc.RPCClient.Tx(ctx, hash, false)
	if err != nil {
		return nil, err
	}
	return ConvertTxResult(res), nil
}

// ConvertTxResult flattens an RPC tx result into the chain-agnostic shape used by the bridge.
func ConvertTxResult(res *coretypes.ResultTx) *types.TxResult {
	out := &types.TxResult{
		Code:      res.TxResult.Code,
		Codespace: res.TxResult.Codespace,
		TxHash:    res.Hash.String(),
		RawLog:    res.TxResult.Log,
		Height:    res.Height,
	}
	for _, e := range res.TxResult.Events {
		event := types.Event{Type: e.Type}
		for _, attr := range e.Attributes {
			event.Attributes = append(event.Attributes, types.Attribute{Key: attr.Key, Value: attr.Value})
		}
		out.Events = append(out.Events, event)
	}
	return out
}
