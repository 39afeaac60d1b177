package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client reads destination chain state: token balances and consumed CCTP nonces.
type Client struct {
	rpc                *ethclient.Client
	token              common.Address
	messageTransmitter *bind.BoundContract
}

func NewClient(rpc *ethclient.Client, token, messageTransmitter common.Address) *Client {
	return &Client{
		rpc:                rpc,
		token:              token,
		messageTransmitter: bind.NewBoundContract(messageTransmitter, messageTransmitterABI, rpc, rpc, rpc),
	}
}

func (c *Client) RPC() *ethclient.Client {
	return c.rpc
}

func (c *Client) Token() common.Address {
	return c.token
}

// Balance returns the ERC20 balance of address. denom is the token contract; empty means the configured token.
func (c *Client) Balance(ctx context.Context, address, denom string) (math.Int, error) {
	if !common.IsHexAddress(address) {
		return math.Int{}, fmt.Errorf("invalid evm address %q", address)
	}
	token := c.token
	if denom != "" {
		if !common.IsHexAddress(denom) {
			return math.Int{}, fmt.Errorf("invalid token address %q", denom)
		}
		token = common.HexToAddress(denom)
	}

	erc20 := bind.NewBoundContract(token, erc20ABI, c.rpc, c.rpc, c.rpc)

	var out []interface{}
	if err := erc20.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", common.HexToAddress(address)); err != nil {
		return math.Int{}, fmt.Errorf("unable to query balance of %s: %w", address, err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return math.Int{}, fmt.Errorf("unexpected balanceOf result %T", out[0])
	}
	return math.NewIntFromBigInt(balance), nil
}

// UsedNonce reports whether the message with sourceDomain and nonce was already received.
func (c *Client) UsedNonce(ctx context.Context, sourceDomain uint32, nonce uint64) (bool, error) {
	var out []interface{}
	co := &bind.CallOpts{
		Pending: true,
		Context: ctx,
	}
	if err := c.messageTransmitter.Call(co, &out, "usedNonces", UsedNonceKey(sourceDomain, nonce)); err != nil {
		return false, fmt.Errorf("unable to query used nonce: %w", err)
	}
	used, ok := out[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("unexpected usedNonces result %T", out[0])
	}
	return used.Uint64() == 1, nil
}
