package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	defaultReceiptTimeout  = 3 * time.Minute
	defaultReceiptInterval = 2 * time.Second
)

var regexNonceTooLow = regexp.MustCompile(`nonce too low: next nonce (\d+), tx nonce (\d+)`)

// Signer is the destination chain signing capability.
type Signer interface {
	Address() common.Address
	// SubmitContractCall sends calldata to a contract and waits for the receipt.
	// A reverted receipt is a *types.BroadcastError.
	SubmitContractCall(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error)
	// SignTypedData returns a 65 byte EIP-712 signature with v in {27, 28}.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

var (
	_ Signer = (*KeySigner)(nil)
	_ Signer = (*RemoteSigner)(nil)
)

// KeySigner signs with a raw private key and broadcasts EIP-1559 transactions itself.
type KeySigner struct {
	name       string
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	sequenceMap    *types.SequenceMap
	receiptTimeout time.Duration
	logger         log.Logger

	mu sync.Mutex
}

func NewKeySigner(name string, client *ethclient.Client, privateKey *ecdsa.PrivateKey, chainID int64, sequenceMap *types.SequenceMap, receiptTimeout time.Duration, logger log.Logger) *KeySigner {
	if receiptTimeout <= 0 {
		receiptTimeout = defaultReceiptTimeout
	}
	return &KeySigner{
		name:           name,
		client:         client,
		privateKey:     privateKey,
		address:        crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:        big.NewInt(chainID),
		sequenceMap:    sequenceMap,
		receiptTimeout: receiptTimeout,
		logger:         logger.With("chain", name),
	}
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

func (s *KeySigner) SubmitContractCall(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Data: calldata})
	if err != nil {
		return common.Hash{}, s.wrapRPCError(err)
	}

	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to suggest gas tip: %w", err)
	}
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to fetch latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = tip
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to retrieve evm account nonce: %w", err)
	}
	// the local sequence wins when the node lags behind our own submissions
	sequenceKey := s.chainID.String()
	nonce = max(nonce, s.sequenceMap.Next(sequenceKey))
	s.sequenceMap.Put(sequenceKey, nonce+1)

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas * 6 / 5,
		To:        &to,
		Data:      calldata,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to sign tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		s.sequenceMap.Put(sequenceKey, nonce)
		s.handleNonceError(err)
		return common.Hash{}, s.wrapRPCError(err)
	}

	s.logger.Info(fmt.Sprintf("Broadcast tx %s to %s", signed.Hash().Hex(), s.name))

	return signed.Hash(), waitForReceipt(ctx, s.client, s.name, signed.Hash(), s.receiptTimeout)
}

func (s *KeySigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, types.Validationf("unable to hash typed data: %v", err)
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// handleNonceError resets the local sequence when the node reports the next nonce.
func (s *KeySigner) handleNonceError(err error) {
	match := regexNonceTooLow.FindStringSubmatch(err.Error())
	if len(match) != 3 {
		return
	}
	next, parseErr := strconv.ParseUint(match[1], 10, 64)
	if parseErr != nil {
		return
	}
	s.sequenceMap.Put(s.chainID.String(), next)
}

func (s *KeySigner) wrapRPCError(err error) error {
	var jsonErr JsonError
	if errors.As(err, &jsonErr) {
		return &types.BroadcastError{Chain: s.name, Code: uint32(jsonErr.ErrorCode()), RawLog: jsonErr.Error()}
	}
	return err
}

// RemoteSigner delegates signing to an external JSON-RPC wallet that holds the key.
type RemoteSigner struct {
	name           string
	rpc            *rpc.Client
	client         *ethclient.Client
	address        common.Address
	receiptTimeout time.Duration
	logger         log.Logger

	mu sync.Mutex
}

func NewRemoteSigner(name string, signerRPC *rpc.Client, client *ethclient.Client, address common.Address, receiptTimeout time.Duration, logger log.Logger) *RemoteSigner {
	if receiptTimeout <= 0 {
		receiptTimeout = defaultReceiptTimeout
	}
	return &RemoteSigner{
		name:           name,
		rpc:            signerRPC,
		client:         client,
		address:        address,
		receiptTimeout: receiptTimeout,
		logger:         logger.With("chain", name),
	}
}

func (s *RemoteSigner) Address() common.Address {
	return s.address
}

type sendTxArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (s *RemoteSigner) SubmitContractCall(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash common.Hash
	if err := s.rpc.CallContext(ctx, &hash, "eth_sendTransaction", sendTxArgs{From: s.address, To: to, Data: calldata}); err != nil {
		var jsonErr JsonError
		if errors.As(err, &jsonErr) {
			return common.Hash{}, &types.BroadcastError{Chain: s.name, Code: uint32(jsonErr.ErrorCode()), RawLog: jsonErr.Error()}
		}
		return common.Hash{}, fmt.Errorf("remote signer rejected transaction: %w", err)
	}

	s.logger.Info(fmt.Sprintf("Broadcast tx %s to %s", hash.Hex(), s.name))

	return hash, waitForReceipt(ctx, s.client, s.name, hash, s.receiptTimeout)
}

func (s *RemoteSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	var sig hexutil.Bytes
	if err := s.rpc.CallContext(ctx, &sig, "eth_signTypedData_v4", s.address, data); err != nil {
		return nil, fmt.Errorf("remote signer refused typed data: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("remote signer returned %d byte signature", len(sig))
	}
	return sig, nil
}

// waitForReceipt polls for the receipt of hash until timeout. A failed receipt is a *types.BroadcastError.
func waitForReceipt(ctx context.Context, client *ethclient.Client, chain string, hash common.Hash, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(defaultReceiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return &types.BroadcastError{
					Chain:  chain,
					Code:   uint32(receipt.Status),
					RawLog: "execution reverted",
					TxHash: hash.Hex(),
				}
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("tx %s on %s not mined: %w", hash.Hex(), chain, ctx.Err())
		case <-ticker.C:
		}
	}
}
