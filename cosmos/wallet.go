package cosmos

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"cosmossdk.io/log"
	clientTx "github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	xauthsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	"github.com/shopspring/decimal"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	codeSequenceMismatch = 32

	defaultConfirmTimeout  = 60 * time.Second
	defaultConfirmInterval = time.Second
)

var (
	regexAccountSequenceMismatchErr = regexp.MustCompile(`expected (\d+), got (\d+)`)
)

// Wallet signs and broadcasts transactions for one key on one cosmos chain.
// Calls are serialized so that at most one transaction per wallet is in flight.
type Wallet struct {
	cc      *CosmosProvider
	name    string
	chainID string

	privateKey    *secp256k1.PrivKey
	address       string
	accountNumber uint64
	sequenceMap   *types.SequenceMap
	initialized   bool

	gasLimit uint64
	fees     sdk.Coins

	maxRetries      int
	retryInterval   time.Duration
	confirmTimeout  time.Duration
	confirmInterval time.Duration

	logger log.Logger

	mu sync.Mutex
}

func NewWallet(cc *CosmosProvider, cfg *ChainConfig, sequenceMap *types.SequenceMap, logger log.Logger) (*Wallet, error) {
	keyBz, err := hex.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s private key: %w", cfg.Name, err)
	}
	privKey := secp256k1.PrivKey{Key: keyBz}

	address, err := bech32.ConvertAndEncode(cfg.Bech32Prefix, privKey.PubKey().Address())
	if err != nil {
		return nil, fmt.Errorf("unable to derive %s address: %w", cfg.Name, err)
	}

	gasPrice, err := decimal.NewFromString(cfg.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid gas price %q for %s: %w", cfg.GasPrice, cfg.Name, err)
	}

	maxRetries := cfg.BroadcastRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	confirmTimeout := time.Duration(cfg.ConfirmTimeout) * time.Second
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}

	return &Wallet{
		cc:              cc,
		name:            cfg.Name,
		chainID:         cfg.ChainID,
		privateKey:      &privKey,
		address:         address,
		sequenceMap:     sequenceMap,
		gasLimit:        cfg.GasLimit,
		fees:            ComputeFee(cfg.GasLimit, gasPrice, cfg.FeeDenom),
		maxRetries:      maxRetries,
		retryInterval:   time.Duration(cfg.BroadcastRetryInterval) * time.Second,
		confirmTimeout:  confirmTimeout,
		confirmInterval: defaultConfirmInterval,
		logger:          logger.With("chain", cfg.Name),
	}, nil
}

// ComputeFee returns gasLimit * gasPrice in denom, rounded up. A zero price yields no fee.
func ComputeFee(gasLimit uint64, gasPrice decimal.Decimal, denom string) sdk.Coins {
	amount := gasPrice.Mul(decimal.NewFromInt(int64(gasLimit))).Ceil()
	if !amount.IsPositive() {
		return sdk.NewCoins()
	}
	return sdk.NewCoins(sdk.NewCoin(denom, sdk.NewIntFromBigInt(amount.BigInt())))
}

func (w *Wallet) Address() string {
	return w.address
}

func (w *Wallet) Name() string {
	return w.name
}

func (w *Wallet) Provider() *CosmosProvider {
	return w.cc
}

// SignAndBroadcast signs msgs, broadcasts them and waits for the transaction to be included.
// A transaction rejected by the chain or failing in execution is returned as *types.BroadcastError.
func (w *Wallet) SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (*types.TxResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		accountNumber, accountSequence, err := w.cc.AccountInfo(ctx, w.address)
		if err != nil {
			return nil, fmt.Errorf("unable to get account info for %s: %w", w.name, err)
		}
		w.accountNumber = accountNumber
		w.sequenceMap.Put(w.chainID, accountSequence)
		w.initialized = true
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		txHash, err := w.attemptBroadcast(ctx, msgs, memo)
		if err == nil {
			w.logger.Info(fmt.Sprintf("Successfully broadcast tx to %s. Tx hash: %s", w.name, txHash))
			return w.waitForTx(ctx, txHash)
		}
		lastErr = err

		var broadcastErr *types.BroadcastError
		if errors.As(err, &broadcastErr) && broadcastErr.Code != codeSequenceMismatch {
			return nil, err
		}

		if attempt == w.maxRetries {
			break
		}

		w.logger.Error(fmt.Sprintf("Broadcasting to %s failed. Attempt %d/%d Retrying...", w.name, attempt, w.maxRetries), "error", err, "interval_seconds", w.retryInterval.Seconds())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.retryInterval):
		}
	}

	return nil, fmt.Errorf("reached max number of broadcast attempts to %s: %w", w.name, lastErr)
}

func (w *Wallet) attemptBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (string, error) {
	txConfig := w.cc.Cdc.TxConfig
	txBuilder := txConfig.NewTxBuilder()

	if err := txBuilder.SetMsgs(msgs...); err != nil {
		return "", fmt.Errorf("failed to set messages on tx: %w", err)
	}

	txBuilder.SetGasLimit(w.gasLimit)
	txBuilder.SetFeeAmount(w.fees)
	txBuilder.SetMemo(memo)

	accountSequence := w.sequenceMap.Next(w.chainID)

	sigV2 := signing.SignatureV2{
		PubKey: w.privateKey.PubKey(),
		Data: &signing.SingleSignatureData{
			SignMode:  txConfig.SignModeHandler().DefaultMode(),
			Signature: nil,
		},
		Sequence: accountSequence,
	}

	signerData := xauthsigning.SignerData{
		ChainID:       w.chainID,
		AccountNumber: w.accountNumber,
		Sequence:      accountSequence,
	}

	if err := txBuilder.SetSignatures(sigV2); err != nil {
		return "", fmt.Errorf("failed to set signatures: %w", err)
	}

	sigV2, err := clientTx.SignWithPrivKey(
		txConfig.SignModeHandler().DefaultMode(),
		signerData,
		txBuilder,
		w.privateKey,
		txConfig,
		accountSequence,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign tx: %w", err)
	}

	if err := txBuilder.SetSignatures(sigV2); err != nil {
		return "", fmt.Errorf("failed to set signatures: %w", err)
	}

	// Generated Protobuf-encoded bytes.
	txBytes, err := txConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return "", fmt.Errorf("failed to proto encode tx: %w", err)
	}

	rpcResponse, err := w.cc.RPCClient.BroadcastTxSync(ctx, txBytes)
	if err != nil {
		return "", err
	}

	if rpcResponse.Code == codeSequenceMismatch {
		newAccountSequence := w.extractAccountSequence(ctx, rpcResponse.Log)
		w.logger.Debug(fmt.Sprintf("retrying with new account sequence: %d", newAccountSequence))
		w.sequenceMap.Put(w.chainID, newAccountSequence)
	}

	if rpcResponse.Code != 0 {
		return "", &types.BroadcastError{
			Chain:     w.name,
			Code:      rpcResponse.Code,
			Codespace: rpcResponse.Codespace,
			RawLog:    rpcResponse.Log,
			TxHash:    rpcResponse.Hash.String(),
		}
	}

	return rpcResponse.Hash.String(), nil
}

// waitForTx polls until the transaction is included in a block or the confirm timeout elapses.
func (w *Wallet) waitForTx(ctx context.Context, txHash string) (*types.TxResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(w.confirmInterval)
	defer ticker.Stop()

	for {
		res, err := w.cc.Tx(ctx, txHash)
		if err == nil {
			if res.Code != 0 {
				return res, &types.BroadcastError{
					Chain:     w.name,
					Code:      res.Code,
					Codespace: res.Codespace,
					RawLog:    res.RawLog,
					TxHash:    txHash,
				}
			}
			return res, nil
		}
		w.logger.Debug(fmt.Sprintf("Waiting for tx %s to be included", txHash), "err", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tx %s on %s not confirmed: %w", txHash, w.name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// extractAccountSequence attempts to extract the account sequence number from the RPC response logs when
// account sequence mismatch errors are encountered. If the account sequence number cannot be extracted from the logs,
// it is retrieved by making a request to the API endpoint.
func (w *Wallet) extractAccountSequence(ctx context.Context, rpcResponseLog string) uint64 {
	if seq, ok := ParseExpectedSequence(rpcResponseLog); ok {
		return seq
	}

	// Otherwise, just request the account sequence
	_, newAccountSequence, err := w.cc.AccountInfo(ctx, w.address)
	if err != nil {
		w.logger.Error("unable to retrieve account sequence")
	}

	return newAccountSequence
}

// ParseExpectedSequence reads the expected sequence from an account sequence mismatch log.
func ParseExpectedSequence(rawLog string) (uint64, bool) {
	match := regexAccountSequenceMismatchErr.FindStringSubmatch(rawLog)
	if len(match) != 3 {
		return 0, false
	}
	seq, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
