package offramp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/strangelove-ventures/xion-cctp-bridge/amount"
	"github.com/strangelove-ventures/xion-cctp-bridge/ethereum"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const DefaultToken = "USDC"

// OffRamp is the subset of the off-ramp API a withdrawal needs.
type OffRamp interface {
	Quote(ctx context.Context, sessionKey string, req QuoteRequest) (*types.WithdrawalQuote, error)
	TransactionDetails(ctx context.Context, sessionKey string, req WithdrawalRequest) (*TransactionDetails, error)
	SubmitTransactionHash(ctx context.Context, sessionKey, withdrawalID, txHash, wallet string) error
	PermitMessage(ctx context.Context, sessionKey string, req WithdrawalRequest) (*PermitMessage, error)
	SubmitGasless(ctx context.Context, sessionKey string, permit *PermitMessage, signature, wallet string) (*GaslessResult, error)
}

// WithdrawRequest moves Amount (human units) to the bank account behind BankAccountToken.
type WithdrawRequest struct {
	Amount           string
	BankAccountToken string
	Speed            string
	Mode             types.WithdrawalMode
}

// WithdrawalResult identifies a submitted withdrawal. TxHash is set in gas mode, and in
// gasless mode when the off-ramp reports one.
type WithdrawalResult struct {
	Mode         types.WithdrawalMode `json:"mode"`
	WithdrawalID string               `json:"withdrawal_id"`
	TxHash       string               `json:"tx_hash,omitempty"`
	Signature    string               `json:"signature,omitempty"`
}

// PartialWithdrawalError is returned when funds moved, or a permit was signed, but the
// off-ramp was not told. It carries what is needed to finish the withdrawal by hand.
type PartialWithdrawalError struct {
	Mode         types.WithdrawalMode
	WithdrawalID string
	// TxHash of the on-chain transfer (gas mode).
	TxHash string
	// Signature and Permit of a signed but unsubmitted permit (gasless mode).
	Signature string
	Permit    *apitypes.TypedData
	Err       error
}

func (e *PartialWithdrawalError) Error() string {
	if e.Mode == types.ModeGasless {
		return fmt.Sprintf("gasless withdrawal %s signed but not submitted (signature %s): %v", e.WithdrawalID, e.Signature, e.Err)
	}
	return fmt.Sprintf("withdrawal %s transferred in tx %s but not confirmed with the off-ramp: %v", e.WithdrawalID, e.TxHash, e.Err)
}

func (e *PartialWithdrawalError) Unwrap() error {
	return e.Err
}

// Withdrawer runs quotes and withdrawals for the wallet behind signer.
type Withdrawer struct {
	offRamp  OffRamp
	sessions *SessionKeyStore
	signer   ethereum.Signer
	token    common.Address
	symbol   string
	logger   log.Logger
	now      func() time.Time

	mu         sync.Mutex
	generation uint64
	quote      *types.WithdrawalQuote
	quoteErr   error
}

// NewWithdrawer builds a Withdrawer. token is the ERC20 sent in gas mode; symbol is the
// off-ramp's name for it.
func NewWithdrawer(offRamp OffRamp, sessions *SessionKeyStore, signer ethereum.Signer, token common.Address, symbol string, logger log.Logger) *Withdrawer {
	if symbol == "" {
		symbol = DefaultToken
	}
	return &Withdrawer{
		offRamp:  offRamp,
		sessions: sessions,
		signer:   signer,
		token:    token,
		symbol:   symbol,
		logger:   logger.With("component", "withdraw"),
		now:      time.Now,
	}
}

// Wallet is the address withdrawals are made from.
func (w *Withdrawer) Wallet() string {
	return w.signer.Address().Hex()
}

// GetQuote fetches a quote for humanAmount and makes it the current quote. Requests are
// last-wins: a result that arrives after a newer request started returns
// types.ErrQuoteSuperseded and is discarded. A failed fetch leaves the quote unavailable.
func (w *Withdrawer) GetQuote(ctx context.Context, humanAmount string) (*types.WithdrawalQuote, error) {
	if _, err := amount.ParseUnits(humanAmount, amount.USDCExponent); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.generation++
	generation := w.generation
	w.quote, w.quoteErr = nil, nil
	w.mu.Unlock()

	wallet := w.Wallet()
	quote, err := w.fetchQuote(ctx, wallet, humanAmount)

	w.mu.Lock()
	defer w.mu.Unlock()

	if generation != w.generation {
		w.logger.Debug("Discarding superseded quote", "amount", humanAmount)
		return nil, types.ErrQuoteSuperseded
	}
	if err != nil {
		w.quoteErr = err
		w.logger.Error("Quote unavailable", "amount", humanAmount, "err", err)
		return nil, err
	}
	quote.FetchedAt = w.now().UTC()
	w.quote = quote
	c := *quote
	return &c, nil
}

func (w *Withdrawer) fetchQuote(ctx context.Context, wallet, humanAmount string) (*types.WithdrawalQuote, error) {
	key, err := w.sessions.GetOrCreate(ctx, wallet)
	if err != nil {
		return nil, err
	}
	quote, err := w.offRamp.Quote(ctx, key, QuoteRequest{Amount: humanAmount, Token: w.symbol, WalletAddress: wallet})
	if err != nil {
		w.checkAuth(wallet, err)
		return nil, err
	}
	return quote, nil
}

// CurrentQuote returns the latest quote, or the reason it is unavailable.
func (w *Withdrawer) CurrentQuote() (*types.WithdrawalQuote, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.quote == nil {
		if w.quoteErr != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrServiceUnavailable, w.quoteErr)
		}
		return nil, fmt.Errorf("%w: no quote requested", types.ErrServiceUnavailable)
	}
	c := *w.quote
	return &c, nil
}

// Withdraw runs one withdrawal attempt. Every step's failure ends the attempt; once funds
// moved or a permit was signed, failures are reported as *PartialWithdrawalError.
func (w *Withdrawer) Withdraw(ctx context.Context, req WithdrawRequest) (*WithdrawalResult, error) {
	if err := w.validate(req); err != nil {
		return nil, err
	}

	wallet := w.Wallet()
	key, err := w.sessions.GetOrCreate(ctx, wallet)
	if err != nil {
		return nil, err
	}

	offRampReq := WithdrawalRequest{
		Amount:           req.Amount,
		Token:            w.symbol,
		BankAccountToken: req.BankAccountToken,
		Speed:            req.Speed,
		WalletAddress:    wallet,
	}

	var res *WithdrawalResult
	switch req.Mode {
	case types.ModeGasless:
		res, err = w.withdrawGasless(ctx, key, offRampReq)
	default:
		res, err = w.withdrawWithGas(ctx, key, offRampReq)
	}
	if err != nil {
		w.checkAuth(wallet, err)
		return nil, err
	}
	return res, nil
}

func (w *Withdrawer) validate(req WithdrawRequest) error {
	if _, err := amount.ParseUnits(req.Amount, amount.USDCExponent); err != nil {
		return err
	}
	if strings.TrimSpace(req.BankAccountToken) == "" {
		return types.Validationf("bank account token is required")
	}
	switch req.Speed {
	case types.SpeedStandard, types.SpeedInstant:
	default:
		return types.Validationf("unknown speed %q", req.Speed)
	}
	switch req.Mode {
	case types.ModeGas, types.ModeGasless:
	default:
		return types.Validationf("unknown withdrawal mode %q", req.Mode)
	}
	return nil
}

func (w *Withdrawer) withdrawWithGas(ctx context.Context, key string, req WithdrawalRequest) (*WithdrawalResult, error) {
	details, err := w.offRamp.TransactionDetails(ctx, key, req)
	if err != nil {
		return nil, fmt.Errorf("unable to get transaction details: %w", err)
	}
	if !common.IsHexAddress(details.DestinationAddress) {
		return nil, fmt.Errorf("off-ramp returned invalid destination address %q", details.DestinationAddress)
	}
	sendAmount, err := amount.ParseSmallest(details.Amount)
	if err != nil {
		return nil, fmt.Errorf("off-ramp returned invalid amount: %w", err)
	}
	requested, err := amount.ParseUnits(req.Amount, amount.USDCExponent)
	if err != nil {
		return nil, err
	}
	if !sendAmount.Equal(requested) {
		return nil, fmt.Errorf("off-ramp asked for %s but the withdrawal is for %s, nothing was sent", sendAmount, requested)
	}

	calldata, err := ethereum.TransferCalldata(common.HexToAddress(details.DestinationAddress), sendAmount.BigInt())
	if err != nil {
		return nil, err
	}

	w.logger.Info(fmt.Sprintf("Sending %s to off-ramp address %s", sendAmount, details.DestinationAddress), "withdrawal", details.WithdrawalID)
	hash, err := w.signer.SubmitContractCall(ctx, w.token, calldata)
	if err != nil {
		// a reverted transfer moved nothing; any other failure after a hash exists may have
		if hash != (common.Hash{}) && !errors.Is(err, types.ErrBroadcastFailure) {
			return nil, &PartialWithdrawalError{Mode: types.ModeGas, WithdrawalID: details.WithdrawalID, TxHash: hash.Hex(), Err: err}
		}
		return nil, fmt.Errorf("token transfer failed: %w", err)
	}
	txHash := hash.Hex()

	if err := w.offRamp.SubmitTransactionHash(ctx, key, details.WithdrawalID, txHash, req.WalletAddress); err != nil {
		return nil, &PartialWithdrawalError{Mode: types.ModeGas, WithdrawalID: details.WithdrawalID, TxHash: txHash, Err: err}
	}

	w.logger.Info("Withdrawal submitted", "withdrawal", details.WithdrawalID, "tx", txHash)
	return &WithdrawalResult{Mode: types.ModeGas, WithdrawalID: details.WithdrawalID, TxHash: txHash}, nil
}

func (w *Withdrawer) withdrawGasless(ctx context.Context, key string, req WithdrawalRequest) (*WithdrawalResult, error) {
	permit, err := w.offRamp.PermitMessage(ctx, key, req)
	if err != nil {
		return nil, fmt.Errorf("unable to get permit message: %w", err)
	}

	sig, err := w.signer.SignTypedData(ctx, permit.TypedData)
	if err != nil {
		return nil, fmt.Errorf("unable to sign permit: %w", err)
	}
	signature := hexutil.Encode(sig)

	res, err := w.offRamp.SubmitGasless(ctx, key, permit, signature, req.WalletAddress)
	if err != nil {
		typedData := permit.TypedData
		return nil, &PartialWithdrawalError{
			Mode:         types.ModeGasless,
			WithdrawalID: permit.WithdrawalID,
			Signature:    signature,
			Permit:       &typedData,
			Err:          err,
		}
	}

	withdrawalID := res.WithdrawalID
	if withdrawalID == "" {
		withdrawalID = permit.WithdrawalID
	}
	w.logger.Info("Gasless withdrawal submitted", "withdrawal", withdrawalID, "status", res.Status)
	return &WithdrawalResult{Mode: types.ModeGasless, WithdrawalID: withdrawalID, TxHash: res.TxHash, Signature: signature}, nil
}

// checkAuth drops the session key when the off-ramp rejected it.
func (w *Withdrawer) checkAuth(wallet string, err error) {
	if !IsUnauthorized(err) {
		return
	}
	w.logger.Info("Session key rejected, invalidating", "wallet", wallet)
	if err := w.sessions.Invalidate(wallet); err != nil {
		w.logger.Error("Unable to invalidate session key", "wallet", wallet, "err", err)
	}
}
