package offramp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sony/gobreaker"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	DefaultBlockchain     = "base"
	defaultRequestTimeout = 30 * time.Second
	serviceName           = "offramp"

	headerWalletAddress = "X-Wallet-Address"
	headerBlockchain    = "X-Blockchain"
	headerSessionKey    = "X-Session-Key"
)

type sessionKeyResponse struct {
	SessionKey string `json:"sessionKey"`
}

// QuoteRequest asks for fees on a withdrawal of Amount (human units) of Token.
type QuoteRequest struct {
	Amount        string `json:"amount"`
	Token         string `json:"token"`
	WalletAddress string `json:"walletAddress"`
}

type quoteTier struct {
	Fee           string `json:"fee"`
	NetSettlement string `json:"netSettlement"`
}

type quoteResponse struct {
	Tiers  map[string]quoteTier `json:"tiers"`
	GasFee string               `json:"gasFee"`
}

// WithdrawalRequest is shared by the transaction-details and permit-message endpoints.
type WithdrawalRequest struct {
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	BankAccountToken string `json:"bankAccountToken"`
	Speed            string `json:"speed"`
	WalletAddress    string `json:"walletAddress"`
}

// TransactionDetails is where the user must send funds for a gas mode withdrawal.
type TransactionDetails struct {
	WithdrawalID       string `json:"withdrawalId"`
	DestinationAddress string `json:"destinationAddress"`
	// Amount in the token's smallest unit.
	Amount string `json:"amount"`
}

type transactionHashRequest struct {
	WithdrawalID  string `json:"withdrawalId"`
	TxHash        string `json:"txHash"`
	WalletAddress string `json:"walletAddress"`
}

// PermitMessage is the typed data a gasless withdrawal must be signed over.
type PermitMessage struct {
	WithdrawalID string             `json:"withdrawalId"`
	TypedData    apitypes.TypedData `json:"typedData"`
}

type gaslessRequest struct {
	WithdrawalID  string             `json:"withdrawalId"`
	Signature     string             `json:"signature"`
	TypedData     apitypes.TypedData `json:"typedData"`
	WalletAddress string             `json:"walletAddress"`
}

// GaslessResult is the off-ramp's acknowledgement of a gasless submission.
type GaslessResult struct {
	WithdrawalID string `json:"withdrawalId"`
	TxHash       string `json:"txHash"`
	Status       string `json:"status"`
}

// Client talks to the fiat off-ramp HTTP API. All calls go through a circuit breaker
// that only counts transport errors and 5xx responses.
type Client struct {
	baseURL    string
	blockchain string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     log.Logger
}

func NewClient(baseURL, blockchain string, timeout time.Duration, logger log.Logger) *Client {
	if blockchain == "" {
		blockchain = DefaultBlockchain
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger = logger.With("component", serviceName)

	settings := gobreaker.Settings{
		Name:        "OffRamp",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			var serviceErr *types.ServiceError
			if errors.As(err, &serviceErr) {
				return serviceErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(fmt.Sprintf("Circuit breaker %s changed from %s to %s", name, from, to))
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		blockchain: blockchain,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// SessionKey requests a new session key for wallet. An empty key is returned as is;
// callers decide whether it is usable.
func (c *Client) SessionKey(ctx context.Context, wallet string) (string, error) {
	var res sessionKeyResponse
	headers := map[string]string{headerWalletAddress: wallet}
	if err := c.do(ctx, http.MethodGet, "/auth/session-key", headers, nil, &res); err != nil {
		return "", err
	}
	return res.SessionKey, nil
}

func (c *Client) Quote(ctx context.Context, sessionKey string, req QuoteRequest) (*types.WithdrawalQuote, error) {
	var res quoteResponse
	if err := c.do(ctx, http.MethodPost, "/withdrawals/quote", c.sessionHeaders(sessionKey), req, &res); err != nil {
		return nil, err
	}

	quote := &types.WithdrawalQuote{
		Amount: req.Amount,
		Token:  req.Token,
		Wallet: req.WalletAddress,
		Tiers:  make(map[string]types.QuoteTier, len(res.Tiers)),
		GasFee: res.GasFee,
	}
	for speed, tier := range res.Tiers {
		quote.Tiers[speed] = types.QuoteTier{Fee: tier.Fee, NetSettlement: tier.NetSettlement}
	}
	return quote, nil
}

func (c *Client) TransactionDetails(ctx context.Context, sessionKey string, req WithdrawalRequest) (*TransactionDetails, error) {
	var res TransactionDetails
	if err := c.do(ctx, http.MethodPost, "/withdrawals/transaction-details", c.sessionHeaders(sessionKey), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitTransactionHash reports the on-chain transfer of a gas mode withdrawal.
func (c *Client) SubmitTransactionHash(ctx context.Context, sessionKey, withdrawalID, txHash, wallet string) error {
	req := transactionHashRequest{WithdrawalID: withdrawalID, TxHash: txHash, WalletAddress: wallet}
	return c.do(ctx, http.MethodPost, "/withdrawals/transaction-hash", c.sessionHeaders(sessionKey), req, nil)
}

func (c *Client) PermitMessage(ctx context.Context, sessionKey string, req WithdrawalRequest) (*PermitMessage, error) {
	var res PermitMessage
	if err := c.do(ctx, http.MethodPost, "/withdrawals/permit-message", c.sessionHeaders(sessionKey), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitGasless hands the signed permit to the off-ramp, which executes the transfer.
func (c *Client) SubmitGasless(ctx context.Context, sessionKey string, permit *PermitMessage, signature, wallet string) (*GaslessResult, error) {
	req := gaslessRequest{
		WithdrawalID:  permit.WithdrawalID,
		Signature:     signature,
		TypedData:     permit.TypedData,
		WalletAddress: wallet,
	}
	var res GaslessResult
	if err := c.do(ctx, http.MethodPost, "/withdrawals/gasless", c.sessionHeaders(sessionKey), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) sessionHeaders(sessionKey string) map[string]string {
	return map[string]string{headerSessionKey: sessionKey}
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, response any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, method, path, headers, body, response)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", types.ErrServiceUnavailable, serviceName, err)
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, headers map[string]string, body, response any) error {
	var reader io.Reader
	if body != nil {
		bz, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("unable to encode request: %w", err)
		}
		reader = bytes.NewReader(bz)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerBlockchain, c.blockchain)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug(fmt.Sprintf("%s %s", method, path))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read %s response: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &types.ServiceError{Service: serviceName, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("unable to decode %s response: %w", path, err)
		}
	}
	return nil
}

// IsUnauthorized reports whether err is an off-ramp 401, meaning the session key was rejected.
func IsUnauthorized(err error) bool {
	var serviceErr *types.ServiceError
	return errors.As(err, &serviceErr) && serviceErr.StatusCode == http.StatusUnauthorized
}
