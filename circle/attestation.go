package circle

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/log"
	"golang.org/x/time/rate"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	IrisMainnetURL = "https://iris-api.circle.com"
	IrisSandboxURL = "https://iris-api-sandbox.circle.com"

	defaultRequestTimeout    = 10 * time.Second
	defaultRequestsPerSecond = 10
	pendingAttestation       = "PENDING"
)

// messagesResponse is the response received from Circle's iris api
// Example: https://iris-api-sandbox.circle.com/v1/messages/4/0x5002a249b1353fa59c1660ebae5fa7fc652ac1e77f69cef3a4533b0df2864012
type messagesResponse struct {
	Messages []messageEntry `json:"messages"`

	// flat shape returned by some deployments
	Status      string `json:"status"`
	Attestation string `json:"attestation"`
	Message     string `json:"message"`
}

type messageEntry struct {
	Attestation string `json:"attestation"`
	Message     string `json:"message"`
	EventNonce  string `json:"eventNonce"`
	Status      string `json:"status"`
}

// Client queries the attestation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

func NewClient(baseURL string, requestsPerSecond int, logger log.Logger) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:     logger,
	}
}

// Message fetches the attestation state of the burn in txHash on sourceDomain.
// A 404 is reported as types.ErrAttestationNotFound.
func (c *Client) Message(ctx context.Context, sourceDomain types.Domain, txHash string) (*types.Attestation, error) {
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}
	url := fmt.Sprintf("%s/v1/messages/%d/%s", c.baseURL, sourceDomain, txHash)
	c.logger.Debug(fmt.Sprintf("Checking attestation for %s", url))

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build attestation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	rawResponse, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error during attestation request: %w", err)
	}
	defer rawResponse.Body.Close()

	body, err := io.ReadAll(rawResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read attestation response: %w", err)
	}

	switch {
	case rawResponse.StatusCode == http.StatusNotFound:
		return nil, types.ErrAttestationNotFound
	case rawResponse.StatusCode != http.StatusOK:
		return nil, &types.ServiceError{Service: "attestation", StatusCode: rawResponse.StatusCode, Body: string(body)}
	}

	var response messagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unable to unmarshal attestation response: %w", err)
	}

	return response.toAttestation()
}

func (r *messagesResponse) toAttestation() (*types.Attestation, error) {
	entry := messageEntry{Attestation: r.Attestation, Message: r.Message, Status: r.Status}
	if len(r.Messages) > 0 {
		entry = r.Messages[0]
	}
	if entry.Attestation == "" && entry.Status == "" {
		return nil, fmt.Errorf("attestation response has no message entry")
	}

	att := &types.Attestation{Status: types.AttestationStatus(entry.Status)}

	if entry.EventNonce != "" {
		nonce, err := strconv.ParseUint(entry.EventNonce, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed event nonce %q: %w", entry.EventNonce, err)
		}
		att.Nonce = nonce
	}

	if entry.Message != "" && entry.Message != "0x" {
		msg, err := decodeHex(entry.Message)
		if err != nil {
			return nil, fmt.Errorf("malformed message bytes: %w", err)
		}
		att.Message = msg
	}

	if entry.Attestation == "" || strings.EqualFold(entry.Attestation, pendingAttestation) {
		att.Status = types.AttestationPending
		return att, nil
	}

	if att.Status == "" {
		att.Status = types.AttestationComplete
	}
	if att.Status == types.AttestationComplete {
		sig, err := decodeHex(entry.Attestation)
		if err != nil {
			return nil, fmt.Errorf("malformed attestation signature: %w", err)
		}
		att.Signature = sig
	}
	return att, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
