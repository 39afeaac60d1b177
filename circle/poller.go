package circle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/xion-cctp-bridge/relayer"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	DefaultFetchRetries       = 240
	DefaultFetchRetryInterval = 5 * time.Second
)

// MessageFetcher fetches the attestation state of a burn.
type MessageFetcher interface {
	Message(ctx context.Context, sourceDomain types.Domain, txHash string) (*types.Attestation, error)
}

// Poller waits for the attestation of a burn with a bounded number of attempts.
type Poller struct {
	fetcher     MessageFetcher
	maxAttempts int
	interval    time.Duration
	logger      log.Logger
	metrics     *relayer.PromMetrics
}

func NewPoller(fetcher MessageFetcher, maxAttempts int, interval time.Duration, logger log.Logger, m *relayer.PromMetrics) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultFetchRetries
	}
	if interval < 0 {
		interval = DefaultFetchRetryInterval
	}
	return &Poller{
		fetcher:     fetcher,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
		metrics:     m,
	}
}

// Poll queries the attestation service until the burn is attested.
//
// Not found and pending responses are retried. Any other error is retried too,
// unless it happens on the final attempt where it is returned as is.
// Running out of attempts returns types.ErrAttestationTimeout.
func (p *Poller) Poll(ctx context.Context, sourceDomain types.Domain, txHash string) (*types.Attestation, error) {
	logger := p.logger.With("source_domain", sourceDomain, "src-tx", txHash)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if p.metrics != nil {
			p.metrics.IncAttestationAttempts()
		}

		att, err := p.fetcher.Message(ctx, sourceDomain, txHash)
		switch {
		case err == nil && att.Status == types.AttestationComplete && len(att.Signature) > 0:
			logger.Info(fmt.Sprintf("Attestation found after %d attempt(s)", attempt))
			return att, nil
		case err == nil:
			logger.Debug(fmt.Sprintf("Attestation %s. Attempt %d/%d", att.Status, attempt, p.maxAttempts))
		case errors.Is(err, types.ErrAttestationNotFound):
			logger.Debug(fmt.Sprintf("Attestation not found yet. Attempt %d/%d", attempt, p.maxAttempts))
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case attempt == p.maxAttempts:
			return nil, fmt.Errorf("attestation request failed on final attempt: %w", err)
		default:
			logger.Debug(fmt.Sprintf("Attestation request failed. Attempt %d/%d", attempt, p.maxAttempts), "err", err)
		}

		if attempt == p.maxAttempts {
			break
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: no attestation for %s after %d attempts", types.ErrAttestationTimeout, txHash, p.maxAttempts)
}
