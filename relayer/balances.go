package relayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

const DefaultBalanceInterval = 15 * time.Second

// BalanceQuerier is a read-only balance lookup in the denom's smallest unit.
type BalanceQuerier interface {
	Balance(ctx context.Context, address, denom string) (math.Int, error)
}

// WatchedWallet is one (chain, address, denom) triple to display.
type WatchedWallet struct {
	Chain    string
	Address  string
	Denom    string
	Exponent int32
	Querier  BalanceQuerier
}

// WalletBalance is the last observed balance of a watched wallet.
type WalletBalance struct {
	Chain   string    `json:"chain"`
	Address string    `json:"address"`
	Denom   string    `json:"denom"`
	Amount  string    `json:"amount"`
	Display string    `json:"display"`
	Updated time.Time `json:"updated"`
	Error   string    `json:"error,omitempty"`
}

// BalanceWatcher polls wallet balances for display. It only reads chain state, so it
// may run alongside an in-flight transfer.
type BalanceWatcher struct {
	wallets  []WatchedWallet
	interval time.Duration
	metrics  *PromMetrics
	logger   log.Logger

	mu       sync.RWMutex
	balances map[string]WalletBalance
}

func NewBalanceWatcher(wallets []WatchedWallet, interval time.Duration, metrics *PromMetrics, logger log.Logger) *BalanceWatcher {
	if interval <= 0 {
		interval = DefaultBalanceInterval
	}
	return &BalanceWatcher{
		wallets:  wallets,
		interval: interval,
		metrics:  metrics,
		logger:   logger.With("component", "balances"),
		balances: make(map[string]WalletBalance),
	}
}

// Start refreshes balances every interval until ctx is done.
func (w *BalanceWatcher) Start(ctx context.Context) {
	for {
		w.Refresh(ctx)

		timer := time.NewTimer(w.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Refresh queries every watched wallet once. A failed query keeps the previous amount
// and records the error.
func (w *BalanceWatcher) Refresh(ctx context.Context) {
	for _, wallet := range w.wallets {
		key := wallet.Chain + "/" + wallet.Address + "/" + wallet.Denom
		amount, err := wallet.Querier.Balance(ctx, wallet.Address, wallet.Denom)

		w.mu.Lock()
		entry := w.balances[key]
		entry.Chain, entry.Address, entry.Denom = wallet.Chain, wallet.Address, wallet.Denom
		if err != nil {
			entry.Error = err.Error()
			w.balances[key] = entry
			w.mu.Unlock()
			w.logger.Debug(fmt.Sprintf("Unable to query %s balance", wallet.Chain), "address", wallet.Address, "err", err)
			continue
		}
		display := decimal.NewFromBigInt(amount.BigInt(), -wallet.Exponent)
		entry.Amount = amount.String()
		entry.Display = display.String()
		entry.Error = ""
		entry.Updated = time.Now().UTC()
		w.balances[key] = entry
		w.mu.Unlock()

		if w.metrics != nil {
			w.metrics.SetWalletBalance(wallet.Chain, wallet.Address, wallet.Denom, display.InexactFloat64())
		}
	}
}

// Balances returns the latest snapshot in watch order.
func (w *BalanceWatcher) Balances() []WalletBalance {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]WalletBalance, 0, len(w.wallets))
	for _, wallet := range w.wallets {
		if b, ok := w.balances[wallet.Chain+"/"+wallet.Address+"/"+wallet.Denom]; ok {
			out = append(out, b)
		}
	}
	return out
}
