package relayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PromMetrics struct {
	registry *prometheus.Registry

	WalletBalance       *prometheus.GaugeVec
	StepTransitions     *prometheus.CounterVec
	StageFailures       *prometheus.CounterVec
	AttestationAttempts prometheus.Counter
	TransferDuration    prometheus.Histogram
}

// NewPromMetrics creates and registers the bridge metrics without serving them.
func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()

	// labels
	var (
		walletLabels = []string{"chain", "address", "denom"}
		stepLabels   = []string{"step"}
		stageLabels  = []string{"stage"}
	)

	m := &PromMetrics{
		registry: reg,
		WalletBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cctp_bridge_wallet_balance",
			Help: "The current balance for a wallet",
		}, walletLabels),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctp_bridge_step_transitions_total",
			Help: "Number of times a transfer entered a step",
		}, stepLabels),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctp_bridge_stage_failures_total",
			Help: "Number of failed bridge stages",
		}, stageLabels),
		AttestationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cctp_bridge_attestation_attempts_total",
			Help: "Number of attestation requests made while polling",
		}),
		TransferDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cctp_bridge_transfer_duration_seconds",
			Help:    "Time from transfer start to completion",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
	}

	reg.MustRegister(m.WalletBalance, m.StepTransitions, m.StageFailures, m.AttestationAttempts, m.TransferDuration)

	return m
}

// Handler serves the registered metrics.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on port until ctx is done or the server fails.
func (m *PromMetrics) Serve(ctx context.Context, port int16) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *PromMetrics) SetWalletBalance(chain, address, denom string, balance float64) {
	m.WalletBalance.WithLabelValues(chain, address, denom).Set(balance)
}

func (m *PromMetrics) IncStepTransition(step string) {
	m.StepTransitions.WithLabelValues(step).Inc()
}

func (m *PromMetrics) IncStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

func (m *PromMetrics) IncAttestationAttempts() {
	m.AttestationAttempts.Inc()
}

func (m *PromMetrics) ObserveTransferDuration(d time.Duration) {
	m.TransferDuration.Observe(d.Seconds())
}
