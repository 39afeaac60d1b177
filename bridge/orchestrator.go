package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/strangelove-ventures/xion-cctp-bridge/address"
	"github.com/strangelove-ventures/xion-cctp-bridge/amount"
	"github.com/strangelove-ventures/xion-cctp-bridge/noble"
	"github.com/strangelove-ventures/xion-cctp-bridge/relayer"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const subscriberBuffer = 16

// Route selects which legs a transfer runs.
type Route int

const (
	// RouteFull moves funds source -> bridge -> destination.
	RouteFull Route = iota
	// RouteBridgeOnly burns funds already on the bridge chain.
	RouteBridgeOnly
)

func (r Route) String() string {
	if r == RouteBridgeOnly {
		return "bridge-only"
	}
	return "full"
}

// Request starts a bridge transfer.
type Request struct {
	// Amount in human units. Empty means the reconciled maximum.
	Amount string
	// Recipient is the 20 byte EVM address on the destination chain.
	Recipient string
	Route     Route
}

// Dependencies are the capabilities the orchestrator drives. Source* may be nil
// when only RouteBridgeOnly is used; Store and Metrics are optional.
type Dependencies struct {
	SourceSigner   CosmosSigner
	SourceBalances BalanceQuerier
	BridgeSigner   CosmosSigner
	BridgeBalances BalanceQuerier
	Poller         AttestationPoller
	Minter         Minter
	Store          PendingStore
	Metrics        *relayer.PromMetrics
}

// Orchestrator runs the transfer -> burn -> attest -> mint state machine for one
// BridgeTransfer at a time.
type Orchestrator struct {
	cfg  Config
	deps Dependencies

	transferStep *TransferStep
	burnStep     *BurnStep
	mintStep     *MintStep

	logger log.Logger
	now    func() time.Time

	// history holds every transfer of this process by id
	history *types.StateMap

	mu          sync.Mutex
	running     bool
	transfer    types.BridgeTransfer
	subscribers map[int]chan types.BridgeTransfer
	nextSub     int
}

func NewOrchestrator(cfg Config, deps Dependencies, logger log.Logger) (*Orchestrator, error) {
	switch {
	case deps.BridgeSigner == nil:
		return nil, errors.New("bridge signer is required")
	case deps.BridgeBalances == nil:
		return nil, errors.New("bridge balance querier is required")
	case deps.Poller == nil:
		return nil, errors.New("attestation poller is required")
	case deps.Minter == nil:
		return nil, errors.New("minter is required")
	case deps.SourceSigner != nil && deps.SourceBalances == nil:
		return nil, errors.New("source balance querier is required with a source signer")
	}

	cfg = cfg.withDefaults()
	logger = logger.With("component", "bridge")

	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		burnStep: &BurnStep{
			signer:            deps.BridgeSigner,
			balances:          deps.BridgeBalances,
			denom:             cfg.BridgeDenom,
			gasReserve:        cfg.BurnGasReserve,
			destinationDomain: cfg.DestinationDomain,
			memo:              cfg.Memo,
			logger:            logger,
		},
		mintStep:    &MintStep{minter: deps.Minter},
		logger:      logger,
		now:         time.Now,
		history:     types.NewStateMap(),
		transfer:    types.BridgeTransfer{Step: types.StepIdle},
		subscribers: make(map[int]chan types.BridgeTransfer),
	}

	if deps.SourceSigner != nil {
		o.transferStep = &TransferStep{
			signer:         deps.SourceSigner,
			chain:          "xion",
			channel:        cfg.SourceChannel,
			denom:          cfg.SourceDenom,
			receiverPrefix: cfg.BridgePrefix,
			timeout:        cfg.IBCTimeout,
			memo:           cfg.Memo,
			now:            time.Now,
		}
	}

	return o, nil
}

// Status returns a snapshot of the current transfer.
func (o *Orchestrator) Status() types.BridgeTransfer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transfer.Clone()
}

// Subscribe returns a channel receiving a snapshot on every transition, starting with the
// current one. Slow readers miss intermediate snapshots but always get the latest.
// The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan types.BridgeTransfer, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan types.BridgeTransfer, subscriberBuffer)
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = ch
	ch <- o.transfer.Clone()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(c)
		}
	}
}

// Reset clears step, tx hashes and error. It only forgets local state; nothing
// already broadcast is undone.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return types.ErrTransferInProgress
	}
	o.transfer = types.BridgeTransfer{Step: types.StepIdle, Updated: o.now()}
	o.publishLocked()
	return nil
}

// History returns the transfers run by this orchestrator, oldest first.
func (o *Orchestrator) History() []types.BridgeTransfer {
	transfers := o.history.All()
	sort.Slice(transfers, func(i, j int) bool {
		return transfers[i].Created.Before(transfers[j].Created)
	})
	return transfers
}

// Transfer returns the latest snapshot of a transfer started by this process.
func (o *Orchestrator) Transfer(id string) (types.BridgeTransfer, bool) {
	return o.history.Load(id)
}

// PendingBurns lists burns that were not minted yet.
func (o *Orchestrator) PendingBurns() ([]*types.BurnMessage, error) {
	if o.deps.Store == nil {
		return nil, nil
	}
	return o.deps.Store.PendingBurns()
}

// Run executes a transfer to completion or to the first failure. Failures leave
// the transfer idle with the error recorded and are returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (types.BridgeTransfer, error) {
	if err := o.begin(req.Amount, ""); err != nil {
		return o.Status(), err
	}
	return o.run(ctx, req)
}

// Start validates and begins a transfer, then runs it in the background. Only errors
// that prevent the transfer from starting are returned; progress is observed with Status or Subscribe.
func (o *Orchestrator) Start(ctx context.Context, req Request) error {
	if _, err := o.validate(req); err != nil {
		return err
	}
	if err := o.begin(req.Amount, ""); err != nil {
		return err
	}
	go func() { _, _ = o.run(ctx, req) }()
	return nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (types.BridgeTransfer, error) {
	defer o.finish()
	start := time.Now()

	requested, err := o.validate(req)
	if err != nil {
		return o.fail(err)
	}

	var limit *math.Int
	if req.Route == RouteFull {
		moved, err := o.runSourceTransfer(ctx, requested)
		if err != nil {
			return o.fail(err)
		}
		// burn what arrived, sized from the balance, without sweeping older funds
		limit, requested = &moved, nil
	}

	o.setStep(types.StepBurning)
	burnAmount, err := o.burnStep.Size(ctx, requested, limit)
	if err != nil {
		return o.fail(err)
	}
	burn, err := o.burnStep.Execute(ctx, req.Recipient, burnAmount)
	if err != nil {
		return o.fail(err)
	}
	o.recordHash(types.StageBurn, burn.SourceTxHash)
	o.savePendingBurn(burn)

	return o.attestAndMint(ctx, burn, false, start)
}

// Resume continues a burn that was never minted, starting at the attesting step.
func (o *Orchestrator) Resume(ctx context.Context, burnTxHash string) (types.BridgeTransfer, error) {
	if burnTxHash == "" {
		return o.Status(), types.Validationf("burn tx hash is required")
	}
	if err := o.begin("", burnTxHash); err != nil {
		return o.Status(), err
	}
	return o.resume(ctx, burnTxHash)
}

// StartResume is Resume in the background, see Start.
func (o *Orchestrator) StartResume(ctx context.Context, burnTxHash string) error {
	if burnTxHash == "" {
		return types.Validationf("burn tx hash is required")
	}
	if err := o.begin("", burnTxHash); err != nil {
		return err
	}
	go func() { _, _ = o.resume(ctx, burnTxHash) }()
	return nil
}

func (o *Orchestrator) resume(ctx context.Context, burnTxHash string) (types.BridgeTransfer, error) {
	defer o.finish()
	start := time.Now()

	var burn *types.BurnMessage
	if o.deps.Store != nil {
		pending, err := o.deps.Store.PendingBurn(burnTxHash)
		if err != nil {
			return o.fail(err)
		}
		burn = pending
	}
	if burn == nil {
		o.logger.Info("No pending burn recorded, resuming from the attestation service", "src-tx", burnTxHash)
		burn = &types.BurnMessage{
			SourceTxHash:      burnTxHash,
			SourceDomain:      noble.Domain,
			DestinationDomain: o.cfg.DestinationDomain,
			Created:           o.now().UTC(),
		}
	}
	o.recordHash(types.StageBurn, burn.SourceTxHash)

	return o.attestAndMint(ctx, burn, true, start)
}

func (o *Orchestrator) validate(req Request) (*math.Int, error) {
	if _, err := address.PadEVMAddress(req.Recipient); err != nil {
		return nil, err
	}

	var requested *math.Int
	if req.Amount != "" {
		amt, err := amount.ParseUnits(req.Amount, amount.USDCExponent)
		if err != nil {
			return nil, err
		}
		requested = &amt
	}

	switch req.Route {
	case RouteBridgeOnly:
	case RouteFull:
		if o.transferStep == nil {
			return nil, types.Validationf("full route needs a source chain signer")
		}
		receiver, err := o.transferStep.Receiver()
		if err != nil {
			return nil, err
		}
		if receiver != o.deps.BridgeSigner.Address() {
			return nil, types.Validationf("source account %s maps to %s, not the bridge signer %s",
				o.deps.SourceSigner.Address(), receiver, o.deps.BridgeSigner.Address())
		}
	default:
		return nil, types.Validationf("unknown route %d", req.Route)
	}

	return requested, nil
}

// runSourceTransfer performs the IBC leg and returns the amount moved.
func (o *Orchestrator) runSourceTransfer(ctx context.Context, requested *math.Int) (math.Int, error) {
	o.setStep(types.StepTransferringSource)

	source := o.deps.SourceSigner
	balance, err := o.deps.SourceBalances.Balance(ctx, source.Address(), o.cfg.SourceDenom)
	if err != nil {
		return math.Int{}, fmt.Errorf("unable to query source balance: %w", err)
	}
	moved, err := amount.ComputeSendable(balance, o.cfg.SourceGasReserve, requested)
	if err != nil {
		return math.Int{}, err
	}

	receiver := o.deps.BridgeSigner.Address()
	before, err := o.deps.BridgeBalances.Balance(ctx, receiver, o.cfg.BridgeDenom)
	if err != nil {
		return math.Int{}, fmt.Errorf("unable to query bridge balance: %w", err)
	}

	res, err := o.transferStep.Execute(ctx, moved)
	if err != nil {
		return math.Int{}, err
	}
	o.recordHash(types.StageSourceTransfer, res.TxHash)

	if err := o.waitForSettlement(ctx, receiver, before, moved); err != nil {
		return math.Int{}, err
	}
	return moved, nil
}

// waitForSettlement polls the bridge balance until it grew by expected. On timeout it
// only warns: burn sizing re-reads the balance and fails cleanly if funds are short.
func (o *Orchestrator) waitForSettlement(ctx context.Context, addr string, before, expected math.Int) error {
	deadline := time.Now().Add(o.cfg.SettlementTimeout)

	for {
		balance, err := o.deps.BridgeBalances.Balance(ctx, addr, o.cfg.BridgeDenom)
		switch {
		case err != nil:
			o.logger.Debug("Settlement balance query failed", "err", err)
		case balance.Sub(before).GTE(expected):
			o.logger.Info(fmt.Sprintf("Transfer settled on bridge chain, balance %s%s", balance, o.cfg.BridgeDenom))
			return nil
		}

		if !time.Now().Before(deadline) {
			o.logger.Error(fmt.Sprintf("Transfer not reflected in bridge balance after %s, continuing", o.cfg.SettlementTimeout))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.SettlementPollInterval):
		}
	}
}

func (o *Orchestrator) attestAndMint(ctx context.Context, burn *types.BurnMessage, resumed bool, start time.Time) (types.BridgeTransfer, error) {
	o.setStep(types.StepAttesting)

	att, err := o.deps.Poller.Poll(ctx, noble.Domain, burn.SourceTxHash)
	if err != nil {
		return o.fail(fundsSafe(err, burn.SourceTxHash))
	}

	message := burn.MessageBytes
	if len(message) == 0 && len(att.Message) > 0 {
		message = att.Message
		burn.MessageBytes = message
		if parsed, err := new(types.Message).Parse(message); err == nil {
			burn.Nonce = parsed.Nonce
		}
		o.savePendingBurn(burn)
	}
	if len(message) == 0 {
		return o.fail(fundsSafe(types.ErrMissingBurnMessage, burn.SourceTxHash))
	}

	o.setStep(types.StepMinting)

	if resumed {
		minted, err := o.mintStep.AlreadyMinted(ctx, message)
		if err != nil {
			o.logger.Debug("Error querying whether nonce was used. Continuing...", "err", err)
		}
		if minted {
			o.logger.Info("Burn was already minted on the destination chain", "src-tx", burn.SourceTxHash)
			return o.complete(burn, start), nil
		}
	}

	mintHash, err := o.mintStep.Execute(ctx, message, att.Signature)
	if err != nil {
		return o.fail(fundsSafe(err, burn.SourceTxHash))
	}
	o.recordHash(types.StageMint, mintHash)

	return o.complete(burn, start), nil
}

func (o *Orchestrator) complete(burn *types.BurnMessage, start time.Time) types.BridgeTransfer {
	if o.deps.Store != nil {
		if err := o.deps.Store.DeletePendingBurn(burn.SourceTxHash); err != nil {
			o.logger.Error("Unable to delete pending burn", "src-tx", burn.SourceTxHash, "err", err)
		}
	}
	o.setStep(types.StepComplete)
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveTransferDuration(time.Since(start))
	}
	return o.Status()
}

// fundsSafe annotates failures that happen after a successful burn.
func fundsSafe(err error, burnTxHash string) error {
	return fmt.Errorf("%w (burn %s succeeded, funds are safe and minting can be resumed for this burn)", err, burnTxHash)
}

func (o *Orchestrator) begin(requestedAmount, resumeBurn string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return types.ErrTransferInProgress
	}
	if o.transfer.Step == types.StepComplete {
		return types.ErrResetRequired
	}
	o.running = true

	now := o.now()
	switch {
	case o.transfer.ID == "", resumeBurn != "" && o.transfer.Hash(types.StageBurn) != resumeBurn:
		o.transfer = types.BridgeTransfer{ID: uuid.NewString(), Created: now}
	case resumeBurn == "" && o.transfer.Error != "":
		// the failed attempt keeps its own history record; hashes carry over until reset
		o.transfer.ID = uuid.NewString()
		o.transfer.Created = now
	}
	o.transfer.Step = types.StepIdle
	o.transfer.Error = ""
	if resumeBurn == "" {
		o.transfer.RequestedAmount = requestedAmount
	}
	o.transfer.Updated = now
	o.publishLocked()
	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
}

func (o *Orchestrator) setStep(step types.Step) {
	o.mu.Lock()
	o.transfer.Step = step
	o.transfer.Updated = o.now()
	id := o.transfer.ID
	o.publishLocked()
	o.mu.Unlock()

	o.logger.Info(fmt.Sprintf("Bridge transfer entered %s", step), "transfer", id)
	if o.deps.Metrics != nil {
		o.deps.Metrics.IncStepTransition(string(step))
	}
}

func (o *Orchestrator) recordHash(stage, hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.transfer.Hash(stage) == hash {
		return
	}
	o.transfer.TxHashes = append(o.transfer.TxHashes, types.StageTx{Stage: stage, TxHash: hash})
	o.transfer.Updated = o.now()
	o.publishLocked()
}

func (o *Orchestrator) fail(err error) (types.BridgeTransfer, error) {
	o.mu.Lock()
	step := o.transfer.Step
	o.transfer.Step = types.StepIdle
	o.transfer.Error = err.Error()
	o.transfer.Updated = o.now()
	id := o.transfer.ID
	o.publishLocked()
	snapshot := o.transfer.Clone()
	o.mu.Unlock()

	o.logger.Error(fmt.Sprintf("Bridge transfer failed while %s", step), "transfer", id, "err", err)
	if o.deps.Metrics != nil {
		o.deps.Metrics.IncStageFailure(string(step))
	}
	return snapshot, err
}

func (o *Orchestrator) savePendingBurn(burn *types.BurnMessage) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.SavePendingBurn(burn); err != nil {
		o.logger.Error("Unable to persist pending burn", "src-tx", burn.SourceTxHash, "err", err)
	}
}

// publishLocked fans the current snapshot out to subscribers and the store. o.mu must be held.
func (o *Orchestrator) publishLocked() {
	snapshot := o.transfer.Clone()

	for _, ch := range o.subscribers {
		select {
		case ch <- snapshot:
		default:
			// drop the oldest so the newest state is never lost
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}

	if snapshot.ID == "" {
		return
	}
	o.history.Store(snapshot)
	if o.deps.Store != nil {
		if err := o.deps.Store.SaveTransfer(&snapshot); err != nil {
			o.logger.Error("Unable to persist transfer", "transfer", snapshot.ID, "err", err)
		}
	}
}
