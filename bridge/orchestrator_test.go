package bridge_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	nobletypes "github.com/circlefin/noble-cctp/x/cctp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	ibctransfertypes "github.com/cosmos/ibc-go/v4/modules/apps/transfer/types"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/xion-cctp-bridge/address"
	"github.com/strangelove-ventures/xion-cctp-bridge/bridge"
	"github.com/strangelove-ventures/xion-cctp-bridge/store"
	testutil "github.com/strangelove-ventures/xion-cctp-bridge/test_util"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	recipient   = "0x71562b71999873DB5b286dF957af199Ec94617F7"
	sourceDenom = "ibc/USDC"
	bridgeDenom = "uusdc"
	burnTxHash  = "BURNHASH"
	mintTxHash  = "0xmint"
)

type harness struct {
	source   *testutil.CosmosSigner
	bridge   *testutil.CosmosSigner
	balances *testutil.Balances
	poller   *testutil.Poller
	minter   *testutil.Minter
	store    *store.DB
	orch     *bridge.Orchestrator
	message  []byte
}

func routeConfig() bridge.Config {
	return bridge.Config{
		SourcePrefix:           "xion",
		SourceDenom:            sourceDenom,
		SourceChannel:          "channel-3",
		BridgePrefix:           "noble",
		BridgeDenom:            bridgeDenom,
		ReverseChannel:         "channel-1",
		DestinationDomain:      types.DomainBase,
		SettlementPollInterval: time.Millisecond,
		SettlementTimeout:      50 * time.Millisecond,
	}
}

func accounts(t *testing.T) (string, string) {
	t.Helper()
	payload := []byte("bridge-test-account1")
	xion, err := bech32.ConvertAndEncode("xion", payload)
	require.NoError(t, err)
	noble, err := bech32.ConvertAndEncode("noble", payload)
	require.NoError(t, err)
	return xion, noble
}

// newHarness wires fakes that behave like the real chains: the IBC transfer credits
// the bridge account and the burn emits a MessageSent event.
func newHarness(t *testing.T) *harness {
	t.Helper()
	xionAddr, nobleAddr := accounts(t)

	db, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		balances: testutil.NewBalances(),
		store:    db,
		message:  testutil.RawMessage(types.DomainNoble, types.DomainBase, 77, paddedRecipient(t), big.NewInt(960_000)),
		minter:   &testutil.Minter{Hash: mintTxHash},
	}
	h.poller = &testutil.Poller{Attestation: &types.Attestation{Status: types.AttestationComplete, Signature: []byte{0xaa}}}

	h.source = &testutil.CosmosSigner{Addr: xionAddr, Handler: func(msgs []sdk.Msg) (*types.TxResult, error) {
		transfer := msgs[0].(*ibctransfertypes.MsgTransfer)
		moved := math.NewIntFromBigInt(transfer.Token.Amount.BigInt())
		h.balances.Add(xionAddr, sourceDenom, moved.Neg())
		h.balances.Add(nobleAddr, bridgeDenom, moved)
		return &types.TxResult{TxHash: "SRCHASH"}, nil
	}}
	h.bridge = &testutil.CosmosSigner{Addr: nobleAddr, Handler: func(msgs []sdk.Msg) (*types.TxResult, error) {
		h.message = testutil.BurnMessageFor(msgs[0].(*nobletypes.MsgDepositForBurn), 77)
		return &types.TxResult{TxHash: burnTxHash, Events: []types.Event{testutil.MessageSentEvent(h.message)}}, nil
	}}

	h.orch = h.newOrchestrator(t)
	return h
}

func (h *harness) newOrchestrator(t *testing.T) *bridge.Orchestrator {
	orch, err := bridge.NewOrchestrator(routeConfig(), bridge.Dependencies{
		SourceSigner:   h.source,
		SourceBalances: h.balances,
		BridgeSigner:   h.bridge,
		BridgeBalances: h.balances,
		Poller:         h.poller,
		Minter:         h.minter,
		Store:          h.store,
	}, log.NewNopLogger())
	require.NoError(t, err)
	return orch
}

func paddedRecipient(t *testing.T) []byte {
	t.Helper()
	bz, err := address.PadEVMAddress(recipient)
	require.NoError(t, err)
	return bz
}

func burnMsg(t *testing.T, signer *testutil.CosmosSigner) *nobletypes.MsgDepositForBurn {
	t.Helper()
	calls := signer.Calls()
	require.Len(t, calls, 1)
	msg, ok := calls[0][0].(*nobletypes.MsgDepositForBurn)
	require.True(t, ok)
	return msg
}

func TestFullRouteSuccess(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.source.Addr, sourceDenom, 1_000_000)

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteFull})
	require.NoError(t, err)

	require.Equal(t, types.StepComplete, transfer.Step)
	require.Empty(t, transfer.Error)
	require.Equal(t, []types.StageTx{
		{Stage: types.StageSourceTransfer, TxHash: "SRCHASH"},
		{Stage: types.StageBurn, TxHash: burnTxHash},
		{Stage: types.StageMint, TxHash: mintTxHash},
	}, transfer.TxHashes)

	burn := burnMsg(t, h.bridge)
	require.Equal(t, "960000", burn.Amount.String())
	require.Equal(t, uint32(types.DomainBase), burn.DestinationDomain)
	padded, err := address.PadEVMAddress(recipient)
	require.NoError(t, err)
	require.Equal(t, padded, burn.MintRecipient)

	require.Equal(t, []string{burnTxHash}, h.poller.Calls())
	require.Equal(t, [][]byte{h.message}, h.minter.Messages())

	pending, err := h.orch.PendingBurns()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestTransferFailureStopsBeforeBurn(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.source.Addr, sourceDenom, 1_000_000)
	h.source.Handler = func([]sdk.Msg) (*types.TxResult, error) {
		return &types.TxResult{Code: 5, RawLog: "insufficient funds: 0uusdc is smaller than 1000000uusdc", TxHash: "SRCHASH"}, nil
	}

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteFull})
	require.ErrorIs(t, err, types.ErrBroadcastFailure)

	require.Equal(t, types.StepIdle, transfer.Step)
	require.Contains(t, transfer.Error, "insufficient funds: 0uusdc is smaller than 1000000uusdc")
	require.Empty(t, transfer.TxHashes)
	require.Empty(t, h.bridge.Calls())
	require.Empty(t, h.poller.Calls())
}

func TestBridgeOnlyBurnsBalanceMinusReserve(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.NoError(t, err)
	require.Equal(t, types.StepComplete, transfer.Step)
	require.Empty(t, h.source.Calls())
	require.Equal(t, "960000", burnMsg(t, h.bridge).Amount.String())
	require.Equal(t, "", transfer.Hash(types.StageSourceTransfer))
}

func TestBridgeOnlyRequestedAmount(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)

	_, err := h.orch.Run(context.Background(), bridge.Request{Amount: "0.5", Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.NoError(t, err)
	require.Equal(t, "500000", burnMsg(t, h.bridge).Amount.String())
}

func TestBurnInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Amount: "0.97", Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	require.Equal(t, types.StepIdle, transfer.Step)
	require.NotEmpty(t, transfer.Error)
	require.Empty(t, h.bridge.Calls())
}

func TestFullRouteDoesNotSweepExistingFunds(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.source.Addr, sourceDenom, 2_000_000)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 5_000_000)

	_, err := h.orch.Run(context.Background(), bridge.Request{Amount: "1.5", Recipient: recipient, Route: bridge.RouteFull})
	require.NoError(t, err)

	transfer := h.source.Calls()[0][0].(*ibctransfertypes.MsgTransfer)
	require.Equal(t, "1500000", transfer.Token.Amount.String())
	require.Equal(t, h.bridge.Addr, transfer.Receiver)
	require.Equal(t, "1500000", burnMsg(t, h.bridge).Amount.String())
}

func TestFullRouteSettlementTimeoutStillBurnsWhatArrived(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.source.Addr, sourceDenom, 1_000_000)
	// transfer lands short of what was sent
	h.source.Handler = func(msgs []sdk.Msg) (*types.TxResult, error) {
		h.balances.Add(h.bridge.Addr, bridgeDenom, math.NewInt(700_000))
		return &types.TxResult{TxHash: "SRCHASH"}, nil
	}

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteFull})
	require.NoError(t, err)
	require.Equal(t, types.StepComplete, transfer.Step)
	require.Equal(t, "660000", burnMsg(t, h.bridge).Amount.String())
}

func TestMissingBurnMessage(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	h.bridge.Handler = func([]sdk.Msg) (*types.TxResult, error) {
		return &types.TxResult{TxHash: burnTxHash}, nil
	}

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.ErrorIs(t, err, types.ErrMissingBurnMessage)
	require.Equal(t, types.StepIdle, transfer.Step)
	require.Contains(t, transfer.Error, burnTxHash)
	require.Contains(t, transfer.Error, "funds are safe")
	require.Equal(t, burnTxHash, transfer.Hash(types.StageBurn))
	require.Empty(t, h.minter.Messages())

	pending, err := h.orch.PendingBurns()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, burnTxHash, pending[0].SourceTxHash)
}

func TestAttestationMessageFallback(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	h.bridge.Handler = func([]sdk.Msg) (*types.TxResult, error) {
		return &types.TxResult{TxHash: burnTxHash}, nil
	}
	h.poller.Attestation.Message = h.message

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.NoError(t, err)
	require.Equal(t, types.StepComplete, transfer.Step)
	require.Equal(t, [][]byte{h.message}, h.minter.Messages())
}

func TestAttestationTimeoutThenResume(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	h.poller.Err = types.ErrAttestationTimeout

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.ErrorIs(t, err, types.ErrAttestationTimeout)
	require.Equal(t, types.StepIdle, transfer.Step)
	require.Contains(t, transfer.Error, "minting can be resumed")
	require.Empty(t, h.minter.Messages())

	pending, err := h.orch.PendingBurns()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, h.message, pending[0].MessageBytes)
	require.Equal(t, uint64(77), pending[0].Nonce)

	// a fresh process picks the burn up from the store
	h.poller.Err = nil
	orch := h.newOrchestrator(t)
	resumed, err := orch.Resume(context.Background(), burnTxHash)
	require.NoError(t, err)
	require.Equal(t, types.StepComplete, resumed.Step)
	require.Equal(t, mintTxHash, resumed.Hash(types.StageMint))
	require.Equal(t, [][]byte{h.message}, h.minter.Messages())
	require.Len(t, h.bridge.Calls(), 1)

	pending, err = orch.PendingBurns()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestResumeAlreadyMinted(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SavePendingBurn(&types.BurnMessage{
		SourceTxHash: burnTxHash,
		MessageBytes: h.message,
	}))
	h.minter.Received = true

	transfer, err := h.orch.Resume(context.Background(), burnTxHash)
	require.NoError(t, err)
	require.Equal(t, types.StepComplete, transfer.Step)
	require.Empty(t, h.minter.Messages())
	require.Equal(t, "", transfer.Hash(types.StageMint))
}

func TestMintFailure(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	h.minter.Err = &types.BroadcastError{Chain: "base", RawLog: "execution reverted"}

	transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.ErrorIs(t, err, types.ErrBroadcastFailure)
	require.Equal(t, types.StepIdle, transfer.Step)
	require.Contains(t, transfer.Error, "execution reverted")
	require.Equal(t, "", transfer.Hash(types.StageMint))
}

func TestRunRequiresResetAfterComplete(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	req := bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly}

	first, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)

	_, err = h.orch.Run(context.Background(), req)
	require.ErrorIs(t, err, types.ErrResetRequired)

	require.NoError(t, h.orch.Reset())
	status := h.orch.Status()
	require.Equal(t, types.StepIdle, status.Step)
	require.Empty(t, status.TxHashes)
	require.Empty(t, status.Error)

	second, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestErrorKeptUntilNextAttempt(t *testing.T) {
	h := newHarness(t)
	req := bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly}

	_, err := h.orch.Run(context.Background(), req)
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	require.NotEmpty(t, h.orch.Status().Error)

	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	transfer, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, transfer.Error)
}

func TestRetryAfterFailureKeepsFailedAttempt(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	h.poller.Err = types.ErrAttestationTimeout

	burns := 0
	h.bridge.Handler = func(msgs []sdk.Msg) (*types.TxResult, error) {
		burns++
		h.message = testutil.BurnMessageFor(msgs[0].(*nobletypes.MsgDepositForBurn), uint64(77+burns))
		return &types.TxResult{TxHash: fmt.Sprintf("BURN%d", burns), Events: []types.Event{testutil.MessageSentEvent(h.message)}}, nil
	}
	req := bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly}

	first, err := h.orch.Run(context.Background(), req)
	require.ErrorIs(t, err, types.ErrAttestationTimeout)

	h.poller.Err = nil
	second, err := h.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, types.StepComplete, second.Step)
	require.NotEqual(t, first.ID, second.ID)
	require.Empty(t, second.Error)
	require.Equal(t, []types.StageTx{
		{Stage: types.StageBurn, TxHash: "BURN1"},
		{Stage: types.StageBurn, TxHash: "BURN2"},
		{Stage: types.StageMint, TxHash: mintTxHash},
	}, second.TxHashes)

	history := h.orch.History()
	require.Len(t, history, 2)
	require.Equal(t, first.ID, history[0].ID)
	require.Equal(t, types.StepIdle, history[0].Step)
	require.Contains(t, history[0].Error, types.ErrAttestationTimeout.Error())
	require.Equal(t, []types.StageTx{{Stage: types.StageBurn, TxHash: "BURN1"}}, history[0].TxHashes)
	require.Equal(t, second.ID, history[1].ID)

	stored, err := h.store.Transfers()
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestValidationBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Run(context.Background(), bridge.Request{Recipient: "0x1234", Route: bridge.RouteFull})
	require.ErrorIs(t, err, types.ErrValidation)

	_, err = h.orch.Run(context.Background(), bridge.Request{Amount: "-1", Recipient: recipient, Route: bridge.RouteFull})
	require.ErrorIs(t, err, types.ErrValidation)

	require.Zero(t, h.balances.Queries())
	require.Empty(t, h.source.Calls())
}

func TestConcurrentRunRejected(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.bridge.Handler = func([]sdk.Msg) (*types.TxResult, error) {
		close(entered)
		<-release
		return &types.TxResult{TxHash: burnTxHash, Events: []types.Event{testutil.MessageSentEvent(h.message)}}, nil
	}

	req := bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly}
	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		_, runErr = h.orch.Run(context.Background(), req)
	}()

	<-entered
	_, err := h.orch.Run(context.Background(), req)
	require.ErrorIs(t, err, types.ErrTransferInProgress)
	require.ErrorIs(t, h.orch.Reset(), types.ErrTransferInProgress)

	close(release)
	wg.Wait()
	require.NoError(t, runErr)
}

func TestSubscribeStreamsTransitions(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)

	updates, unsubscribe := h.orch.Subscribe()
	defer unsubscribe()

	_, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
	require.NoError(t, err)

	var steps []types.Step
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case snapshot := <-updates:
			if len(steps) == 0 || steps[len(steps)-1] != snapshot.Step {
				steps = append(steps, snapshot.Step)
			}
			done = snapshot.Step == types.StepComplete
		case <-timeout:
			t.Fatal("did not observe completion")
		}
	}
	require.Equal(t, []types.Step{types.StepIdle, types.StepBurning, types.StepAttesting, types.StepMinting, types.StepComplete}, steps)
}

func TestNewOrchestratorRequiresCapabilities(t *testing.T) {
	_, err := bridge.NewOrchestrator(routeConfig(), bridge.Dependencies{}, log.NewNopLogger())
	require.Error(t, err)
}

func TestFullRouteNeedsSourceSigner(t *testing.T) {
	h := newHarness(t)
	orch, err := bridge.NewOrchestrator(routeConfig(), bridge.Dependencies{
		BridgeSigner:   h.bridge,
		BridgeBalances: h.balances,
		Poller:         h.poller,
		Minter:         h.minter,
	}, log.NewNopLogger())
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteFull})
	require.True(t, errors.Is(err, types.ErrValidation))
}

func TestStartRunsInBackground(t *testing.T) {
	h := newHarness(t)
	h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
	req := bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly}

	require.NoError(t, h.orch.Start(context.Background(), req))
	// begin runs before Start returns, so a second start is rejected right away
	require.ErrorIs(t, h.orch.Start(context.Background(), req), types.ErrTransferInProgress)

	require.Eventually(t, func() bool {
		return h.orch.Status().Step == types.StepComplete
	}, 2*time.Second, 5*time.Millisecond)

	history := h.orch.History()
	require.Len(t, history, 1)
	require.Equal(t, types.StepComplete, history[0].Step)

	require.ErrorIs(t, h.orch.StartResume(context.Background(), ""), types.ErrValidation)
}

func TestMismatchedMessageSentFallsBackToAttestation(t *testing.T) {
	cases := map[string]func(padded []byte) []byte{
		"amount": func(padded []byte) []byte {
			return testutil.RawMessage(types.DomainNoble, types.DomainBase, 5, padded, big.NewInt(1))
		},
		"recipient": func([]byte) []byte {
			return testutil.RawMessage(types.DomainNoble, types.DomainBase, 5, make([]byte, 32), big.NewInt(960_000))
		},
		"domain": func(padded []byte) []byte {
			return testutil.RawMessage(types.DomainNoble, types.DomainEthereum, 5, padded, big.NewInt(960_000))
		},
		"truncated": func([]byte) []byte {
			return []byte{0x00, 0x01}
		},
	}
	for name, emit := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.balances.Set(h.bridge.Addr, bridgeDenom, 1_000_000)
			emitted := emit(paddedRecipient(t))
			h.bridge.Handler = func([]sdk.Msg) (*types.TxResult, error) {
				return &types.TxResult{TxHash: burnTxHash, Events: []types.Event{testutil.MessageSentEvent(emitted)}}, nil
			}

			// without a message from the attestation service there is nothing safe to mint
			transfer, err := h.orch.Run(context.Background(), bridge.Request{Recipient: recipient, Route: bridge.RouteBridgeOnly})
			require.ErrorIs(t, err, types.ErrMissingBurnMessage)
			require.Contains(t, transfer.Error, "funds are safe")
			require.Empty(t, h.minter.Messages())

			pending, err := h.orch.PendingBurns()
			require.NoError(t, err)
			require.Len(t, pending, 1)
			require.Empty(t, pending[0].MessageBytes)

			h.poller.Attestation.Message = h.message
			resumed, err := h.orch.Resume(context.Background(), burnTxHash)
			require.NoError(t, err)
			require.Equal(t, types.StepComplete, resumed.Step)
			require.Equal(t, [][]byte{h.message}, h.minter.Messages())
		})
	}
}
