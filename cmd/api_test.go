package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/log"
	nobletypes "github.com/circlefin/noble-cctp/x/cctp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/xion-cctp-bridge/bridge"
	"github.com/strangelove-ventures/xion-cctp-bridge/offramp"
	testutil "github.com/strangelove-ventures/xion-cctp-bridge/test_util"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const apiRecipient = "0x71562b71999873DB5b286dF957af199Ec94617F7"

func newTestRouter(t *testing.T) (*gin.Engine, *testutil.Balances, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	nobleAddr, err := bech32.ConvertAndEncode("noble", []byte("api-test-account-0001"))
	require.NoError(t, err)

	balances := testutil.NewBalances()
	signer := &testutil.CosmosSigner{Addr: nobleAddr, Handler: func(msgs []sdk.Msg) (*types.TxResult, error) {
		message := testutil.BurnMessageFor(msgs[0].(*nobletypes.MsgDepositForBurn), 9)
		return &types.TxResult{TxHash: "BURN", Events: []types.Event{testutil.MessageSentEvent(message)}}, nil
	}}

	orch, err := bridge.NewOrchestrator(bridge.Config{
		BridgePrefix:      "noble",
		BridgeDenom:       "uusdc",
		DestinationDomain: types.DomainBase,
	}, bridge.Dependencies{
		BridgeSigner:   signer,
		BridgeBalances: balances,
		Poller:         &testutil.Poller{Attestation: &types.Attestation{Status: types.AttestationComplete, Signature: []byte{0x01}}},
		Minter:         &testutil.Minter{Hash: "0xmint"},
	}, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router, err := newRouter(&api{ctx: ctx, orchestrator: orch, logger: log.NewNopLogger()}, nil)
	require.NoError(t, err)
	return router, balances, nobleAddr
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func transferStatus(t *testing.T, router http.Handler) types.BridgeTransfer {
	t.Helper()
	w := doJSON(t, router, http.MethodGet, "/transfer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var transfer types.BridgeTransfer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transfer))
	return transfer
}

func TestAPITransferLifecycle(t *testing.T) {
	router, balances, nobleAddr := newTestRouter(t)
	balances.Set(nobleAddr, "uusdc", 1_000_000)

	require.Equal(t, types.StepIdle, transferStatus(t, router).Step)

	w := doJSON(t, router, http.MethodPost, "/transfer", gin.H{"recipient": apiRecipient, "skip_source": true})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		return transferStatus(t, router).Step == types.StepComplete
	}, 2*time.Second, 10*time.Millisecond)

	transfer := transferStatus(t, router)
	require.Equal(t, "0xmint", transfer.Hash(types.StageMint))

	// a completed transfer must be reset before the next one
	w = doJSON(t, router, http.MethodPost, "/transfer", gin.H{"recipient": apiRecipient, "skip_source": true})
	require.Equal(t, http.StatusConflict, w.Code)

	// the run goroutine may still be releasing the transfer
	require.Eventually(t, func() bool {
		return doJSON(t, router, http.MethodPost, "/transfer/reset", nil).Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, types.StepIdle, transferStatus(t, router).Step)

	w = doJSON(t, router, http.MethodGet, "/transfers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []types.BridgeTransfer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	require.Equal(t, transfer.ID, history[0].ID)
	require.Equal(t, types.StepComplete, history[0].Step)

	w = doJSON(t, router, http.MethodGet, "/transfers/"+transfer.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var byID types.BridgeTransfer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &byID))
	require.Equal(t, "0xmint", byID.Hash(types.StageMint))

	w = doJSON(t, router, http.MethodGet, "/transfers/unknown", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPITransferValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/transfer", gin.H{"recipient": "0x1234", "skip_source": true})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/transfer", gin.H{"amount": "1"})
	require.Equal(t, http.StatusBadRequest, w.Code, "recipient is required")

	// no source signer is wired
	w = doJSON(t, router, http.MethodPost, "/transfer", gin.H{"recipient": apiRecipient})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/transfer/resume", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIInsufficientBalance(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/transfer", gin.H{"recipient": apiRecipient, "skip_source": true})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return transferStatus(t, router).Error != ""
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, types.StepIdle, transferStatus(t, router).Step)
}

func TestAPIReadEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/balances", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/quote?amount=10", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, router, http.MethodPost, "/withdraw", gin.H{"amount": "10", "bank_account": "ba_1"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{types.Validationf("bad amount"), http.StatusBadRequest},
		{fmt.Errorf("burn: %w", types.ErrInsufficientBalance), http.StatusBadRequest},
		{types.ErrTransferInProgress, http.StatusConflict},
		{types.ErrResetRequired, http.StatusConflict},
		{types.ErrQuoteSuperseded, http.StatusConflict},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", types.ErrSessionKeyUnavailable, context.DeadlineExceeded), http.StatusServiceUnavailable},
		{&types.ServiceError{Service: "offramp", StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{&types.ServiceError{Service: "offramp", StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{&offramp.PartialWithdrawalError{Err: context.Canceled}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
