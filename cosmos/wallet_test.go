package cosmos_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	xauthsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/xion-cctp-bridge/cosmos"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

func TestComputeFee(t *testing.T) {
	fee := cosmos.ComputeFee(200000, decimal.RequireFromString("0.025"), "uxion")
	require.Equal(t, "5000uxion", fee.String())

	fee = cosmos.ComputeFee(3, decimal.RequireFromString("0.5"), "uusdc")
	require.Equal(t, "2uusdc", fee.String())

	fee = cosmos.ComputeFee(200000, decimal.Zero, "uusdc")
	require.True(t, fee.Empty())
}

func TestParseExpectedSequence(t *testing.T) {
	seq, ok := cosmos.ParseExpectedSequence("account sequence mismatch, expected 27, got 25: incorrect account sequence")
	require.True(t, ok)
	require.Equal(t, uint64(27), seq)

	_, ok = cosmos.ParseExpectedSequence("out of gas")
	require.False(t, ok)
}

const (
	stubAccountNumber   = 12
	stubAccountSequence = 3
)

// stubRPC answers the account query, broadcasts and tx lookups a wallet makes.
type stubRPC struct {
	rpcclient.Client

	decode sdk.TxDecoder

	mu          sync.Mutex
	checkTx     []*coretypes.ResultBroadcastTx
	deliverTx   abci.ExecTxResult
	txErr       error
	hold        time.Duration
	sequences   []uint64
	inFlight    int
	maxInFlight int
}

func (s *stubRPC) ABCIQueryWithOptions(_ context.Context, path string, _ cmtbytes.HexBytes, _ rpcclient.ABCIQueryOptions) (*coretypes.ResultABCIQuery, error) {
	if path != "/cosmos.auth.v1beta1.Query/Account" {
		return nil, fmt.Errorf("unexpected query %s", path)
	}
	account, err := codectypes.NewAnyWithValue(&authtypes.BaseAccount{AccountNumber: stubAccountNumber, Sequence: stubAccountSequence})
	if err != nil {
		return nil, err
	}
	bz, err := (&authtypes.QueryAccountResponse{Account: account}).Marshal()
	if err != nil {
		return nil, err
	}
	return &coretypes.ResultABCIQuery{Response: abci.ResponseQuery{Value: bz}}, nil
}

func (s *stubRPC) BroadcastTxSync(_ context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTx, error) {
	decoded, err := s.decode(tx)
	if err != nil {
		return nil, err
	}
	sigs, err := decoded.(xauthsigning.SigVerifiableTx).GetSignaturesV2()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(s.hold)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.sequences = append(s.sequences, sigs[0].Sequence)

	res := &coretypes.ResultBroadcastTx{Hash: tx.Hash()}
	if len(s.checkTx) > 0 {
		res = s.checkTx[0]
		res.Hash = tx.Hash()
		s.checkTx = s.checkTx[1:]
	}
	return res, nil
}

func (s *stubRPC) Tx(_ context.Context, hash []byte, _ bool) (*coretypes.ResultTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txErr != nil {
		return nil, s.txErr
	}
	return &coretypes.ResultTx{Hash: hash, Height: 42, TxResult: s.deliverTx}, nil
}

func (s *stubRPC) broadcastSequences() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.sequences...)
}

func newStubWallet(t *testing.T, stub *stubRPC) *cosmos.Wallet {
	t.Helper()
	provider := cosmos.NewProviderWithClient(stub)
	stub.decode = provider.Cdc.TxConfig.TxDecoder()

	wallet, err := cosmos.NewWallet(provider, &cosmos.ChainConfig{
		Name:             "noble",
		ChainID:          "grand-1",
		Bech32Prefix:     "noble",
		GasLimit:         200000,
		GasPrice:         "0.1",
		FeeDenom:         "uusdc",
		BroadcastRetries: 3,
		ConfirmTimeout:   1,
		PrivateKey:       strings.Repeat("01", 32),
	}, types.NewSequenceMap(), log.NewNopLogger())
	require.NoError(t, err)
	return wallet
}

func sendMsg(wallet *cosmos.Wallet) []sdk.Msg {
	return []sdk.Msg{&banktypes.MsgSend{
		FromAddress: wallet.Address(),
		ToAddress:   wallet.Address(),
		Amount:      sdk.NewCoins(sdk.NewInt64Coin("uusdc", 1)),
	}}
}

func TestSignAndBroadcast(t *testing.T) {
	stub := &stubRPC{deliverTx: abci.ExecTxResult{Events: []abci.Event{{
		Type:       "circle.cctp.v1.MessageSent",
		Attributes: []abci.EventAttribute{{Key: "message", Value: "AAAA"}},
	}}}}
	wallet := newStubWallet(t, stub)

	res, err := wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "memo")
	require.NoError(t, err)
	require.NotEmpty(t, res.TxHash)
	require.Equal(t, int64(42), res.Height)
	require.Len(t, res.Events, 1)
	require.Equal(t, "AAAA", res.Events[0].Attributes[0].Value)

	_, err = wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
	require.NoError(t, err)
	require.Equal(t, []uint64{stubAccountSequence, stubAccountSequence + 1}, stub.broadcastSequences())
}

func TestSignAndBroadcastDeliverTxFailure(t *testing.T) {
	rawLog := "failed to execute message; message index: 0: 1uusdc is smaller than 2uusdc: insufficient funds"
	stub := &stubRPC{deliverTx: abci.ExecTxResult{Code: 5, Codespace: "sdk", Log: rawLog}}
	wallet := newStubWallet(t, stub)

	res, err := wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
	require.ErrorIs(t, err, types.ErrBroadcastFailure)

	var broadcastErr *types.BroadcastError
	require.True(t, errors.As(err, &broadcastErr))
	require.Equal(t, rawLog, broadcastErr.RawLog)
	require.Equal(t, uint32(5), broadcastErr.Code)
	require.Equal(t, "sdk", broadcastErr.Codespace)
	require.NotEmpty(t, broadcastErr.TxHash)

	require.NotNil(t, res)
	require.Equal(t, broadcastErr.TxHash, res.TxHash)
}

func TestSignAndBroadcastCheckTxFailureNotRetried(t *testing.T) {
	stub := &stubRPC{checkTx: []*coretypes.ResultBroadcastTx{{Code: 13, Codespace: "sdk", Log: "insufficient fee"}}}
	wallet := newStubWallet(t, stub)

	_, err := wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
	var broadcastErr *types.BroadcastError
	require.True(t, errors.As(err, &broadcastErr))
	require.Equal(t, "insufficient fee", broadcastErr.RawLog)
	require.Len(t, stub.broadcastSequences(), 1)
}

func TestSignAndBroadcastRetriesSequenceMismatch(t *testing.T) {
	stub := &stubRPC{checkTx: []*coretypes.ResultBroadcastTx{{
		Code:      32,
		Codespace: "sdk",
		Log:       "account sequence mismatch, expected 9, got 3: incorrect account sequence",
	}}}
	wallet := newStubWallet(t, stub)

	_, err := wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
	require.NoError(t, err)

	_, err = wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
	require.NoError(t, err)
	require.Equal(t, []uint64{stubAccountSequence, 9, 10}, stub.broadcastSequences())
}

func TestSignAndBroadcastConfirmTimeout(t *testing.T) {
	stub := &stubRPC{txErr: errors.New("tx not found")}
	wallet := newStubWallet(t, stub)

	start := time.Now()
	_, err := wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "not confirmed")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestSignAndBroadcastOneInFlight(t *testing.T) {
	stub := &stubRPC{hold: 20 * time.Millisecond}
	wallet := newStubWallet(t, stub)

	const calls = 4
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wallet.SignAndBroadcast(context.Background(), sendMsg(wallet), "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, stub.maxInFlight)
	require.ElementsMatch(t, []uint64{3, 4, 5, 6}, stub.broadcastSequences())
}
