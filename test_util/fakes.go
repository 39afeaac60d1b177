package testutil

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"cosmossdk.io/math"
	nobletypes "github.com/circlefin/noble-cctp/x/cctp/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// CosmosSigner records broadcasts. Handler decides the outcome; nil succeeds with a generated hash.
type CosmosSigner struct {
	Addr    string
	Handler func(msgs []sdk.Msg) (*types.TxResult, error)

	mu    sync.Mutex
	calls [][]sdk.Msg
}

func (s *CosmosSigner) Address() string {
	return s.Addr
}

func (s *CosmosSigner) SignAndBroadcast(_ context.Context, msgs []sdk.Msg, _ string) (*types.TxResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, msgs)
	n := len(s.calls)
	s.mu.Unlock()

	if s.Handler != nil {
		return s.Handler(msgs)
	}
	return &types.TxResult{TxHash: fmt.Sprintf("%s-TX-%d", s.Addr, n)}, nil
}

func (s *CosmosSigner) Calls() [][]sdk.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]sdk.Msg(nil), s.calls...)
}

// Balances is an in-memory balance table keyed by address and denom.
type Balances struct {
	Err error

	mu       sync.Mutex
	balances map[string]math.Int
	queries  int
}

func NewBalances() *Balances {
	return &Balances{balances: make(map[string]math.Int)}
}

func (b *Balances) Set(address, denom string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[address+"/"+denom] = math.NewInt(amount)
}

func (b *Balances) Add(address, denom string, amount math.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.balances[address+"/"+denom]
	if !ok {
		current = math.ZeroInt()
	}
	b.balances[address+"/"+denom] = current.Add(amount)
}

func (b *Balances) Balance(_ context.Context, address, denom string) (math.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries++
	if b.Err != nil {
		return math.Int{}, b.Err
	}
	if amount, ok := b.balances[address+"/"+denom]; ok {
		return amount, nil
	}
	return math.ZeroInt(), nil
}

func (b *Balances) Queries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

// Poller returns a fixed attestation or error.
type Poller struct {
	Attestation *types.Attestation
	Err         error

	mu    sync.Mutex
	calls []string
}

func (p *Poller) Poll(_ context.Context, _ types.Domain, txHash string) (*types.Attestation, error) {
	p.mu.Lock()
	p.calls = append(p.calls, txHash)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Attestation, nil
}

func (p *Poller) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Minter records received messages and reports Received for already-minted checks.
type Minter struct {
	Hash     string
	Err      error
	Received bool

	mu       sync.Mutex
	messages [][]byte
}

func (m *Minter) ReceiveMessage(_ context.Context, message, _ []byte) (string, error) {
	m.mu.Lock()
	m.messages = append(m.messages, message)
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Hash, nil
}

func (m *Minter) MessageReceived(context.Context, []byte) (bool, error) {
	return m.Received, nil
}

func (m *Minter) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.messages...)
}

// EVMSigner is a destination chain signer with canned results.
type EVMSigner struct {
	Addr      common.Address
	TxHash    common.Hash
	SubmitErr error
	Signature []byte
	SignErr   error

	mu        sync.Mutex
	calldata  [][]byte
	typedData []apitypes.TypedData
}

func (s *EVMSigner) Address() common.Address {
	return s.Addr
}

func (s *EVMSigner) SubmitContractCall(_ context.Context, _ common.Address, calldata []byte) (common.Hash, error) {
	s.mu.Lock()
	s.calldata = append(s.calldata, calldata)
	s.mu.Unlock()
	return s.TxHash, s.SubmitErr
}

func (s *EVMSigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	s.mu.Lock()
	s.typedData = append(s.typedData, data)
	s.mu.Unlock()
	if s.SignErr != nil {
		return nil, s.SignErr
	}
	return s.Signature, nil
}

func (s *EVMSigner) Calldata() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.calldata...)
}

func (s *EVMSigner) TypedData() []apitypes.TypedData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apitypes.TypedData(nil), s.typedData...)
}

// RawMessage builds a CCTP burn message minting amount to the 32 byte mintRecipient.
func RawMessage(sourceDomain, destinationDomain types.Domain, nonce uint64, mintRecipient []byte, amount *big.Int) []byte {
	bz := make([]byte, 116+132)
	binary.BigEndian.PutUint32(bz[4:8], uint32(sourceDomain))
	binary.BigEndian.PutUint32(bz[8:12], uint32(destinationDomain))
	binary.BigEndian.PutUint64(bz[12:20], nonce)
	body := bz[116:]
	copy(body[36:68], mintRecipient)
	amount.FillBytes(body[68:100])
	return bz
}

// BurnMessageFor builds the MessageSent payload noble emits for burn.
func BurnMessageFor(burn *nobletypes.MsgDepositForBurn, nonce uint64) []byte {
	return RawMessage(types.DomainNoble, types.Domain(burn.DestinationDomain), nonce, burn.MintRecipient, burn.Amount.BigInt())
}

// MessageSentEvent is the event a CCTP burn emits on noble.
func MessageSentEvent(raw []byte) types.Event {
	return types.Event{
		Type: "circle.cctp.v1.MessageSent",
		Attributes: []types.Attribute{
			{Key: "message", Value: `"` + base64.StdEncoding.EncodeToString(raw) + `"`},
		},
	}
}
