package bridge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/strangelove-ventures/xion-cctp-bridge/address"
	"github.com/strangelove-ventures/xion-cctp-bridge/amount"
	"github.com/strangelove-ventures/xion-cctp-bridge/cosmos"
	"github.com/strangelove-ventures/xion-cctp-bridge/noble"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// broadcast submits msgs and turns a non-zero result code into a *types.BroadcastError.
func broadcast(ctx context.Context, signer CosmosSigner, chain string, msgs []sdk.Msg, memo string) (*types.TxResult, error) {
	res, err := signer.SignAndBroadcast(ctx, msgs, memo)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 {
		return nil, &types.BroadcastError{
			Chain:     chain,
			Code:      res.Code,
			Codespace: res.Codespace,
			RawLog:    res.RawLog,
			TxHash:    res.TxHash,
		}
	}
	return res, nil
}

// TransferStep moves funds over IBC from the signer to the same account on another chain.
type TransferStep struct {
	signer         CosmosSigner
	chain          string
	channel        string
	denom          string
	receiverPrefix string
	timeout        time.Duration
	memo           string
	now            func() time.Time
}

// Receiver is the address that receives the transfer on the counterparty chain.
func (s *TransferStep) Receiver() (string, error) {
	return address.ConvertBech32Prefix(s.signer.Address(), s.receiverPrefix)
}

func (s *TransferStep) Execute(ctx context.Context, amt math.Int) (*types.TxResult, error) {
	receiver, err := s.Receiver()
	if err != nil {
		return nil, err
	}
	msg := cosmos.NewTransferMsg(s.signer.Address(), receiver, s.channel, s.denom, amt, s.timeout, s.now(), s.memo)
	return broadcast(ctx, s.signer, s.chain, []sdk.Msg{msg}, s.memo)
}

// BurnStep burns USDC on the bridge chain for minting on the destination domain.
type BurnStep struct {
	signer            CosmosSigner
	balances          BalanceQuerier
	denom             string
	gasReserve        math.Int
	destinationDomain types.Domain
	memo              string
	logger            log.Logger
}

// Size returns the burn amount from the current authoritative balance. A non-nil limit caps the
// result; it is used when the amount is derived and must not exceed what was just transferred in.
func (s *BurnStep) Size(ctx context.Context, requested, limit *math.Int) (math.Int, error) {
	balance, err := s.balances.Balance(ctx, s.signer.Address(), s.denom)
	if err != nil {
		return math.Int{}, fmt.Errorf("unable to query bridge balance: %w", err)
	}

	burnAmount, err := amount.ComputeSendable(balance, s.gasReserve, requested)
	if err != nil {
		return math.Int{}, err
	}
	if limit != nil && burnAmount.GT(*limit) {
		burnAmount = *limit
	}

	s.logger.Info(fmt.Sprintf("Burning %s%s of balance %s (reserve %s)", burnAmount, s.denom, balance, s.gasReserve))
	return burnAmount, nil
}

func (s *BurnStep) Execute(ctx context.Context, recipient string, burnAmount math.Int) (*types.BurnMessage, error) {
	mintRecipient, err := address.PadEVMAddress(recipient)
	if err != nil {
		return nil, err
	}

	msg, err := noble.NewBurnMsg(s.signer.Address(), burnAmount, s.destinationDomain, mintRecipient, s.denom)
	if err != nil {
		return nil, err
	}

	res, err := broadcast(ctx, s.signer, "noble", []sdk.Msg{msg}, s.memo)
	if err != nil {
		return nil, err
	}

	burn := &types.BurnMessage{
		SourceTxHash:      res.TxHash,
		SourceDomain:      noble.Domain,
		DestinationDomain: s.destinationDomain,
		RecipientAddress:  mintRecipient,
		Amount:            burnAmount.String(),
		Created:           time.Now().UTC(),
	}

	messages, err := noble.ExtractMessageSent(res.Events)
	switch {
	case err != nil:
		s.logger.Error("Unable to extract burn message from events, falling back to attestation service", "src-tx", res.TxHash, "err", err)
	case len(messages) == 0:
		s.logger.Info("Burn tx carried no MessageSent event, falling back to attestation service", "src-tx", res.TxHash)
	default:
		parsed, err := checkBurnMessage(messages[0], s.destinationDomain, mintRecipient, burnAmount)
		if err != nil {
			s.logger.Error("MessageSent event does not match the burn, falling back to attestation service", "src-tx", res.TxHash, "err", err)
			break
		}
		burn.MessageBytes = messages[0]
		burn.Nonce = parsed.Nonce
	}

	return burn, nil
}

// checkBurnMessage parses a MessageSent payload and verifies it describes the burn that was submitted.
func checkBurnMessage(raw []byte, destinationDomain types.Domain, mintRecipient []byte, burnAmount math.Int) (*types.Message, error) {
	msg, err := new(types.Message).Parse(raw)
	if err != nil {
		return nil, err
	}
	if msg.DestinationDomain != uint32(destinationDomain) {
		return nil, fmt.Errorf("destination domain %d, expected %d", msg.DestinationDomain, destinationDomain)
	}
	body, err := new(types.BurnMessageBody).Parse(msg.MessageBody)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(body.MintRecipient, mintRecipient) {
		return nil, fmt.Errorf("mint recipient %x, expected %x", body.MintRecipient, mintRecipient)
	}
	if body.Amount.Cmp(burnAmount.BigInt()) != 0 {
		return nil, fmt.Errorf("amount %s, expected %s", body.Amount, burnAmount)
	}
	return msg, nil
}

// MintStep receives an attested burn on the destination chain.
type MintStep struct {
	minter Minter
}

func (s *MintStep) Execute(ctx context.Context, message, attestation []byte) (string, error) {
	if len(message) == 0 {
		return "", types.ErrMissingBurnMessage
	}
	return s.minter.ReceiveMessage(ctx, message, attestation)
}

// AlreadyMinted reports whether message was minted before, when the minter can tell.
func (s *MintStep) AlreadyMinted(ctx context.Context, message []byte) (bool, error) {
	checker, ok := s.minter.(MintChecker)
	if !ok {
		return false, nil
	}
	return checker.MessageReceived(ctx, message)
}
