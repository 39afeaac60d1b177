package ethereum

import (
	"context"
	"fmt"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// Minter submits attested CCTP messages to the destination MessageTransmitter.
type Minter struct {
	signer             Signer
	client             *Client
	messageTransmitter common.Address
	logger             log.Logger
}

func NewMinter(signer Signer, client *Client, messageTransmitter common.Address, logger log.Logger) *Minter {
	return &Minter{
		signer:             signer,
		client:             client,
		messageTransmitter: messageTransmitter,
		logger:             logger,
	}
}

// ReceiveMessage mints the burn described by message using its attestation and returns the tx hash.
func (m *Minter) ReceiveMessage(ctx context.Context, message, attestation []byte) (string, error) {
	if len(message) == 0 {
		return "", types.ErrMissingBurnMessage
	}
	if len(attestation) == 0 {
		return "", types.Validationf("attestation is empty")
	}

	calldata, err := ReceiveMessageCalldata(message, attestation)
	if err != nil {
		return "", fmt.Errorf("unable to pack receiveMessage: %w", err)
	}

	m.logger.Info("Broadcasting receiveMessage", "message_transmitter", m.messageTransmitter.Hex())

	hash, err := m.signer.SubmitContractCall(ctx, m.messageTransmitter, calldata)
	if err != nil {
		if hash != (common.Hash{}) {
			return hash.Hex(), err
		}
		return "", err
	}
	return hash.Hex(), nil
}

// MessageReceived reports whether message was already minted on the destination chain.
func (m *Minter) MessageReceived(ctx context.Context, message []byte) (bool, error) {
	if m.client == nil {
		return false, nil
	}
	msg, err := new(types.Message).Parse(message)
	if err != nil {
		return false, err
	}

	m.logger.Debug("Checking if nonce was used", "source_domain", msg.SourceDomain, "nonce", msg.Nonce)

	return m.client.UsedNonce(ctx, msg.SourceDomain, msg.Nonce)
}
