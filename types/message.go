package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

// Message defines the CCTP message header emitted by MessageSent.
// https://github.com/circlefin/evm-cctp-contracts/blob/d53f0e1937a0a5c5158d356b6767b77dc32dcc90/src/messages/Message.sol#L29-L37
type Message struct {
	Version           uint32
	SourceDomain      uint32
	DestinationDomain uint32
	Nonce             uint64
	Sender            []byte
	Recipient         []byte
	DestinationCaller []byte
	MessageBody       []byte
}

// BurnMessageBody defines the body of a CCTP token burn message.
// https://github.com/circlefin/evm-cctp-contracts/blob/d53f0e1937a0a5c5158d356b6767b77dc32dcc90/src/messages/BurnMessage.sol#L24-L29
type BurnMessageBody struct {
	Version       uint32
	BurnToken     []byte
	MintRecipient []byte
	Amount        *big.Int
	MessageSender []byte
}

var errMessageTooShort = errors.New("cctp message too short")

func (msg *Message) Parse(bz []byte) (*Message, error) {
	const (
		VersionIndex           = 0
		SourceDomainIndex      = 4
		DestinationDomainIndex = 8
		NonceIndex             = 12
		SenderIndex            = 20
		RecipientIndex         = 52
		DestinationCallerIndex = 84
		MessageBodyIndex       = 116
	)

	if len(bz) < MessageBodyIndex {
		return nil, fmt.Errorf("%w: %d bytes", errMessageTooShort, len(bz))
	}

	msg.Version = binary.BigEndian.Uint32(bz[VersionIndex:SourceDomainIndex])
	msg.SourceDomain = binary.BigEndian.Uint32(bz[SourceDomainIndex:DestinationDomainIndex])
	msg.DestinationDomain = binary.BigEndian.Uint32(bz[DestinationDomainIndex:NonceIndex])
	msg.Nonce = binary.BigEndian.Uint64(bz[NonceIndex:SenderIndex])
	msg.Sender = bz[SenderIndex:RecipientIndex]
	msg.Recipient = bz[RecipientIndex:DestinationCallerIndex]
	msg.DestinationCaller = bz[DestinationCallerIndex:MessageBodyIndex]
	msg.MessageBody = bz[MessageBodyIndex:]

	return msg, nil
}

func (c *BurnMessageBody) Parse(bz []byte) (*BurnMessageBody, error) {
	const (
		VersionIndex       = 0
		BurnTokenIndex     = 4
		MintRecipientIndex = 36
		AmountIndex        = 68
		MsgSenderIndex     = 100
		BurnContentLength  = 132
	)

	if len(bz) != BurnContentLength {
		return nil, fmt.Errorf("burn message body must be %d bytes, got %d", BurnContentLength, len(bz))
	}

	c.Version = binary.BigEndian.Uint32(bz[VersionIndex:BurnTokenIndex])
	c.BurnToken = bz[BurnTokenIndex:MintRecipientIndex]
	c.MintRecipient = bz[MintRecipientIndex:AmountIndex]
	c.Amount = new(big.Int).SetBytes(bz[AmountIndex:MsgSenderIndex])
	c.MessageSender = bz[MsgSenderIndex:]

	return c, nil
}
