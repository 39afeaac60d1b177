package noble_test

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/strangelove-ventures/xion-cctp-bridge/noble"
	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

func rawMessage(nonce uint64) []byte {
	bz := make([]byte, 116+132)
	binary.BigEndian.PutUint32(bz[4:8], uint32(types.DomainNoble))
	binary.BigEndian.PutUint32(bz[8:12], uint32(types.DomainBase))
	binary.BigEndian.PutUint64(bz[12:20], nonce)
	return bz
}

func TestExtractMessageSent(t *testing.T) {
	raw := rawMessage(77)
	events := []types.Event{
		{Type: "transfer", Attributes: []types.Attribute{{Key: "amount", Value: "960000uusdc"}}},
		{Type: noble.EventMessageSent, Attributes: []types.Attribute{
			{Key: "message", Value: `"` + base64.StdEncoding.EncodeToString(raw) + `"`},
		}},
	}

	messages, err := noble.ExtractMessageSent(events)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, raw, messages[0])

	msg, err := new(types.Message).Parse(messages[0])
	require.NoError(t, err)
	require.Equal(t, uint64(77), msg.Nonce)
	require.Equal(t, uint32(types.DomainBase), msg.DestinationDomain)
}

func TestExtractMessageSentUnquoted(t *testing.T) {
	raw := rawMessage(1)
	events := []types.Event{{Type: noble.EventMessageSent, Attributes: []types.Attribute{
		{Key: "message", Value: base64.StdEncoding.EncodeToString(raw)},
	}}}

	messages, err := noble.ExtractMessageSent(events)
	require.NoError(t, err)
	require.Equal(t, [][]byte{raw}, messages)
}

func TestExtractMessageSentNoEvent(t *testing.T) {
	messages, err := noble.ExtractMessageSent([]types.Event{{Type: "coin_spent"}})
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestExtractMessageSentGarbage(t *testing.T) {
	events := []types.Event{{Type: noble.EventMessageSent, Attributes: []types.Attribute{
		{Key: "message", Value: `"not base64!"`},
	}}}

	_, err := noble.ExtractMessageSent(events)
	require.Error(t, err)
}

func TestNewBurnMsg(t *testing.T) {
	recipient := make([]byte, 32)
	recipient[31] = 1

	msg, err := noble.NewBurnMsg("noble1sender", math.NewInt(960000), types.DomainBase, recipient, noble.BurnToken)
	require.NoError(t, err)
	require.Equal(t, "noble1sender", msg.From)
	require.Equal(t, "960000", msg.Amount.String())
	require.Equal(t, uint32(types.DomainBase), msg.DestinationDomain)
	require.Equal(t, recipient, msg.MintRecipient)

	_, err = noble.NewBurnMsg("noble1sender", math.NewInt(960000), types.DomainBase, recipient[:20], noble.BurnToken)
	require.ErrorIs(t, err, types.ErrValidation)

	_, err = noble.NewBurnMsg("noble1sender", math.ZeroInt(), types.DomainBase, recipient, noble.BurnToken)
	require.ErrorIs(t, err, types.ErrValidation)
}
