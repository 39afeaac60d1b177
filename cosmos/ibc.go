package cosmos

import (
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	ibctransfertypes "github.com/cosmos/ibc-go/v4/modules/apps/transfer/types"
	clienttypes "github.com/cosmos/ibc-go/v4/modules/core/02-client/types"
)

const TransferPort = "transfer"

// NewTransferMsg builds an ICS-20 transfer that times out timeout after now.
func NewTransferMsg(sender, receiver, channel, denom string, amount math.Int, timeout time.Duration, now time.Time, memo string) *ibctransfertypes.MsgTransfer {
	return &ibctransfertypes.MsgTransfer{
		SourcePort:       TransferPort,
		SourceChannel:    channel,
		Token:            sdk.NewCoin(denom, sdk.NewIntFromBigInt(amount.BigInt())),
		Sender:           sender,
		Receiver:         receiver,
		TimeoutHeight:    clienttypes.ZeroHeight(),
		TimeoutTimestamp: uint64(now.Add(timeout).UnixNano()),
		Memo:             memo,
	}
}
