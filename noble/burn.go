package noble

import (
	"fmt"

	"cosmossdk.io/math"
	nobletypes "github.com/circlefin/noble-cctp/x/cctp/types"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

const (
	Domain    = types.DomainNoble
	BurnToken = "uusdc"
)

// NewBurnMsg builds a CCTP deposit-for-burn of amount burnToken from the signer,
// minted to the 32 byte mintRecipient on destinationDomain.
func NewBurnMsg(from string, amount math.Int, destinationDomain types.Domain, mintRecipient []byte, burnToken string) (*nobletypes.MsgDepositForBurn, error) {
	if len(mintRecipient) != 32 {
		return nil, types.Validationf("mint recipient must be 32 bytes, got %d", len(mintRecipient))
	}
	if !amount.IsPositive() {
		return nil, types.Validationf("burn amount must be positive, got %s", amount)
	}
	if burnToken == "" {
		return nil, fmt.Errorf("%w: burn token is required", types.ErrValidation)
	}

	return &nobletypes.MsgDepositForBurn{
		From:              from,
		Amount:            amount,
		DestinationDomain: uint32(destinationDomain),
		MintRecipient:     mintRecipient,
		BurnToken:         burnToken,
	}, nil
}
