package types

import "time"

// Speed tiers offered by the off-ramp.
const (
	SpeedStandard = "standard"
	SpeedInstant  = "instant"
)

// WithdrawalMode selects how the on-chain leg of a withdrawal is paid for.
type WithdrawalMode string

const (
	// ModeGas submits the token transfer from the user's wallet and pays gas.
	ModeGas WithdrawalMode = "gas"
	// ModeGasless signs a permit and lets the off-ramp execute the transfer.
	ModeGasless WithdrawalMode = "gasless"
)

// QuoteTier is the fee and net settlement for one speed tier.
type QuoteTier struct {
	Fee           string `json:"fee"`
	NetSettlement string `json:"net_settlement"`
}

// WithdrawalQuote is valid only for the amount, token and wallet it was requested with.
type WithdrawalQuote struct {
	Amount    string               `json:"amount"`
	Token     string               `json:"token"`
	Wallet    string               `json:"wallet"`
	Tiers     map[string]QuoteTier `json:"tiers"`
	GasFee    string               `json:"gas_fee,omitempty"`
	FetchedAt time.Time            `json:"fetched_at"`
}
