// Package amount sizes transfers from authoritative balances.
package amount

import (
	"fmt"
	"strings"

	"cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/strangelove-ventures/xion-cctp-bridge/types"
)

// USDCExponent is the number of decimals of USDC on every chain of the route.
const USDCExponent = 6

// ComputeSendable returns the amount that can leave an account holding balance
// while keeping gasReserve behind for fees.
//
// When requested is nil the whole balance minus the reserve is returned.
// Otherwise requested is returned unchanged if requested+gasReserve fits in balance.
func ComputeSendable(balance, gasReserve math.Int, requested *math.Int) (math.Int, error) {
	if balance.IsNil() {
		balance = math.ZeroInt()
	}
	if gasReserve.IsNil() || gasReserve.IsNegative() {
		gasReserve = math.ZeroInt()
	}

	if requested != nil {
		if requested.IsNil() || !requested.IsPositive() {
			return math.Int{}, types.Validationf("requested amount must be greater than zero")
		}
		needed := requested.Add(gasReserve)
		if needed.GT(balance) {
			return math.Int{}, fmt.Errorf("%w: need %s (amount %s + reserve %s), have %s",
				types.ErrInsufficientBalance, needed, *requested, gasReserve, balance)
		}
		return *requested, nil
	}

	sendable := balance.Sub(gasReserve)
	if !sendable.IsPositive() {
		return math.Int{}, fmt.Errorf("%w: balance %s does not cover reserve %s",
			types.ErrInsufficientBalance, balance, gasReserve)
	}
	return sendable, nil
}

// ParseUnits converts a decimal string in human units (e.g. "1.5" USDC) into the
// chain's smallest unit, flooring any extra precision. The result must be positive.
func ParseUnits(human string, exponent int32) (math.Int, error) {
	human = strings.TrimSpace(human)
	if human == "" {
		return math.Int{}, types.Validationf("amount is required")
	}
	d, err := decimal.NewFromString(human)
	if err != nil {
		return math.Int{}, types.Validationf("malformed amount %q", human)
	}
	smallest := d.Shift(exponent).Floor()
	if !smallest.IsPositive() {
		return math.Int{}, types.Validationf("amount %q must be greater than zero", human)
	}
	return math.NewIntFromBigInt(smallest.BigInt()), nil
}

// FormatUnits renders a smallest-unit amount in human units.
func FormatUnits(amount math.Int, exponent int32) string {
	if amount.IsNil() {
		return "0"
	}
	return decimal.NewFromBigInt(amount.BigInt(), -exponent).String()
}

// ParseSmallest parses an integer amount already expressed in the smallest unit,
// the format balance queries and off-ramp transaction details use.
func ParseSmallest(s string) (math.Int, error) {
	v, ok := math.NewIntFromString(strings.TrimSpace(s))
	if !ok {
		return math.Int{}, types.Validationf("malformed integer amount %q", s)
	}
	return v, nil
}
