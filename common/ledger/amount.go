package ledger

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// weiDecimals is the fixed-point scale of the ledger's native currency
const weiDecimals = 18

// ToWei converts a display amount (ETH) to wei without rounding.
// Negative amounts and amounts with more than 18 fractional digits are rejected.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrAmountPrecision, amount.String())
	}

	shifted := amount.Shift(weiDecimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d decimal places", ErrAmountPrecision, amount.String(), weiDecimals)
	}

	return shifted.BigInt(), nil
}

// FromWei converts wei to a display amount (ETH). Exact for any input.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// ParseAmount parses a decimal string amount as sent by clients
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}
