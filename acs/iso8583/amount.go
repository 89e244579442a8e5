package iso8583

import (
	"fmt"
	"strconv"

	"github.com/alovak/paytrust/internal/money"
	"github.com/shopspring/decimal"
)

const maxMinorUnits = 999_999_999_999

// minorUnits formats amount as the 12-digit DE4 value.
func minorUnits(amount decimal.Decimal, currency string) (string, error) {
	shifted := amount.Shift(money.Exponent(currency))
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more decimals than %s allows", amount, currency)
	}
	if shifted.IsNegative() || shifted.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return "", fmt.Errorf("amount %s out of range", amount)
	}
	return fmt.Sprintf("%012d", shifted.IntPart()), nil
}

func fromMinorUnits(s, currency string) (decimal.Decimal, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount: %w", err)
	}
	return decimal.New(n, -money.Exponent(currency)), nil
}
