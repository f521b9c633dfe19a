package database

import (
	"fmt"
	"math"

	"swap-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// toUnits converts an amount to integer minor units at the given scale.
func toUnits(amount decimal.Decimal, scale int32) (int64, error) {
	shifted := amount.Shift(scale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s at scale %d", store.ErrAmountPrecision, amount.String(), scale)
	}
	if shifted.Abs().GreaterThan(maxUnits) {
		return 0, fmt.Errorf("%w: %s overflows at scale %d", store.ErrAmountPrecision, amount.String(), scale)
	}
	return shifted.IntPart(), nil
}

func fromUnits(units int64, scale int32) decimal.Decimal {
	return decimal.New(units, -scale)
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s '%s': %w", field, value, err)
	}
	return amount, nil
}
