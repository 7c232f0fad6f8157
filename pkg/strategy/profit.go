package strategy

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateProfit returns the percentage change from base to out:
// (out - base) / base * 100. Amounts are integer base units.
func CalculateProfit(base, out uint64) (decimal.Decimal, error) {
	if base == 0 {
		return decimal.Zero, ErrZeroBaseline
	}

	b := fromBaseUnits(base)
	o := fromBaseUnits(out)
	return o.Sub(b).Div(b).Mul(hundred), nil
}

// ToDecimal converts base units to display units for the given precision.
func ToDecimal(amount uint64, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// ToBaseUnits converts a display amount to base units, truncating extra precision.
func ToBaseUnits(amount decimal.Decimal, decimals int) uint64 {
	scaled := amount.Shift(int32(decimals)).Truncate(0)
	if scaled.Sign() <= 0 {
		return 0
	}
	return scaled.BigInt().Uint64()
}

func fromBaseUnits(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
}
