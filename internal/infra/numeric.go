package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// minorExp is the scale of numeric(18,2) money columns.
const minorExp = -2

// NumericToMinor converts a numeric(18,2) value to int64 minor units.
// NULL, sub-minor precision and int64 overflow are errors.
func NumericToMinor(n pgtype.Numeric) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric value is not finite")
	}

	bi := new(big.Int).Set(n.Int)
	shift := n.Exp - minorExp
	switch {
	case shift > 0:
		bi.Mul(bi, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil))
	case shift < 0:
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-shift)), nil)
		rem := new(big.Int)
		bi.QuoRem(bi, divisor, rem)
		if rem.Sign() != 0 {
			return 0, fmt.Errorf("numeric value has more than 2 decimal places")
		}
	}

	if !bi.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64", bi.String())
	}
	return bi.Int64(), nil
}

// MinorToNumeric converts minor units to a numeric(18,2) parameter.
func MinorToNumeric(v int64) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(v),
		Exp:              minorExp,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

// NumericToDecimal converts a numeric column (e.g. fee_percent) to a decimal.
func NumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("numeric value is not finite")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// DecimalToNumeric converts a decimal to a numeric parameter.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              d.Coefficient(),
		Exp:              d.Exponent(),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}
