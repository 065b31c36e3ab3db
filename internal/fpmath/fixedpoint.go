package fpmath

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// Fixed-point scales shared across the engine.
const (
	// Precision is the shared scale for prices, sizes and collateral
	// amounts (7 decimals, Stellar asset convention).
	Precision int64 = 10_000_000

	// BpsDenominator converts basis-point parameters to fractions.
	BpsDenominator int64 = 10_000

	// FundingPrecision is the scale of the funding rate.
	FundingPrecision int64 = 1_000_000
)

// ErrArithmeticRange is returned when a computation would overflow the
// signed 64-bit result domain (intermediates are carried in 128 bits).
var ErrArithmeticRange = errors.New("arithmetic result out of range")

// Side signs for direction-dependent math. Callers map their direction
// enum onto these so this package stays free of domain types.
const (
	SideLong  int64 = 1
	SideShort int64 = -1
)

var (
	maxInt64 = big.NewInt(math.MaxInt64)
	minInt64 = big.NewInt(math.MinInt64)
)

// int128Pool recycles big.Int scratch values for hot-path calculations.
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

// MulDiv computes a*b/denom with a 128-bit intermediate and truncating
// division. It fails with ErrArithmeticRange if the quotient does not fit
// in int64, and never silently wraps.
func MulDiv(a, b, denom int64) (int64, error) {
	if denom == 0 {
		return 0, ErrArithmeticRange
	}

	prod := getInt128()
	defer putInt128(prod)

	prod.Mul(big.NewInt(a), big.NewInt(b))
	prod.Quo(prod, big.NewInt(denom))

	if prod.Cmp(maxInt64) > 0 || prod.Cmp(minInt64) < 0 {
		return 0, ErrArithmeticRange
	}
	return prod.Int64(), nil
}

// CheckedMul computes a*b, failing with ErrArithmeticRange on int64 overflow.
func CheckedMul(a, b int64) (int64, error) {
	return MulDiv(a, b, 1)
}

// CheckedAdd computes a+b, failing with ErrArithmeticRange on int64 overflow.
func CheckedAdd(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrArithmeticRange
	}
	return sum, nil
}
