package rewards

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	lowerTier = decimal.NewFromInt(50)
	upperTier = decimal.NewFromInt(100)
	two       = decimal.NewFromInt(2)
	maxPoints = decimal.NewFromInt(int64(math.MaxInt))
)

// Points returns the reward points earned by a purchase of the given amount.
//
// Rules:
//   - amount <= 50: no points
//   - 50 < amount <= 100: 1 point per whole dollar above 50
//   - amount > 100: 50 points for the 50-100 band, plus 2 points per whole
//     dollar above 100
//
// Fractional dollars are dropped within each tier, so 120.99 earns 90.
// Amounts whose points do not fit in an int saturate at math.MaxInt;
// Validator rejects them before they get here.
func Points(amount decimal.Decimal) int {
	var points decimal.Decimal
	switch {
	case amount.GreaterThan(upperTier):
		over := amount.Sub(upperTier).Floor()
		points = over.Mul(two).Add(upperTier.Sub(lowerTier))
	case amount.GreaterThan(lowerTier):
		points = amount.Sub(lowerTier).Floor()
	default:
		return 0
	}
	if points.GreaterThan(maxPoints) {
		return math.MaxInt
	}
	return int(points.IntPart())
}
