// Package tradingutils holds the decimal rounding, sizing, and
// weighted-average helpers shared by the scalping engine, grid engine,
// and merge engine — grounded on the teacher's
// pkg/tradingutils/math.go, generalized from fixed-decimal price levels to
// the instrument-precision rounding this spec requires.
package tradingutils

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundPrice rounds price to pricePlace decimals (banker's-safe half-up,
// matching decimal.Decimal.Round).
func RoundPrice(price decimal.Decimal, pricePlace int32) decimal.Decimal {
	return price.Round(pricePlace)
}

// RoundSizeDown truncates size to volumePlace decimals. Sizes are always
// rounded DOWN (never up) so a placed order never exceeds the requested
// notional (§4.2 "Size calculation").
func RoundSizeDown(size decimal.Decimal, volumePlace int32) decimal.Decimal {
	return size.Truncate(volumePlace)
}

// CalcSize computes size = round_down(notional/price, volumePlace) and
// reports whether the result clears both the instrument's minTradeNum and
// the smallest representable size step (§4.2, §8 boundary behaviors).
func CalcSize(notional, price, minTradeNum decimal.Decimal, volumePlace int32) (size decimal.Decimal, ok bool) {
	if price.IsZero() || price.IsNegative() {
		return decimal.Zero, false
	}
	raw := notional.Div(price)
	size = RoundSizeDown(raw, volumePlace)

	minStep := decimal.New(1, -volumePlace)
	if size.LessThan(minStep) {
		return decimal.Zero, false
	}
	if size.LessThan(minTradeNum) {
		return decimal.Zero, false
	}
	return size, true
}

// WeightedAveragePrice computes the size-weighted average of prices/sizes,
// used by the merge engine (§4.5): avgPrice = Σ(price_i·size_i) / Σsize_i.
func WeightedAveragePrice(prices, sizes []decimal.Decimal) (avgPrice, totalSize decimal.Decimal) {
	totalSize = decimal.Zero
	weighted := decimal.Zero
	for i := range prices {
		weighted = weighted.Add(prices[i].Mul(sizes[i]))
		totalSize = totalSize.Add(sizes[i])
	}
	if totalSize.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return weighted.Div(totalSize), totalSize
}

// ArithmeticGridPrice computes price_i = lower + i·(upper-lower)/gridCount
// (§4.3).
func ArithmeticGridPrice(lower, upper decimal.Decimal, i, gridCount int) decimal.Decimal {
	step := upper.Sub(lower).Div(decimal.NewFromInt(int64(gridCount)))
	return lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
}

// GeometricGridPrice computes price_i = lower · (upper/lower)^(i/gridCount)
// (§4.3).
func GeometricGridPrice(lower, upper decimal.Decimal, i, gridCount int) decimal.Decimal {
	ratio := upper.Div(lower)
	lf, _ := lower.Float64()
	rf, _ := ratio.Float64()
	exp := float64(i) / float64(gridCount)
	return decimal.NewFromFloat(lf * math.Pow(rf, exp))
}
