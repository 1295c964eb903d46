package grid

import (
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/pkg/strategyerr"
	"bitget-marketmaker/pkg/tradingutils"
)

// buildLevels constructs the gridCount+1 ladder rungs between lower and
// upper (§4.3). Fails fast with strategyerr.ErrGridConfigInvalid if the
// bounds are non-positive or inverted.
func buildLevels(lower, upper, notional decimal.Decimal, gridCount int, gridType core.GridType, pricePlace, volumePlace int32) ([]*core.GridLevel, error) {
	if lower.LessThanOrEqual(decimal.Zero) || upper.LessThanOrEqual(decimal.Zero) || upper.LessThanOrEqual(lower) {
		return nil, strategyerr.ErrGridConfigInvalid
	}

	levels := make([]*core.GridLevel, gridCount+1)
	for i := 0; i <= gridCount; i++ {
		var price decimal.Decimal
		if gridType == core.GridGeometric {
			price = tradingutils.GeometricGridPrice(lower, upper, i, gridCount)
		} else {
			price = tradingutils.ArithmeticGridPrice(lower, upper, i, gridCount)
		}
		price = price.Round(pricePlace)

		size := decimal.Zero
		if !price.IsZero() {
			size = notional.Div(price).Round(volumePlace)
		}

		levels[i] = &core.GridLevel{
			Index: i,
			Price: price,
			State: core.GridEmpty,
			Size:  size,
		}
	}
	return levels, nil
}

// nextSellPrice returns the price a buy_filled level at idx should sell
// at: the next-higher rung's price, or thisPrice + the ladder's top
// segment width if idx is already the ceiling rung (§4.3 step 5).
func nextSellPrice(levels []*core.GridLevel, idx int) decimal.Decimal {
	if idx+1 < len(levels) {
		return levels[idx+1].Price
	}
	if idx == 0 {
		return levels[idx].Price
	}
	spacing := levels[idx].Price.Sub(levels[idx-1].Price)
	return levels[idx].Price.Add(spacing)
}
