package tradingutils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRoundPrice(t *testing.T) {
	assert.True(t, RoundPrice(d("100.12345"), 2).Equal(d("100.12")))
}

func TestRoundSizeDown(t *testing.T) {
	assert.True(t, RoundSizeDown(d("1.2399"), 2).Equal(d("1.23")))
}

func TestCalcSize(t *testing.T) {
	size, ok := CalcSize(d("1000"), d("50000"), d("0.0001"), 4)
	require.True(t, ok)
	assert.True(t, size.Equal(d("0.02")))
}

func TestCalcSize_ZeroPriceRejected(t *testing.T) {
	_, ok := CalcSize(d("1000"), decimal.Zero, d("0.0001"), 4)
	assert.False(t, ok)
}

func TestCalcSize_BelowMinTradeNumRejected(t *testing.T) {
	_, ok := CalcSize(d("1"), d("50000"), d("0.001"), 4)
	assert.False(t, ok)
}

func TestWeightedAveragePrice(t *testing.T) {
	prices := []decimal.Decimal{d("100"), d("200")}
	sizes := []decimal.Decimal{d("1"), d("1")}
	avg, total := WeightedAveragePrice(prices, sizes)
	assert.True(t, avg.Equal(d("150")))
	assert.True(t, total.Equal(d("2")))
}

func TestWeightedAveragePrice_EmptyIsZero(t *testing.T) {
	avg, total := WeightedAveragePrice(nil, nil)
	assert.True(t, avg.IsZero())
	assert.True(t, total.IsZero())
}

func TestArithmeticGridPrice(t *testing.T) {
	price := ArithmeticGridPrice(d("100"), d("200"), 5, 10)
	assert.True(t, price.Equal(d("150")), "got %s", price)
}

func TestGeometricGridPrice_Endpoints(t *testing.T) {
	lower := d("100")
	upper := d("200")
	low := GeometricGridPrice(lower, upper, 0, 10)
	high := GeometricGridPrice(lower, upper, 10, 10)
	assert.InDelta(t, 100.0, mustFloat(low), 0.01)
	assert.InDelta(t, 200.0, mustFloat(high), 0.01)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
