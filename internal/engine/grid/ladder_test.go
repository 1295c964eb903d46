package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/pkg/strategyerr"
)

func TestBuildLevels_ArithmeticSpacingIsEven(t *testing.T) {
	levels, err := buildLevels(decimal.NewFromInt(100), decimal.NewFromInt(200), decimal.NewFromInt(1000), 10, core.GridArithmetic, 2, 4)
	require.NoError(t, err)
	require.Len(t, levels, 11)

	assert.True(t, levels[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, levels[10].Price.Equal(decimal.NewFromInt(200)))
	assert.True(t, levels[5].Price.Equal(decimal.NewFromInt(150)))

	for _, l := range levels {
		assert.Equal(t, core.GridEmpty, l.State)
		assert.True(t, l.Size.GreaterThan(decimal.Zero))
	}
}

func TestBuildLevels_GeometricEndpointsMatchBounds(t *testing.T) {
	levels, err := buildLevels(decimal.NewFromInt(100), decimal.NewFromInt(400), decimal.NewFromInt(1000), 4, core.GridGeometric, 2, 4)
	require.NoError(t, err)
	require.Len(t, levels, 5)

	assert.InDelta(t, 100.0, mustFloat(t, levels[0].Price), 0.5)
	assert.InDelta(t, 400.0, mustFloat(t, levels[4].Price), 0.5)
}

func TestBuildLevels_RejectsInvertedBounds(t *testing.T) {
	_, err := buildLevels(decimal.NewFromInt(200), decimal.NewFromInt(100), decimal.NewFromInt(1000), 10, core.GridArithmetic, 2, 4)
	assert.ErrorIs(t, err, strategyerr.ErrGridConfigInvalid)
}

func TestBuildLevels_RejectsNonPositiveBounds(t *testing.T) {
	_, err := buildLevels(decimal.Zero, decimal.NewFromInt(100), decimal.NewFromInt(1000), 10, core.GridArithmetic, 2, 4)
	assert.ErrorIs(t, err, strategyerr.ErrGridConfigInvalid)
}

func TestNextSellPrice_UsesNextRungWhenAvailable(t *testing.T) {
	levels, err := buildLevels(decimal.NewFromInt(100), decimal.NewFromInt(200), decimal.NewFromInt(1000), 10, core.GridArithmetic, 2, 4)
	require.NoError(t, err)

	got := nextSellPrice(levels, 3)
	assert.True(t, got.Equal(levels[4].Price))
}

func TestNextSellPrice_ExtrapolatesPastCeilingRung(t *testing.T) {
	levels, err := buildLevels(decimal.NewFromInt(100), decimal.NewFromInt(200), decimal.NewFromInt(1000), 10, core.GridArithmetic, 2, 4)
	require.NoError(t, err)

	top := len(levels) - 1
	spacing := levels[top].Price.Sub(levels[top-1].Price)
	got := nextSellPrice(levels, top)
	assert.True(t, got.Equal(levels[top].Price.Add(spacing)))
}

func mustFloat(t *testing.T, d decimal.Decimal) float64 {
	t.Helper()
	f, _ := d.Float64()
	return f
}
