package merge_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/merge"
	"bitget-marketmaker/internal/mock"
	"bitget-marketmaker/internal/tracker"
)

func spec() core.InstrumentSpec {
	return core.InstrumentSpec{Symbol: "BTCUSDT", PricePlace: 2, VolumePlace: 4, MinTradeNum: decimal.NewFromFloat(0.0001)}
}

func TestRun_NoopBelowThreshold(t *testing.T) {
	exch := mock.New()
	trk := tracker.New()
	eng := merge.New(trk, exch, spec(), core.HoldModeSingle)

	o, err := exch.PlaceOrder(context.Background(), core.PlaceOrderParams{Symbol: "BTCUSDT", Side: core.SideSell, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)})
	require.NoError(t, err)
	trk.Add(o)

	result, err := eng.Run(context.Background(), "BTCUSDT", 5)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRun_MergesOldestSellsIntoWeightedAverage(t *testing.T) {
	exch := mock.New()
	trk := tracker.New()
	eng := merge.New(trk, exch, spec(), core.HoldModeDouble)
	ctx := context.Background()

	for i, price := range []int64{100, 200} {
		o, err := exch.PlaceOrder(ctx, core.PlaceOrderParams{Symbol: "BTCUSDT", Side: core.SideSell, Price: decimal.NewFromInt(price), Size: decimal.NewFromInt(1)})
		require.NoError(t, err)
		o.CreatedAt = int64(i)
		trk.Add(o)
	}

	result, err := eng.Run(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2, result.MergedCount)
	assert.True(t, result.AvgPrice.Equal(decimal.NewFromInt(150)), "got %s", result.AvgPrice)
	assert.True(t, result.TotalSize.Equal(decimal.NewFromInt(2)))

	newOrder, ok := trk.Get(result.NewOrderID)
	require.True(t, ok)
	assert.Equal(t, core.SideSell, newOrder.Side)

	sells := trk.PendingSells()
	assert.Len(t, sells, 1, "constituents should be cancelled, only the merged sell pending")
}
