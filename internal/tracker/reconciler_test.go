package tracker_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/mock"
	"bitget-marketmaker/internal/tracker"
)

func TestReconcile_ClassifiesFilledCancelledAndStillLive(t *testing.T) {
	exch := mock.New()
	ctx := context.Background()

	filled, err := exch.PlaceOrder(ctx, core.PlaceOrderParams{Symbol: "BTCUSDT", Side: core.SideBuy, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)})
	require.NoError(t, err)
	cancelled, err := exch.PlaceOrder(ctx, core.PlaceOrderParams{Symbol: "BTCUSDT", Side: core.SideBuy, Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)})
	require.NoError(t, err)
	stillLive, err := exch.PlaceOrder(ctx, core.PlaceOrderParams{Symbol: "BTCUSDT", Side: core.SideBuy, Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(1)})
	require.NoError(t, err)

	trk := tracker.New()
	trk.Add(filled)
	trk.Add(cancelled)
	trk.Add(stillLive)

	exch.SimulateFill(filled.OrderID, decimal.NewFromInt(100))
	exch.SimulateCancel(cancelled.OrderID)
	// stillLive remains pending on the exchange, so it is not "disappeared".

	result, err := tracker.Reconcile(ctx, trk, exch, "BTCUSDT")
	require.NoError(t, err)

	require.Len(t, result.Filled, 1)
	assert.Equal(t, filled.OrderID, result.Filled[0].OrderID)
	require.Len(t, result.Cancelled, 1)
	assert.Equal(t, cancelled.OrderID, result.Cancelled[0].OrderID)
	assert.Empty(t, result.StillLive)

	o, _ := trk.Get(filled.OrderID)
	assert.Equal(t, core.StatusFilled, o.Status)
	o, _ = trk.Get(stillLive.OrderID)
	assert.Equal(t, core.StatusPending, o.Status)
}
