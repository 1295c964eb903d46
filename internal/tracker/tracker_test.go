package tracker

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/core"
)

func buy(id string, status core.OrderStatus, createdAt int64) *core.TrackedOrder {
	return &core.TrackedOrder{OrderID: id, Side: core.SideBuy, Status: status, CreatedAt: createdAt, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}
}

func sell(id string, status core.OrderStatus, createdAt int64) *core.TrackedOrder {
	return &core.TrackedOrder{OrderID: id, Side: core.SideSell, Status: status, CreatedAt: createdAt, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}
}

func TestAdd_SetsActiveBuyForPendingBuy(t *testing.T) {
	trk := New()
	trk.Add(buy("b1", core.StatusPending, 1))

	active := trk.ActiveBuy()
	require.NotNil(t, active)
	assert.Equal(t, "b1", active.OrderID)
}

func TestActiveBuy_NilWhenNotPending(t *testing.T) {
	trk := New()
	trk.Add(buy("b1", core.StatusFilled, 1))
	assert.Nil(t, trk.ActiveBuy())
}

func TestPendingSells_OrderedByCreatedAt(t *testing.T) {
	trk := New()
	trk.Add(sell("s2", core.StatusPending, 2))
	trk.Add(sell("s1", core.StatusPending, 1))

	sells := trk.PendingSells()
	require.Len(t, sells, 2)
	assert.Equal(t, "s1", sells[0].OrderID)
	assert.Equal(t, "s2", sells[1].OrderID)
}

func TestSetStatus_NeverRegressesFromTerminal(t *testing.T) {
	trk := New()
	trk.Add(buy("b1", core.StatusFilled, 1))
	trk.SetStatus("b1", core.StatusCancelled, 0)

	o, ok := trk.Get("b1")
	require.True(t, ok)
	assert.Equal(t, core.StatusFilled, o.Status)
}

func TestSetStatus_ClearsActiveBuyOnTerminal(t *testing.T) {
	trk := New()
	trk.Add(buy("b1", core.StatusPending, 1))
	trk.SetStatus("b1", core.StatusFilled, 100)

	assert.Nil(t, trk.ActiveBuy())
}

func TestSetLinkedOrderID_WriteOnce(t *testing.T) {
	trk := New()
	trk.Add(sell("s1", core.StatusPending, 1))
	trk.SetLinkedOrderID("s1", "b1")
	trk.SetLinkedOrderID("s1", "b2")

	o, _ := trk.Get("s1")
	assert.Equal(t, "b1", o.LinkedOrderID)
}

func TestFindDisappeared_OnlyReportsMissingFromExchangeSet(t *testing.T) {
	trk := New()
	trk.Add(buy("b1", core.StatusPending, 1))
	trk.Add(sell("s1", core.StatusPending, 2))

	snapshot := trk.PendingOrderIDs()
	exchangePending := map[string]bool{"s1": true}

	disappeared := trk.FindDisappeared(snapshot, exchangePending)
	require.Len(t, disappeared, 1)
	assert.Equal(t, "b1", disappeared[0].OrderID)
}

func TestTotalPositionNotional_SumsPendingSells(t *testing.T) {
	trk := New()
	trk.Add(sell("s1", core.StatusPending, 1))
	trk.Add(sell("s2", core.StatusPending, 2))

	assert.True(t, trk.TotalPositionNotional().Equal(decimal.NewFromInt(200)))
}

func TestRemove_ClearsActiveBuy(t *testing.T) {
	trk := New()
	trk.Add(buy("b1", core.StatusPending, 1))
	trk.Remove("b1")

	assert.Nil(t, trk.ActiveBuy())
	_, ok := trk.Get("b1")
	assert.False(t, ok)
}

func TestTrim_EvictsOldestTerminalOnly(t *testing.T) {
	trk := New()
	for i := 0; i < maxNonPending+5; i++ {
		trk.Add(sell(fmt.Sprintf("s%d", i), core.StatusFilled, int64(i)))
	}
	trk.Add(buy("still-pending", core.StatusPending, 0))

	trk.Trim()

	assert.LessOrEqual(t, len(trk.All()), maxNonPending+1)
	_, ok := trk.Get("still-pending")
	assert.True(t, ok, "pending orders must never be evicted")
}
