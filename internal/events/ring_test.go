package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/core"
)

func TestEmit_AppendsInOrder(t *testing.T) {
	r := New()
	r.Emit(core.EventStrategyStarted, nil)
	r.Emit(core.EventBuyOrderPlaced, map[string]interface{}{"orderId": "o1"})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, core.EventStrategyStarted, snap[0].Type)
	assert.Equal(t, core.EventBuyOrderPlaced, snap[1].Type)
	assert.Equal(t, "o1", snap[1].Data["orderId"])
}

func TestEmit_EvictsOldestPastCapacity(t *testing.T) {
	r := New()
	for i := 0; i < capacity+10; i++ {
		r.Emit(core.EventConfigUpdated, map[string]interface{}{"i": fmt.Sprintf("%d", i)})
	}

	snap := r.Snapshot()
	require.Len(t, snap, capacity)
	assert.Equal(t, "10", snap[0].Data["i"], "the oldest 10 entries should have been evicted")
	assert.Equal(t, fmt.Sprintf("%d", capacity+9), snap[len(snap)-1].Data["i"])
}

func TestSnapshot_ReturnsIndependentCopy(t *testing.T) {
	r := New()
	r.Emit(core.EventStrategyStarted, nil)

	snap := r.Snapshot()
	snap[0].Type = core.EventEmergencyStop

	assert.Equal(t, core.EventStrategyStarted, r.Snapshot()[0].Type)
}
