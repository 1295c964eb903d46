package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCanTrade_AllowsWhenClean(t *testing.T) {
	c := NewController(decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(1000), 60000)
	c.UpdateEquity(decimal.NewFromInt(10000))

	decision := c.CheckCanTrade(time.Now().UnixMilli(), decimal.Zero)
	assert.True(t, decision.Allowed)
}

func TestCheckCanTrade_CooldownBlocks(t *testing.T) {
	c := NewController(decimal.NewFromInt(100), decimal.NewFromInt(10), decimal.NewFromInt(1000), 60000)
	now := time.Now().UnixMilli()
	c.UpdateEquity(decimal.NewFromInt(10000))
	c.RecordPnl(decimal.NewFromInt(-100)) // trips daily loss, arms cooldown

	decision := c.CheckCanTrade(now, decimal.Zero)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "daily loss limit", decision.Reason)
	assert.Greater(t, decision.CooldownSeconds, int64(0))
}

func TestCheckCanTrade_DrawdownBlocks(t *testing.T) {
	c := NewController(decimal.NewFromInt(100000), decimal.NewFromInt(10), decimal.NewFromInt(1000), 60000)
	c.UpdateEquity(decimal.NewFromInt(10000))
	c.UpdateEquity(decimal.NewFromInt(8900)) // 11% drawdown from peak

	decision := c.CheckCanTrade(time.Now().UnixMilli(), decimal.Zero)
	require.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "drawdown")
}

func TestCheckCanTrade_PositionCapBlocks(t *testing.T) {
	c := NewController(decimal.NewFromInt(100000), decimal.NewFromInt(90), decimal.NewFromInt(500), 60000)
	c.UpdateEquity(decimal.NewFromInt(10000))

	decision := c.CheckCanTrade(time.Now().UnixMilli(), decimal.NewFromInt(600))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "position cap reached", decision.Reason)
}

func TestRecordPnl_TracksWinLossCounts(t *testing.T) {
	c := NewController(decimal.NewFromInt(100000), decimal.NewFromInt(90), decimal.NewFromInt(1000000), 60000)
	c.UpdateEquity(decimal.NewFromInt(10000))
	c.RecordPnl(decimal.NewFromInt(10))
	c.RecordPnl(decimal.NewFromInt(-5))

	state := c.State()
	assert.Equal(t, 2, state.TotalTrades)
	assert.Equal(t, 1, state.WinTrades)
	assert.Equal(t, 1, state.LossTrades)
}

func TestRollover_ResetsDailyPnlOnNewDay(t *testing.T) {
	c := NewController(decimal.NewFromInt(100000), decimal.NewFromInt(90), decimal.NewFromInt(1000000), 60000)
	c.UpdateEquity(decimal.NewFromInt(10000))
	c.RecordPnl(decimal.NewFromInt(-50))
	require.False(t, c.State().DailyPnl.IsZero())

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).UnixMilli()
	c.CheckCanTrade(tomorrow, decimal.Zero)
	assert.True(t, c.State().DailyPnl.IsZero())
}
