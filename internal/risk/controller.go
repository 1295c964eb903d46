// Package risk implements the trade-entry gatekeeper (§4.6), grounded on
// the teacher's internal/risk/circuit_breaker.go state-machine shape
// (tripped/cooldown/reset) but reworked around the spec's five ordered
// checks instead of a binary open/closed circuit.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
)

// Controller implements core.RiskController.
type Controller struct {
	mu sync.Mutex

	maxDailyLoss       decimal.Decimal
	maxDrawdownPercent decimal.Decimal
	maxPosition        decimal.Decimal
	cooldownMs         int64

	state core.RiskState
}

// NewController builds a Controller seeded from the strategy config's
// risk bounds; currentEquity/peakEquity are primed by the first
// UpdateEquity call on engine start.
func NewController(maxDailyLoss, maxDrawdownPercent, maxPosition decimal.Decimal, cooldownMs int64) *Controller {
	return &Controller{
		maxDailyLoss:       maxDailyLoss,
		maxDrawdownPercent: maxDrawdownPercent,
		maxPosition:        maxPosition,
		cooldownMs:         cooldownMs,
		state: core.RiskState{
			DailyResetKey: time.Now().UTC().Format("2006-01-02"),
		},
	}
}

// CheckCanTrade implements core.RiskController, evaluating the five
// ordered checks from §4.6.
func (c *Controller) CheckCanTrade(nowMs int64, currentPositionNotional decimal.Decimal) core.RiskDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover(nowMs)

	if c.state.CoolingUntil > nowMs {
		return core.RiskDecision{
			Allowed:         false,
			Reason:          "cooldown active",
			CooldownSeconds: (c.state.CoolingUntil - nowMs) / 1000,
		}
	}

	if c.maxDailyLoss.GreaterThan(decimal.Zero) && c.state.DailyPnl.LessThanOrEqual(c.maxDailyLoss.Neg()) {
		c.state.CoolingUntil = nowMs + c.cooldownMs
		return core.RiskDecision{
			Allowed:         false,
			Reason:          "daily loss limit",
			CooldownSeconds: c.cooldownMs / 1000,
		}
	}

	if !c.state.PeakEquity.IsZero() {
		drawdown := c.state.PeakEquity.Sub(c.state.CurrentEquity).Div(c.state.PeakEquity).Mul(decimal.NewFromInt(100))
		if drawdown.GreaterThanOrEqual(c.maxDrawdownPercent) {
			c.state.CoolingUntil = nowMs + c.cooldownMs
			return core.RiskDecision{
				Allowed:         false,
				Reason:          fmt.Sprintf("drawdown %.2f%% exceeds limit", drawdown.InexactFloat64()),
				CooldownSeconds: c.cooldownMs / 1000,
			}
		}
	}

	if c.maxPosition.GreaterThan(decimal.Zero) && currentPositionNotional.GreaterThanOrEqual(c.maxPosition) {
		return core.RiskDecision{Allowed: false, Reason: "position cap reached"}
	}

	return core.RiskDecision{Allowed: true}
}

// RecordPnl implements core.RiskController (§4.6 "recordPnl").
func (c *Controller) RecordPnl(net decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover(time.Now().UTC().UnixMilli())

	c.state.DailyPnl = c.state.DailyPnl.Add(net)
	c.state.CurrentEquity = c.state.CurrentEquity.Add(net)
	if c.state.CurrentEquity.GreaterThan(c.state.PeakEquity) {
		c.state.PeakEquity = c.state.CurrentEquity
	}

	c.state.TotalTrades++
	if net.IsNegative() {
		c.state.LossTrades++
		c.state.SumLoss = c.state.SumLoss.Add(net)
	} else {
		c.state.WinTrades++
		c.state.SumWin = c.state.SumWin.Add(net)
	}
}

// UpdateEquity implements core.RiskController, called after each fresh
// equity read from the account service.
func (c *Controller) UpdateEquity(equity decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.CurrentEquity = equity
	if equity.GreaterThan(c.state.PeakEquity) {
		c.state.PeakEquity = equity
	}
}

// State implements core.RiskController.
func (c *Controller) State() core.RiskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// rollover resets dailyPnl when the UTC calendar date has advanced since
// dailyResetKey (§4.6 step 1). Caller holds c.mu.
func (c *Controller) rollover(nowMs int64) {
	today := time.UnixMilli(nowMs).UTC().Format("2006-01-02")
	if today != c.state.DailyResetKey {
		c.state.DailyPnl = decimal.Zero
		c.state.DailyResetKey = today
	}
}
