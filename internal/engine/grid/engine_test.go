package grid_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/engine/grid"
	"bitget-marketmaker/internal/events"
	"bitget-marketmaker/internal/mock"
	"bitget-marketmaker/internal/risk"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                 {}
func (noopLogger) Info(string, ...interface{})                  {}
func (noopLogger) Warn(string, ...interface{})                  {}
func (noopLogger) Error(string, ...interface{})                 {}
func (noopLogger) Fatal(string, ...interface{})                 {}
func (n noopLogger) WithField(string, interface{}) core.ILogger  { return n }
func (n noopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

type noopPersistence struct{}

func (noopPersistence) PersistNewOrder(*core.TrackedOrder, string, core.VenueKind, string) {}
func (noopPersistence) PersistOrderStatusChange(string, core.OrderStatus, int64, string)   {}
func (noopPersistence) PersistRealizedPnl(decimal.Decimal, decimal.Decimal, bool, string)  {}
func (noopPersistence) SaveActiveConfig(string, string)                                   {}
func (noopPersistence) LoadActiveConfig(context.Context, string) (string, error)          { return "", nil }
func (noopPersistence) LoadPendingOrders(context.Context, string, core.VenueKind) ([]*core.TrackedOrder, error) {
	return nil, nil
}
func (noopPersistence) Close() error { return nil }

func newTestEngine(t *testing.T, exch *mock.Exchange) (*grid.Engine, *events.Ring) {
	t.Helper()

	cfg := config.DefaultGridConfig()
	cfg.Base.Symbol = "BTCUSDT"
	cfg.Base.Notional = decimal.NewFromInt(100)
	cfg.Base.MaxPosition = decimal.NewFromInt(100000)
	cfg.Base.PollIntervalMs = 200
	cfg.LowerPrice = decimal.NewFromInt(90)
	cfg.UpperPrice = decimal.NewFromInt(110)
	cfg.GridCount = 4

	spec := core.InstrumentSpec{Symbol: "BTCUSDT", PricePlace: 2, VolumePlace: 4, MinTradeNum: decimal.NewFromFloat(0.0001)}
	services := core.TradingServices{Order: exch, Market: exch, Account: exch, Venue: core.VenueDerivatives}
	riskCtrl := risk.NewController(decimal.NewFromInt(100000), decimal.NewFromInt(90), cfg.Base.MaxPosition, 1000)
	ring := events.New()

	eng, err := grid.New(cfg, spec, services, riskCtrl, noopPersistence{}, ring, noopLogger{}, core.HoldModeSingle)
	require.NoError(t, err)
	return eng, ring
}

func TestGridEngine_StartPlacesBuysBelowCurrentPrice(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100), BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100)})

	eng, ring := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	assert.Eventually(t, func() bool {
		for _, lv := range eng.Levels() {
			if lv.Price.LessThan(decimal.NewFromInt(100)) && lv.State != core.GridBuyPending {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	snap := ring.Snapshot()
	assert.NotEmpty(t, snap)
	assert.Equal(t, core.EventStrategyStarted, snap[0].Type)
}

func TestGridEngine_BuyFillTransitionsLevelAndPlacesSell(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100), BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100)})

	eng, _ := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	var buyOrderID string
	require.Eventually(t, func() bool {
		for _, lv := range eng.Levels() {
			if lv.State == core.GridBuyPending {
				buyOrderID = lv.BuyOrderID
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	exch.SimulateFill(buyOrderID, decimal.NewFromInt(95))

	assert.Eventually(t, func() bool {
		for _, lv := range eng.Levels() {
			if lv.BuyOrderID == buyOrderID {
				return lv.State == core.GridBuyFilled || lv.State == core.GridSellPending
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGridEngine_StopCancelsPendingAndResetsLevels(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100)})

	eng, _ := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	require.Eventually(t, func() bool {
		for _, lv := range eng.Levels() {
			if lv.State == core.GridBuyPending {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, eng.Stop(ctx))
	assert.Equal(t, core.StateStopped, eng.State())
	for _, lv := range eng.Levels() {
		assert.Equal(t, core.GridEmpty, lv.State)
	}
}
