package scalping_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/engine/scalping"
	"bitget-marketmaker/internal/events"
	"bitget-marketmaker/internal/merge"
	"bitget-marketmaker/internal/mock"
	"bitget-marketmaker/internal/risk"
	"bitget-marketmaker/internal/tracker"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                    {}
func (noopLogger) Info(string, ...interface{})                     {}
func (noopLogger) Warn(string, ...interface{})                     {}
func (noopLogger) Error(string, ...interface{})                    {}
func (noopLogger) Fatal(string, ...interface{})                    {}
func (n noopLogger) WithField(string, interface{}) core.ILogger     { return n }
func (n noopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

type noopPersistence struct{}

func (noopPersistence) PersistNewOrder(*core.TrackedOrder, string, core.VenueKind, string) {}
func (noopPersistence) PersistOrderStatusChange(string, core.OrderStatus, int64, string)    {}
func (noopPersistence) PersistRealizedPnl(decimal.Decimal, decimal.Decimal, bool, string)   {}
func (noopPersistence) SaveActiveConfig(string, string)                                    {}
func (noopPersistence) LoadActiveConfig(context.Context, string) (string, error)           { return "", nil }
func (noopPersistence) LoadPendingOrders(context.Context, string, core.VenueKind) ([]*core.TrackedOrder, error) {
	return nil, nil
}
func (noopPersistence) Close() error { return nil }

func newTestEngine(t *testing.T, exch *mock.Exchange) (*scalping.Engine, *tracker.Tracker, *events.Ring) {
	t.Helper()

	cfg := config.DefaultScalpingConfig()
	cfg.Base.Symbol = "BTCUSDT"
	cfg.Base.Notional = decimal.NewFromInt(100)
	cfg.Base.MaxPosition = decimal.NewFromInt(100000)
	cfg.Base.PollIntervalMs = 200
	cfg.Base.OrderCheckIntervalMs = 500
	cfg.PriceSpread = decimal.NewFromInt(10)
	cfg.MaxPendingOrders = 200
	cfg.MergeThreshold = 21

	spec := core.InstrumentSpec{
		Symbol: "BTCUSDT", PricePlace: 2, VolumePlace: 4,
		MinTradeNum:  decimal.NewFromFloat(0.0001),
		MakerFeeRate: decimal.NewFromFloat(0.0002),
		TakerFeeRate: decimal.NewFromFloat(0.0006),
	}
	services := core.TradingServices{Order: exch, Market: exch, Account: exch, Venue: core.VenueDerivatives}
	riskCtrl := risk.NewController(decimal.NewFromInt(100000), decimal.NewFromInt(90), cfg.Base.MaxPosition, 1000)
	trk := tracker.New()
	mergeEngine := merge.New(trk, exch, spec, core.HoldModeSingle)
	ring := events.New()

	eng := scalping.New(cfg, spec, services, riskCtrl, noopPersistence{}, mergeEngine, trk, ring, noopLogger{}, core.HoldModeSingle)
	return eng, trk, ring
}

func TestScalpingEngine_StartPlacesInitialBuy(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100), BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100.1)})

	eng, trk, ring := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	require.Eventually(t, func() bool {
		return trk.ActiveBuy() != nil
	}, 2*time.Second, 20*time.Millisecond)

	snap := ring.Snapshot()
	assert.NotEmpty(t, snap)
	assert.Equal(t, core.EventStrategyStarted, snap[0].Type)
}

func TestScalpingEngine_BuyFillPairsWithSell(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100), BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100.1)})

	eng, trk, _ := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	var buyOrderID string
	require.Eventually(t, func() bool {
		if buy := trk.ActiveBuy(); buy != nil {
			buyOrderID = buy.OrderID
			return true
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	exch.SimulateFill(buyOrderID, decimal.NewFromInt(95))

	require.Eventually(t, func() bool {
		o, ok := trk.Get(buyOrderID)
		return ok && o.Status == core.StatusFilled
	}, 2*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(trk.PendingSells()) > 0
	}, 6*time.Second, 50*time.Millisecond, "handleBuyFilled should place a paired sell after the settle wait")
}

func TestScalpingEngine_SellFillRecordsPnl(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100), BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100.1)})

	eng, trk, ring := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	defer eng.Stop(ctx)

	var buyOrderID string
	require.Eventually(t, func() bool {
		if buy := trk.ActiveBuy(); buy != nil {
			buyOrderID = buy.OrderID
			return true
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	exch.SimulateFill(buyOrderID, decimal.NewFromInt(95))

	var sellOrderID string
	require.Eventually(t, func() bool {
		sells := trk.PendingSells()
		if len(sells) == 0 {
			return false
		}
		sellOrderID = sells[0].OrderID
		return true
	}, 6*time.Second, 50*time.Millisecond)

	exch.SimulateFill(sellOrderID, decimal.NewFromInt(110))

	require.Eventually(t, func() bool {
		for _, e := range ring.Snapshot() {
			if e.Type == core.EventSellOrderFilled && e.Data["netPnl"] != nil {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestScalpingEngine_StopCancelsActiveBuyOnly(t *testing.T) {
	exch := mock.New()
	exch.SetTicker(core.Ticker{Last: decimal.NewFromInt(100), BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100.1)})

	eng, trk, _ := newTestEngine(t, exch)
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	require.Eventually(t, func() bool {
		return trk.ActiveBuy() != nil
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, eng.Stop(ctx))
	assert.Equal(t, core.StateStopped, eng.State())
	assert.Nil(t, trk.ActiveBuy())
}
