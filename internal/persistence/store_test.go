package persistence_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/persistence"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                    {}
func (noopLogger) Info(string, ...interface{})                     {}
func (noopLogger) Warn(string, ...interface{})                     {}
func (noopLogger) Error(string, ...interface{})                    {}
func (noopLogger) Fatal(string, ...interface{})                    {}
func (n noopLogger) WithField(string, interface{}) core.ILogger     { return n }
func (n noopLogger) WithFields(map[string]interface{}) core.ILogger { return n }

func openTestWorker(t *testing.T) *persistence.Worker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := persistence.Open(path, noopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestOpen_AppliesMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	w1, err := persistence.Open(path, noopLogger{})
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := persistence.Open(path, noopLogger{})
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestPersistNewOrderAndLoadPendingOrders_RoundTrips(t *testing.T) {
	w := openTestWorker(t)

	order := &core.TrackedOrder{
		OrderID:   "o1",
		ClientOID: "c1",
		Symbol:    "BTCUSDT",
		Side:      core.SideBuy,
		Price:     decimal.NewFromInt(100),
		Size:      decimal.NewFromFloat(0.01),
		Status:    core.StatusPending,
		CreatedAt: time.Now().UnixMilli(),
	}
	w.PersistNewOrder(order, "BTCUSDT", core.VenueDerivatives, "USDT")

	var loaded []*core.TrackedOrder
	require.Eventually(t, func() bool {
		var err error
		loaded, err = w.LoadPendingOrders(context.Background(), "BTCUSDT", core.VenueDerivatives)
		return err == nil && len(loaded) == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "o1", loaded[0].OrderID)
	assert.True(t, loaded[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestPersistOrderStatusChange_UpdatesStatusAndDropsFromPending(t *testing.T) {
	w := openTestWorker(t)

	order := &core.TrackedOrder{
		OrderID: "o2", Symbol: "BTCUSDT", Side: core.SideBuy,
		Price: decimal.NewFromInt(100), Size: decimal.NewFromFloat(0.01),
		Status: core.StatusPending, CreatedAt: time.Now().UnixMilli(),
	}
	w.PersistNewOrder(order, "BTCUSDT", core.VenueDerivatives, "USDT")

	require.Eventually(t, func() bool {
		loaded, err := w.LoadPendingOrders(context.Background(), "BTCUSDT", core.VenueDerivatives)
		return err == nil && len(loaded) == 1
	}, 2*time.Second, 20*time.Millisecond)

	w.PersistOrderStatusChange("o2", core.StatusFilled, time.Now().UnixMilli(), "")

	require.Eventually(t, func() bool {
		loaded, err := w.LoadPendingOrders(context.Background(), "BTCUSDT", core.VenueDerivatives)
		return err == nil && len(loaded) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSaveActiveConfigAndLoadActiveConfig_RoundTrips(t *testing.T) {
	w := openTestWorker(t)

	w.SaveActiveConfig("scalping-BTCUSDT", `{"symbol":"BTCUSDT"}`)

	require.Eventually(t, func() bool {
		got, err := w.LoadActiveConfig(context.Background(), "scalping-BTCUSDT")
		return err == nil && got != ""
	}, 2*time.Second, 20*time.Millisecond)

	got, err := w.LoadActiveConfig(context.Background(), "scalping-BTCUSDT")
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, got)
}

func TestLoadActiveConfig_EmptyWhenMissing(t *testing.T) {
	w := openTestWorker(t)

	got, err := w.LoadActiveConfig(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestPersistRealizedPnl_AccumulatesAcrossCalls(t *testing.T) {
	w := openTestWorker(t)

	w.PersistRealizedPnl(decimal.NewFromInt(10), decimal.NewFromFloat(0.5), true, "scalping")
	w.PersistRealizedPnl(decimal.NewFromInt(-4), decimal.NewFromFloat(0.3), false, "scalping")

	require.Eventually(t, func() bool {
		row := w.DB().QueryRow(`SELECT total_trades, win_trades, loss_trades FROM strategy_daily_pnl WHERE strategy_type = ?`, "scalping")
		var total, win, loss int
		if err := row.Scan(&total, &win, &loss); err != nil {
			return false
		}
		return total == 2 && win == 1 && loss == 1
	}, 2*time.Second, 20*time.Millisecond)
}
