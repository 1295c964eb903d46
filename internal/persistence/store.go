// Package persistence implements the fire-and-forget durable store (§4.10)
// backed by sqlite, grounded on the teacher's
// internal/engine/simple/store_sqlite.go (WAL mode, checksum discipline)
// but generalized from a single blob-state row to the tabular schema
// named in §6.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/pkg/concurrency"
)

// Worker implements core.PersistenceWorker. Every mutating method enqueues
// its write onto a bounded pool and returns immediately; failures are
// logged, never propagated to the caller (§4.10 "never block or fail the
// caller").
type Worker struct {
	db     *sql.DB
	pool   *concurrency.WorkerPool
	logger core.ILogger
}

// Open opens (creating if needed) the sqlite database at path, enables WAL
// mode, and applies any pending migrations.
func Open(path string, logger core.ILogger) (*Worker, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := applyMigrations(db, func() int64 { return time.Now().UnixMilli() }); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "persistence",
		MaxWorkers:  4,
		MaxCapacity: 1000,
	}, logger)

	return &Worker{db: db, pool: pool, logger: logger.WithField("component", "persistence")}, nil
}

// PersistNewOrder implements core.PersistenceWorker.
func (w *Worker) PersistNewOrder(order *core.TrackedOrder, symbol string, venueCode core.VenueKind, marginCoin string) {
	w.submit(func() error {
		_, err := w.db.Exec(`
INSERT INTO strategy_orders (order_id, client_oid, side, price, size, status, direction, symbol, margin_coin, created_at, updated_at, trading_type)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(order_id) DO NOTHING`,
			order.OrderID, order.ClientOID, string(order.Side), order.Price.String(), order.Size.String(),
			string(order.Status), string(order.Direction), symbol, marginCoin, order.CreatedAt, order.CreatedAt, string(venueCode),
		)
		return err
	}, "persist_new_order", order.OrderID)
}

// PersistOrderStatusChange implements core.PersistenceWorker.
func (w *Worker) PersistOrderStatusChange(orderID string, status core.OrderStatus, filledAt int64, linkedOrderID string) {
	w.submit(func() error {
		var filled interface{}
		if filledAt > 0 {
			filled = filledAt
		}
		var linked interface{}
		if linkedOrderID != "" {
			linked = linkedOrderID
		}
		_, err := w.db.Exec(`
UPDATE strategy_orders SET status = ?, filled_at = COALESCE(?, filled_at), linked_order_id = COALESCE(?, linked_order_id), updated_at = ?
WHERE order_id = ?`,
			string(status), filled, linked, time.Now().UnixMilli(), orderID,
		)
		return err
	}, "persist_order_status_change", orderID)
}

// PersistRealizedPnl implements core.PersistenceWorker, UPSERTing the
// (utcDate, strategyKind) aggregate row (§4.10).
func (w *Worker) PersistRealizedPnl(net, fee decimal.Decimal, isWin bool, strategyKind string) {
	w.submit(func() error {
		date := time.Now().UTC().Format("2006-01-02")
		win, loss := 0, 0
		if isWin {
			win = 1
		} else {
			loss = 1
		}
		_, err := w.db.Exec(`
INSERT INTO strategy_daily_pnl (date, strategy_type, realized_pnl, total_trades, win_trades, loss_trades, fees, updated_at)
VALUES (?, ?, ?, 1, ?, ?, ?, ?)
ON CONFLICT(date, strategy_type) DO UPDATE SET
	realized_pnl = CAST(CAST(realized_pnl AS REAL) + ? AS TEXT),
	total_trades = total_trades + 1,
	win_trades = win_trades + ?,
	loss_trades = loss_trades + ?,
	fees = CAST(CAST(fees AS REAL) + ? AS TEXT),
	updated_at = ?`,
			date, strategyKind, net.String(), win, loss, fee.String(), time.Now().UnixMilli(),
			net.InexactFloat64(), win, loss, fee.InexactFloat64(), time.Now().UnixMilli(),
		)
		return err
	}, "persist_realized_pnl", strategyKind)
}

// SaveActiveConfig implements core.PersistenceWorker.
func (w *Worker) SaveActiveConfig(name string, configJSON string) {
	w.submit(func() error {
		_, err := w.db.Exec(`
INSERT INTO strategy_configs (name, config, is_active, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT(name) DO UPDATE SET config = excluded.config, is_active = 1, updated_at = excluded.updated_at`,
			name, configJSON, time.Now().UnixMilli(),
		)
		return err
	}, "save_active_config", name)
}

// LoadActiveConfig implements core.PersistenceWorker. Unlike the mutating
// methods this one is synchronous: the caller (engine start) needs the
// result before it can proceed.
func (w *Worker) LoadActiveConfig(ctx context.Context, name string) (string, error) {
	var config string
	err := w.db.QueryRowContext(ctx, `SELECT config FROM strategy_configs WHERE name = ? AND is_active = 1`, name).Scan(&config)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return config, err
}

// LoadPendingOrders implements core.PersistenceWorker, used on engine
// start to recover in-flight orders for (symbol, venue).
func (w *Worker) LoadPendingOrders(ctx context.Context, symbol string, venueCode core.VenueKind) ([]*core.TrackedOrder, error) {
	rows, err := w.db.QueryContext(ctx, `
SELECT order_id, client_oid, side, price, size, status, linked_order_id, direction, created_at, filled_at
FROM strategy_orders
WHERE symbol = ? AND trading_type = ? AND status = ?`,
		symbol, string(venueCode), string(core.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.TrackedOrder
	for rows.Next() {
		var o core.TrackedOrder
		var priceStr, sizeStr string
		var linked sql.NullString
		var direction sql.NullString
		var filledAt sql.NullInt64
		if err := rows.Scan(&o.OrderID, &o.ClientOID, &o.Side, &priceStr, &sizeStr, &o.Status, &linked, &direction, &o.CreatedAt, &filledAt); err != nil {
			return nil, err
		}
		o.Price, _ = decimal.NewFromString(priceStr)
		o.Size, _ = decimal.NewFromString(sizeStr)
		o.Symbol = symbol
		o.LinkedOrderID = linked.String
		o.Direction = core.Direction(direction.String)
		o.FilledAt = filledAt.Int64
		o.GridLevelIndex = -1
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Close implements core.PersistenceWorker.
func (w *Worker) Close() error {
	w.pool.StopAndWait()
	return w.db.Close()
}

// DB exposes the raw handle for the spec cache's durable tier, which
// shares this connection rather than opening a second sqlite file.
func (w *Worker) DB() *sql.DB {
	return w.db
}

func (w *Worker) submit(fn func() error, op, key string) {
	_ = w.pool.Submit(func() {
		if err := fn(); err != nil {
			w.logger.Warn("persistence write failed", "op", op, "key", key, "error", err)
		}
	})
}

// MarshalConfig is the serialization callers use before calling
// SaveActiveConfig, kept here so callers never hand-roll config
// serialization differently from how LoadActiveConfig expects it.
func MarshalConfig(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
