package persistence

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// migration is one embedded schema step, applied once in version order
// (§6 "Migrations are applied once in version order, each in a
// transaction, with sha-256 checksum recorded").
type migration struct {
	version  int
	filename string
	sql      string
}

var migrations = []migration{
	{1, "0001_schema_migrations.sql", `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at INTEGER NOT NULL
);`},
	{2, "0002_strategy_configs.sql", `
CREATE TABLE IF NOT EXISTS strategy_configs (
	name TEXT PRIMARY KEY,
	config TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);`},
	{3, "0003_strategy_orders.sql", `
CREATE TABLE IF NOT EXISTS strategy_orders (
	order_id TEXT PRIMARY KEY,
	client_oid TEXT,
	side TEXT NOT NULL,
	price TEXT NOT NULL,
	size TEXT NOT NULL,
	status TEXT NOT NULL,
	linked_order_id TEXT,
	direction TEXT,
	symbol TEXT NOT NULL,
	product_type TEXT,
	margin_coin TEXT,
	created_at INTEGER NOT NULL,
	filled_at INTEGER,
	updated_at INTEGER NOT NULL,
	strategy_type TEXT,
	trading_type TEXT
);`},
	{4, "0004_strategy_daily_pnl.sql", `
CREATE TABLE IF NOT EXISTS strategy_daily_pnl (
	date TEXT NOT NULL,
	strategy_type TEXT NOT NULL,
	realized_pnl TEXT NOT NULL DEFAULT '0',
	total_trades INTEGER NOT NULL DEFAULT 0,
	win_trades INTEGER NOT NULL DEFAULT 0,
	loss_trades INTEGER NOT NULL DEFAULT 0,
	fees TEXT NOT NULL DEFAULT '0',
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (date, strategy_type)
);`},
	{5, "0005_contract_specs.sql", `
CREATE TABLE IF NOT EXISTS contract_specs (
	symbol TEXT NOT NULL,
	product_type TEXT NOT NULL,
	base_coin TEXT,
	quote_coin TEXT,
	price_place INTEGER,
	volume_place INTEGER,
	min_trade_num TEXT,
	size_multiplier TEXT,
	maker_fee_rate TEXT,
	taker_fee_rate TEXT,
	status TEXT,
	raw_data TEXT,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (symbol, product_type)
);`},
	{6, "0006_spot_specs.sql", `
CREATE TABLE IF NOT EXISTS spot_specs (
	symbol TEXT PRIMARY KEY,
	base_coin TEXT,
	quote_coin TEXT,
	price_place INTEGER,
	volume_place INTEGER,
	min_trade_num TEXT,
	size_multiplier TEXT,
	maker_fee_rate TEXT,
	taker_fee_rate TEXT,
	status TEXT,
	raw_data TEXT,
	fetched_at INTEGER NOT NULL
);`},
	{7, "0007_grid_levels.sql", `
CREATE TABLE IF NOT EXISTS grid_levels (
	strategy_instance_id TEXT NOT NULL,
	level_index INTEGER NOT NULL,
	price TEXT NOT NULL,
	state TEXT NOT NULL,
	buy_order_id TEXT,
	sell_order_id TEXT,
	size TEXT,
	buy_filled_at INTEGER,
	PRIMARY KEY (strategy_instance_id, level_index)
);`},
}

// applyMigrations runs every migration not yet recorded in
// schema_migrations, each inside its own transaction. If a recorded
// migration's checksum no longer matches the embedded SQL, startup fails
// rather than silently reapplying a modified file.
func applyMigrations(db *sql.DB, nowMs func() int64) error {
	if _, err := db.Exec(migrations[0].sql); err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}

	applied := map[int]string{}
	rows, err := db.Query(`SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		var c string
		if err := rows.Scan(&v, &c); err != nil {
			rows.Close()
			return err
		}
		applied[v] = c
	}
	rows.Close()

	for _, m := range migrations {
		checksum := checksumOf(m.sql)
		if existing, ok := applied[m.version]; ok {
			if existing != checksum {
				return fmt.Errorf("migration %d (%s) checksum mismatch: applied file was modified after being applied", m.version, m.filename)
			}
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.filename, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, filename, checksum, applied_at) VALUES (?, ?, ?, ?)`,
			m.version, m.filename, checksum, nowMs(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

func checksumOf(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
