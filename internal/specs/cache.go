// Package specs implements the three-tier instrument-spec cache (§4.9):
// an in-memory TTL layer, a durable sqlite tier shared with the
// persistence worker's database, and the exchange's public endpoint as
// the ultimate source of truth.
package specs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bitget-marketmaker/internal/core"
)

// ttl is how long an in-memory entry remains valid (§3 "TTL of one
// hour").
const ttl = time.Hour

// hotPairs is the small hard-coded popularity list getHotPairs resolves
// against (§4.9).
var hotPairs = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "DOGEUSDT", "BNBUSDT", "ADAUSDT", "AVAXUSDT"}

// PublicSpecFetcher retrieves the full symbol list from the exchange's
// public instrument-info endpoint (tier 3). Implemented per-venue by the
// exchange adapter package; the cache only depends on this narrow
// capability, not the whole adapter.
type PublicSpecFetcher interface {
	FetchAllSpecs(ctx context.Context, venue core.VenueKind) ([]*core.InstrumentSpec, error)
}

type cacheKey struct {
	symbol string
	venue  core.VenueKind
}

// Cache implements core.SpecCache.
type Cache struct {
	db      *sql.DB
	fetcher PublicSpecFetcher

	mu      sync.RWMutex
	entries map[cacheKey]*core.InstrumentSpec
}

// NewCache builds a Cache sharing db with the persistence worker.
func NewCache(db *sql.DB, fetcher PublicSpecFetcher) *Cache {
	return &Cache{
		db:      db,
		fetcher: fetcher,
		entries: make(map[cacheKey]*core.InstrumentSpec),
	}
}

// GetSpec implements core.SpecCache, walking tiers in order: in-memory,
// durable store, exchange public endpoint (§4.9).
func (c *Cache) GetSpec(ctx context.Context, symbol string, venue core.VenueKind) (*core.InstrumentSpec, error) {
	key := cacheKey{symbol, venue}

	c.mu.RLock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.FetchedAt) <= ttl {
		c.mu.RUnlock()
		return entry, nil
	}
	c.mu.RUnlock()

	if entry, err := c.loadFromDB(ctx, symbol, venue); err == nil && entry != nil && time.Since(entry.FetchedAt) <= ttl {
		c.mu.Lock()
		c.entries[key] = entry
		c.mu.Unlock()
		return entry, nil
	}

	return c.RefreshSpec(ctx, symbol, venue)
}

// RefreshSpec implements core.SpecCache, forcing tier 3.
func (c *Cache) RefreshSpec(ctx context.Context, symbol string, venue core.VenueKind) (*core.InstrumentSpec, error) {
	all, err := c.fetcher.FetchAllSpecs(ctx, venue)
	if err != nil {
		return nil, fmt.Errorf("fetch specs for %s: %w", venue, err)
	}

	c.mu.Lock()
	for _, s := range all {
		s.FetchedAt = time.Now()
		c.entries[cacheKey{s.Symbol, s.Venue}] = s
		c.persistToDB(s)
	}
	c.mu.Unlock()

	c.mu.RLock()
	entry, ok := c.entries[cacheKey{symbol, venue}]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("symbol %s not found on %s", symbol, venue)
	}
	return entry, nil
}

// ListAvailable implements core.SpecCache (§4.9 "up to 50 entries").
func (c *Cache) ListAvailable(ctx context.Context, venue core.VenueKind, search string) ([]*core.InstrumentSpec, error) {
	if err := c.ensureLoaded(ctx, venue); err != nil {
		return nil, err
	}

	needle := strings.ToUpper(search)

	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make([]*core.InstrumentSpec, 0, len(c.entries))
	for _, s := range c.entries {
		if s.Venue != venue {
			continue
		}
		if s.Status != "online" && s.Status != "normal" {
			continue
		}
		if venue == core.VenueSpot && s.QuoteCoin != "USDT" {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToUpper(s.Symbol), needle) && !strings.Contains(strings.ToUpper(s.BaseCoin), needle) {
			continue
		}
		matches = append(matches, s)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Symbol < matches[j].Symbol })
	if len(matches) > 50 {
		matches = matches[:50]
	}
	return matches, nil
}

// GetHotPairs implements core.SpecCache, skipping any pair that fails
// lookup rather than failing the whole call (§4.9).
func (c *Cache) GetHotPairs(ctx context.Context, venue core.VenueKind) ([]*core.InstrumentSpec, error) {
	out := make([]*core.InstrumentSpec, 0, len(hotPairs))
	for _, symbol := range hotPairs {
		spec, err := c.GetSpec(ctx, symbol, venue)
		if err != nil {
			continue
		}
		out = append(out, spec)
	}
	return out, nil
}

func (c *Cache) ensureLoaded(ctx context.Context, venue core.VenueKind) error {
	c.mu.RLock()
	n := 0
	for k := range c.entries {
		if k.venue == venue {
			n++
		}
	}
	c.mu.RUnlock()
	if n > 0 {
		return nil
	}
	_, err := c.RefreshSpec(ctx, "", venue)
	if err != nil && !strings.Contains(err.Error(), "not found") {
		return err
	}
	return nil
}

func (c *Cache) loadFromDB(ctx context.Context, symbol string, venue core.VenueKind) (*core.InstrumentSpec, error) {
	table := "contract_specs"
	if venue == core.VenueSpot {
		table = "spot_specs"
	}

	row := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT raw_data, fetched_at FROM %s WHERE symbol = ?`, table), symbol)

	var raw string
	var fetchedAt int64
	if err := row.Scan(&raw, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var spec core.InstrumentSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, err
	}
	spec.FetchedAt = time.UnixMilli(fetchedAt)
	return &spec, nil
}

// persistToDB upserts the durable tier. Errors are swallowed here
// deliberately: the spec cache's contract only promises the in-memory
// tier is authoritative for getSpec; the durable tier is best-effort
// warm-cache for process restarts.
func (c *Cache) persistToDB(s *core.InstrumentSpec) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}

	if s.Venue == core.VenueSpot {
		c.db.Exec(`
INSERT INTO spot_specs (symbol, base_coin, quote_coin, price_place, volume_place, min_trade_num, size_multiplier, maker_fee_rate, taker_fee_rate, status, raw_data, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET raw_data = excluded.raw_data, fetched_at = excluded.fetched_at, status = excluded.status`,
			s.Symbol, s.BaseCoin, s.QuoteCoin, s.PricePlace, s.VolumePlace, s.MinTradeNum.String(), s.SizeMultiplier.String(),
			s.MakerFeeRate.String(), s.TakerFeeRate.String(), s.Status, string(raw), s.FetchedAt.UnixMilli(),
		)
		return
	}

	c.db.Exec(`
INSERT INTO contract_specs (symbol, product_type, base_coin, quote_coin, price_place, volume_place, min_trade_num, size_multiplier, maker_fee_rate, taker_fee_rate, status, raw_data, fetched_at)
VALUES (?, 'USDT-FUTURES', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, product_type) DO UPDATE SET raw_data = excluded.raw_data, fetched_at = excluded.fetched_at, status = excluded.status`,
		s.Symbol, s.BaseCoin, s.QuoteCoin, s.PricePlace, s.VolumePlace, s.MinTradeNum.String(), s.SizeMultiplier.String(),
		s.MakerFeeRate.String(), s.TakerFeeRate.String(), s.Status, string(raw), s.FetchedAt.UnixMilli(),
	)
}
