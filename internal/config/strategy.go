package config

import (
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
)

// StrategyKind tags the StrategyConfig union (§3, §9 "tagged sum").
type StrategyKind string

const (
	KindScalping StrategyKind = "scalping"
	KindGrid     StrategyKind = "grid"
)

// BaseConfig carries the fields shared by every strategy variant (§3).
type BaseConfig struct {
	StrategyType StrategyKind
	TradingType  core.VenueKind
	InstanceID   string

	Symbol             string
	Notional           decimal.Decimal
	MaxPosition        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
	StopLossPercent    decimal.Decimal
	MaxDailyLoss       decimal.Decimal
	CooldownMs         int64

	PricePrecision       int32
	SizePrecision        int32
	PollIntervalMs       int64
	OrderCheckIntervalMs int64

	// Derivatives-only, zero value for spot.
	ProductType string
	MarginMode  string
	MarginCoin  string
	Leverage    int
	Direction   core.Direction
}

// ScalpingConfig adds the scalping-only fields (§3).
type ScalpingConfig struct {
	Base             BaseConfig
	PriceSpread      decimal.Decimal
	MaxPendingOrders int
	MergeThreshold   int
}

// GridConfig adds the grid-only fields (§3).
type GridConfig struct {
	Base       BaseConfig
	UpperPrice decimal.Decimal
	LowerPrice decimal.Decimal
	GridCount  int
	GridType   core.GridType
}

// StrategyConfig is the tagged union; exactly one of Scalping/Grid is set
// depending on Kind (§9 "tagged sum {kind=scalping,...} | {kind=grid,...}").
type StrategyConfig struct {
	Kind     StrategyKind
	Scalping *ScalpingConfig
	Grid     *GridConfig
}

// Base returns the shared fields regardless of variant.
func (c *StrategyConfig) Base() BaseConfig {
	if c.Kind == KindScalping {
		return c.Scalping.Base
	}
	return c.Grid.Base
}

// Clone deep-copies the config so a failed Update never mutates the live
// value in place.
func (c *StrategyConfig) Clone() *StrategyConfig {
	out := &StrategyConfig{Kind: c.Kind}
	if c.Scalping != nil {
		s := *c.Scalping
		out.Scalping = &s
	}
	if c.Grid != nil {
		g := *c.Grid
		out.Grid = &g
	}
	return out
}

// immutableKeys is the set of base fields that cannot change while
// running (§3, §4.7).
var immutableKeys = []string{
	"symbol", "strategyType", "tradingType", "marginMode", "marginCoin",
	"productType", "instanceId",
}

// DefaultScalpingConfig returns the zero-notional scaffold a constructor
// applies before overrides (§4.7 "Constructor applies the appropriate
// default").
func DefaultScalpingConfig() *ScalpingConfig {
	return &ScalpingConfig{
		Base: BaseConfig{
			StrategyType:         KindScalping,
			TradingType:          core.VenueDerivatives,
			MaxDrawdownPercent:   decimal.NewFromInt(5),
			StopLossPercent:      decimal.NewFromInt(3),
			CooldownMs:           60000,
			PollIntervalMs:       1000,
			OrderCheckIntervalMs: 2000,
			MarginMode:           "crossed",
			MarginCoin:           "USDT",
			ProductType:          "USDT-FUTURES",
			Leverage:             10,
		},
		MaxPendingOrders: 200,
		MergeThreshold:   21,
	}
}

// DefaultGridConfig returns the grid scaffold applied before overrides.
func DefaultGridConfig() *GridConfig {
	return &GridConfig{
		Base: BaseConfig{
			StrategyType:         KindGrid,
			TradingType:          core.VenueDerivatives,
			MaxDrawdownPercent:   decimal.NewFromInt(5),
			StopLossPercent:      decimal.NewFromInt(3),
			CooldownMs:           60000,
			PollIntervalMs:       1000,
			OrderCheckIntervalMs: 2000,
			MarginMode:           "crossed",
			MarginCoin:           "USDT",
			ProductType:          "USDT-FUTURES",
			Leverage:             10,
		},
		GridCount: 10,
		GridType:  core.GridArithmetic,
	}
}
