// Package autocalc derives a full StrategyConfig from a risk-level
// preset, the instrument spec, a ticker snapshot, and the account's
// available balance (§4.11).
//
// Grounded on the preset table transcribed verbatim from §4.11. Rounding
// is done inline with decimal.Decimal methods; pkg/tradingutils is not
// used here.
package autocalc

import (
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
)

// preset is one row of the §4.11 presets table.
type preset struct {
	spreadMult     decimal.Decimal
	maxPosPercent  decimal.Decimal
	dailyLossPct   decimal.Decimal
	drawdownPct    decimal.Decimal
	stopLossPct    decimal.Decimal
	maxPending     int
	mergeThreshold int
	pollMs         int64
	checkMs        int64
	cooldownMs     int64
	rangePercent   decimal.Decimal
	gridCount      int
}

var presets = map[core.RiskLevel]preset{
	core.RiskConservative: {
		spreadMult: decimal.NewFromFloat(3.0), maxPosPercent: decimal.NewFromFloat(0.10),
		dailyLossPct: decimal.NewFromFloat(0.02), drawdownPct: decimal.NewFromInt(3), stopLossPct: decimal.NewFromInt(2),
		maxPending: 100, mergeThreshold: 15, pollMs: 2000, checkMs: 3000, cooldownMs: 120000,
		rangePercent: decimal.NewFromInt(5), gridCount: 10,
	},
	core.RiskBalanced: {
		spreadMult: decimal.NewFromFloat(2.0), maxPosPercent: decimal.NewFromFloat(0.20),
		dailyLossPct: decimal.NewFromFloat(0.05), drawdownPct: decimal.NewFromInt(5), stopLossPct: decimal.NewFromInt(3),
		maxPending: 200, mergeThreshold: 21, pollMs: 1000, checkMs: 2000, cooldownMs: 60000,
		rangePercent: decimal.NewFromInt(10), gridCount: 20,
	},
	core.RiskAggressive: {
		spreadMult: decimal.NewFromFloat(1.5), maxPosPercent: decimal.NewFromFloat(0.40),
		dailyLossPct: decimal.NewFromFloat(0.10), drawdownPct: decimal.NewFromInt(10), stopLossPct: decimal.NewFromInt(5),
		maxPending: 300, mergeThreshold: 30, pollMs: 500, checkMs: 1000, cooldownMs: 30000,
		rangePercent: decimal.NewFromInt(20), gridCount: 50,
	},
}

// MarketSnapshot bundles the ticker and balance inputs the derivation
// needs, fetched by the caller before invoking autocalc (§4.11 inputs
// b-d).
type MarketSnapshot struct {
	LastPrice decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Balance   decimal.Decimal
}

func (s MarketSnapshot) range24h() decimal.Decimal {
	return s.High24h.Sub(s.Low24h)
}

// Warning is a non-fatal advisory surfaced alongside a derived config.
type Warning struct {
	Field   string
	Message string
}

// DeriveScalping implements §4.11 "Scalping derivation".
func DeriveScalping(symbol string, tradingType core.VenueKind, notional decimal.Decimal, riskLevel core.RiskLevel, direction core.Direction, spec core.InstrumentSpec, snap MarketSnapshot) (*config.ScalpingConfig, []Warning, error) {
	p, ok := presets[riskLevel]
	if !ok {
		return nil, nil, unknownRiskLevel(riskLevel)
	}

	cfg := config.DefaultScalpingConfig()
	cfg.Base.Symbol = symbol
	cfg.Base.TradingType = tradingType
	cfg.Base.Notional = notional
	cfg.Base.Direction = direction
	cfg.Base.PricePrecision = spec.PricePlace
	cfg.Base.SizePrecision = spec.VolumePlace

	totalFeeRate := spec.MakerFeeRate.Add(spec.TakerFeeRate)
	minSpread := snap.LastPrice.Mul(totalFeeRate).Mul(p.spreadMult)
	fromRange := snap.range24h().Mul(decimal.NewFromFloat(0.001))
	priceSpread := decimal.Max(minSpread, fromRange).Round(spec.PricePlace)

	cfg.PriceSpread = priceSpread
	cfg.Base.MaxPosition = snap.Balance.Mul(p.maxPosPercent).Round(2)
	cfg.Base.MaxDailyLoss = snap.Balance.Mul(p.dailyLossPct).Round(2)
	cfg.Base.MaxDrawdownPercent = p.drawdownPct
	cfg.Base.StopLossPercent = p.stopLossPct
	cfg.MaxPendingOrders = p.maxPending
	cfg.MergeThreshold = p.mergeThreshold
	cfg.Base.PollIntervalMs = p.pollMs
	cfg.Base.OrderCheckIntervalMs = p.checkMs
	cfg.Base.CooldownMs = p.cooldownMs

	return cfg, nil, nil
}

// DeriveGrid implements §4.11 "Grid derivation".
func DeriveGrid(symbol string, tradingType core.VenueKind, notional decimal.Decimal, riskLevel core.RiskLevel, direction core.Direction, spec core.InstrumentSpec, snap MarketSnapshot) (*config.GridConfig, []Warning, error) {
	p, ok := presets[riskLevel]
	if !ok {
		return nil, nil, unknownRiskLevel(riskLevel)
	}

	cfg := config.DefaultGridConfig()
	cfg.Base.Symbol = symbol
	cfg.Base.TradingType = tradingType
	cfg.Base.Notional = notional
	cfg.Base.Direction = direction
	cfg.Base.PricePrecision = spec.PricePlace
	cfg.Base.SizePrecision = spec.VolumePlace

	hundred := decimal.NewFromInt(100)
	two := decimal.NewFromInt(2)
	factor := p.rangePercent.Div(hundred).Div(two)
	cfg.UpperPrice = snap.LastPrice.Mul(decimal.NewFromInt(1).Add(factor)).Round(spec.PricePlace)
	cfg.LowerPrice = snap.LastPrice.Mul(decimal.NewFromInt(1).Sub(factor)).Round(spec.PricePlace)
	cfg.GridCount = p.gridCount
	cfg.Base.MaxPosition = snap.Balance.Mul(p.maxPosPercent).Round(2)
	cfg.Base.MaxDailyLoss = snap.Balance.Mul(p.dailyLossPct).Round(2)
	cfg.Base.MaxDrawdownPercent = p.drawdownPct
	cfg.Base.StopLossPercent = p.stopLossPct
	cfg.Base.CooldownMs = p.cooldownMs

	var warnings []Warning
	gridSpacing := cfg.UpperPrice.Sub(cfg.LowerPrice).Div(decimal.NewFromInt(int64(cfg.GridCount)))
	minProfitableSpread := snap.LastPrice.Mul(spec.MakerFeeRate.Add(spec.TakerFeeRate)).Mul(two)
	if gridSpacing.LessThan(minProfitableSpread) {
		warnings = append(warnings, Warning{
			Field:   "gridSpacing",
			Message: "grid spacing is narrower than the estimated round-trip fee cost; levels may not be individually profitable",
		})
	}

	return cfg, warnings, nil
}

// Bounds is a min/recommended/max triple for one derived field (§4.11
// "Bounds endpoint").
type Bounds struct {
	Min         decimal.Decimal
	Recommended decimal.Decimal
	Max         decimal.Decimal
}

// ScalpingBounds reports the priceSpread bound: max is 5% of the 24h
// range, recommended is the balanced-preset derivation.
func ScalpingBounds(spec core.InstrumentSpec, snap MarketSnapshot) map[string]Bounds {
	balanced := presets[core.RiskBalanced]
	totalFeeRate := spec.MakerFeeRate.Add(spec.TakerFeeRate)
	minSpread := snap.LastPrice.Mul(totalFeeRate)
	recommended := snap.LastPrice.Mul(totalFeeRate).Mul(balanced.spreadMult).Round(spec.PricePlace)
	maxSpread := snap.range24h().Mul(decimal.NewFromFloat(0.05))

	return map[string]Bounds{
		"priceSpread": {Min: minSpread.Round(spec.PricePlace), Recommended: recommended, Max: maxSpread.Round(spec.PricePlace)},
	}
}

func unknownRiskLevel(r core.RiskLevel) error {
	return &unknownRiskLevelErr{level: r}
}

type unknownRiskLevelErr struct{ level core.RiskLevel }

func (e *unknownRiskLevelErr) Error() string {
	return "autocalc: unknown risk level " + string(e.level)
}
