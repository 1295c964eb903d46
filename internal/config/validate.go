package config

import (
	"github.com/shopspring/decimal"

	"bitget-marketmaker/pkg/strategyerr"
)

// Validate checks all rules from §4.7. It returns a *strategyerr.ValidationError
// describing the first violation found.
func (c *StrategyConfig) Validate() error {
	base := c.Base()

	if base.Symbol == "" {
		return &strategyerr.ValidationError{Field: "symbol", Message: "must not be empty"}
	}
	if !positive(base.Notional) {
		return &strategyerr.ValidationError{Field: "notional", Value: base.Notional, Message: "must be > 0"}
	}
	if !positive(base.MaxPosition) {
		return &strategyerr.ValidationError{Field: "maxPosition", Value: base.MaxPosition, Message: "must be > 0"}
	}
	if base.TradingType == "derivatives" {
		if base.Leverage < 1 || base.Leverage > 125 {
			return &strategyerr.ValidationError{Field: "leverage", Value: base.Leverage, Message: "must be in [1,125]"}
		}
	}
	if base.PollIntervalMs < 200 {
		return &strategyerr.ValidationError{Field: "pollIntervalMs", Value: base.PollIntervalMs, Message: "must be >= 200"}
	}
	if base.OrderCheckIntervalMs < 500 {
		return &strategyerr.ValidationError{Field: "orderCheckIntervalMs", Value: base.OrderCheckIntervalMs, Message: "must be >= 500"}
	}
	if base.MaxDrawdownPercent.LessThanOrEqual(decimal.Zero) || base.MaxDrawdownPercent.GreaterThan(decimal.NewFromInt(100)) {
		return &strategyerr.ValidationError{Field: "maxDrawdownPercent", Value: base.MaxDrawdownPercent, Message: "must be in (0,100]"}
	}
	if base.CooldownMs < 0 {
		return &strategyerr.ValidationError{Field: "cooldownMs", Value: base.CooldownMs, Message: "must be >= 0"}
	}
	if base.PricePrecision < 0 || base.PricePrecision > 8 {
		return &strategyerr.ValidationError{Field: "pricePrecision", Value: base.PricePrecision, Message: "must be in [0,8]"}
	}
	if base.SizePrecision < 0 || base.SizePrecision > 8 {
		return &strategyerr.ValidationError{Field: "sizePrecision", Value: base.SizePrecision, Message: "must be in [0,8]"}
	}

	switch c.Kind {
	case KindScalping:
		return c.Scalping.validate()
	case KindGrid:
		return c.Grid.validate()
	}
	return &strategyerr.ValidationError{Field: "strategyType", Value: c.Kind, Message: "unknown strategy kind"}
}

func (s *ScalpingConfig) validate() error {
	if !positive(s.PriceSpread) {
		return &strategyerr.ValidationError{Field: "priceSpread", Value: s.PriceSpread, Message: "must be > 0"}
	}
	if s.MaxPendingOrders < 1 || s.MaxPendingOrders > 500 {
		return &strategyerr.ValidationError{Field: "maxPendingOrders", Value: s.MaxPendingOrders, Message: "must be in [1,500]"}
	}
	if s.MergeThreshold < 2 || s.MergeThreshold > s.MaxPendingOrders {
		return &strategyerr.ValidationError{Field: "mergeThreshold", Value: s.MergeThreshold, Message: "must be in [2, maxPendingOrders]"}
	}
	return nil
}

func (g *GridConfig) validate() error {
	if g.GridCount < 2 || g.GridCount > 200 {
		return &strategyerr.ValidationError{Field: "gridCount", Value: g.GridCount, Message: "must be in [2,200]"}
	}
	if !g.UpperPrice.IsZero() && !g.LowerPrice.IsZero() {
		if !g.UpperPrice.GreaterThan(g.LowerPrice) {
			return &strategyerr.ValidationError{Field: "upperPrice", Value: g.UpperPrice, Message: "must be > lowerPrice"}
		}
	}
	return nil
}

func positive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}
