// Package exchange builds the core.TradingServices triple an engine
// depends on, dispatching on venue kind (§4.1, §4.8).
package exchange

import (
	"context"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/exchange/bitget"
	"bitget-marketmaker/internal/specs"
)

// NewTradingServices builds the Order/Market/Account triple for the given
// venue. Derivatives services additionally satisfy core.HoldModeProvider;
// callers that need hold-mode detection should type-assert on the
// returned Order field.
func NewTradingServices(venue core.VenueKind, cfg config.ExchangeConfig, logger core.ILogger, productType, marginCoin string) core.TradingServices {
	switch venue {
	case core.VenueSpot:
		s := bitget.NewSpot(cfg, logger)
		return core.TradingServices{Order: s, Market: s, Account: s, Venue: core.VenueSpot}
	default:
		d := bitget.NewDerivatives(cfg, logger, productType, marginCoin)
		return core.TradingServices{Order: d, Market: d, Account: d, Venue: core.VenueDerivatives}
	}
}

// DetectHoldMode resolves and caches the account's hold mode once per
// engine start (§4.8 "consulted once per engine start and cached"). Spot
// services, which do not implement core.HoldModeProvider, return
// HoldModeSingle as a no-op default since spot never sends tradeSide.
func DetectHoldMode(ctx context.Context, services core.TradingServices) (core.HoldMode, error) {
	provider, ok := services.Order.(core.HoldModeProvider)
	if !ok {
		return core.HoldModeSingle, nil
	}
	return provider.GetHoldMode(ctx)
}

// specFetcher dispatches specs.Cache's tier-3 lookup to the spot or
// derivatives adapter depending on the venue of the symbol being
// resolved, so the cache only needs to hold a single fetcher reference.
type specFetcher struct {
	spot        *bitget.Spot
	derivatives *bitget.Derivatives
}

// NewSpecFetcher builds the specs.PublicSpecFetcher the cache uses for
// its tier-3 lookups against both venues.
func NewSpecFetcher(cfg config.ExchangeConfig, logger core.ILogger) specs.PublicSpecFetcher {
	return &specFetcher{
		spot:        bitget.NewSpot(cfg, logger),
		derivatives: bitget.NewDerivatives(cfg, logger, "USDT-FUTURES", "USDT"),
	}
}

func (f *specFetcher) FetchAllSpecs(ctx context.Context, venue core.VenueKind) ([]*core.InstrumentSpec, error) {
	if venue == core.VenueSpot {
		return f.spot.FetchAllSpecs(ctx, venue)
	}
	return f.derivatives.FetchAllSpecs(ctx, venue)
}
