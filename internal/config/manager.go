package config

import (
	"fmt"
	"sync"

	"bitget-marketmaker/pkg/strategyerr"
)

// Manager owns the mutable StrategyConfig for a running engine (§4.7).
// The constructor applies the variant default then overrides, then
// validates; Update applies a partial mutation, rejecting changes to the
// immutable key set and rolling back on validation failure.
type Manager struct {
	mu  sync.RWMutex
	cfg *StrategyConfig
}

// NewManager builds a Manager from a kind and an override function applied
// on top of the variant default.
func NewManager(kind StrategyKind, overrides func(*StrategyConfig)) (*Manager, error) {
	var cfg *StrategyConfig
	switch kind {
	case KindScalping:
		cfg = &StrategyConfig{Kind: KindScalping, Scalping: DefaultScalpingConfig()}
	case KindGrid:
		cfg = &StrategyConfig{Kind: KindGrid, Grid: DefaultGridConfig()}
	default:
		return nil, &strategyerr.ValidationError{Field: "strategyType", Value: kind, Message: "unknown strategy kind"}
	}

	if overrides != nil {
		overrides(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{cfg: cfg}, nil
}

// Current returns a snapshot of the live config.
func (m *Manager) Current() *StrategyConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Clone()
}

// Update applies mutate to a clone of the current config, rejects the
// change if any immutable key differs from the live value, re-validates,
// and only then commits. On any failure the live config is untouched.
func (m *Manager) Update(mutate func(*StrategyConfig)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := m.cfg.Clone()
	mutate(candidate)

	if err := checkImmutable(m.cfg.Base(), candidate.Base()); err != nil {
		return err
	}
	if err := candidate.Validate(); err != nil {
		return err
	}

	m.cfg = candidate
	return nil
}

func checkImmutable(old, next BaseConfig) error {
	if old.Symbol != next.Symbol {
		return immutableErr("symbol")
	}
	if old.StrategyType != next.StrategyType {
		return immutableErr("strategyType")
	}
	if old.TradingType != next.TradingType {
		return immutableErr("tradingType")
	}
	if old.MarginMode != next.MarginMode {
		return immutableErr("marginMode")
	}
	if old.MarginCoin != next.MarginCoin {
		return immutableErr("marginCoin")
	}
	if old.ProductType != next.ProductType {
		return immutableErr("productType")
	}
	if old.InstanceID != next.InstanceID {
		return immutableErr("instanceId")
	}
	return nil
}

func immutableErr(field string) error {
	return fmt.Errorf("%w: %s is immutable while the strategy is running", strategyerr.ErrConfigImmutableKey, field)
}
