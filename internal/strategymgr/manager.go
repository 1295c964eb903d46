// Package strategymgr implements the process-wide strategy manager
// singleton (§4.1): createAndStart / stopActive / emergencyStopActive /
// getState, enforcing at most one running engine at a time.
//
// Grounded on the teacher's internal/trading/orchestrator/orchestrator.go
// for the "one active thing, guarded by a mutex, torn down before a new
// one starts" shape, generalized from multi-symbol orchestration to this
// spec's single-active-strategy model.
package strategymgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/engine/grid"
	"bitget-marketmaker/internal/engine/scalping"
	"bitget-marketmaker/internal/events"
	"bitget-marketmaker/internal/exchange"
	"bitget-marketmaker/internal/merge"
	"bitget-marketmaker/internal/persistence"
	"bitget-marketmaker/internal/risk"
	"bitget-marketmaker/internal/tracker"
	"bitget-marketmaker/pkg/strategyerr"
)

const stopWatchdog = 10 * time.Second

type runningEngine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	State() core.EngineState
}

// Manager is the single process-wide strategy supervisor.
type Manager struct {
	mu sync.Mutex

	exchangeCfg config.ExchangeConfig
	logger      core.ILogger
	specs       core.SpecCache
	persistence core.PersistenceWorker

	active       runningEngine
	activeRing   *events.Ring
	activeConfig *config.StrategyConfig
}

// New builds a Manager bound to the process-wide spec cache and
// persistence worker.
func New(exchangeCfg config.ExchangeConfig, logger core.ILogger, specs core.SpecCache, persistence core.PersistenceWorker) *Manager {
	return &Manager{
		exchangeCfg: exchangeCfg,
		logger:      logger.WithField("component", "strategy_manager"),
		specs:       specs,
		persistence: persistence,
	}
}

// State reports STOPPED if no strategy is active, else the active
// engine's current lifecycle state.
func (m *Manager) State() core.EngineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return core.StateStopped
	}
	return m.active.State()
}

// ActiveConfig returns the currently running config, or nil if none.
func (m *Manager) ActiveConfig() *config.StrategyConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeConfig == nil {
		return nil
	}
	return m.activeConfig.Clone()
}

// Events returns the active engine's event ring, or nil if none.
func (m *Manager) Events() *events.Ring {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRing
}

// CreateAndStart builds the trading-service triple, instrument spec,
// risk/merge components for cfg, recovers pending orders, and starts the
// appropriate engine. Fails with strategyerr.ErrAlreadyRunning if a
// strategy is already active (§4.1, §7).
func (m *Manager) CreateAndStart(ctx context.Context, cfg *config.StrategyConfig) error {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return strategyerr.ErrAlreadyRunning
	}
	m.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}
	base := cfg.Base()

	spec, err := m.specs.GetSpec(ctx, base.Symbol, base.TradingType)
	if err != nil {
		return fmt.Errorf("resolve instrument spec: %w", err)
	}
	if base.PricePrecision > 0 {
		spec.PricePlace = base.PricePrecision
	}
	if base.SizePrecision > 0 {
		spec.VolumePlace = base.SizePrecision
	}

	services := exchange.NewTradingServices(base.TradingType, m.exchangeCfg, m.logger, base.ProductType, base.MarginCoin)
	holdMode, err := exchange.DetectHoldMode(ctx, services)
	if err != nil {
		m.logger.Warn("hold mode detection failed, defaulting to double_hold", "error", err)
		holdMode = core.HoldModeDouble
	}

	riskCtrl := risk.NewController(base.MaxDailyLoss, base.MaxDrawdownPercent, base.MaxPosition, base.CooldownMs)
	ring := events.New()

	var eng runningEngine
	switch cfg.Kind {
	case config.KindScalping:
		trk := tracker.New()
		recovered, err := m.persistence.LoadPendingOrders(ctx, base.Symbol, base.TradingType)
		if err != nil {
			m.logger.Warn("recover pending orders failed", "error", err)
		}
		for _, o := range recovered {
			trk.Add(o)
		}
		mergeEngine := merge.New(trk, services.Order, *spec, holdMode)
		eng = scalping.New(cfg.Scalping, *spec, services, riskCtrl, m.persistence, mergeEngine, trk, ring, m.logger, holdMode)
	case config.KindGrid:
		eng, err = grid.New(cfg.Grid, *spec, services, riskCtrl, m.persistence, ring, m.logger, holdMode)
		if err != nil {
			return err
		}
	default:
		return &strategyerr.ValidationError{Field: "strategyType", Value: cfg.Kind, Message: "unknown strategy kind"}
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	m.mu.Lock()
	m.active = eng
	m.activeRing = ring
	m.activeConfig = cfg.Clone()
	m.mu.Unlock()

	if raw, err := persistence.MarshalConfig(cfg); err == nil {
		m.persistence.SaveActiveConfig(base.InstanceID, raw)
	}

	return nil
}

// StopActive gracefully stops the active engine, bounded by a watchdog
// so a hung cleanup never blocks the caller forever (§4.1, §5 "Stop
// path").
func (m *Manager) StopActive(ctx context.Context) error {
	m.mu.Lock()
	eng := m.active
	m.mu.Unlock()

	if eng == nil {
		return strategyerr.ErrNotRunning
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopWatchdog)
	defer cancel()

	err := eng.Stop(stopCtx)

	m.mu.Lock()
	m.active = nil
	m.activeRing = nil
	m.activeConfig = nil
	m.mu.Unlock()

	return err
}

// EmergencyStopActive immediately halts the active engine via its
// emergency path, bypassing the graceful STOPPING transition.
func (m *Manager) EmergencyStopActive(ctx context.Context) error {
	m.mu.Lock()
	eng := m.active
	m.mu.Unlock()

	if eng == nil {
		return strategyerr.ErrNotRunning
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopWatchdog)
	defer cancel()

	err := eng.EmergencyStop(stopCtx)

	m.mu.Lock()
	m.active = nil
	m.activeRing = nil
	m.activeConfig = nil
	m.mu.Unlock()

	return err
}
