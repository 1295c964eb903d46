// Package grid implements the grid-engine state machine (§4.3): a fixed
// ladder of levels between lowerPrice and upperPrice, each cycling
// empty -> buy_pending -> buy_filled -> sell_pending -> empty.
//
// Grounded on the teacher's internal/trading/strategy/grid.go for the
// level-state-machine shape (there expressed as inventory slots keyed by
// price) and internal/trading/orchestrator/orchestrator.go for the
// context-cancellation lifecycle pattern, generalized here from the
// teacher's protobuf slot model to core.GridLevel and from an
// event-driven price stream to the polled single-loop model this spec
// requires.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/events"
	"bitget-marketmaker/pkg/apperrors"
	"bitget-marketmaker/pkg/retry"
)

const (
	minPollInterval   = 200 * time.Millisecond
	sellSettleDelay   = 800 * time.Millisecond
	sellPlaceAttempts = 3
	batchCancelChunk  = 50
	consecutiveErrorsToTrip = 5
	errorRestoreDelay       = 30 * time.Second
)

// Engine runs the grid strategy's single main loop.
type Engine struct {
	mu sync.Mutex

	cfg         *config.GridConfig
	spec        core.InstrumentSpec
	services    core.TradingServices
	risk        core.RiskController
	persistence core.PersistenceWorker
	events      *events.Ring
	logger      core.ILogger
	holdMode    core.HoldMode

	levels []*core.GridLevel
	state  core.EngineState

	consecutiveErrors int
	cancel            context.CancelFunc
	loopDone          chan struct{}
}

// New validates the ladder bounds and builds an Engine ready to Start.
func New(cfg *config.GridConfig, spec core.InstrumentSpec, services core.TradingServices, risk core.RiskController, persistence core.PersistenceWorker, ring *events.Ring, logger core.ILogger, holdMode core.HoldMode) (*Engine, error) {
	levels, err := buildLevels(cfg.LowerPrice, cfg.UpperPrice, cfg.Base.Notional, cfg.GridCount, cfg.GridType, spec.PricePlace, spec.VolumePlace)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:         cfg,
		spec:        spec,
		services:    services,
		risk:        risk,
		persistence: persistence,
		events:      ring,
		logger:      logger.WithField("component", "grid_engine").WithField("symbol", cfg.Base.Symbol),
		holdMode:    holdMode,
		levels:      levels,
		state:       core.StateStopped,
	}, nil
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() core.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Levels returns a snapshot of the ladder, for diagnostics and recovery.
func (e *Engine) Levels() []*core.GridLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*core.GridLevel, len(e.levels))
	copy(out, e.levels)
	return out
}

// Start transitions STOPPED -> STARTING -> RUNNING and arms the main
// loop (§4.3, §4.2 state-machine text shared by both engines).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != core.StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("grid engine: cannot start from state %s", e.state)
	}
	e.state = core.StateStarting
	e.mu.Unlock()

	equity, err := e.services.Account.GetAccountEquity(ctx)
	if err != nil {
		e.mu.Lock()
		e.state = core.StateStopped
		e.mu.Unlock()
		return fmt.Errorf("grid engine start: fetch equity: %w", err)
	}
	e.risk.UpdateEquity(equity.Equity)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.state = core.StateRunning
	e.loopDone = make(chan struct{})
	e.mu.Unlock()

	e.events.Emit(core.EventStrategyStarted, map[string]interface{}{"symbol": e.cfg.Base.Symbol, "kind": "grid"})

	go e.run(loopCtx)
	return nil
}

// Stop cancels the loop and waits up to 10s for it to exit (§5 "Stop
// path"), then cancels every pending order and resets affected levels.
func (e *Engine) Stop(ctx context.Context) error {
	return e.shutdown(ctx, false)
}

// EmergencyStop is equivalent to Stop for the grid engine: both cancel
// every pending in 50-sized batches (§4.3 "Stop/emergency").
func (e *Engine) EmergencyStop(ctx context.Context) error {
	return e.shutdown(ctx, true)
}

func (e *Engine) shutdown(ctx context.Context, emergency bool) error {
	e.mu.Lock()
	if e.state == core.StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = core.StateStopping
	cancel := e.cancel
	done := e.loopDone
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
		}
	}

	e.cancelAllPending(ctx)

	e.mu.Lock()
	e.state = core.StateStopped
	e.mu.Unlock()

	eventType := core.EventStrategyStopped
	if emergency {
		eventType = core.EventEmergencyStop
	}
	e.events.Emit(eventType, map[string]interface{}{"symbol": e.cfg.Base.Symbol})
	return nil
}

func (e *Engine) cancelAllPending(ctx context.Context) {
	e.mu.Lock()
	var ids []string
	for _, lv := range e.levels {
		if lv.State == core.GridBuyPending && lv.BuyOrderID != "" {
			ids = append(ids, lv.BuyOrderID)
		}
		if lv.State == core.GridSellPending && lv.SellOrderID != "" {
			ids = append(ids, lv.SellOrderID)
		}
	}
	e.mu.Unlock()

	for i := 0; i < len(ids); i += batchCancelChunk {
		end := i + batchCancelChunk
		if end > len(ids) {
			end = len(ids)
		}
		if _, err := e.services.Order.BatchCancelOrders(ctx, e.cfg.Base.Symbol, ids[i:end]); err != nil {
			e.logger.Warn("grid shutdown batch-cancel failed", "error", err)
		}
	}

	e.mu.Lock()
	for _, lv := range e.levels {
		if lv.State == core.GridBuyPending || lv.State == core.GridSellPending {
			lv.State = core.GridEmpty
			lv.BuyOrderID = ""
			lv.SellOrderID = ""
		}
	}
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.loopDone)

	interval := time.Duration(e.cfg.Base.PollIntervalMs) * time.Millisecond
	if interval < minPollInterval {
		interval = minPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if err := e.tickBody(ctx); err != nil {
		e.logger.Warn("grid tick error", "error", err)
		e.mu.Lock()
		e.consecutiveErrors++
		trip := e.consecutiveErrors >= consecutiveErrorsToTrip
		if trip {
			e.state = core.StateError
		}
		e.mu.Unlock()
		if trip {
			e.events.Emit(core.EventStrategyError, map[string]interface{}{"error": err.Error()})
			go e.restoreAfterError(ctx)
		}
		return
	}
	e.mu.Lock()
	e.consecutiveErrors = 0
	e.mu.Unlock()
}

func (e *Engine) restoreAfterError(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(errorRestoreDelay):
	}
	e.mu.Lock()
	if e.state == core.StateError {
		e.state = core.StateRunning
		e.consecutiveErrors = 0
	}
	e.mu.Unlock()
}

func (e *Engine) tickBody(ctx context.Context) error {
	ticker, err := e.services.Market.GetTicker(ctx, e.cfg.Base.Symbol)
	if err != nil {
		return fmt.Errorf("get ticker: %w", err)
	}
	currentPrice := ticker.Last

	decision := e.risk.CheckCanTrade(time.Now().UnixMilli(), e.positionNotional())
	if !decision.Allowed {
		return e.reconcile(ctx)
	}

	if err := e.reconcile(ctx); err != nil {
		return err
	}

	e.placeBuys(ctx, currentPrice)
	e.placeSells(ctx)

	equity, err := e.services.Account.GetAccountEquity(ctx)
	if err == nil {
		e.risk.UpdateEquity(equity.Equity)
	}
	return nil
}

func (e *Engine) positionNotional() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, lv := range e.levels {
		if lv.State == core.GridBuyFilled || lv.State == core.GridSellPending {
			total = total.Add(lv.Price.Mul(lv.Size))
		}
	}
	return total
}

// reconcile implements §4.3 step 3: diff locally-pending level orders
// against the exchange's reported pending set and dispatch state
// transitions for the ones that disappeared.
func (e *Engine) reconcile(ctx context.Context) error {
	e.mu.Lock()
	type pendingRef struct {
		level int
		id    string
		side  core.OrderSide
	}
	var localPending []pendingRef
	for _, lv := range e.levels {
		if lv.State == core.GridBuyPending && lv.BuyOrderID != "" {
			localPending = append(localPending, pendingRef{lv.Index, lv.BuyOrderID, core.SideBuy})
		}
		if lv.State == core.GridSellPending && lv.SellOrderID != "" {
			localPending = append(localPending, pendingRef{lv.Index, lv.SellOrderID, core.SideSell})
		}
	}
	e.mu.Unlock()

	if len(localPending) == 0 {
		return nil
	}

	exchangePending, err := e.services.Order.GetPendingOrders(ctx, e.cfg.Base.Symbol)
	if err != nil {
		return fmt.Errorf("get pending orders: %w", err)
	}
	exchangeSet := make(map[string]bool, len(exchangePending))
	for _, o := range exchangePending {
		exchangeSet[o.OrderID] = true
	}

	for _, ref := range localPending {
		if exchangeSet[ref.id] {
			continue
		}
		detail, err := e.services.Order.GetOrderDetail(ctx, e.cfg.Base.Symbol, ref.id)
		if err != nil {
			continue
		}

		switch detail.Status {
		case core.StatusFilled:
			e.onLevelFilled(ctx, ref.level, ref.side, detail)
		case core.StatusCancelled, core.StatusFailed:
			e.resetLevel(ref.level)
		}
	}
	return nil
}

func (e *Engine) onLevelFilled(ctx context.Context, idx int, side core.OrderSide, order *core.TrackedOrder) {
	e.mu.Lock()
	lv := e.levels[idx]
	e.mu.Unlock()

	e.persistence.PersistOrderStatusChange(order.OrderID, core.StatusFilled, order.FilledAt, "")

	if side == core.SideBuy {
		e.mu.Lock()
		lv.State = core.GridBuyFilled
		lv.BuyFilledAt = time.Now().UnixMilli()
		e.mu.Unlock()
		e.events.Emit(core.EventGridBuyFilled, map[string]interface{}{"level": idx, "price": lv.Price.String()})
		return
	}

	buyPrice := lv.Price
	sellPrice := order.Price
	size := order.Size
	gross := sellPrice.Sub(buyPrice).Mul(size)
	notional := buyPrice.Mul(size)
	fee := decimal.NewFromInt(2).Mul(notional).Mul(e.spec.MakerFeeRate)
	net := gross.Sub(fee)

	e.risk.RecordPnl(net)
	e.persistence.PersistRealizedPnl(net, fee, net.IsPositive(), "grid")
	e.resetLevel(idx)
	e.events.Emit(core.EventGridSellFilled, map[string]interface{}{"level": idx, "netPnl": net.String()})
}

func (e *Engine) resetLevel(idx int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lv := e.levels[idx]
	lv.State = core.GridEmpty
	lv.BuyOrderID = ""
	lv.SellOrderID = ""
	lv.BuyFilledAt = 0
}

// placeBuys implements §4.3 step 4: place a non-post-only gtc buy for
// every empty level strictly below currentPrice, breaking as soon as the
// risk gate denies further entries.
func (e *Engine) placeBuys(ctx context.Context, currentPrice decimal.Decimal) {
	e.mu.Lock()
	var targets []int
	for _, lv := range e.levels {
		if lv.State == core.GridEmpty && lv.Price.LessThan(currentPrice) {
			targets = append(targets, lv.Index)
		}
	}
	e.mu.Unlock()

	for _, idx := range targets {
		decision := e.risk.CheckCanTrade(time.Now().UnixMilli(), e.positionNotional())
		if !decision.Allowed {
			e.logger.Info("grid risk gate denied further buy entries", "reason", decision.Reason)
			break
		}

		e.mu.Lock()
		lv := e.levels[idx]
		price := lv.Price
		size := lv.Size
		e.mu.Unlock()
		if size.IsZero() {
			continue
		}

		tradeSide := core.TradeSide("")
		if e.holdMode == core.HoldModeDouble {
			tradeSide = core.TradeSideOpen
		}

		order, err := e.services.Order.PlaceOrder(ctx, core.PlaceOrderParams{
			Symbol:      e.cfg.Base.Symbol,
			Side:        core.SideBuy,
			Price:       price,
			Size:        size,
			ClientOID:   uuid.NewString(),
			TimeInForce: core.TimeInForceGTC,
			ProductType: e.cfg.Base.ProductType,
			MarginMode:  e.cfg.Base.MarginMode,
			MarginCoin:  e.cfg.Base.MarginCoin,
			TradeSide:   tradeSide,
		})
		if err != nil {
			e.logger.Warn("grid place buy failed", "level", idx, "error", err)
			continue
		}
		order.CreatedAt = time.Now().UnixMilli()
		order.GridLevelIndex = idx

		e.mu.Lock()
		lv.State = core.GridBuyPending
		lv.BuyOrderID = order.OrderID
		e.mu.Unlock()

		e.persistence.PersistNewOrder(order, e.cfg.Base.Symbol, e.cfg.Base.TradingType, e.cfg.Base.MarginCoin)
		e.events.Emit(core.EventGridLevelUpdated, map[string]interface{}{"level": idx, "state": string(core.GridBuyPending)})
	}
}

// placeSells implements §4.3 step 5: for every buy_filled level, place a
// sell at the next-higher level's price, waiting for inventory to settle
// and retrying on transient position errors. Persistent failure leaves
// the level at buy_filled for the next tick.
func (e *Engine) placeSells(ctx context.Context) {
	e.mu.Lock()
	var targets []int
	for _, lv := range e.levels {
		if lv.State == core.GridBuyFilled {
			targets = append(targets, lv.Index)
		}
	}
	e.mu.Unlock()

	for _, idx := range targets {
		e.placeSellForLevel(ctx, idx)
	}
}

func (e *Engine) placeSellForLevel(ctx context.Context, idx int) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(sellSettleDelay):
	}

	e.mu.Lock()
	lv := e.levels[idx]
	sellPrice := nextSellPrice(e.levels, idx)
	size := lv.Size
	e.mu.Unlock()

	tradeSide := core.TradeSide("")
	if e.holdMode == core.HoldModeDouble {
		tradeSide = core.TradeSideClose
	}

	isTransient := func(err error) bool {
		return errors.Is(err, apperrors.ErrNoPosition) || errors.Is(err, apperrors.ErrTradeSideMismatch)
	}

	var placed *core.TrackedOrder
	err := retry.Do(ctx, retry.Policy{MaxAttempts: sellPlaceAttempts, InitialBackoff: 0, MaxBackoff: 0}, isTransient, func() error {
		o, err := e.services.Order.PlaceOrder(ctx, core.PlaceOrderParams{
			Symbol:      e.cfg.Base.Symbol,
			Side:        core.SideSell,
			Price:       sellPrice,
			Size:        size,
			ClientOID:   uuid.NewString(),
			TimeInForce: core.TimeInForceGTC,
			ProductType: e.cfg.Base.ProductType,
			MarginMode:  e.cfg.Base.MarginMode,
			MarginCoin:  e.cfg.Base.MarginCoin,
			TradeSide:   tradeSide,
			ReduceOnly:  true,
		})
		if err != nil {
			return err
		}
		placed = o
		return nil
	})

	if err != nil {
		e.logger.Warn("grid sell placement failed, rolling back to buy_filled", "level", idx, "error", err)
		return
	}

	placed.CreatedAt = time.Now().UnixMilli()
	placed.GridLevelIndex = idx

	e.mu.Lock()
	lv.State = core.GridSellPending
	lv.SellOrderID = placed.OrderID
	e.mu.Unlock()

	e.persistence.PersistNewOrder(placed, e.cfg.Base.Symbol, e.cfg.Base.TradingType, e.cfg.Base.MarginCoin)
	e.events.Emit(core.EventGridLevelUpdated, map[string]interface{}{"level": idx, "state": string(core.GridSellPending)})
}
