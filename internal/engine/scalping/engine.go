// Package scalping implements the twin-loop scalping engine (§4.2): Loop
// A maintains a single adaptive post-only buy against the best bid, Loop
// B reconciles fills and pairs each filled buy with a sell at
// buyPrice+priceSpread.
//
// Grounded on the teacher's internal/trading/orchestrator/orchestrator.go
// for the context-cancellation, two-independent-loop lifecycle pattern
// (there one goroutine per symbol fed by channels; here two tickers per
// strategy instance fed by polling, per this spec's §5 concurrency
// model), and internal/risk/circuit_breaker.go for the consecutive-error
// trip/restore shape reused in both engines.
package scalping

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
	"bitget-marketmaker/internal/merge"
	"bitget-marketmaker/internal/tracker"
	"bitget-marketmaker/pkg/apperrors"
	"bitget-marketmaker/pkg/tradingutils"
)

const (
	minLoopAInterval  = 200 * time.Millisecond
	minLoopBInterval  = 500 * time.Millisecond
	buyGraceAge       = 3000 * time.Millisecond
	postOnlyCooldown  = 3000 * time.Millisecond
	buyFillSettleWait = 3000 * time.Millisecond
	batchCancelChunk  = 50
	consecutiveErrorsToTrip = 5
	errorRestoreDelay       = 30 * time.Second

	// feeCoverageThreshold is the spec's "priceSpread / totalFeeRate"
	// floor below which a round-trip barely clears fees (§4.2 "Fee
	// coverage advisor").
	feeCoverageThreshold = 200_000
	feeCoverageRefPrice  = 70_000
)

// sellRetryBackoff is the fixed 7-attempt backoff sequence between
// buy-filled sell-pairing attempts (§4.2 "Buy-filled handler").
var sellRetryBackoff = []time.Duration{
	2 * time.Second, 3 * time.Second, 4 * time.Second,
	5 * time.Second, 5 * time.Second, 3 * time.Second, 0,
}

// Engine runs the scalping strategy's two independent periodic loops.
type Engine struct {
	mu sync.Mutex

	cfg         *config.ScalpingConfig
	spec        core.InstrumentSpec
	services    core.TradingServices
	risk        core.RiskController
	persistence core.PersistenceWorker
	merge       *merge.Engine
	tracker     *tracker.Tracker
	events      *events.Ring
	logger      core.ILogger
	holdMode    core.HoldMode

	state                      core.EngineState
	consecutivePostOnlyCancels int
	lastBuyCancelledAt         int64
	consecutiveErrors          int

	cancelA, cancelB context.CancelFunc
	doneA, doneB     chan struct{}
}

// New builds a scalping Engine bound to one symbol's services.
func New(cfg *config.ScalpingConfig, spec core.InstrumentSpec, services core.TradingServices, risk core.RiskController, persistence core.PersistenceWorker, mergeEngine *merge.Engine, trk *tracker.Tracker, ring *events.Ring, logger core.ILogger, holdMode core.HoldMode) *Engine {
	return &Engine{
		cfg:         cfg,
		spec:        spec,
		services:    services,
		risk:        risk,
		persistence: persistence,
		merge:       mergeEngine,
		tracker:     trk,
		events:      ring,
		logger:      logger.WithField("component", "scalping_engine").WithField("symbol", cfg.Base.Symbol),
		holdMode:    holdMode,
		state:       core.StateStopped,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() core.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start transitions STOPPED -> STARTING -> RUNNING, recovers pending
// orders, runs the fee-coverage advisor, and arms both loops (§4.2).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != core.StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("scalping engine: cannot start from state %s", e.state)
	}
	e.state = core.StateStarting
	e.mu.Unlock()

	recovered, err := e.persistence.LoadPendingOrders(ctx, e.cfg.Base.Symbol, e.cfg.Base.TradingType)
	if err != nil {
		e.logger.Warn("scalping engine: recover pending orders failed", "error", err)
	}
	for _, o := range recovered {
		e.tracker.Add(o)
	}

	equity, err := e.services.Account.GetAccountEquity(ctx)
	if err != nil {
		e.mu.Lock()
		e.state = core.StateStopped
		e.mu.Unlock()
		return fmt.Errorf("scalping engine start: fetch equity: %w", err)
	}
	e.risk.UpdateEquity(equity.Equity)

	e.feeCoverageAdvisor()

	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancelA, e.cancelB = cancelA, cancelB
	e.doneA, e.doneB = make(chan struct{}), make(chan struct{})
	e.state = core.StateRunning
	e.mu.Unlock()

	e.events.Emit(core.EventStrategyStarted, map[string]interface{}{"symbol": e.cfg.Base.Symbol, "kind": "scalping"})

	go e.runLoopA(ctxA)
	go e.runLoopB(ctxB)
	return nil
}

func (e *Engine) feeCoverageAdvisor() {
	totalFee := e.spec.MakerFeeRate.Add(e.spec.TakerFeeRate)
	if totalFee.IsZero() {
		return
	}
	ratio := e.cfg.PriceSpread.Div(totalFee)
	if ratio.LessThan(decimal.NewFromInt(feeCoverageThreshold)) {
		estLoss := decimal.NewFromInt(feeCoverageRefPrice).Mul(totalFee).Mul(decimal.NewFromInt(2)).Sub(e.cfg.PriceSpread)
		e.logger.Warn("priceSpread barely covers round-trip fees",
			"priceSpread", e.cfg.PriceSpread.String(),
			"totalFeeRate", totalFee.String(),
			"estimatedLossAtRefPrice", estLoss.String())
	}
}

// Stop cancels both loops and best-effort cancels the active buy only
// (§5 "Stop path"); pending sells are left resting.
func (e *Engine) Stop(ctx context.Context) error {
	return e.shutdown(ctx, false)
}

// EmergencyStop cancels both loops and batch-cancels every pending order
// in 50-sized chunks without waiting for paired-sell completion (§5
// "Emergency path").
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
	cancelA, cancelB := e.cancelA, e.cancelB
	doneA, doneB := e.doneA, e.doneB
	e.mu.Unlock()

	if cancelA != nil {
		cancelA()
	}
	if cancelB != nil {
		cancelB()
	}
	waitFor(doneA, 10*time.Second)
	waitFor(doneB, 10*time.Second)

	if emergency {
		ids := e.tracker.PendingOrderIDs()
		for i := 0; i < len(ids); i += batchCancelChunk {
			end := i + batchCancelChunk
			if end > len(ids) {
				end = len(ids)
			}
			if _, err := e.services.Order.BatchCancelOrders(ctx, e.cfg.Base.Symbol, ids[i:end]); err != nil {
				e.logger.Warn("emergency batch-cancel failed", "error", err)
			}
		}
	} else if buy := e.tracker.ActiveBuy(); buy != nil {
		if err := e.services.Order.CancelOrder(ctx, e.cfg.Base.Symbol, buy.OrderID); err != nil {
			e.logger.Warn("stop: cancel active buy failed", "error", err)
		} else {
			e.tracker.SetStatus(buy.OrderID, core.StatusCancelled, 0)
			e.tracker.ClearActiveBuy()
		}
	}

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

func waitFor(done chan struct{}, timeout time.Duration) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func (e *Engine) runLoopA(ctx context.Context) {
	defer close(e.doneA)

	interval := time.Duration(e.cfg.Base.PollIntervalMs) * time.Millisecond
	if interval < minLoopAInterval {
		interval = minLoopAInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runTick(ctx, e.tickLoopA)
		}
	}
}

func (e *Engine) runLoopB(ctx context.Context) {
	defer close(e.doneB)

	interval := time.Duration(e.cfg.Base.OrderCheckIntervalMs) * time.Millisecond
	if interval < minLoopBInterval {
		interval = minLoopBInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runTick(ctx, e.tickLoopB)
		}
	}
}

// runTick implements the shared consecutive-error policy: at 5
// consecutive failures (across both loops) the engine enters ERROR and a
// 30s timer restores RUNNING (§4.2 "Error policy").
func (e *Engine) runTick(ctx context.Context, body func(context.Context) error) {
	if err := body(ctx); err != nil {
		e.logger.Warn("scalping tick error", "error", err)
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

// tickLoopA implements §4.2 "Loop A — quote tracker".
func (e *Engine) tickLoopA(ctx context.Context) error {
	now := time.Now().UnixMilli()
	decision := e.risk.CheckCanTrade(now, e.tracker.TotalPositionNotional())
	if !decision.Allowed {
		return nil
	}

	bid, err := e.services.Market.GetBestBid(ctx, e.cfg.Base.Symbol)
	if err != nil {
		return fmt.Errorf("get best bid: %w", err)
	}

	activeBuy := e.tracker.ActiveBuy()
	if activeBuy != nil {
		age := time.Duration(now-activeBuy.CreatedAt) * time.Millisecond
		twoSpread := e.cfg.PriceSpread.Mul(decimal.NewFromInt(2))
		fiveSpread := e.cfg.PriceSpread.Mul(decimal.NewFromInt(5))
		overpaying := activeBuy.Price.GreaterThan(bid.Add(twoSpread))
		tooFarBelow := bid.Sub(activeBuy.Price).GreaterThan(fiveSpread)
		if age >= buyGraceAge && (overpaying || tooFarBelow) {
			if err := e.services.Order.CancelOrder(ctx, e.cfg.Base.Symbol, activeBuy.OrderID); err != nil {
				return fmt.Errorf("cancel stale buy: %w", err)
			}
			e.tracker.SetStatus(activeBuy.OrderID, core.StatusCancelled, 0)
			e.tracker.ClearActiveBuy()
			e.persistence.PersistOrderStatusChange(activeBuy.OrderID, core.StatusCancelled, 0, "")
			e.events.Emit(core.EventBuyOrderCancelled, map[string]interface{}{"orderId": activeBuy.OrderID, "reason": "stale"})
		}
		return nil
	}

	e.mu.Lock()
	lastCancelled := e.lastBuyCancelledAt
	e.mu.Unlock()
	if lastCancelled != 0 && now-lastCancelled < postOnlyCooldown.Milliseconds() {
		return nil
	}

	return e.placeNewBuy(ctx, bid)
}

func (e *Engine) placeNewBuy(ctx context.Context, bid decimal.Decimal) error {
	e.mu.Lock()
	cancels := e.consecutivePostOnlyCancels
	e.mu.Unlock()

	tickSize := decimal.New(1, -e.spec.PricePlace)
	steps := 2 + cancels
	if steps > 10 {
		steps = 10
	}
	price := e.spec.RoundPrice(bid.Sub(tickSize.Mul(decimal.NewFromInt(int64(steps)))))

	size, ok := tradingutils.CalcSize(e.cfg.Base.Notional, price, e.spec.MinTradeNum, e.spec.VolumePlace)
	if !ok {
		e.logger.Warn("scalping: size below minimum, skipping buy placement", "price", price.String())
		return nil
	}

	tif := core.TimeInForcePostOnly
	if cancels >= 5 {
		tif = core.TimeInForceGTC
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
		TimeInForce: tif,
		ProductType: e.cfg.Base.ProductType,
		MarginMode:  e.cfg.Base.MarginMode,
		MarginCoin:  e.cfg.Base.MarginCoin,
		TradeSide:   tradeSide,
	})
	if err != nil {
		e.mu.Lock()
		e.consecutivePostOnlyCancels++
		e.lastBuyCancelledAt = time.Now().UnixMilli()
		e.mu.Unlock()
		return fmt.Errorf("place buy: %w", err)
	}
	order.CreatedAt = time.Now().UnixMilli()
	order.GridLevelIndex = -1

	e.tracker.Add(order)
	e.persistence.PersistNewOrder(order, e.cfg.Base.Symbol, e.cfg.Base.TradingType, e.cfg.Base.MarginCoin)
	e.events.Emit(core.EventBuyOrderPlaced, map[string]interface{}{"orderId": order.OrderID, "price": price.String()})
	return nil
}

// tickLoopB implements §4.2 "Loop B — fill reconciler".
func (e *Engine) tickLoopB(ctx context.Context) error {
	result, err := tracker.Reconcile(ctx, e.tracker, e.services.Order, e.cfg.Base.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	for _, o := range result.Filled {
		e.persistence.PersistOrderStatusChange(o.OrderID, core.StatusFilled, o.FilledAt, o.LinkedOrderID)
		if o.Side == core.SideBuy {
			e.mu.Lock()
			e.consecutivePostOnlyCancels = 0
			e.mu.Unlock()
			e.events.Emit(core.EventBuyOrderFilled, map[string]interface{}{"orderId": o.OrderID})
			go e.handleBuyFilled(context.Background(), o)
		} else {
			e.handleSellFilled(o)
		}
	}

	for _, o := range result.Cancelled {
		e.persistence.PersistOrderStatusChange(o.OrderID, core.StatusCancelled, 0, "")
		if o.Side == core.SideBuy {
			e.mu.Lock()
			e.lastBuyCancelledAt = time.Now().UnixMilli()
			e.consecutivePostOnlyCancels++
			e.mu.Unlock()
			e.tracker.ClearActiveBuy()
		}
	}

	if pending := e.tracker.PendingSells(); len(pending) >= e.cfg.MaxPendingOrders {
		result, err := e.merge.Run(ctx, e.cfg.Base.Symbol, e.cfg.MergeThreshold)
		if err != nil {
			e.logger.Warn("merge failed", "error", err)
		} else if result != nil {
			if newOrder, ok := e.tracker.Get(result.NewOrderID); ok {
				e.persistence.PersistNewOrder(newOrder, e.cfg.Base.Symbol, e.cfg.Base.TradingType, e.cfg.Base.MarginCoin)
			}
			e.events.Emit(core.EventOrdersMerged, map[string]interface{}{
				"mergedCount": result.MergedCount,
				"newOrderId":  result.NewOrderID,
				"avgPrice":    result.AvgPrice.String(),
			})
		}
	}

	e.tracker.Trim()

	if equity, err := e.services.Account.GetAccountEquity(ctx); err == nil {
		e.risk.UpdateEquity(equity.Equity)
	}
	return nil
}

// handleBuyFilled implements §4.2 "Buy-filled handler": waits for the
// exchange to settle the long inventory, then retries sell placement up
// to 7 attempts, inverting tradeSide on attempt 6 and forcing a market
// close on attempt 7.
func (e *Engine) handleBuyFilled(ctx context.Context, buyOrder *core.TrackedOrder) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(buyFillSettleWait):
	}

	sellPrice := e.spec.RoundPrice(buyOrder.Price.Add(e.cfg.PriceSpread))
	size := buyOrder.Size

	for attempt := 1; attempt <= 7; attempt++ {
		params := core.PlaceOrderParams{
			Symbol:      e.cfg.Base.Symbol,
			Side:        core.SideSell,
			Price:       sellPrice,
			Size:        size,
			ClientOID:   uuid.NewString(),
			TimeInForce: core.TimeInForcePostOnly,
			ProductType: e.cfg.Base.ProductType,
			MarginMode:  e.cfg.Base.MarginMode,
			MarginCoin:  e.cfg.Base.MarginCoin,
			ReduceOnly:  true,
		}

		switch {
		case attempt <= 5:
			if e.holdMode == core.HoldModeDouble {
				params.TradeSide = core.TradeSideClose
			}
		case attempt == 6:
			if e.holdMode == core.HoldModeDouble {
				params.TradeSide = ""
			} else {
				params.TradeSide = core.TradeSideClose
			}
		default: // attempt == 7
			params.Market = true
			params.TradeSide = core.TradeSideClose
		}

		sellOrder, err := e.services.Order.PlaceOrder(ctx, params)
		if err == nil {
			sellOrder.CreatedAt = time.Now().UnixMilli()
			sellOrder.GridLevelIndex = -1
			e.tracker.Add(sellOrder)
			e.tracker.SetLinkedOrderID(buyOrder.OrderID, sellOrder.OrderID)
			e.tracker.SetLinkedOrderID(sellOrder.OrderID, buyOrder.OrderID)
			e.persistence.PersistNewOrder(sellOrder, e.cfg.Base.Symbol, e.cfg.Base.TradingType, e.cfg.Base.MarginCoin)
			e.events.Emit(core.EventSellOrderPlaced, map[string]interface{}{"orderId": sellOrder.OrderID, "attempt": attempt})
			return
		}

		retryable := errors.Is(err, apperrors.ErrNoPosition) || errors.Is(err, apperrors.ErrTradeSideMismatch)
		if !retryable || attempt == 7 {
			e.logger.Warn("sell pairing failed", "buyOrderId", buyOrder.OrderID, "attempt", attempt, "error", err)
			e.events.Emit(core.EventSellOrderFailed, map[string]interface{}{"buyOrderId": buyOrder.OrderID, "error": err.Error()})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sellRetryBackoff[attempt-1]):
		}
	}
}

// handleSellFilled implements §4.2 "Sell-filled handler".
func (e *Engine) handleSellFilled(sellOrder *core.TrackedOrder) {
	buyOrder, ok := e.tracker.Get(sellOrder.LinkedOrderID)
	if !ok {
		e.events.Emit(core.EventSellOrderFilled, map[string]interface{}{"orderId": sellOrder.OrderID})
		return
	}

	gross := sellOrder.Price.Sub(buyOrder.Price).Mul(sellOrder.Size)
	notional := buyOrder.Price.Mul(sellOrder.Size)
	fee := decimal.NewFromInt(2).Mul(notional).Mul(e.spec.MakerFeeRate)
	net := gross.Sub(fee)

	e.risk.RecordPnl(net)
	e.persistence.PersistRealizedPnl(net, fee, net.IsPositive(), "scalping")
	e.events.Emit(core.EventSellOrderFilled, map[string]interface{}{
		"orderId": sellOrder.OrderID,
		"netPnl":  net.String(),
	})
}
