// Package merge implements the scalping-only merge engine (§4.5): once
// pending sells reach maxPendingOrders, the oldest mergeThreshold sells
// are collapsed into one size-weighted-average sell.
package merge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/tracker"
	"bitget-marketmaker/pkg/strategyerr"
	"bitget-marketmaker/pkg/tradingutils"
)

// Engine runs the merge operation, guarded by a re-entry latch (§4.5
// "Concurrency discipline").
type Engine struct {
	tracker   *tracker.Tracker
	orderSvc  core.OrderService
	spec      core.InstrumentSpec
	holdMode  core.HoldMode
	inFlight  int32
}

// New builds a merge Engine bound to one symbol's tracker.
func New(t *tracker.Tracker, orderSvc core.OrderService, spec core.InstrumentSpec, holdMode core.HoldMode) *Engine {
	return &Engine{tracker: t, orderSvc: orderSvc, spec: spec, holdMode: holdMode}
}

// Result describes the outcome of a successful merge, used to build the
// ORDERS_MERGED event.
type Result struct {
	MergedCount int
	NewOrderID  string
	AvgPrice    decimal.Decimal
	TotalSize   decimal.Decimal
}

// Run attempts a merge of the oldest mergeThreshold pending sells. It is
// a no-op if a merge is already in flight. Returns strategyerr.ErrMergeFailed
// if the batch-cancel returned zero successfully cancelled orders.
func (e *Engine) Run(ctx context.Context, symbol string, mergeThreshold int) (*Result, error) {
	if !atomic.CompareAndSwapInt32(&e.inFlight, 0, 1) {
		return nil, nil
	}
	defer atomic.StoreInt32(&e.inFlight, 0)

	pending := e.tracker.PendingSells()
	if len(pending) < mergeThreshold {
		return nil, nil
	}
	targets := pending[:mergeThreshold]

	ids := make([]string, len(targets))
	prices := make([]decimal.Decimal, len(targets))
	sizes := make([]decimal.Decimal, len(targets))
	for i, o := range targets {
		ids[i] = o.OrderID
		prices[i] = o.Price
		sizes[i] = o.Size
	}

	cancelResult, err := e.orderSvc.BatchCancelOrders(ctx, symbol, ids)
	if err != nil {
		return nil, fmt.Errorf("merge batch-cancel: %w", err)
	}
	if len(cancelResult.Cancelled) == 0 {
		return nil, strategyerr.ErrMergeFailed
	}

	cancelledSet := make(map[string]bool, len(cancelResult.Cancelled))
	for _, id := range cancelResult.Cancelled {
		cancelledSet[id] = true
	}

	var mergedPrices, mergedSizes []decimal.Decimal
	for i, id := range ids {
		if cancelledSet[id] {
			e.tracker.SetStatus(id, core.StatusCancelled, 0)
			mergedPrices = append(mergedPrices, prices[i])
			mergedSizes = append(mergedSizes, sizes[i])
		}
	}

	avgPrice, totalSize := tradingutils.WeightedAveragePrice(mergedPrices, mergedSizes)
	avgPrice = e.spec.RoundPrice(avgPrice)
	totalSize = e.spec.RoundSize(totalSize)

	tradeSide := core.TradeSide("")
	if e.holdMode == core.HoldModeDouble {
		tradeSide = core.TradeSideClose
	}

	newOrder, err := e.orderSvc.PlaceOrder(ctx, core.PlaceOrderParams{
		Symbol:      symbol,
		Side:        core.SideSell,
		Price:       avgPrice,
		Size:        totalSize,
		ClientOID:   uuid.NewString(),
		TimeInForce: core.TimeInForcePostOnly,
		TradeSide:   tradeSide,
	})
	if err != nil {
		return nil, fmt.Errorf("merge place new sell: %w", err)
	}
	newOrder.CreatedAt = time.Now().UnixMilli()
	e.tracker.Add(newOrder)

	return &Result{
		MergedCount: len(mergedPrices),
		NewOrderID:  newOrder.OrderID,
		AvgPrice:    avgPrice,
		TotalSize:   totalSize,
	}, nil
}
