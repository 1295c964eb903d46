// Package mock provides in-memory fakes of the three trading-service
// capabilities, for use by engine/risk/tracker tests without a live
// exchange connection.
//
// Grounded on the teacher's internal/mock/exchange.go: an in-memory
// order book keyed by orderId plus a clientOid index, with a
// SimulateOrderFill hook tests use to drive fills deterministically.
// Adapted here from the teacher's pb.Order/protobuf shape to
// core.TrackedOrder and from a streaming push model to this spec's
// polled OrderService/MarketDataService/AccountService contract.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
)

// Exchange fakes all three trading-service capabilities plus
// core.HoldModeProvider.
type Exchange struct {
	mu sync.Mutex

	orders      map[string]*core.TrackedOrder
	clientIndex map[string]string
	nextID      int

	ticker    core.Ticker
	available decimal.Decimal
	equity    core.Equity
	holdMode  core.HoldMode

	// PlaceOrderErr, when non-nil, is returned by the next PlaceOrder
	// call instead of succeeding, then cleared.
	PlaceOrderErr error
}

// New builds an Exchange seeded with a flat ticker and balance.
func New() *Exchange {
	return &Exchange{
		orders:      make(map[string]*core.TrackedOrder),
		clientIndex: make(map[string]string),
		nextID:      1000,
		ticker:      core.Ticker{BestBid: decimal.NewFromInt(100), BestAsk: decimal.NewFromInt(100)},
		available:   decimal.NewFromInt(10000),
		equity:      core.Equity{Equity: decimal.NewFromInt(10000), Available: decimal.NewFromInt(10000)},
		holdMode:    core.HoldModeDouble,
	}
}

// SetTicker overrides the fake's best bid/ask/last.
func (e *Exchange) SetTicker(t core.Ticker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticker = t
}

// SetEquity overrides the fake's reported account equity.
func (e *Exchange) SetEquity(eq core.Equity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.equity = eq
}

// SetHoldMode overrides the fake's reported hold mode.
func (e *Exchange) SetHoldMode(m core.HoldMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.holdMode = m
}

// SimulateFill marks orderID filled at the given price, as if the
// exchange executed it.
func (e *Exchange) SimulateFill(orderID string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return
	}
	o.Status = core.StatusFilled
	o.Price = price
	o.FilledAt = time.Now().UnixMilli()
}

// SimulateCancel marks orderID cancelled, as if the exchange rejected or
// expired it.
func (e *Exchange) SimulateCancel(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		o.Status = core.StatusCancelled
	}
}

// PlaceOrder implements core.OrderService.
func (e *Exchange) PlaceOrder(ctx context.Context, p core.PlaceOrderParams) (*core.TrackedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.PlaceOrderErr != nil {
		err := e.PlaceOrderErr
		e.PlaceOrderErr = nil
		return nil, err
	}

	if p.ClientOID != "" {
		if existingID, ok := e.clientIndex[p.ClientOID]; ok {
			cp := *e.orders[existingID]
			return &cp, nil
		}
	}

	e.nextID++
	id := fmt.Sprintf("mock-%d", e.nextID)

	status := core.StatusPending
	if p.Market {
		status = core.StatusFilled
	}

	order := &core.TrackedOrder{
		OrderID:        id,
		ClientOID:      p.ClientOID,
		Symbol:         p.Symbol,
		Side:           p.Side,
		Price:          p.Price,
		Size:           p.Size,
		Status:         status,
		CreatedAt:      time.Now().UnixMilli(),
		GridLevelIndex: -1,
	}
	if status == core.StatusFilled {
		order.FilledAt = order.CreatedAt
	}

	e.orders[id] = order
	if p.ClientOID != "" {
		e.clientIndex[p.ClientOID] = id
	}
	cp := *order
	return &cp, nil
}

// CancelOrder implements core.OrderService.
func (e *Exchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return nil
	}
	if o.Status.IsTerminal() {
		return nil
	}
	o.Status = core.StatusCancelled
	return nil
}

// BatchCancelOrders implements core.OrderService.
func (e *Exchange) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (core.BatchCancelResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result core.BatchCancelResult
	for _, id := range orderIDs {
		o, ok := e.orders[id]
		if !ok {
			result.Failed = append(result.Failed, id)
			continue
		}
		if !o.Status.IsTerminal() {
			o.Status = core.StatusCancelled
		}
		result.Cancelled = append(result.Cancelled, id)
	}
	return result, nil
}

// GetPendingOrders implements core.OrderService.
func (e *Exchange) GetPendingOrders(ctx context.Context, symbol string) ([]*core.TrackedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*core.TrackedOrder
	for _, o := range e.orders {
		if o.Symbol == symbol && o.Status == core.StatusPending {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetOrderDetail implements core.OrderService.
func (e *Exchange) GetOrderDetail(ctx context.Context, symbol, orderID string) (*core.TrackedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("mock: order not found: %s", orderID)
	}
	cp := *o
	return &cp, nil
}

// GetTicker implements core.MarketDataService.
func (e *Exchange) GetTicker(ctx context.Context, symbol string) (*core.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.ticker
	t.Symbol = symbol
	return &t, nil
}

// GetBestBid implements core.MarketDataService.
func (e *Exchange) GetBestBid(ctx context.Context, symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker.BestBid, nil
}

// GetBestAsk implements core.MarketDataService.
func (e *Exchange) GetBestAsk(ctx context.Context, symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticker.BestAsk, nil
}

// GetAvailableBalance implements core.AccountService.
func (e *Exchange) GetAvailableBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available, nil
}

// GetAccountEquity implements core.AccountService.
func (e *Exchange) GetAccountEquity(ctx context.Context) (core.Equity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equity, nil
}

// GetHoldMode implements core.HoldModeProvider.
func (e *Exchange) GetHoldMode(ctx context.Context) (core.HoldMode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holdMode, nil
}
