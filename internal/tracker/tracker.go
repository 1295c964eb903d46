// Package tracker implements the local view of exchange order state and
// the two-step disappeared-order reconciliation protocol (§4.4).
package tracker

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"bitget-marketmaker/internal/core"
)

// maxNonPending bounds in-memory history; pending orders are never
// evicted (§4.4 "Housekeeping").
const maxNonPending = 500

// Tracker owns the orderId → TrackedOrder map plus the scalping-only
// active-buy slot.
type Tracker struct {
	mu sync.RWMutex

	orders      map[string]*core.TrackedOrder
	activeBuyID string
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{orders: make(map[string]*core.TrackedOrder)}
}

// Add inserts or replaces an order, and if it is a pending buy, records
// it as the active buy (§3 invariant: activeBuyOrderId references a
// pending buy).
func (t *Tracker) Add(order *core.TrackedOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.orders[order.OrderID] = order

	if order.Side == core.SideBuy && order.Status == core.StatusPending {
		t.activeBuyID = order.OrderID
	}
}

// ActiveBuy returns the current outstanding buy, if any.
func (t *Tracker) ActiveBuy() *core.TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.activeBuyID == "" {
		return nil
	}
	o, ok := t.orders[t.activeBuyID]
	if !ok || o.Status != core.StatusPending {
		return nil
	}
	return o
}

// ClearActiveBuy drops the active-buy slot without altering the order's
// status; used after cancel/fill is recorded through SetStatus.
func (t *Tracker) ClearActiveBuy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeBuyID = ""
}

// PendingSells returns pending sell orders ordered by createdAt
// ascending (§4.4 derived view b).
func (t *Tracker) PendingSells() []*core.TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*core.TrackedOrder, 0)
	for _, o := range t.orders {
		if o.Side == core.SideSell && o.Status == core.StatusPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// PendingOrderIDs returns every locally-pending orderId, buy or sell,
// snapshotted before an exchange fetch per the ordering guarantee in §5.
func (t *Tracker) PendingOrderIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0)
	for id, o := range t.orders {
		if o.Status == core.StatusPending {
			out = append(out, id)
		}
	}
	return out
}

// TotalPositionNotional implements §4.4 derived view (c): sum over
// pending sells of price*size.
func (t *Tracker) TotalPositionNotional() decimal.Decimal {
	total := decimal.Zero
	for _, o := range t.PendingSells() {
		total = total.Add(o.Price.Mul(o.Size))
	}
	return total
}

// Get returns the order with the given id, if tracked.
func (t *Tracker) Get(orderID string) (*core.TrackedOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[orderID]
	return o, ok
}

// SetStatus transitions an order's status, enforcing the §3 monotonicity
// invariant: terminal statuses never regress, and pending only moves to
// a terminal state.
func (t *Tracker) SetStatus(orderID string, status core.OrderStatus, filledAt int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.orders[orderID]
	if !ok || o.Status.IsTerminal() {
		return
	}
	o.Status = status
	if filledAt > 0 {
		o.FilledAt = filledAt
	}
	if o.OrderID == t.activeBuyID && status.IsTerminal() {
		t.activeBuyID = ""
	}
}

// SetLinkedOrderID pairs a buy with its sell, enforced write-once per the
// §3 invariant that linkedOrderId, once set, never changes.
func (t *Tracker) SetLinkedOrderID(orderID, linkedID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok || o.LinkedOrderID != "" {
		return
	}
	o.LinkedOrderID = linkedID
}

// FindDisappeared implements §4.4 reconciliation step 1: local pending
// orders, from the snapshot ids, not present in exchangePendingIds.
func (t *Tracker) FindDisappeared(localPendingSnapshot []string, exchangePendingIds map[string]bool) []*core.TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*core.TrackedOrder
	for _, id := range localPendingSnapshot {
		o, ok := t.orders[id]
		if !ok || o.Status != core.StatusPending {
			continue
		}
		if !exchangePendingIds[id] {
			out = append(out, o)
		}
	}
	return out
}

// Remove deletes an order outright, clearing the active-buy slot if it
// held that order.
func (t *Tracker) Remove(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.orders, orderID)
	if t.activeBuyID == orderID {
		t.activeBuyID = ""
	}
}

// Trim keeps at most maxNonPending non-pending orders, evicting the
// oldest first; pending orders are never evicted (§4.4 Housekeeping).
func (t *Tracker) Trim() {
	t.mu.Lock()
	defer t.mu.Unlock()

	type entry struct {
		id        string
		createdAt int64
	}
	var terminal []entry
	for id, o := range t.orders {
		if o.Status.IsTerminal() {
			terminal = append(terminal, entry{id, o.CreatedAt})
		}
	}
	if len(terminal) <= maxNonPending {
		return
	}

	sort.Slice(terminal, func(i, j int) bool { return terminal[i].createdAt < terminal[j].createdAt })
	evictCount := len(terminal) - maxNonPending
	for i := 0; i < evictCount; i++ {
		delete(t.orders, terminal[i].id)
	}
}

// All returns a snapshot slice of every tracked order, used by tests and
// diagnostics.
func (t *Tracker) All() []*core.TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*core.TrackedOrder, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	return out
}
