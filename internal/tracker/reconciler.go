package tracker

import (
	"context"

	"bitget-marketmaker/internal/core"
)

// ReconcileResult partitions the orders a reconcile pass discovered had
// disappeared from the exchange's pending set, by the terminal state the
// detail lookup returned.
type ReconcileResult struct {
	Filled    []*core.TrackedOrder
	Cancelled []*core.TrackedOrder
	StillLive []*core.TrackedOrder // live/partially_filled: query-lag, do nothing
}

// Reconcile implements the two-step protocol from §4.4: snapshot local
// pending ids, diff against the exchange's reported pending set, then
// fetch detail for each disappeared order and dispatch on its returned
// state. A detail-lookup failure leaves the order pending for the next
// tick rather than inferring a fill.
func Reconcile(ctx context.Context, t *Tracker, orderSvc core.OrderService, symbol string) (ReconcileResult, error) {
	localSnapshot := t.PendingOrderIDs()

	exchangePending, err := orderSvc.GetPendingOrders(ctx, symbol)
	if err != nil {
		return ReconcileResult{}, err
	}
	exchangeSet := make(map[string]bool, len(exchangePending))
	for _, o := range exchangePending {
		exchangeSet[o.OrderID] = true
	}

	disappeared := t.FindDisappeared(localSnapshot, exchangeSet)

	var result ReconcileResult
	for _, local := range disappeared {
		detail, err := orderSvc.GetOrderDetail(ctx, symbol, local.OrderID)
		if err != nil {
			// Stays pending; retried next tick.
			continue
		}

		switch detail.Status {
		case core.StatusFilled:
			t.SetStatus(local.OrderID, core.StatusFilled, detail.FilledAt)
			result.Filled = append(result.Filled, local)
		case core.StatusCancelled, core.StatusFailed:
			t.SetStatus(local.OrderID, core.StatusCancelled, 0)
			result.Cancelled = append(result.Cancelled, local)
		default:
			result.StillLive = append(result.StillLive, local)
		}
	}

	return result, nil
}
