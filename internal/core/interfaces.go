package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// PlaceOrderParams is the unified parameter struct for placing an order
// across both venue families (§4.8). Derivatives-only fields are ignored
// by the spot adapter.
type PlaceOrderParams struct {
	Symbol        string
	Side          OrderSide
	Price         decimal.Decimal // zero for market orders
	Size          decimal.Decimal
	ClientOID     string
	TimeInForce   TimeInForce
	Market        bool // true => market order, Price ignored
	ReduceOnly    bool // spot adapters ignore this

	// Derivatives-only fields, ignored by the spot adapter.
	ProductType string
	MarginMode  string
	MarginCoin  string
	TradeSide   TradeSide // empty => omit (single_hold accounts)
}

// BatchCancelResult partitions a batch-cancel call's outcome (§4.8).
type BatchCancelResult struct {
	Cancelled []string // orderIDs confirmed cancelled
	Failed    []string // orderIDs the exchange rejected or could not find
}

// OrderService is the order capability (§4.8).
type OrderService interface {
	PlaceOrder(ctx context.Context, p PlaceOrderParams) (*TrackedOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (BatchCancelResult, error)
	GetPendingOrders(ctx context.Context, symbol string) ([]*TrackedOrder, error)
	GetOrderDetail(ctx context.Context, symbol, orderID string) (*TrackedOrder, error)
}

// Ticker is a best bid/ask/last snapshot (§4.8 MarketData).
type Ticker struct {
	Symbol    string
	Last      decimal.Decimal
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Timestamp int64
}

// MarketDataService is the market-data capability (§4.8).
type MarketDataService interface {
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetBestBid(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBestAsk(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Equity is the {equity, available, unrealizedPL} triple (§4.8 Account).
type Equity struct {
	Equity       decimal.Decimal
	Available    decimal.Decimal
	UnrealizedPL decimal.Decimal
}

// AccountService is the account capability (§4.8).
type AccountService interface {
	GetAvailableBalance(ctx context.Context, coin string) (decimal.Decimal, error)
	GetAccountEquity(ctx context.Context) (Equity, error)
}

// HoldModeProvider is implemented by derivatives adapters only, consulted
// once per engine start and cached (§4.8).
type HoldModeProvider interface {
	GetHoldMode(ctx context.Context) (HoldMode, error)
}

// TradingServices bundles the three capabilities an engine depends on
// (§4.1 "builds a TradingServices triple").
type TradingServices struct {
	Order   OrderService
	Market  MarketDataService
	Account AccountService
	Venue   VenueKind
}

// SpecCache is the three-tier instrument-spec cache contract (§4.9).
type SpecCache interface {
	GetSpec(ctx context.Context, symbol string, venue VenueKind) (*InstrumentSpec, error)
	RefreshSpec(ctx context.Context, symbol string, venue VenueKind) (*InstrumentSpec, error)
	ListAvailable(ctx context.Context, venue VenueKind, search string) ([]*InstrumentSpec, error)
	GetHotPairs(ctx context.Context, venue VenueKind) ([]*InstrumentSpec, error)
}

// PersistenceWorker is the fire-and-forget persistence contract (§4.10).
// The Persist* and SaveActiveConfig methods are non-blocking from the
// caller's point of view and return no error; failures are logged
// internally. LoadActiveConfig and LoadPendingOrders are synchronous reads
// that return their error to the caller.
type PersistenceWorker interface {
	PersistNewOrder(order *TrackedOrder, symbol string, venueCode VenueKind, marginCoin string)
	PersistOrderStatusChange(orderID string, status OrderStatus, filledAt int64, linkedOrderID string)
	PersistRealizedPnl(net, fee decimal.Decimal, isWin bool, strategyKind string)
	SaveActiveConfig(name string, configJSON string)
	LoadActiveConfig(ctx context.Context, name string) (string, error)
	LoadPendingOrders(ctx context.Context, symbol string, venueCode VenueKind) ([]*TrackedOrder, error)
	Close() error
}

// RiskDecision is the result of a trade-entry check (§4.6).
type RiskDecision struct {
	Allowed         bool
	Reason          string
	CooldownSeconds int64
}

// RiskController gatekeeps trade entry and tracks realized PnL (§4.6).
type RiskController interface {
	CheckCanTrade(nowMs int64, currentPositionNotional decimal.Decimal) RiskDecision
	RecordPnl(net decimal.Decimal)
	UpdateEquity(equity decimal.Decimal)
	State() RiskState
}
