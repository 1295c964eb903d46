package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// VenueKind distinguishes the two adapter families (§2, §4.8).
type VenueKind string

const (
	VenueDerivatives VenueKind = "derivatives"
	VenueSpot        VenueKind = "spot"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus is the TrackedOrder lifecycle state (§3).
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusFailed    OrderStatus = "failed"
)

// IsTerminal reports whether s can no longer change (§3 invariant b, c).
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// Direction is the derivatives position direction (§3 StrategyConfig).
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionBoth  Direction = "both"
)

// HoldMode is the derivatives position-mode (GLOSSARY "Position mode").
type HoldMode string

const (
	HoldModeSingle HoldMode = "single_hold"
	HoldModeDouble HoldMode = "double_hold"
)

// TradeSide is the hedge-mode open/close intent (GLOSSARY "tradeSide").
type TradeSide string

const (
	TradeSideOpen  TradeSide = "open"
	TradeSideClose TradeSide = "close"
)

// TimeInForce selects post-only vs accept-taker-risk submission (§4.2
// "Adaptive post-only").
type TimeInForce string

const (
	TimeInForcePostOnly TimeInForce = "post_only"
	TimeInForceGTC      TimeInForce = "gtc"
)

// InstrumentSpec is the per-symbol contract/spot rule set (§3). Immutable
// after fetch; the cache owns the authoritative entry and hands engines a
// read-only copy at strategy start.
type InstrumentSpec struct {
	Symbol         string
	Venue          VenueKind
	BaseCoin       string
	QuoteCoin      string
	PricePlace     int32
	VolumePlace    int32
	MinTradeNum    decimal.Decimal
	SizeMultiplier decimal.Decimal
	MakerFeeRate   decimal.Decimal
	TakerFeeRate   decimal.Decimal
	Status         string // "online"/"normal" etc, used by listAvailable filtering
	FetchedAt      time.Time
}

// RoundPrice rounds price to the instrument's pricePlace.
func (s InstrumentSpec) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(s.PricePlace)
}

// RoundSize rounds size down to the instrument's volumePlace (§4.2 "Size
// calculation" — always round DOWN, never up, to avoid over-committing
// notional).
func (s InstrumentSpec) RoundSize(size decimal.Decimal) decimal.Decimal {
	return size.Truncate(s.VolumePlace)
}

// MinSize is 10^-volumePlace, the smallest representable size step.
func (s InstrumentSpec) MinSize() decimal.Decimal {
	return decimal.New(1, -s.VolumePlace)
}

// TrackedOrder is a single local view of an exchange order (§3). Identity
// is OrderID once assigned by the exchange.
type TrackedOrder struct {
	OrderID       string
	ClientOID     string
	Symbol        string
	Side          OrderSide
	Price         decimal.Decimal
	Size          decimal.Decimal
	Status        OrderStatus
	LinkedOrderID string // nullable: pairs a buy with its paired sell
	Direction     Direction
	CreatedAt     int64 // epoch ms
	FilledAt      int64 // epoch ms, 0 if unset

	// GridLevelIndex is set only for grid-engine orders, identifying the
	// rung this order belongs to (§3 GridLevel). -1 for scalping orders.
	GridLevelIndex int
}

// Age returns how long ago the order was created, relative to nowMs.
func (o TrackedOrder) Age(nowMs int64) time.Duration {
	return time.Duration(nowMs-o.CreatedAt) * time.Millisecond
}

// GridLevelState is the per-rung state machine (§3 GridLevel).
type GridLevelState string

const (
	GridEmpty       GridLevelState = "empty"
	GridBuyPending  GridLevelState = "buy_pending"
	GridBuyFilled   GridLevelState = "buy_filled"
	GridSellPending GridLevelState = "sell_pending"
)

// GridLevel is one rung of the grid ladder (§3).
type GridLevel struct {
	Index        int
	Price        decimal.Decimal
	State        GridLevelState
	BuyOrderID   string
	SellOrderID  string
	Size         decimal.Decimal
	BuyFilledAt  int64 // epoch ms when the buy fill was detected
}

// EventType is the closed enum of StrategyEvent kinds (§3).
type EventType string

const (
	EventStrategyStarted  EventType = "STRATEGY_STARTED"
	EventStrategyStopped  EventType = "STRATEGY_STOPPED"
	EventStrategyError    EventType = "STRATEGY_ERROR"
	EventBuyOrderPlaced   EventType = "BUY_ORDER_PLACED"
	EventBuyOrderCancelled EventType = "BUY_ORDER_CANCELLED"
	EventBuyOrderFilled   EventType = "BUY_ORDER_FILLED"
	EventSellOrderPlaced  EventType = "SELL_ORDER_PLACED"
	EventSellOrderFilled  EventType = "SELL_ORDER_FILLED"
	EventSellOrderFailed  EventType = "SELL_ORDER_FAILED"
	EventOrdersMerged     EventType = "ORDERS_MERGED"
	EventRiskLimitHit     EventType = "RISK_LIMIT_HIT"
	EventConfigUpdated    EventType = "CONFIG_UPDATED"
	EventEmergencyStop    EventType = "EMERGENCY_STOP"
	EventGridBuyFilled    EventType = "GRID_BUY_FILLED"
	EventGridSellFilled   EventType = "GRID_SELL_FILLED"
	EventGridLevelUpdated EventType = "GRID_LEVEL_UPDATED"
)

// StrategyEvent is one entry in the bounded event ring (§3, §5 resource caps).
type StrategyEvent struct {
	Type      EventType
	Timestamp int64 // epoch ms
	Data      map[string]interface{}
}

// RiskState is the risk controller's owned mutable state (§3).
type RiskState struct {
	PeakEquity     decimal.Decimal
	CurrentEquity  decimal.Decimal
	DailyPnl       decimal.Decimal
	DailyResetKey  string // UTC date string, e.g. "2026-08-01"
	CoolingUntil   int64  // epoch ms, 0 if not cooling
	TotalTrades    int
	WinTrades      int
	LossTrades     int
	SumWin         decimal.Decimal
	SumLoss        decimal.Decimal
}

// EngineState is the strategy state machine (§4.2, §4.3).
type EngineState string

const (
	StateStopped  EngineState = "STOPPED"
	StateStarting EngineState = "STARTING"
	StateRunning  EngineState = "RUNNING"
	StateStopping EngineState = "STOPPING"
	StateError    EngineState = "ERROR"
)

// RiskLevel selects an auto-calc preset tier (§4.11).
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskBalanced     RiskLevel = "balanced"
	RiskAggressive   RiskLevel = "aggressive"
)

// GridType selects the spacing function for grid level generation (§3).
type GridType string

const (
	GridArithmetic GridType = "arithmetic"
	GridGeometric  GridType = "geometric"
)
