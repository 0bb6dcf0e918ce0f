// Package trading implements the order lifecycle management subsystem: the
// synchronous bridge over the callback-driven broker session, order
// submission, the authoritative order state machine, execution/balance event
// handling, and the autonomous auto-cancel/auto-modify policies.
package trading

import (
	"time"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/broker"
)

// Side is the trade direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderKind distinguishes new orders from the amendment orders that chain to
// them.
type OrderKind string

const (
	KindNew    OrderKind = "new"
	KindCancel OrderKind = "cancel"
	KindModify OrderKind = "modify"
)

// PriceType is the quote style of an order.
type PriceType string

const (
	PriceLimit  PriceType = "limit"
	PriceMarket PriceType = "market"
)

// Status is the lifecycle state of an order. SUBMITTED is assigned locally
// at submission; the remaining values mirror the broker's status codes.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusReceipt    Status = "RECEIPT"
	StatusProcessing Status = "PROCESSING"
	StatusComplete   Status = "COMPLETE"
	StatusConfirmed  Status = "CONFIRMED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
	StatusModified   Status = "MODIFIED"
)

// Terminal reports whether no further status mutation is permitted.
// MODIFIED is deliberately non-terminal: it marks that the broker replaced
// the order with a new order number which carries the live record forward.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

var statusByCode = map[string]Status{
	broker.StatusReceipt:    StatusReceipt,
	broker.StatusProcessing: StatusProcessing,
	broker.StatusComplete:   StatusComplete,
	broker.StatusConfirmed:  StatusConfirmed,
	broker.StatusRejected:   StatusRejected,
	broker.StatusCancelled:  StatusCancelled,
	broker.StatusModified:   StatusModified,
}

// StatusFromCode maps a raw broker status code to a Status. Unknown codes
// map to the empty Status.
func StatusFromCode(code string) Status {
	return statusByCode[code]
}

// StatusHistoryEntry records one applied transition. Entries are append-only.
type StatusHistoryEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	PrevStatus   Status    `json:"prev_status"`
	NewStatus    Status    `json:"new_status"`
	FilledQty    int64     `json:"filled_qty"`
	RemainingQty int64     `json:"remaining_qty"`
}

// OrderRecord is the authoritative in-memory record of one order. OrderID is
// broker-assigned, globally unique, and immutable. The requested quantity
// and price are fixed at submission; amendments create new records linked
// through ParentOrderID and never rewrite the parent's request fields.
type OrderRecord struct {
	OrderID        string               `json:"order_id"`
	Account        string               `json:"account"`
	Code           string               `json:"code"`
	Side           Side                 `json:"side"`
	Kind           OrderKind            `json:"order_kind"`
	PriceType      PriceType            `json:"price_type"`
	RequestedQty   int64                `json:"requested_qty"`
	RequestedPrice int64                `json:"requested_price"`
	Status         Status               `json:"status"`
	FilledQty      int64                `json:"filled_qty"`
	ParentOrderID  string               `json:"parent_order_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	History        []StatusHistoryEntry `json:"status_history"`
}

// RemainingQty is the unfilled remainder, never negative.
func (o *OrderRecord) RemainingQty() int64 {
	r := o.RequestedQty - o.FilledQty
	if r < 0 {
		return 0
	}
	return r
}

func (o *OrderRecord) clone() *OrderRecord {
	c := *o
	c.History = make([]StatusHistoryEntry, len(o.History))
	copy(c.History, o.History)
	return &c
}

// ExecutionEvent is the normalized form of a chejan execution push. FilledQty
// is cumulative for the order. TradeNo deduplicates broker redelivery.
type ExecutionEvent struct {
	Account     string `json:"account"`
	OrderID     string `json:"order_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	OrderType   string `json:"order_type"`
	OrderQty    int64  `json:"order_qty"`
	OrderPrice  int64  `json:"order_price"`
	FilledQty   int64  `json:"filled_qty"`
	FilledPrice int64  `json:"filled_price"`
	Status      Status `json:"status"`
	TradeTime   string `json:"trade_time"`
	TradeNo     string `json:"trade_no"`
}

// BalanceEvent is the normalized form of a chejan balance push.
type BalanceEvent struct {
	Account      string  `json:"account"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	HeldQty      int64   `json:"held_qty"`
	OrderableQty int64   `json:"orderable_qty"`
	CurrentPrice int64   `json:"current_price"`
	PnlPct       float64 `json:"pnl_pct"`
}

// OrderNotification is the order_status_changed shape pushed to downstream
// consumers. Consumers must not assume it arrives synchronously relative to
// the submit call that caused it.
type OrderNotification struct {
	OrderID      string `json:"order_id"`
	Code         string `json:"code"`
	Status       Status `json:"status"`
	FilledQty    int64  `json:"filled_qty"`
	RemainingQty int64  `json:"remaining_qty"`
}

// BalanceNotification is the balance_updated shape pushed to downstream
// consumers.
type BalanceNotification struct {
	Account      string  `json:"account"`
	Code         string  `json:"code"`
	HeldQty      int64   `json:"held_qty"`
	OrderableQty int64   `json:"orderable_qty"`
	CurrentPrice int64   `json:"current_price"`
	PnlPct       float64 `json:"pnl_pct"`
}

// AutoCancelPolicy cancels the remaining quantity of an order when the first
// of its configured triggers fires. A zero value disables that trigger; with
// all triggers zero the policy is inert.
type AutoCancelPolicy struct {
	OrderID                 string        `json:"order_id"`
	Timeout                 time.Duration `json:"timeout"`
	PriceThreshold          int64         `json:"price_threshold"`
	MarketPriceThresholdPct float64       `json:"market_price_threshold_pct"`
	CreatedAt               time.Time     `json:"created_at"`
}

// DefaultModifyAttempts bounds auto-modify retries when the caller does not
// set a budget.
const DefaultModifyAttempts = 3

// AutoModifyPolicy walks an order's price toward TargetPrice one PriceStep
// per evaluation, clamped to never overshoot, within MaxAttempts. Zero
// TargetPrice or PriceStep leaves the policy inert.
type AutoModifyPolicy struct {
	OrderID      string    `json:"order_id"`
	TargetPrice  int64     `json:"target_price"`
	PriceStep    int64     `json:"price_step"`
	MaxAttempts  int       `json:"max_attempts"`
	AttemptsMade int       `json:"attempts_made"`
	CreatedAt    time.Time `json:"created_at"`
}
