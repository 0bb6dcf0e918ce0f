package trading

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ApplyOutcome classifies what ApplyExecution did with an event. Every
// observed event, whatever the outcome, is recorded to history by the
// listener.
type ApplyOutcome string

const (
	OutcomeApplied   ApplyOutcome = "applied"
	OutcomeNoop      ApplyOutcome = "noop"
	OutcomeDuplicate ApplyOutcome = "duplicate"
	OutcomeStale     ApplyOutcome = "stale_terminal"
	OutcomeCreated   ApplyOutcome = "created"
)

// ApplyResult reports the effect of one execution event. Order is a snapshot
// taken after the apply, nil when the order is unknown and could not be
// reconstructed.
type ApplyResult struct {
	Outcome ApplyOutcome
	Order   *OrderRecord
}

// Applied reports whether the event mutated live state.
func (r ApplyResult) Applied() bool {
	return r.Outcome == OutcomeApplied || r.Outcome == OutcomeCreated
}

// OrderStore is the authoritative state machine for all known orders. It has
// a single mutation entry point for execution events, ApplyExecution, and is
// written only by the gateway (creation) and the execution listener
// (transitions). All reads return snapshots; no caller ever holds a live
// reference to a mutable record.
type OrderStore struct {
	mu            sync.RWMutex
	orders        map[string]*OrderRecord
	trades        map[string]map[string]struct{} // order id -> applied trade numbers
	reconstructed map[string]struct{}            // ids created from events before their submission registered
	now           func() time.Time
	logger        zerolog.Logger
}

// NewOrderStore creates an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:        make(map[string]*OrderRecord),
		trades:        make(map[string]map[string]struct{}),
		reconstructed: make(map[string]struct{}),
		now:           time.Now,
		logger:        log.With().Str("component", "order_store").Logger(),
	}
}

// Create registers a freshly submitted order. Broker-assigned ids are
// globally unique, so an existing record normally means a caller bug and is
// rejected. The one legitimate collision is a chejan push outrunning the
// submitter: the event reconstructed the record before Create ran. In that
// case the submission's request metadata is merged into the live record,
// which keeps the status and fills the event already applied.
func (s *OrderStore) Create(rec *OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, exists := s.orders[rec.OrderID]
	if !exists {
		s.orders[rec.OrderID] = rec.clone()
		return nil
	}
	if _, fromEvent := s.reconstructed[rec.OrderID]; !fromEvent {
		return ErrDuplicateOrder
	}
	delete(s.reconstructed, rec.OrderID)
	live.Account = rec.Account
	live.Side = rec.Side
	live.Kind = rec.Kind
	live.PriceType = rec.PriceType
	live.RequestedQty = rec.RequestedQty
	live.RequestedPrice = rec.RequestedPrice
	live.ParentOrderID = rec.ParentOrderID
	live.CreatedAt = rec.CreatedAt
	s.logger.Debug().
		Str("order_id", rec.OrderID).
		Msg("submission merged into record reconstructed from an earlier event")
	return nil
}

// Get returns a snapshot of one order.
func (s *OrderStore) Get(orderID string) (*OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.orders[orderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	return rec.clone(), nil
}

// Outstanding returns snapshots of all non-terminal orders, sorted by id.
func (s *OrderStore) Outstanding() []*OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*OrderRecord
	for _, rec := range s.orders {
		if !rec.Status.Terminal() {
			out = append(out, rec.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// ApplyExecution applies one normalized execution event.
//
// Events are deduplicated by (order id, trade no); a transition is applied
// only when the status changed or the cumulative filled quantity strictly
// increased, so redundant redeliveries never produce history entries. Events
// arriving after a terminal status never mutate live state. An event for an
// order the store has never seen (typically one whose submission timed out
// before the acknowledgement delivered the order id) reconstructs the
// record from the event so the order is tracked normally from then on.
func (s *OrderStore) ApplyExecution(ev ExecutionEvent) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, known := s.orders[ev.OrderID]
	if !known {
		if ev.OrderID == "" {
			return ApplyResult{Outcome: OutcomeNoop}
		}
		rec = s.reconstruct(ev)
		s.orders[ev.OrderID] = rec
		s.reconstructed[ev.OrderID] = struct{}{}
		s.markTrade(ev)
		s.logger.Warn().
			Str("order_id", ev.OrderID).
			Str("code", ev.Code).
			Msg("execution event for unknown order, record reconstructed")
		return ApplyResult{Outcome: OutcomeCreated, Order: rec.clone()}
	}

	if ev.TradeNo != "" {
		if _, seen := s.trades[ev.OrderID][ev.TradeNo]; seen {
			return ApplyResult{Outcome: OutcomeDuplicate, Order: rec.clone()}
		}
	}

	if rec.Status.Terminal() {
		// Recorded for audit by the caller, never applied.
		return ApplyResult{Outcome: OutcomeStale, Order: rec.clone()}
	}

	s.markTrade(ev)

	statusChanged := ev.Status != "" && ev.Status != rec.Status
	fillIncreased := ev.FilledQty > rec.FilledQty
	if !statusChanged && !fillIncreased {
		return ApplyResult{Outcome: OutcomeNoop, Order: rec.clone()}
	}

	prev := rec.Status
	if statusChanged {
		rec.Status = ev.Status
	}
	if fillIncreased {
		filled := ev.FilledQty
		if filled > rec.RequestedQty {
			s.logger.Warn().
				Str("order_id", ev.OrderID).
				Int64("filled", filled).
				Int64("requested", rec.RequestedQty).
				Msg("filled quantity exceeds requested, clamped")
			filled = rec.RequestedQty
		}
		rec.FilledQty = filled
	}
	rec.UpdatedAt = s.now()
	rec.History = append(rec.History, StatusHistoryEntry{
		Timestamp:    rec.UpdatedAt,
		PrevStatus:   prev,
		NewStatus:    rec.Status,
		FilledQty:    rec.FilledQty,
		RemainingQty: rec.RemainingQty(),
	})

	return ApplyResult{Outcome: OutcomeApplied, Order: rec.clone()}
}

func (s *OrderStore) markTrade(ev ExecutionEvent) {
	if ev.TradeNo == "" {
		return
	}
	seen, ok := s.trades[ev.OrderID]
	if !ok {
		seen = make(map[string]struct{})
		s.trades[ev.OrderID] = seen
	}
	seen[ev.TradeNo] = struct{}{}
}

// reconstruct builds a record from event fields for an order whose creation
// was lost to a submit timeout.
func (s *OrderStore) reconstruct(ev ExecutionEvent) *OrderRecord {
	now := s.now()
	status := ev.Status
	if status == "" {
		status = StatusReceipt
	}
	rec := &OrderRecord{
		OrderID:        ev.OrderID,
		Account:        ev.Account,
		Code:           ev.Code,
		Side:           SideFromOrderType(ev.OrderType),
		Kind:           KindNew,
		PriceType:      PriceLimit,
		RequestedQty:   ev.OrderQty,
		RequestedPrice: ev.OrderPrice,
		Status:         status,
		FilledQty:      ev.FilledQty,
		CreatedAt:      now,
		UpdatedAt:      now,
		History: []StatusHistoryEntry{{
			Timestamp:    now,
			PrevStatus:   StatusSubmitted,
			NewStatus:    status,
			FilledQty:    ev.FilledQty,
			RemainingQty: ev.OrderQty - ev.FilledQty,
		}},
	}
	return rec
}

// SideFromOrderType normalizes the broker's order type text, which may be
// an English token or the Korean 매수/매도 labels.
func SideFromOrderType(orderType string) Side {
	t := strings.ToLower(orderType)
	if strings.Contains(t, "sell") || strings.Contains(t, "매도") {
		return SideSell
	}
	return SideBuy
}
