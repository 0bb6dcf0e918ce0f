package trading

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/broker"
)

// HistorySink receives every normalized execution event together with the
// outcome the store assigned to it. Appends are best effort: a sink error is
// logged and never blocks event processing.
type HistorySink interface {
	Append(ev ExecutionEvent, outcome string) error
}

// ExecutionListener normalizes raw chejan pushes into typed events and drives
// the store, balance book, history sink, notifier, and policy engine from
// them. All consequences of one push run synchronously before the next push
// is taken, so policy evaluation always sees the state the push produced.
type ExecutionListener struct {
	store    *OrderStore
	balances *BalanceBook
	policies *PolicyEngine
	notifier *Notifier
	history  HistorySink
	logger   zerolog.Logger
}

// NewExecutionListener wires the event consumers together. history and
// policies may be nil when the corresponding concern is not in use.
func NewExecutionListener(store *OrderStore, balances *BalanceBook, policies *PolicyEngine, notifier *Notifier, history HistorySink) *ExecutionListener {
	return &ExecutionListener{
		store:    store,
		balances: balances,
		policies: policies,
		notifier: notifier,
		history:  history,
		logger:   log.With().Str("component", "execution_listener").Logger(),
	}
}

// Bind registers the listener as the session's chejan handler.
func (l *ExecutionListener) Bind(session broker.Session) {
	session.OnChejanData(l.HandleChejan)
}

// HandleChejan dispatches one raw push by its gubun discriminator. Unknown
// gubun values are logged and dropped.
func (l *ExecutionListener) HandleChejan(ev broker.ChejanEvent) {
	switch ev.Gubun {
	case broker.GubunExecution:
		l.handleExecution(ev)
	case broker.GubunBalance:
		l.handleBalance(ev)
	default:
		l.logger.Warn().
			Str("gubun", ev.Gubun).
			Msg("unknown chejan gubun, event dropped")
	}
}

func (l *ExecutionListener) handleExecution(raw broker.ChejanEvent) {
	ev := parseExecution(raw.Fields)
	if ev.OrderID == "" {
		l.logger.Warn().Msg("execution push without order number, dropped")
		return
	}

	res := l.store.ApplyExecution(ev)
	l.logger.Debug().
		Str("order_id", ev.OrderID).
		Str("status", string(ev.Status)).
		Int64("filled_qty", ev.FilledQty).
		Str("outcome", string(res.Outcome)).
		Msg("execution event processed")

	if l.history != nil {
		if err := l.history.Append(ev, string(res.Outcome)); err != nil {
			l.logger.Error().
				Err(err).
				Str("order_id", ev.OrderID).
				Msg("failed to persist execution event")
		}
	}

	if !res.Applied() || res.Order == nil {
		return
	}
	rec := res.Order

	if l.notifier != nil {
		l.notifier.OrderStatusChanged(OrderNotification{
			OrderID:      rec.OrderID,
			Code:         rec.Code,
			Status:       rec.Status,
			FilledQty:    rec.FilledQty,
			RemainingQty: rec.RemainingQty(),
		})
	}

	if l.policies != nil {
		if rec.Status.Terminal() {
			l.policies.Retire(rec.OrderID)
		} else {
			price := ev.FilledPrice
			if price == 0 {
				price = ev.OrderPrice
			}
			l.policies.Evaluate(rec.OrderID, price)
		}
	}
}

func (l *ExecutionListener) handleBalance(raw broker.ChejanEvent) {
	ev := parseBalance(raw.Fields)
	if ev.Code == "" {
		l.logger.Warn().Msg("balance push without code, dropped")
		return
	}

	var snap BalanceSnapshot
	if l.balances != nil {
		snap = l.balances.Apply(ev)
	}
	l.logger.Debug().
		Str("code", ev.Code).
		Int64("held_qty", ev.HeldQty).
		Int64("current_price", ev.CurrentPrice).
		Msg("balance event processed")

	if l.notifier != nil {
		l.notifier.BalanceUpdated(BalanceNotification{
			Account:      snap.Account,
			Code:         snap.Code,
			HeldQty:      snap.HeldQty,
			OrderableQty: snap.OrderableQty,
			CurrentPrice: snap.CurrentPrice,
			PnlPct:       snap.PnlPct,
		})
	}

	if l.policies != nil && ev.CurrentPrice > 0 {
		l.policies.EvaluateCode(ev.Code, ev.CurrentPrice)
	}
}

func parseExecution(fields map[int]string) ExecutionEvent {
	return ExecutionEvent{
		Account:     fields[broker.FIDAccountNo],
		OrderID:     fields[broker.FIDOrderNo],
		Code:        normalizeCode(fields[broker.FIDCode]),
		Name:        strings.TrimSpace(fields[broker.FIDName]),
		OrderType:   strings.TrimSpace(fields[broker.FIDOrderType]),
		OrderQty:    fieldInt(fields, broker.FIDOrderQty),
		OrderPrice:  fieldPrice(fields, broker.FIDOrderPrice),
		FilledQty:   fieldInt(fields, broker.FIDFilledQty),
		FilledPrice: fieldPrice(fields, broker.FIDFilledPrice),
		Status:      StatusFromCode(strings.TrimSpace(fields[broker.FIDOrderStatus])),
		TradeTime:   strings.TrimSpace(fields[broker.FIDTradeTime]),
		TradeNo:     strings.TrimSpace(fields[broker.FIDTradeNo]),
	}
}

func parseBalance(fields map[int]string) BalanceEvent {
	return BalanceEvent{
		Account:      fields[broker.FIDAccountNo],
		Code:         normalizeCode(fields[broker.FIDCode]),
		Name:         strings.TrimSpace(fields[broker.FIDName]),
		HeldQty:      fieldInt(fields, broker.FIDHeldQty),
		OrderableQty: fieldInt(fields, broker.FIDOrderableQty),
		CurrentPrice: fieldPrice(fields, broker.FIDCurrentPrice),
		PnlPct:       fieldFloat(fields, broker.FIDProfitLoss),
	}
}

// normalizeCode strips the market prefix the feed prepends to stock codes.
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 7 && code[0] == 'A' {
		return code[1:]
	}
	return code
}

func fieldInt(fields map[int]string, fid int) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(fields[fid]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// fieldPrice parses a price field. The feed signs prices by tick direction,
// so the absolute value is taken.
func fieldPrice(fields map[int]string, fid int) int64 {
	return abs64(fieldInt(fields, fid))
}

func fieldFloat(fields map[int]string, fid int) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[fid]), 64)
	if err != nil {
		return 0
	}
	return v
}
