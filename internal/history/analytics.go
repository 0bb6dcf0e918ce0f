package history

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
)

// CodeStats aggregates activity for one stock code.
type CodeStats struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Orders    int64  `json:"orders"`
	Events    int64  `json:"events"`
	FilledQty int64  `json:"filled_qty"`
}

// Summary is the aggregate view over a date range. A range with no recorded
// activity yields a Summary with zero counts and empty maps, never an error.
type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Days int       `json:"days"` // day files found in range

	TotalEvents     int64 `json:"total_events"`
	AppliedEvents   int64 `json:"applied_events"`
	DuplicateEvents int64 `json:"duplicate_events"`

	TotalOrders int64 `json:"total_orders"`
	BuyOrders   int64 `json:"buy_orders"`
	SellOrders  int64 `json:"sell_orders"`
	FilledQty   int64 `json:"filled_qty"`

	// Order value is requested quantity times requested price, one sample
	// per distinct order.
	TotalValue int64   `json:"total_value"`
	AvgValue   float64 `json:"avg_value"`
	MinValue   int64   `json:"min_value"`
	MaxValue   int64   `json:"max_value"`

	StatusCounts map[string]int64      `json:"status_counts"` // final status per order
	ByCode       map[string]*CodeStats `json:"by_code"`
	ByHour       map[int]int64         `json:"by_hour"` // events per hour of day
}

// Analytics computes summaries over a Recorder's day files.
type Analytics struct {
	recorder *Recorder
	logger   zerolog.Logger
}

// NewAnalytics creates an analytics reader over the given recorder.
func NewAnalytics(recorder *Recorder) *Analytics {
	return &Analytics{
		recorder: recorder,
		logger:   log.With().Str("component", "history_analytics").Logger(),
	}
}

// perOrder is the rollup of all events of one order within the range.
type perOrder struct {
	code      string
	side      string
	qty       int64
	price     int64
	filledQty int64
	status    string
}

// Summarize aggregates all records whose day falls in [from, to]. Days with
// no file are skipped; an inverted or empty range yields the empty summary.
func (a *Analytics) Summarize(from, to time.Time) (*Summary, error) {
	sum := &Summary{
		From:         from,
		To:           to,
		StatusCounts: make(map[string]int64),
		ByCode:       make(map[string]*CodeStats),
		ByHour:       make(map[int]int64),
	}
	fromDay := dateOf(from)
	toDay := dateOf(to)
	if fromDay.After(toDay) {
		return sum, nil
	}

	orders := make(map[string]*perOrder)
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		records, err := a.recorder.ForDate(day)
		if err != nil {
			return nil, err
		}
		if records == nil {
			continue
		}
		sum.Days++
		for i := range records {
			a.accumulate(sum, orders, &records[i])
		}
	}

	firstValue := true
	for _, ord := range orders {
		sum.TotalOrders++
		switch trading.Side(ord.side) {
		case trading.SideSell:
			sum.SellOrders++
		default:
			sum.BuyOrders++
		}
		sum.FilledQty += ord.filledQty
		if ord.status != "" {
			sum.StatusCounts[ord.status]++
		}
		if cs, ok := sum.ByCode[ord.code]; ok {
			cs.Orders++
			cs.FilledQty += ord.filledQty
		}

		// Market orders carry price zero, so zero is a real order value.
		value := ord.qty * ord.price
		sum.TotalValue += value
		if firstValue || value < sum.MinValue {
			sum.MinValue = value
			firstValue = false
		}
		if value > sum.MaxValue {
			sum.MaxValue = value
		}
	}
	if sum.TotalOrders > 0 {
		sum.AvgValue = float64(sum.TotalValue) / float64(sum.TotalOrders)
	}
	return sum, nil
}

// LastDays summarizes the trailing n calendar days up to today.
func (a *Analytics) LastDays(n int) (*Summary, error) {
	if n < 1 {
		n = 1
	}
	now := a.recorder.now()
	return a.Summarize(now.AddDate(0, 0, -(n-1)), now)
}

func (a *Analytics) accumulate(sum *Summary, orders map[string]*perOrder, rec *Record) {
	sum.TotalEvents++
	switch trading.ApplyOutcome(rec.Outcome) {
	case trading.OutcomeApplied, trading.OutcomeCreated:
		sum.AppliedEvents++
	case trading.OutcomeDuplicate:
		sum.DuplicateEvents++
	}
	sum.ByHour[hourOf(rec)]++

	cs, ok := sum.ByCode[rec.Code]
	if !ok {
		cs = &CodeStats{Code: rec.Code, Name: rec.Name}
		sum.ByCode[rec.Code] = cs
	}
	cs.Events++
	if cs.Name == "" {
		cs.Name = rec.Name
	}

	ord, ok := orders[rec.OrderID]
	if !ok {
		// The first event fixes the order's request fields.
		orders[rec.OrderID] = &perOrder{
			code:      rec.Code,
			side:      rec.Side,
			qty:       rec.OrderQty,
			price:     rec.OrderPrice,
			filledQty: rec.FilledQty,
			status:    rec.Status,
		}
		return
	}
	if rec.FilledQty > ord.filledQty {
		ord.filledQty = rec.FilledQty
	}
	// Only applied events advance the order's final status; duplicates and
	// stale redeliveries carry stale values.
	switch trading.ApplyOutcome(rec.Outcome) {
	case trading.OutcomeApplied, trading.OutcomeCreated:
		if rec.Status != "" {
			ord.status = rec.Status
		}
	}
}

// hourOf extracts the hour of day, preferring the broker's HHMMSS trade time
// and falling back to the processing timestamp.
func hourOf(rec *Record) int {
	if len(rec.TradeTime) >= 2 {
		if h, err := strconv.Atoi(rec.TradeTime[:2]); err == nil && h >= 0 && h < 24 {
			return h
		}
	}
	return rec.ProcessedAt.Hour()
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
