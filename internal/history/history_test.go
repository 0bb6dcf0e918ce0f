package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
)

func newTestRecorder(t *testing.T, now time.Time) *Recorder {
	t.Helper()
	rec, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.now = func() time.Time { return now }
	return rec
}

func event(orderID, tradeNo string, filledQty int64, status trading.Status) trading.ExecutionEvent {
	return trading.ExecutionEvent{
		Account:     "8112223411",
		OrderID:     orderID,
		Code:        "005930",
		Name:        "삼성전자",
		OrderType:   "+매수",
		OrderQty:    10,
		OrderPrice:  70000,
		FilledQty:   filledQty,
		FilledPrice: 70000,
		Status:      status,
		TradeTime:   "090015",
		TradeNo:     tradeNo,
	}
}

func TestRecorderAppendPartitionsByDate(t *testing.T) {
	day1 := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	rec := newTestRecorder(t, day1)

	if err := rec.Append(event("0000001", "", 0, trading.StatusReceipt), "applied"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := rec.Append(event("0000001", "T1", 10, trading.StatusComplete), "applied"); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec.now = func() time.Time { return day2 }
	if err := rec.Append(event("0000002", "T2", 5, trading.StatusProcessing), "applied"); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, f := range []string{"history_20240308.db", "history_20240309.db"} {
		if _, err := os.Stat(filepath.Join(rec.dir, f)); err != nil {
			t.Fatalf("expected day file %s: %v", f, err)
		}
	}

	records, err := rec.ForDate(day1)
	if err != nil {
		t.Fatalf("for date: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("day 1 records = %d, want 2", len(records))
	}
	if records[0].Status != string(trading.StatusReceipt) || records[1].Status != string(trading.StatusComplete) {
		t.Fatalf("records out of order: %s, %s", records[0].Status, records[1].Status)
	}
	if records[0].Side != string(trading.SideBuy) {
		t.Fatalf("side %q, want buy", records[0].Side)
	}

	// A date with no file reads as empty.
	if records, err := rec.ForDate(day1.AddDate(0, 0, 30)); err != nil || records != nil {
		t.Fatalf("missing day: records=%v err=%v", records, err)
	}
}

func TestAnalyticsSummarize(t *testing.T) {
	day := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	rec := newTestRecorder(t, day)

	appends := []struct {
		ev      trading.ExecutionEvent
		outcome string
	}{
		{event("0000001", "", 0, trading.StatusReceipt), "applied"},
		{event("0000001", "T1", 4, trading.StatusProcessing), "applied"},
		{event("0000001", "T1", 4, trading.StatusProcessing), "duplicate"},
		{event("0000001", "T2", 10, trading.StatusComplete), "applied"},
	}
	sell := trading.ExecutionEvent{
		Account:    "8112223411",
		OrderID:    "0000002",
		Code:       "000660",
		Name:       "SK하이닉스",
		OrderType:  "-매도",
		OrderQty:   5,
		OrderPrice: 180000,
		Status:     trading.StatusReceipt,
		TradeTime:  "103000",
	}
	for _, a := range appends {
		if err := rec.Append(a.ev, a.outcome); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := rec.Append(sell, "applied"); err != nil {
		t.Fatalf("append: %v", err)
	}

	sum, err := NewAnalytics(rec).Summarize(day, day)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if sum.Days != 1 || sum.TotalEvents != 5 {
		t.Fatalf("days=%d events=%d, want 1/5", sum.Days, sum.TotalEvents)
	}
	if sum.AppliedEvents != 4 || sum.DuplicateEvents != 1 {
		t.Fatalf("applied=%d duplicate=%d, want 4/1", sum.AppliedEvents, sum.DuplicateEvents)
	}
	if sum.TotalOrders != 2 || sum.BuyOrders != 1 || sum.SellOrders != 1 {
		t.Fatalf("orders=%d buy=%d sell=%d, want 2/1/1", sum.TotalOrders, sum.BuyOrders, sum.SellOrders)
	}
	if sum.FilledQty != 10 {
		t.Fatalf("filled qty = %d, want 10", sum.FilledQty)
	}
	if sum.StatusCounts[string(trading.StatusComplete)] != 1 || sum.StatusCounts[string(trading.StatusReceipt)] != 1 {
		t.Fatalf("unexpected status counts %v", sum.StatusCounts)
	}

	// Order values: 10*70000 and 5*180000.
	if sum.TotalValue != 1600000 || sum.MinValue != 700000 || sum.MaxValue != 900000 {
		t.Fatalf("values total=%d min=%d max=%d", sum.TotalValue, sum.MinValue, sum.MaxValue)
	}
	if sum.AvgValue != 800000 {
		t.Fatalf("avg value = %v, want 800000", sum.AvgValue)
	}

	cs := sum.ByCode["005930"]
	if cs == nil || cs.Events != 4 || cs.Orders != 1 || cs.FilledQty != 10 {
		t.Fatalf("unexpected code stats %+v", cs)
	}
	if sum.ByHour[9] != 4 || sum.ByHour[10] != 1 {
		t.Fatalf("unexpected hour histogram %v", sum.ByHour)
	}
}

func TestAnalyticsEmptyRange(t *testing.T) {
	day := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	rec := newTestRecorder(t, day)
	analytics := NewAnalytics(rec)

	// No files at all.
	sum, err := analytics.Summarize(day, day.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Days != 0 || sum.TotalEvents != 0 || sum.TotalOrders != 0 {
		t.Fatalf("expected empty summary, got %+v", sum)
	}
	if sum.StatusCounts == nil || sum.ByCode == nil || sum.ByHour == nil {
		t.Fatal("empty summary must carry initialized maps")
	}

	// Inverted range.
	sum, err = analytics.Summarize(day, day.AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("summarize inverted: %v", err)
	}
	if sum.TotalEvents != 0 {
		t.Fatalf("inverted range not empty: %+v", sum)
	}
}

func TestAnalyticsSummarizeZeroValueMarketOrder(t *testing.T) {
	day := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	rec := newTestRecorder(t, day)

	// Market order: price zero, so its order value is genuinely zero.
	market := event("0000001", "T1", 10, trading.StatusComplete)
	market.OrderPrice = 0
	if err := rec.Append(market, "applied"); err != nil {
		t.Fatalf("append market order: %v", err)
	}
	if err := rec.Append(event("0000002", "T2", 10, trading.StatusComplete), "applied"); err != nil {
		t.Fatalf("append limit order: %v", err)
	}

	sum, err := NewAnalytics(rec).Summarize(day, day)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.TotalOrders != 2 {
		t.Fatalf("orders %d, want 2", sum.TotalOrders)
	}
	if sum.MinValue != 0 {
		t.Fatalf("min value %d, want 0", sum.MinValue)
	}
	if sum.MaxValue != 700000 || sum.TotalValue != 700000 {
		t.Fatalf("max %d total %d, want 700000 both", sum.MaxValue, sum.TotalValue)
	}
}
