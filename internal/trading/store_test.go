package trading

import (
	"errors"
	"testing"
	"time"
)

func newTestOrder(id string, qty, price int64) *OrderRecord {
	now := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	return &OrderRecord{
		OrderID:        id,
		Account:        "8112223411",
		Code:           "005930",
		Side:           SideBuy,
		Kind:           KindNew,
		PriceType:      PriceLimit,
		RequestedQty:   qty,
		RequestedPrice: price,
		Status:         StatusSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	store := NewOrderStore()
	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(newTestOrder("0000001", 10, 70000)); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	rec, err := store.Get("0000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", rec.Status)
	}

	// Snapshots must not alias live state.
	rec.Status = StatusComplete
	again, _ := store.Get("0000001")
	if again.Status != StatusSubmitted {
		t.Fatal("mutating a snapshot leaked into the store")
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestStoreApplyTransitions(t *testing.T) {
	store := NewOrderStore()
	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		name          string
		ev            ExecutionEvent
		wantOutcome   ApplyOutcome
		wantStatus    Status
		wantFilled    int64
		wantRemaining int64
	}{
		{
			name:        "receipt",
			ev:          ExecutionEvent{OrderID: "0000001", Status: StatusReceipt},
			wantOutcome: OutcomeApplied, wantStatus: StatusReceipt, wantRemaining: 10,
		},
		{
			name:        "partial fill",
			ev:          ExecutionEvent{OrderID: "0000001", Status: StatusProcessing, FilledQty: 4, TradeNo: "T1"},
			wantOutcome: OutcomeApplied, wantStatus: StatusProcessing, wantFilled: 4, wantRemaining: 6,
		},
		{
			name:        "duplicate trade redelivery",
			ev:          ExecutionEvent{OrderID: "0000001", Status: StatusProcessing, FilledQty: 4, TradeNo: "T1"},
			wantOutcome: OutcomeDuplicate, wantStatus: StatusProcessing, wantFilled: 4, wantRemaining: 6,
		},
		{
			name:        "same status no fill increase",
			ev:          ExecutionEvent{OrderID: "0000001", Status: StatusProcessing, FilledQty: 4, TradeNo: "T2"},
			wantOutcome: OutcomeNoop, wantStatus: StatusProcessing, wantFilled: 4, wantRemaining: 6,
		},
		{
			name:        "complete",
			ev:          ExecutionEvent{OrderID: "0000001", Status: StatusComplete, FilledQty: 10, TradeNo: "T3"},
			wantOutcome: OutcomeApplied, wantStatus: StatusComplete, wantFilled: 10,
		},
		{
			name:        "event after terminal",
			ev:          ExecutionEvent{OrderID: "0000001", Status: StatusProcessing, FilledQty: 10, TradeNo: "T4"},
			wantOutcome: OutcomeStale, wantStatus: StatusComplete, wantFilled: 10,
		},
	}

	for _, step := range steps {
		res := store.ApplyExecution(step.ev)
		if res.Outcome != step.wantOutcome {
			t.Fatalf("%s: outcome %s, want %s", step.name, res.Outcome, step.wantOutcome)
		}
		rec, err := store.Get("0000001")
		if err != nil {
			t.Fatalf("%s: get: %v", step.name, err)
		}
		if rec.Status != step.wantStatus {
			t.Fatalf("%s: status %s, want %s", step.name, rec.Status, step.wantStatus)
		}
		if rec.FilledQty != step.wantFilled {
			t.Fatalf("%s: filled %d, want %d", step.name, rec.FilledQty, step.wantFilled)
		}
		if rec.RemainingQty() != step.wantRemaining {
			t.Fatalf("%s: remaining %d, want %d", step.name, rec.RemainingQty(), step.wantRemaining)
		}
	}

	// Three transitions applied, three history entries.
	rec, _ := store.Get("0000001")
	if len(rec.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(rec.History))
	}
	if rec.History[2].PrevStatus != StatusProcessing || rec.History[2].NewStatus != StatusComplete {
		t.Fatalf("unexpected final transition %+v", rec.History[2])
	}
}

func TestStoreClampsOverfill(t *testing.T) {
	store := NewOrderStore()
	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	res := store.ApplyExecution(ExecutionEvent{OrderID: "0000001", Status: StatusProcessing, FilledQty: 12, TradeNo: "T1"})
	if res.Outcome != OutcomeApplied {
		t.Fatalf("outcome %s, want applied", res.Outcome)
	}
	rec, _ := store.Get("0000001")
	if rec.FilledQty != 10 {
		t.Fatalf("filled %d, want clamped to 10", rec.FilledQty)
	}
	if rec.RemainingQty() != 0 {
		t.Fatalf("remaining %d, want 0", rec.RemainingQty())
	}
}

func TestStoreReconstructsUnknownOrder(t *testing.T) {
	store := NewOrderStore()

	res := store.ApplyExecution(ExecutionEvent{
		OrderID:    "0000042",
		Account:    "8112223411",
		Code:       "005930",
		OrderType:  "+매수",
		OrderQty:   10,
		OrderPrice: 70000,
		FilledQty:  4,
		Status:     StatusProcessing,
		TradeNo:    "T1",
	})
	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome %s, want created", res.Outcome)
	}

	rec, err := store.Get("0000042")
	if err != nil {
		t.Fatalf("get reconstructed: %v", err)
	}
	if rec.Side != SideBuy || rec.RequestedQty != 10 || rec.FilledQty != 4 {
		t.Fatalf("unexpected reconstruction %+v", rec)
	}

	// The reconstructed order behaves like any other from then on.
	if res := store.ApplyExecution(ExecutionEvent{OrderID: "0000042", Status: StatusProcessing, FilledQty: 4, TradeNo: "T1"}); res.Outcome != OutcomeDuplicate {
		t.Fatalf("redelivery outcome %s, want duplicate", res.Outcome)
	}
	if res := store.ApplyExecution(ExecutionEvent{OrderID: "0000042", Status: StatusComplete, FilledQty: 10, TradeNo: "T2"}); res.Outcome != OutcomeApplied {
		t.Fatalf("completion outcome %s, want applied", res.Outcome)
	}
}

func TestStoreCreateMergesIntoReconstructedRecord(t *testing.T) {
	store := NewOrderStore()

	// A receipt push lands before the submitter registers the order.
	res := store.ApplyExecution(ExecutionEvent{
		OrderID:    "0000777",
		Code:       "005930",
		OrderType:  "+매수",
		OrderQty:   10,
		OrderPrice: 70000,
		Status:     StatusReceipt,
	})
	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome %s, want created", res.Outcome)
	}

	sub := newTestOrder("0000777", 10, 70000)
	sub.Kind = KindCancel
	sub.ParentOrderID = "0000700"
	if err := store.Create(sub); err != nil {
		t.Fatalf("create after reconstruction: %v", err)
	}

	rec, err := store.Get("0000777")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Account != "8112223411" || rec.Kind != KindCancel || rec.ParentOrderID != "0000700" {
		t.Fatalf("submission metadata not merged: %+v", rec)
	}
	if rec.Status != StatusReceipt || len(rec.History) != 1 {
		t.Fatalf("applied event state lost in merge: %+v", rec)
	}
	if rec.CreatedAt != sub.CreatedAt {
		t.Fatalf("created at %v, want submission time %v", rec.CreatedAt, sub.CreatedAt)
	}

	// The merge is single use; a second registration is still a caller bug.
	if err := store.Create(newTestOrder("0000777", 10, 70000)); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
}

func TestStoreOutstanding(t *testing.T) {
	store := NewOrderStore()
	for _, id := range []string{"0000003", "0000001", "0000002"} {
		if err := store.Create(newTestOrder(id, 10, 70000)); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	store.ApplyExecution(ExecutionEvent{OrderID: "0000002", Status: StatusCancelled})

	out := store.Outstanding()
	if len(out) != 2 {
		t.Fatalf("expected 2 outstanding, got %d", len(out))
	}
	if out[0].OrderID != "0000001" || out[1].OrderID != "0000003" {
		t.Fatalf("unexpected order: %s, %s", out[0].OrderID, out[1].OrderID)
	}
}

func TestSideFromOrderType(t *testing.T) {
	cases := []struct {
		in   string
		want Side
	}{
		{"+매수", SideBuy},
		{"-매도", SideSell},
		{"buy", SideBuy},
		{"SELL", SideSell},
		{"", SideBuy},
	}
	for _, c := range cases {
		if got := SideFromOrderType(c.in); got != c.want {
			t.Errorf("SideFromOrderType(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}
