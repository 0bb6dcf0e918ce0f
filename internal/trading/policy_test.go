package trading

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeAmender records the amendments the engine issues and mimics the broker
// by replacing modified orders in the store under a fresh id.
type fakeAmender struct {
	store   *OrderStore
	cancels []string
	modifys []struct {
		orderID string
		qty     int64
		price   int64
	}
	seq  int
	fail error
}

func newFakeAmender(store *OrderStore) *fakeAmender {
	return &fakeAmender{store: store}
}

func (f *fakeAmender) SubmitCancel(ctx context.Context, orderID string, qty int64) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.cancels = append(f.cancels, orderID)
	f.seq++
	return fmt.Sprintf("C%06d", f.seq), nil
}

func (f *fakeAmender) SubmitModify(ctx context.Context, orderID string, qty, price int64) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.modifys = append(f.modifys, struct {
		orderID string
		qty     int64
		price   int64
	}{orderID, qty, price})

	parent, err := f.store.Get(orderID)
	if err != nil {
		return "", err
	}
	f.seq++
	newID := fmt.Sprintf("M%06d", f.seq)
	rec := newTestOrder(newID, qty, price)
	rec.Kind = KindModify
	rec.ParentOrderID = orderID
	rec.Status = StatusReceipt
	if err := f.store.Create(rec); err != nil {
		return "", err
	}
	f.store.ApplyExecution(ExecutionEvent{OrderID: parent.OrderID, Status: StatusModified})
	return newID, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*PolicyEngine, *OrderStore, *fakeAmender, *fakeClock) {
	t.Helper()
	store := NewOrderStore()
	amender := newFakeAmender(store)
	clock := &fakeClock{t: time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)}
	engine := NewPolicyEngine(store, amender)
	engine.now = clock.now
	return engine, store, amender, clock
}

func TestPolicyMonitorGuards(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)

	if err := engine.Monitor("missing"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
	if err := engine.SetAutoCancel("0000001", time.Minute, 0, 0); !errors.Is(err, ErrNotMonitored) {
		t.Fatalf("expected ErrNotMonitored, got %v", err)
	}
	if err := engine.SetAutoModify("0000001", 70500, 100, 0); !errors.Is(err, ErrNotMonitored) {
		t.Fatalf("expected ErrNotMonitored, got %v", err)
	}

	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.ApplyExecution(ExecutionEvent{OrderID: "0000001", Status: StatusCancelled})
	if err := engine.Monitor("0000001"); !errors.Is(err, ErrOrderTerminal) {
		t.Fatalf("expected ErrOrderTerminal for terminal order, got %v", err)
	}
}

func TestPolicyTimeoutCancel(t *testing.T) {
	engine, store, amender, clock := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := engine.SetAutoCancel("0000001", 60*time.Second, 0, 0); err != nil {
		t.Fatalf("set auto-cancel: %v", err)
	}

	// Exactly at the boundary the trigger stays quiet.
	clock.advance(60 * time.Second)
	engine.Evaluate("0000001", 0)
	if len(amender.cancels) != 0 {
		t.Fatalf("cancel fired at exact timeout boundary")
	}

	clock.advance(time.Second)
	engine.Evaluate("0000001", 0)
	if len(amender.cancels) != 1 || amender.cancels[0] != "0000001" {
		t.Fatalf("expected one cancel of 0000001, got %v", amender.cancels)
	}
	if _, armed := engine.AutoCancel("0000001"); armed {
		t.Fatal("cancel policy still armed after firing")
	}

	// A later evaluation must not fire again.
	clock.advance(time.Minute)
	engine.Evaluate("0000001", 0)
	if len(amender.cancels) != 1 {
		t.Fatalf("cancel fired twice: %v", amender.cancels)
	}
}

func TestPolicyPriceTriggers(t *testing.T) {
	cases := []struct {
		name      string
		threshold int64
		pct       float64
		price     int64
		want      int // cancels issued
	}{
		{"abs within threshold", 500, 0, 70500, 0},
		{"abs beyond threshold", 500, 0, 70501, 1},
		{"pct within threshold", 0, 1.0, 70700, 0},
		{"pct beyond threshold", 0, 1.0, 70701, 1},
		{"no price no trigger", 500, 1.0, 0, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			engine, store, amender, _ := newTestEngine(t)
			if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := engine.Monitor("0000001"); err != nil {
				t.Fatalf("monitor: %v", err)
			}
			if err := engine.SetAutoCancel("0000001", 0, c.threshold, c.pct); err != nil {
				t.Fatalf("set auto-cancel: %v", err)
			}

			engine.Evaluate("0000001", c.price)
			if len(amender.cancels) != c.want {
				t.Fatalf("cancels = %d, want %d", len(amender.cancels), c.want)
			}
		})
	}
}

func TestPolicyModifyConvergesToTarget(t *testing.T) {
	engine, store, amender, _ := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 10000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := engine.SetAutoModify("0000001", 10500, 200, 5); err != nil {
		t.Fatalf("set auto-modify: %v", err)
	}

	// Each evaluation issues one step on the live order id; the engine
	// follows the broker's replacement id between steps.
	live := "0000001"
	for i := 0; i < 5; i++ {
		engine.Evaluate(live, 0)
		ids := engine.Monitored()
		if len(ids) != 1 {
			t.Fatalf("step %d: monitored = %v", i, ids)
		}
		live = ids[0]
	}

	wantPrices := []int64{10200, 10400, 10500}
	if len(amender.modifys) != len(wantPrices) {
		t.Fatalf("modify steps = %d, want %d: %+v", len(amender.modifys), len(wantPrices), amender.modifys)
	}
	for i, m := range amender.modifys {
		if m.price != wantPrices[i] {
			t.Fatalf("step %d price = %d, want %d", i, m.price, wantPrices[i])
		}
	}
	// Target reached: the policy retires rather than oscillating.
	if _, armed := engine.AutoModify(live); armed {
		t.Fatal("modify policy still armed after reaching target")
	}
	rec, err := store.Get(live)
	if err != nil {
		t.Fatalf("get live order: %v", err)
	}
	if rec.RequestedPrice != 10500 {
		t.Fatalf("live price = %d, want 10500", rec.RequestedPrice)
	}
}

func TestPolicyModifyAttemptBudget(t *testing.T) {
	engine, store, amender, _ := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 10000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	// Far target, tiny budget: stops after MaxAttempts steps.
	if err := engine.SetAutoModify("0000001", 20000, 100, 2); err != nil {
		t.Fatalf("set auto-modify: %v", err)
	}

	live := "0000001"
	for i := 0; i < 4; i++ {
		engine.Evaluate(live, 0)
		if ids := engine.Monitored(); len(ids) == 1 {
			live = ids[0]
		}
	}
	if len(amender.modifys) != 2 {
		t.Fatalf("modify steps = %d, want 2", len(amender.modifys))
	}
	if _, armed := engine.AutoModify(live); armed {
		t.Fatal("modify policy still armed after budget exhaustion")
	}
}

func TestPolicyCancelWinsOverModify(t *testing.T) {
	engine, store, amender, clock := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 10000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := engine.SetAutoCancel("0000001", 60*time.Second, 0, 0); err != nil {
		t.Fatalf("set auto-cancel: %v", err)
	}
	if err := engine.SetAutoModify("0000001", 10500, 100, 5); err != nil {
		t.Fatalf("set auto-modify: %v", err)
	}

	clock.advance(61 * time.Second)
	engine.Evaluate("0000001", 0)

	if len(amender.cancels) != 1 {
		t.Fatalf("cancels = %d, want 1", len(amender.cancels))
	}
	if len(amender.modifys) != 0 {
		t.Fatalf("modify issued despite cancel precedence: %+v", amender.modifys)
	}
	if _, armed := engine.AutoModify("0000001"); armed {
		t.Fatal("modify policy survived the cancel")
	}
}

func TestPolicyStaysArmedOnGatewayFailure(t *testing.T) {
	engine, store, amender, clock := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := engine.SetAutoCancel("0000001", 60*time.Second, 0, 0); err != nil {
		t.Fatalf("set auto-cancel: %v", err)
	}

	amender.fail = ErrTimeout
	clock.advance(61 * time.Second)
	engine.Evaluate("0000001", 0)
	if _, armed := engine.AutoCancel("0000001"); !armed {
		t.Fatal("policy retired although the cancel failed")
	}

	amender.fail = nil
	engine.Evaluate("0000001", 0)
	if len(amender.cancels) != 1 {
		t.Fatalf("cancels = %d, want 1 after recovery", len(amender.cancels))
	}
	if _, armed := engine.AutoCancel("0000001"); armed {
		t.Fatal("policy still armed after successful cancel")
	}
}

func TestPolicyRetireOnTerminal(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := engine.SetAutoCancel("0000001", time.Minute, 0, 0); err != nil {
		t.Fatalf("set auto-cancel: %v", err)
	}

	engine.Retire("0000001")
	if len(engine.Monitored()) != 0 {
		t.Fatal("order still monitored after retire")
	}
	if _, armed := engine.AutoCancel("0000001"); armed {
		t.Fatal("policy still armed after retire")
	}
}

func TestPolicyInertWithoutTriggers(t *testing.T) {
	engine, store, amender, clock := newTestEngine(t)

	if err := store.Create(newTestOrder("0000001", 10, 70000)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Monitor("0000001"); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := engine.SetAutoCancel("0000001", 0, 0, 0); err != nil {
		t.Fatalf("set auto-cancel: %v", err)
	}
	if err := engine.SetAutoModify("0000001", 0, 0, 0); err != nil {
		t.Fatalf("set auto-modify: %v", err)
	}

	clock.advance(time.Hour)
	engine.Evaluate("0000001", 99999)
	if len(amender.cancels) != 0 || len(amender.modifys) != 0 {
		t.Fatal("inert policies issued amendments")
	}
}
