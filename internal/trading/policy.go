package trading

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// amendSubmitter is the slice of the gateway the policy engine uses.
type amendSubmitter interface {
	SubmitCancel(ctx context.Context, orderID string, qty int64) (string, error)
	SubmitModify(ctx context.Context, orderID string, qty, price int64) (string, error)
}

// PolicyEngine evaluates per-order auto-cancel and auto-modify rules. It
// runs synchronously in the same processing step that applies each
// execution or price event, plus a periodic tick that lets pure time
// triggers fire when no events arrive. Policies exist only while their
// order is non-terminal and are removed, not disabled, on terminal
// transition or attempt exhaustion. An issued amendment that fails (for
// example a bridge timeout) is logged and the policy stays armed for the
// next evaluation; it is never retried in a tight loop.
type PolicyEngine struct {
	store   *OrderStore
	gateway amendSubmitter

	mu        sync.Mutex
	monitored map[string]time.Time
	cancels   map[string]*AutoCancelPolicy
	modifies  map[string]*AutoModifyPolicy

	now    func() time.Time
	logger zerolog.Logger
}

// NewPolicyEngine creates an engine issuing amendments through gateway.
func NewPolicyEngine(store *OrderStore, gateway amendSubmitter) *PolicyEngine {
	return &PolicyEngine{
		store:     store,
		gateway:   gateway,
		monitored: make(map[string]time.Time),
		cancels:   make(map[string]*AutoCancelPolicy),
		modifies:  make(map[string]*AutoModifyPolicy),
		now:       time.Now,
		logger:    log.With().Str("component", "policy_engine").Logger(),
	}
}

// Monitor puts an order under policy evaluation. The order must exist and
// be non-terminal.
func (e *PolicyEngine) Monitor(orderID string) error {
	rec, err := e.store.Get(orderID)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return ErrOrderTerminal
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.monitored[orderID]; !ok {
		e.monitored[orderID] = e.now()
		e.logger.Info().Str("order_id", orderID).Msg("order monitoring started")
	}
	return nil
}

// StopMonitor removes an order and its policies from evaluation.
func (e *PolicyEngine) StopMonitor(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retireLocked(orderID, "monitoring stopped")
}

// Retire drops all policies and monitoring for an order. The listener calls
// it on every terminal transition.
func (e *PolicyEngine) Retire(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retireLocked(orderID, "terminal status")
}

func (e *PolicyEngine) retireLocked(orderID, reason string) {
	_, wasMonitored := e.monitored[orderID]
	delete(e.monitored, orderID)
	delete(e.cancels, orderID)
	delete(e.modifies, orderID)
	if wasMonitored {
		e.logger.Info().
			Str("order_id", orderID).
			Str("reason", reason).
			Msg("order monitoring retired")
	}
}

// SetAutoCancel arms an auto-cancel policy for a monitored order. Zero
// fields disable their trigger; a policy with every trigger zero is inert
// but accepted.
func (e *PolicyEngine) SetAutoCancel(orderID string, timeout time.Duration, priceThreshold int64, marketPct float64) error {
	if timeout < 0 {
		return &ValidationError{Field: "timeout", Reason: "must not be negative"}
	}
	if priceThreshold < 0 {
		return &ValidationError{Field: "price_threshold", Reason: "must not be negative"}
	}
	if marketPct < 0 {
		return &ValidationError{Field: "market_price_threshold_pct", Reason: "must not be negative"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.monitored[orderID]; !ok {
		return ErrNotMonitored
	}
	e.cancels[orderID] = &AutoCancelPolicy{
		OrderID:                 orderID,
		Timeout:                 timeout,
		PriceThreshold:          priceThreshold,
		MarketPriceThresholdPct: marketPct,
		CreatedAt:               e.now(),
	}
	e.logger.Info().
		Str("order_id", orderID).
		Dur("timeout", timeout).
		Int64("price_threshold", priceThreshold).
		Float64("market_pct", marketPct).
		Msg("auto-cancel policy set")
	return nil
}

// SetAutoModify arms an auto-modify policy for a monitored order.
// maxAttempts defaults to DefaultModifyAttempts when non-positive. Zero
// targetPrice or priceStep leaves the policy inert but accepted.
func (e *PolicyEngine) SetAutoModify(orderID string, targetPrice, priceStep int64, maxAttempts int) error {
	if targetPrice < 0 {
		return &ValidationError{Field: "target_price", Reason: "must not be negative"}
	}
	if priceStep < 0 {
		return &ValidationError{Field: "price_step", Reason: "must not be negative"}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultModifyAttempts
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.monitored[orderID]; !ok {
		return ErrNotMonitored
	}
	e.modifies[orderID] = &AutoModifyPolicy{
		OrderID:     orderID,
		TargetPrice: targetPrice,
		PriceStep:   priceStep,
		MaxAttempts: maxAttempts,
		CreatedAt:   e.now(),
	}
	e.logger.Info().
		Str("order_id", orderID).
		Int64("target_price", targetPrice).
		Int64("price_step", priceStep).
		Int("max_attempts", maxAttempts).
		Msg("auto-modify policy set")
	return nil
}

// AutoCancel returns the armed auto-cancel policy for an order, if any.
func (e *PolicyEngine) AutoCancel(orderID string) (AutoCancelPolicy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.cancels[orderID]
	if !ok {
		return AutoCancelPolicy{}, false
	}
	return *p, true
}

// AutoModify returns the armed auto-modify policy for an order, if any.
func (e *PolicyEngine) AutoModify(orderID string) (AutoModifyPolicy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.modifies[orderID]
	if !ok {
		return AutoModifyPolicy{}, false
	}
	return *p, true
}

// Monitored returns the monitored order ids, sorted.
func (e *PolicyEngine) Monitored() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.monitored))
	for id := range e.monitored {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type policyAction int

const (
	actNone policyAction = iota
	actCancel
	actModify
)

type policyPlan struct {
	action policyAction
	qty    int64
	price  int64
	reason string
}

// Evaluate runs one evaluation cycle for an order against the given current
// price. A zero price leaves both price triggers dormant, so the periodic
// tick evaluates pure time conditions only. When both a cancel and a modify
// condition hold, the cancel wins and the modify policy is retired with it.
func (e *PolicyEngine) Evaluate(orderID string, currentPrice int64) {
	p := e.plan(orderID, currentPrice)

	switch p.action {
	case actCancel:
		e.logger.Info().
			Str("order_id", orderID).
			Str("trigger", p.reason).
			Int64("qty", p.qty).
			Msg("auto-cancel triggered")
		if _, err := e.gateway.SubmitCancel(context.Background(), orderID, p.qty); err != nil {
			e.logger.Warn().
				Err(err).
				Str("order_id", orderID).
				Msg("auto-cancel attempt failed, policy stays armed")
			return
		}
		e.mu.Lock()
		// A cancelled order cannot be modified: retire both policies.
		delete(e.cancels, orderID)
		delete(e.modifies, orderID)
		e.mu.Unlock()

	case actModify:
		newID, err := e.gateway.SubmitModify(context.Background(), orderID, p.qty, p.price)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("order_id", orderID).
				Msg("auto-modify attempt failed, policy stays armed")
			return
		}
		e.mu.Lock()
		if m, ok := e.modifies[orderID]; ok {
			m.AttemptsMade++
			e.logger.Info().
				Str("order_id", orderID).
				Str("new_order_id", newID).
				Int64("price", p.price).
				Int("attempts_made", m.AttemptsMade).
				Msg("auto-modify step issued")
		}
		// The broker replaced the order; follow the policies to the new id
		// so later steps measure from the amended price.
		e.rekeyLocked(orderID, newID)
		e.mu.Unlock()
	}
}

// plan decides the action for one evaluation under the engine lock, without
// issuing anything.
func (e *PolicyEngine) plan(orderID string, currentPrice int64) policyPlan {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.monitored[orderID]; !ok {
		return policyPlan{}
	}
	rec, err := e.store.Get(orderID)
	if err != nil {
		e.retireLocked(orderID, "order disappeared")
		return policyPlan{}
	}
	if rec.Status.Terminal() {
		e.retireLocked(orderID, "terminal status")
		return policyPlan{}
	}
	remaining := rec.RemainingQty()
	if remaining == 0 {
		return policyPlan{}
	}

	// Auto-cancel: first matching trigger wins and preempts any modify.
	if c, ok := e.cancels[orderID]; ok {
		if reason := e.cancelTrigger(c, rec, currentPrice); reason != "" {
			return policyPlan{action: actCancel, qty: remaining, reason: reason}
		}
	}

	if m, ok := e.modifies[orderID]; ok {
		if m.AttemptsMade >= m.MaxAttempts {
			delete(e.modifies, orderID)
			e.logger.Info().
				Str("order_id", orderID).
				Int("attempts_made", m.AttemptsMade).
				Msg("auto-modify attempt budget exhausted, policy retired")
			return policyPlan{}
		}
		if m.TargetPrice == 0 || m.PriceStep == 0 {
			return policyPlan{} // inert until both fields are set
		}
		dist := m.TargetPrice - rec.RequestedPrice
		if dist == 0 {
			delete(e.modifies, orderID)
			e.logger.Info().
				Str("order_id", orderID).
				Int64("target_price", m.TargetPrice).
				Msg("auto-modify target reached, policy retired")
			return policyPlan{}
		}
		step := m.PriceStep
		if abs64(dist) < step {
			step = abs64(dist) // clamp the final step, never overshoot
		}
		newPrice := rec.RequestedPrice + step*sign64(dist)
		return policyPlan{action: actModify, qty: remaining, price: newPrice}
	}

	return policyPlan{}
}

// cancelTrigger returns the name of the first matching trigger, evaluated in
// the fixed order: timeout, absolute price threshold, percent threshold.
func (e *PolicyEngine) cancelTrigger(c *AutoCancelPolicy, rec *OrderRecord, currentPrice int64) string {
	if c.Timeout > 0 && e.now().Sub(c.CreatedAt) > c.Timeout {
		return "timeout"
	}
	if currentPrice > 0 {
		diff := abs64(currentPrice - rec.RequestedPrice)
		if c.PriceThreshold > 0 && diff > c.PriceThreshold {
			return "price_threshold"
		}
		if c.MarketPriceThresholdPct > 0 && rec.RequestedPrice > 0 {
			pct := float64(diff) / float64(rec.RequestedPrice) * 100
			if pct > c.MarketPriceThresholdPct {
				return "market_price_threshold_pct"
			}
		}
	}
	return ""
}

func (e *PolicyEngine) rekeyLocked(oldID, newID string) {
	if newID == "" || newID == oldID {
		return
	}
	if since, ok := e.monitored[oldID]; ok {
		delete(e.monitored, oldID)
		e.monitored[newID] = since
	}
	if c, ok := e.cancels[oldID]; ok {
		delete(e.cancels, oldID)
		c.OrderID = newID
		e.cancels[newID] = c
	}
	if m, ok := e.modifies[oldID]; ok {
		delete(e.modifies, oldID)
		m.OrderID = newID
		e.modifies[newID] = m
	}
}

// EvaluateCode runs an evaluation for each monitored order on the given
// code, driven by a fresh market price.
func (e *PolicyEngine) EvaluateCode(code string, currentPrice int64) {
	for _, id := range e.Monitored() {
		rec, err := e.store.Get(id)
		if err != nil || rec.Code != code {
			continue
		}
		e.Evaluate(id, currentPrice)
	}
}

// Tick evaluates every monitored order with no price, letting timeout
// triggers fire while price triggers stay dormant.
func (e *PolicyEngine) Tick() {
	for _, id := range e.Monitored() {
		e.Evaluate(id, 0)
	}
}

// Start runs the periodic tick loop until ctx is cancelled.
func (e *PolicyEngine) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	e.logger.Info().Dur("interval", interval).Msg("starting policy tick loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("stopping policy tick loop")
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign64(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}
