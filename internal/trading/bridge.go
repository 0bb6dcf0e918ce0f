package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/broker"
)

// DefaultBridgeTimeout bounds the wait for a TR acknowledgement.
const DefaultBridgeTimeout = 10 * time.Second

// pendingCall is a single-resolution future for one outstanding request.
// Whichever of the callback, the timer, or the caller's context resolves it
// first wins; every later resolution attempt reports false and is discarded
// by the caller.
type pendingCall struct {
	requestName string

	mu   sync.Mutex
	done bool
	ch   chan broker.TRAck
}

func newPendingCall(requestName string) *pendingCall {
	return &pendingCall{
		requestName: requestName,
		ch:          make(chan broker.TRAck, 1),
	}
}

// resolve delivers the acknowledgement unless the call was already resolved
// or abandoned.
func (p *pendingCall) resolve(ack broker.TRAck) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.done = true
	p.ch <- ack
	return true
}

// abandon marks the call resolved with no value. It reports false when an
// acknowledgement raced in first, in which case the caller should drain the
// channel and use it.
func (p *pendingCall) abandon() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.done = true
	return true
}

// SyncBridge converts the broker's callback-driven, single-outstanding
// request channel into blocking call semantics. Callers serialize on a
// mutex, so a second concurrent Execute queues behind the first rather than
// failing. A nonzero immediate result code fails the call without entering
// the wait; a timeout surfaces ErrTimeout to the caller but leaves the
// bridge able to match and discard the late acknowledgement.
type SyncBridge struct {
	session broker.Session
	timeout time.Duration
	logger  zerolog.Logger

	reqMu sync.Mutex // serializes callers: one outstanding request

	mu      sync.Mutex
	pending *pendingCall
}

// NewSyncBridge wires a bridge to the session's TR callback. A non-positive
// timeout falls back to DefaultBridgeTimeout.
func NewSyncBridge(session broker.Session, timeout time.Duration) *SyncBridge {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	b := &SyncBridge{
		session: session,
		timeout: timeout,
		logger:  log.With().Str("component", "sync_bridge").Logger(),
	}
	session.OnTRData(b.handleTRData)
	return b
}

// Execute sends the request and blocks until the matching TR acknowledgement
// arrives, the bridge timeout elapses, or ctx is cancelled.
func (b *SyncBridge) Execute(ctx context.Context, req broker.OrderRequest) (*broker.TRAck, error) {
	b.reqMu.Lock()
	defer b.reqMu.Unlock()

	call := newPendingCall(req.RequestName)
	b.mu.Lock()
	b.pending = call
	b.mu.Unlock()

	if code := b.session.SendOrder(req); code != 0 {
		b.clearPending(call)
		b.logger.Warn().
			Str("request", req.RequestName).
			Str("code", req.Code).
			Int("result_code", code).
			Msg("broker rejected send synchronously")
		return nil, &GatewayRejectedError{Code: code}
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case ack := <-call.ch:
		b.clearPending(call)
		return &ack, nil
	case <-timer.C:
		if !call.abandon() {
			// The acknowledgement raced the timer; take it.
			ack := <-call.ch
			b.clearPending(call)
			return &ack, nil
		}
		// The request stays outstanding at the broker. The pending slot is
		// kept so a late acknowledgement is matched and discarded instead
		// of crashing the handler.
		b.logger.Warn().
			Str("request", req.RequestName).
			Dur("timeout", b.timeout).
			Msg("no TR acknowledgement within timeout")
		return nil, ErrTimeout
	case <-ctx.Done():
		if !call.abandon() {
			ack := <-call.ch
			b.clearPending(call)
			return &ack, nil
		}
		b.logger.Warn().
			Str("request", req.RequestName).
			Msg("caller cancelled while waiting for TR acknowledgement")
		return nil, ctx.Err()
	}
}

func (b *SyncBridge) clearPending(call *pendingCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == call {
		b.pending = nil
	}
}

func (b *SyncBridge) handleTRData(ack broker.TRAck) {
	b.mu.Lock()
	call := b.pending
	b.mu.Unlock()

	if call == nil {
		b.logger.Warn().
			Str("request", ack.RequestName).
			Str("order_no", ack.OrderNo).
			Msg("TR acknowledgement with no pending request, discarded")
		return
	}
	if ack.RequestName != "" && call.requestName != "" && ack.RequestName != call.requestName {
		b.logger.Warn().
			Str("request", ack.RequestName).
			Str("pending", call.requestName).
			Msg("TR acknowledgement for a different request, discarded")
		return
	}
	if !call.resolve(ack) {
		b.logger.Info().
			Str("request", ack.RequestName).
			Str("order_no", ack.OrderNo).
			Msg("late TR acknowledgement after timeout, discarded")
	}
}
