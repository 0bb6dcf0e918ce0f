package broker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Immediate result codes returned by the simulated SendOrder.
const (
	simResultOK           = 0
	simResultNotConnected = -200
	simResultOrderLimit   = -308
)

// Compile-time interface check.
var _ Session = (*SimSession)(nil)

// SimConfig tunes the simulated broker session.
type SimConfig struct {
	// MinLatency and MaxLatency bound the delay before each callback.
	MinLatency time.Duration
	MaxLatency time.Duration
	// RejectRate is the probability of a synchronous SendOrder rejection.
	RejectRate float64
	// FillSlices is how many partial-fill pushes a new order is split into.
	FillSlices int
	// Seed fixes the random source; zero seeds from the clock.
	Seed int64
}

// DefaultSimConfig returns the settings used by the sim server mode.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		MinLatency: 5 * time.Millisecond,
		MaxLatency: 30 * time.Millisecond,
		RejectRate: 0,
		FillSlices: 2,
	}
}

type simOrder struct {
	no        string
	account   string
	code      string
	side      string // "buy" or "sell"
	qty       int64
	price     int64
	filled    int64
	priceType string
	terminal  bool
}

// SimSession is an in-process stand-in for the real broker session. It
// acknowledges orders asynchronously and pushes receipt, partial-fill,
// completion, cancel and modify chejan events with simulated latency, so the
// full trading stack can run without a live connection. Chejan events are
// delivered on a single dispatch goroutine to keep per-order broker order;
// TR acknowledgements are delivered independently so a blocked chejan
// consumer can never stall a synchronous caller.
type SimSession struct {
	cfg SimConfig

	mu        sync.Mutex
	connected bool
	closed    bool
	tr        TRHandler
	chejan    ChejanHandler
	orders    map[string]*simOrder
	positions map[string]int64 // account|code -> held qty
	seq       int64
	rng       *rand.Rand

	chejanCh chan ChejanEvent
	done     chan struct{}
	logger   zerolog.Logger
}

// NewSimSession creates a simulated session with the given configuration.
func NewSimSession(cfg SimConfig) *SimSession {
	if cfg.FillSlices < 1 {
		cfg.FillSlices = 1
	}
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimSession{
		cfg:       cfg,
		orders:    make(map[string]*simOrder),
		positions: make(map[string]int64),
		rng:       rand.New(rand.NewSource(seed)),
		chejanCh:  make(chan ChejanEvent, 256),
		done:      make(chan struct{}),
		logger:    log.With().Str("component", "sim_session").Logger(),
	}
}

// Connect marks the session live and starts chejan dispatch.
func (s *SimSession) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	if s.connected {
		return nil
	}
	s.connected = true
	go s.dispatchChejan()
	s.logger.Info().Msg("simulated broker session connected")
	return nil
}

// OnTRData registers the TR acknowledgement handler.
func (s *SimSession) OnTRData(h TRHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tr = h
}

// OnChejanData registers the execution/balance push handler.
func (s *SimSession) OnChejanData(h ChejanHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chejan = h
}

// Close stops callback delivery. Pending lifecycle goroutines drain into a
// closed session and are dropped.
func (s *SimSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	close(s.done)
	return nil
}

// SendOrder validates the session state, rolls the rejection dice and, on
// acceptance, runs the order lifecycle on its own goroutine.
func (s *SimSession) SendOrder(req OrderRequest) int {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return simResultNotConnected
	}
	if s.cfg.RejectRate > 0 && s.rng.Float64() < s.cfg.RejectRate {
		s.mu.Unlock()
		s.logger.Warn().
			Str("request", req.RequestName).
			Str("code", req.Code).
			Msg("simulated synchronous order rejection")
		return simResultOrderLimit
	}
	s.seq++
	orderNo := fmt.Sprintf("S%06d", s.seq)
	s.mu.Unlock()

	go s.runLifecycle(orderNo, req)
	return simResultOK
}

func (s *SimSession) dispatchChejan() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.chejanCh:
			s.mu.Lock()
			h := s.chejan
			s.mu.Unlock()
			if h != nil {
				h(ev)
			}
		}
	}
}

func (s *SimSession) runLifecycle(orderNo string, req OrderRequest) {
	s.sleep()

	side := "buy"
	if req.OrderType == OrderTypeSell || req.OrderType == OrderTypeCancelSell || req.OrderType == OrderTypeModifySell {
		side = "sell"
	}

	ord := &simOrder{
		no:        orderNo,
		account:   req.Account,
		code:      req.Code,
		side:      side,
		qty:       req.Quantity,
		price:     req.Price,
		priceType: req.PriceType,
	}
	s.mu.Lock()
	s.orders[orderNo] = ord
	tr := s.tr
	s.mu.Unlock()

	if tr != nil {
		tr(TRAck{
			RequestName: req.RequestName,
			Screen:      req.Screen,
			OrderNo:     orderNo,
			Code:        req.Code,
			Quantity:    req.Quantity,
			Price:       req.Price,
		})
	}

	switch req.OrderType {
	case OrderTypeBuy, OrderTypeSell:
		s.pushExecution(ord, StatusReceipt, 0, 0)
		s.fillOrder(ord)
	case OrderTypeCancelBuy, OrderTypeCancelSell:
		s.pushExecution(ord, StatusReceipt, 0, 0)
		s.cancelOriginal(req.OrigOrderNo)
	case OrderTypeModifyBuy, OrderTypeModifySell:
		s.pushExecution(ord, StatusReceipt, 0, 0)
		s.modifyOriginal(req.OrigOrderNo)
		s.fillOrder(ord)
	default:
		s.logger.Error().Int("order_type", req.OrderType).Msg("unsupported order type code")
	}
}

// fillOrder pushes cumulative partial fills followed by completion, then a
// balance update reflecting the position change.
func (s *SimSession) fillOrder(ord *simOrder) {
	slices := int64(s.cfg.FillSlices)
	if slices > ord.qty {
		slices = ord.qty
	}
	if slices < 1 {
		slices = 1
	}
	per := ord.qty / slices

	var filled int64
	for i := int64(1); i <= slices; i++ {
		s.sleep()
		if s.isTerminal(ord.no) {
			return
		}
		if i == slices {
			filled = ord.qty
		} else {
			filled += per
		}
		status := StatusProcessing
		if filled == ord.qty {
			status = StatusComplete
		}
		s.setFilled(ord.no, filled)
		s.pushExecution(ord, status, filled, s.fillPrice(ord))
	}
	s.markTerminal(ord.no)
	s.pushBalance(ord)
}

func (s *SimSession) cancelOriginal(origNo string) {
	s.sleep()
	s.mu.Lock()
	orig := s.orders[origNo]
	s.mu.Unlock()
	if orig == nil {
		s.logger.Warn().Str("order_no", origNo).Msg("cancel for unknown original order")
		return
	}
	s.markTerminal(origNo)
	s.pushExecution(orig, StatusCancelled, orig.filled, 0)
}

func (s *SimSession) modifyOriginal(origNo string) {
	s.sleep()
	s.mu.Lock()
	orig := s.orders[origNo]
	s.mu.Unlock()
	if orig == nil {
		s.logger.Warn().Str("order_no", origNo).Msg("modify for unknown original order")
		return
	}
	s.markTerminal(origNo)
	s.pushExecution(orig, StatusModified, orig.filled, 0)
}

// fillPrice applies a small variance around the requested price, the way a
// resting limit order trades through the book.
func (s *SimSession) fillPrice(ord *simOrder) int64 {
	if ord.price == 0 {
		return 0
	}
	s.mu.Lock()
	variance := 1 + (s.rng.Float64()*0.01 - 0.005)
	s.mu.Unlock()
	return int64(float64(ord.price) * variance)
}

func (s *SimSession) pushExecution(ord *simOrder, status string, filled, filledPrice int64) {
	s.mu.Lock()
	tradeNo := "T" + uuid.New().String()[:8]
	s.mu.Unlock()

	s.send(ChejanEvent{
		Gubun: GubunExecution,
		Fields: map[int]string{
			FIDAccountNo:   ord.account,
			FIDOrderNo:     ord.no,
			FIDCode:        ord.code,
			FIDName:        ord.code,
			FIDOrderType:   ord.side,
			FIDOrderQty:    fmt.Sprintf("%d", ord.qty),
			FIDOrderPrice:  fmt.Sprintf("%d", ord.price),
			FIDFilledQty:   fmt.Sprintf("%d", filled),
			FIDFilledPrice: fmt.Sprintf("%d", filledPrice),
			FIDOrderStatus: status,
			FIDTradeTime:   time.Now().Format("150405"),
			FIDTradeNo:     tradeNo,
		},
	})
}

func (s *SimSession) pushBalance(ord *simOrder) {
	key := ord.account + "|" + ord.code
	s.mu.Lock()
	if ord.side == "sell" {
		s.positions[key] -= ord.qty
	} else {
		s.positions[key] += ord.qty
	}
	held := s.positions[key]
	pnl := s.rng.Float64()*4 - 2
	s.mu.Unlock()

	s.send(ChejanEvent{
		Gubun: GubunBalance,
		Fields: map[int]string{
			FIDAccountNo:    ord.account,
			FIDCode:         ord.code,
			FIDName:         ord.code,
			FIDHeldQty:      fmt.Sprintf("%d", held),
			FIDOrderableQty: fmt.Sprintf("%d", held),
			FIDCurrentPrice: fmt.Sprintf("%d", ord.price),
			FIDProfitLoss:   fmt.Sprintf("%.2f", pnl),
		},
	})
}

func (s *SimSession) send(ev ChejanEvent) {
	select {
	case <-s.done:
	case s.chejanCh <- ev:
	}
}

func (s *SimSession) sleep() {
	s.mu.Lock()
	span := s.cfg.MaxLatency - s.cfg.MinLatency
	d := s.cfg.MinLatency
	if span > 0 {
		d += time.Duration(s.rng.Int63n(int64(span)))
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(d):
	}
}

func (s *SimSession) isTerminal(orderNo string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord := s.orders[orderNo]
	return ord == nil || ord.terminal
}

func (s *SimSession) markTerminal(orderNo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ord := s.orders[orderNo]; ord != nil {
		ord.terminal = true
	}
}

func (s *SimSession) setFilled(orderNo string, filled int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ord := s.orders[orderNo]; ord != nil {
		ord.filled = filled
	}
}
