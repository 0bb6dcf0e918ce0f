package strategy

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
)

// Signal is an advisory trade suggestion.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "none"
	}
}

// maxSeries caps the per-code price history.
const maxSeries = 512

// BollingerReversion is a mean-reversion advisor: a price closing below the
// lower band suggests a buy, above the upper band a sell. It consumes the
// current prices carried on balance pushes, one Observe per tick.
type BollingerReversion struct {
	period int
	width  float64

	mu     sync.Mutex
	series map[string][]float64

	logger zerolog.Logger
}

// NewBollingerReversion creates an advisor with the given band period and
// width in standard deviations. Non-positive values fall back to 20 and 2.
func NewBollingerReversion(period int, width float64) *BollingerReversion {
	if period <= 0 {
		period = 20
	}
	if width <= 0 {
		width = 2.0
	}
	return &BollingerReversion{
		period: period,
		width:  width,
		series: make(map[string][]float64),
		logger: log.With().Str("component", "bollinger_reversion").Logger(),
	}
}

// Observe records one price tick for a code and returns the signal it
// produces. Ticks before the band period has filled return SignalNone.
func (b *BollingerReversion) Observe(code string, price int64) Signal {
	if price <= 0 {
		return SignalNone
	}

	b.mu.Lock()
	s := append(b.series[code], float64(price))
	if len(s) > maxSeries {
		s = s[len(s)-maxSeries:]
	}
	b.series[code] = s
	b.mu.Unlock()

	if len(s) < b.period {
		return SignalNone
	}

	bands := BollingerBands(s, b.period, b.width)
	last := s[len(s)-1]
	switch {
	case last < bands.Lower:
		b.logger.Debug().
			Str("code", code).
			Float64("price", last).
			Float64("lower", bands.Lower).
			Msg("price below lower band")
		return SignalBuy
	case last > bands.Upper:
		b.logger.Debug().
			Str("code", code).
			Float64("price", last).
			Float64("upper", bands.Upper).
			Msg("price above upper band")
		return SignalSell
	}
	return SignalNone
}

// WatchBalances feeds the current prices carried on balance notifications
// into the advisor until the channel closes, invoking onSignal for every
// non-none signal. Order notifications and pushes without a price are
// skipped.
func (b *BollingerReversion) WatchBalances(notes <-chan trading.Notification, onSignal func(code string, sig Signal, price int64)) {
	for note := range notes {
		if note.Type != trading.NotifyBalanceUpdated || note.Balance == nil {
			continue
		}
		bal := note.Balance
		if sig := b.Observe(bal.Code, bal.CurrentPrice); sig != SignalNone && onSignal != nil {
			onSignal(bal.Code, sig, bal.CurrentPrice)
		}
	}
}
