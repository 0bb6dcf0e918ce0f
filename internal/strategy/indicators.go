// Package strategy provides price indicators and advisory signals over the
// market prices observed on the balance stream. Signals are suggestions for
// the operator or a driver program; nothing in this package submits orders.
package strategy

import "math"

// SMA is the simple moving average of the trailing period. With fewer
// samples than the period it averages what is available; an empty series
// yields zero.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// EMA is the exponential moving average, seeded with the SMA of the first
// period and folded over the remainder of the series.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return SMA(prices, len(prices))
	}

	k := 2.0 / float64(period+1)
	ema := SMA(prices[:period], period)
	for _, p := range prices[period:] {
		ema += (p - ema) * k
	}
	return ema
}

// RSI is the relative strength index over the trailing period. A series too
// short to measure reads as the neutral 50.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	var gains, losses float64
	window := prices[len(prices)-period-1:]
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		return 100.0
	}

	rs := (gains / float64(period)) / (losses / float64(period))
	return 100.0 - 100.0/(1.0+rs)
}

// MACD holds the moving average convergence divergence line and its signal.
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD computes MACD with the conventional 12/26/9 periods unless
// overridden.
func CalculateMACD(prices []float64, fast, slow, signalPeriod int) MACD {
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if signalPeriod <= 0 {
		signalPeriod = 9
	}
	if len(prices) < slow {
		return MACD{}
	}

	// The signal line is an EMA of the MACD line series.
	macdSeries := make([]float64, 0, len(prices)-slow+1)
	for i := slow; i <= len(prices); i++ {
		macdSeries = append(macdSeries, EMA(prices[:i], fast)-EMA(prices[:i], slow))
	}
	line := macdSeries[len(macdSeries)-1]
	signal := EMA(macdSeries, signalPeriod)
	return MACD{Line: line, Signal: signal, Histogram: line - signal}
}

// Bands holds Bollinger band levels.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands computes bands over the trailing period. Too few samples
// collapse the bands onto the last price.
func BollingerBands(prices []float64, period int, width float64) Bands {
	if len(prices) == 0 {
		return Bands{}
	}
	if len(prices) < period {
		last := prices[len(prices)-1]
		return Bands{Upper: last, Middle: last, Lower: last}
	}

	mid := SMA(prices, period)
	variance := 0.0
	for _, p := range prices[len(prices)-period:] {
		d := p - mid
		variance += d * d
	}
	dev := math.Sqrt(variance / float64(period))
	return Bands{
		Upper:  mid + width*dev,
		Middle: mid,
		Lower:  mid - width*dev,
	}
}
