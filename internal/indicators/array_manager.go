// Package indicators provides the bar aggregation and rolling-window
// calculations strategies use to warm up and generate signals.
package indicators

import (
	"math"

	"cta-core/pkg/exchanges/common"
)

// ArrayManager keeps rolling OHLCV windows and computes indicators over
// them. It reports Inited once the window is full.
type ArrayManager struct {
	count int
	size  int

	open  []float64
	high  []float64
	low   []float64
	close []float64
	vol   []float64
}

// NewArrayManager creates a manager with the given window size (default
// 100 when size is non-positive).
func NewArrayManager(size int) *ArrayManager {
	if size <= 0 {
		size = 100
	}
	return &ArrayManager{
		size:  size,
		open:  make([]float64, size),
		high:  make([]float64, size),
		low:   make([]float64, size),
		close: make([]float64, size),
		vol:   make([]float64, size),
	}
}

// Inited reports whether the window has been filled at least once.
func (am *ArrayManager) Inited() bool { return am.count >= am.size }

// UpdateBar pushes a new bar into the window.
func (am *ArrayManager) UpdateBar(bar *common.Bar) {
	am.count++
	shift(am.open, bar.Open)
	shift(am.high, bar.High)
	shift(am.low, bar.Low)
	shift(am.close, bar.Close)
	shift(am.vol, bar.Volume)
}

func shift(arr []float64, v float64) {
	copy(arr, arr[1:])
	arr[len(arr)-1] = v
}

// Close returns the close window, oldest first.
func (am *ArrayManager) Close() []float64 { return am.close }

// Sma returns the simple moving average of the last n closes.
func (am *ArrayManager) Sma(n int) float64 {
	return mean(tail(am.close, n))
}

// SmaPrev returns the SMA as of the previous bar.
func (am *ArrayManager) SmaPrev(n int) float64 {
	if n+1 > am.size {
		return 0
	}
	window := am.close[am.size-n-1 : am.size-1]
	return mean(window)
}

// Std returns the standard deviation of the last n closes.
func (am *ArrayManager) Std(n int) float64 {
	window := tail(am.close, n)
	m := mean(window)
	var sum float64
	for _, v := range window {
		d := v - m
		sum += d * d
	}
	if len(window) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(window)))
}

// Atr returns the average true range over the last n bars.
func (am *ArrayManager) Atr(n int) float64 {
	if n <= 0 || n >= am.size {
		return 0
	}
	var sum float64
	for i := am.size - n; i < am.size; i++ {
		tr := am.high[i] - am.low[i]
		prevClose := am.close[i-1]
		tr = math.Max(tr, math.Abs(am.high[i]-prevClose))
		tr = math.Max(tr, math.Abs(am.low[i]-prevClose))
		sum += tr
	}
	return sum / float64(n)
}

// Rsi returns the relative strength index over the last n bars.
func (am *ArrayManager) Rsi(n int) float64 {
	if n <= 0 || n >= am.size {
		return 0
	}
	var gain, loss float64
	for i := am.size - n; i < am.size; i++ {
		change := am.close[i] - am.close[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

// Boll returns the Bollinger band bounds for the last n bars.
func (am *ArrayManager) Boll(n int, dev float64) (up, down float64) {
	mid := am.Sma(n)
	std := am.Std(n)
	return mid + std*dev, mid - std*dev
}

// Donchian returns the highest high and lowest low of the last n bars.
func (am *ArrayManager) Donchian(n int) (up, down float64) {
	highs := tail(am.high, n)
	lows := tail(am.low, n)
	up = math.Inf(-1)
	down = math.Inf(1)
	for _, v := range highs {
		up = math.Max(up, v)
	}
	for _, v := range lows {
		down = math.Min(down, v)
	}
	return up, down
}

func tail(arr []float64, n int) []float64 {
	if n <= 0 || n > len(arr) {
		return nil
	}
	return arr[len(arr)-n:]
}

func mean(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}
