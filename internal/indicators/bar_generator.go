package indicators

import (
	"time"

	"cta-core/pkg/exchanges/common"
)

// BarGenerator aggregates ticks into one-minute bars and, optionally,
// one-minute bars into an N-minute window. Callbacks fire when a bar
// closes, i.e. on the first tick of the next minute.
type BarGenerator struct {
	onBar       func(*common.Bar)
	window      int
	onWindowBar func(*common.Bar)

	bar       *common.Bar
	windowBar *common.Bar
	lastTick  *common.Tick
}

// NewBarGenerator builds a generator delivering one-minute bars to
// onBar. When window > 1 and onWindowBar is set, finished minute bars
// are further aggregated into window-minute bars.
func NewBarGenerator(onBar func(*common.Bar), window int, onWindowBar func(*common.Bar)) *BarGenerator {
	return &BarGenerator{onBar: onBar, window: window, onWindowBar: onWindowBar}
}

// UpdateTick feeds a new tick into the generator.
func (g *BarGenerator) UpdateTick(tick *common.Tick) {
	if tick.LastPrice == 0 {
		return
	}

	minute := tick.Timestamp.Truncate(time.Minute)
	if g.bar != nil && !g.bar.Timestamp.Equal(minute) {
		finished := *g.bar
		g.bar = nil
		if g.onBar != nil {
			g.onBar(&finished)
		}
		g.updateWindow(&finished)
	}

	if g.bar == nil {
		g.bar = &common.Bar{
			Symbol:    tick.Symbol,
			Exchange:  tick.Exchange,
			Interval:  common.IntervalMinute,
			Open:      tick.LastPrice,
			High:      tick.LastPrice,
			Low:       tick.LastPrice,
			Timestamp: minute,
		}
	} else {
		if tick.LastPrice > g.bar.High {
			g.bar.High = tick.LastPrice
		}
		if tick.LastPrice < g.bar.Low {
			g.bar.Low = tick.LastPrice
		}
	}
	g.bar.Close = tick.LastPrice

	if g.lastTick != nil && g.lastTick.VtSymbol() == tick.VtSymbol() {
		delta := tick.Volume - g.lastTick.Volume
		if delta > 0 {
			g.bar.Volume += delta
		}
	}
	g.lastTick = tick
}

// UpdateBar feeds a finished one-minute bar directly, for warm-up from
// historical data.
func (g *BarGenerator) UpdateBar(bar *common.Bar) {
	g.updateWindow(bar)
}

func (g *BarGenerator) updateWindow(bar *common.Bar) {
	if g.window <= 1 || g.onWindowBar == nil {
		return
	}

	if g.windowBar == nil {
		g.windowBar = &common.Bar{
			Symbol:    bar.Symbol,
			Exchange:  bar.Exchange,
			Interval:  common.IntervalMinute,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Timestamp: bar.Timestamp,
		}
	} else {
		if bar.High > g.windowBar.High {
			g.windowBar.High = bar.High
		}
		if bar.Low < g.windowBar.Low {
			g.windowBar.Low = bar.Low
		}
	}
	g.windowBar.Close = bar.Close
	g.windowBar.Volume += bar.Volume

	// Window closes when the next minute boundary is a multiple of the
	// window size.
	if (bar.Timestamp.Minute()+1)%g.window == 0 {
		finished := *g.windowBar
		g.windowBar = nil
		g.onWindowBar(&finished)
	}
}
