package market

import (
	"cta-core/internal/events"
	"cta-core/internal/indicators"
	"cta-core/pkg/exchanges/common"
)

// Sink receives recorded market data. Writes must be cheap; the
// recorder runs on the bus dispatch goroutine.
type Sink interface {
	SaveTick(*common.Tick)
	SaveBar(*common.Bar)
}

// Recorder persists every tick and the minute bars aggregated from
// them, building the history LoadBars and LoadTicks replay later.
type Recorder struct {
	sink       Sink
	generators map[string]*indicators.BarGenerator
}

// NewRecorder subscribes a recorder to tick events on bus.
func NewRecorder(bus *events.Bus, sink Sink) *Recorder {
	r := &Recorder{
		sink:       sink,
		generators: make(map[string]*indicators.BarGenerator),
	}
	bus.Subscribe(events.KindTick, r.onTickEvent)
	return r
}

func (r *Recorder) onTickEvent(ev events.Event) {
	tick, ok := ev.Data.(*common.Tick)
	if !ok {
		return
	}
	r.sink.SaveTick(tick)

	key := tick.VtSymbol()
	gen, ok := r.generators[key]
	if !ok {
		gen = indicators.NewBarGenerator(r.sink.SaveBar, 0, nil)
		r.generators[key] = gen
	}
	gen.UpdateTick(tick)
}
