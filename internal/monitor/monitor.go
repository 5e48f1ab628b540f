// Package monitor mirrors engine activity onto the process log and
// keeps lightweight counters for the status endpoint.
package monitor

import (
	"log"
	"sync/atomic"
	"time"

	"cta-core/internal/events"
)

// Monitor consumes log events and counts bus traffic.
type Monitor struct {
	ticks  atomic.Uint64
	orders atomic.Uint64
	trades atomic.Uint64

	started time.Time
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Ticks  uint64 `json:"ticks"`
	Orders uint64 `json:"orders"`
	Trades uint64 `json:"trades"`
	Uptime string `json:"uptime"`
}

// New subscribes a monitor to the bus.
func New(bus *events.Bus) *Monitor {
	m := &Monitor{started: time.Now()}
	bus.Subscribe(events.KindLog, m.onLog)
	bus.Subscribe(events.KindTick, m.onTick)
	bus.Subscribe(events.KindOrder, m.onOrder)
	bus.Subscribe(events.KindTrade, m.onTrade)
	return m
}

func (m *Monitor) onLog(ev events.Event) {
	entry, ok := ev.Data.(events.Log)
	if !ok {
		return
	}
	if entry.Source != "" {
		log.Printf("[%s] %s", entry.Source, entry.Msg)
	} else {
		log.Print(entry.Msg)
	}
}

func (m *Monitor) onTick(events.Event)  { m.ticks.Add(1) }
func (m *Monitor) onOrder(events.Event) { m.orders.Add(1) }
func (m *Monitor) onTrade(events.Event) { m.trades.Add(1) }

// Snapshot returns current counters.
func (m *Monitor) Snapshot() Stats {
	return Stats{
		Ticks:  m.ticks.Load(),
		Orders: m.orders.Load(),
		Trades: m.trades.Load(),
		Uptime: time.Since(m.started).Round(time.Second).String(),
	}
}
