package cta

import (
	"time"

	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

// Strategy is the contract strategy implementations fulfil. Callbacks run
// on the engine's dispatch goroutine (OnInit on the initialization
// worker) and are never invoked concurrently for the same strategy.
// Parameters and Variables expose the values the engine persists;
// Restore is called during initialization with the previously persisted
// variables.
type Strategy interface {
	OnInit()
	OnStart()
	OnStop()
	OnTick(tick *common.Tick)
	OnBar(bar *common.Bar)
	OnOrder(order *common.Order)
	OnTrade(trade *common.Trade)
	OnStopOrder(so *StopOrder)

	Parameters() map[string]any
	Variables() map[string]any
	UpdateSetting(setting map[string]any)
	Restore(vars map[string]any)
}

// Factory builds one strategy instance. Each instance must construct its
// own parameter and variable storage; nothing is shared between
// instances.
type Factory func(ctx *Context, setting map[string]any) Strategy

// Context is the per-strategy handle into the engine. It is handed to
// the factory at construction and stays valid for the strategy's
// lifetime.
type Context struct {
	engine *Engine
	rt     *Runtime
}

// Name returns the strategy instance name.
func (c *Context) Name() string { return c.rt.name }

// VtSymbol returns the instrument the strategy trades.
func (c *Context) VtSymbol() string { return c.rt.vtSymbol }

// Pos returns the engine-tracked signed position of this strategy.
func (c *Context) Pos() float64 { return c.rt.Pos() }

// Buy opens a long position.
func (c *Context) Buy(price, volume float64, stop bool) []string {
	return c.SendOrder(common.DirectionLong, common.OffsetOpen, price, volume, stop, false)
}

// Sell closes a long position.
func (c *Context) Sell(price, volume float64, stop bool) []string {
	return c.SendOrder(common.DirectionShort, common.OffsetClose, price, volume, stop, false)
}

// Short opens a short position.
func (c *Context) Short(price, volume float64, stop bool) []string {
	return c.SendOrder(common.DirectionShort, common.OffsetOpen, price, volume, stop, false)
}

// Cover closes a short position.
func (c *Context) Cover(price, volume float64, stop bool) []string {
	return c.SendOrder(common.DirectionLong, common.OffsetClose, price, volume, stop, false)
}

// SendOrder submits an order intent; it returns the resulting order ids
// and an empty slice while the strategy is not trading.
func (c *Context) SendOrder(direction common.Direction, offset common.Offset, price, volume float64, stop, lock bool) []string {
	if !c.rt.trading.Load() {
		return nil
	}
	return c.engine.sendOrder(c.rt, direction, offset, price, volume, stop, lock)
}

// CancelOrder cancels one order (broker or local stop) by id.
func (c *Context) CancelOrder(orderID string) {
	if !c.rt.trading.Load() {
		return
	}
	c.engine.cancelOrder(c.rt, orderID)
}

// CancelAll cancels every active order of this strategy.
func (c *Context) CancelAll() {
	if !c.rt.trading.Load() {
		return
	}
	c.engine.cancelAll(c.rt)
}

// WriteLog emits a strategy-scoped log event on the bus.
func (c *Context) WriteLog(msg string) {
	c.engine.writeLog(msg, c.rt)
}

// PutEvent publishes a strategy-state-changed notification. The calling
// strategy holds its own lock, so the snapshot is taken directly.
func (c *Context) PutEvent() {
	c.engine.bus.Publish(events.Event{Kind: events.KindStrategy, Data: c.rt.snapshot()})
}

// LoadBars replays up to days of historical bars through callback in
// ascending time order, for indicator warm-up during OnInit.
func (c *Context) LoadBars(days int, interval common.Interval, callback func(*common.Bar)) {
	c.engine.loadBars(c.rt, days, interval, callback)
}

// LoadTicks replays up to days of historical ticks through callback in
// ascending time order.
func (c *Context) LoadTicks(days int, callback func(*common.Tick)) {
	c.engine.loadTicks(c.rt, days, callback)
}

// Now returns the wall-clock time; kept on the context so strategies
// stay free of direct time dependencies in tests.
func (c *Context) Now() time.Time { return time.Now() }
