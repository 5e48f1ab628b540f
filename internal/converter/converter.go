// Package converter rewrites strategy order intents into broker-legal
// requests for exchanges with position-locking rules, and tracks the
// per-symbol holdings the rewrite depends on.
package converter

import (
	"sync"

	"cta-core/pkg/exchanges/common"
)

// Result is the outcome of converting one order request. Requests must be
// submitted in slice order (yesterday leg before today leg). Shortfall is
// the requested volume that no available lots could cover; it is never
// silently dropped.
type Result struct {
	Requests  []common.OrderRequest
	Shortfall float64
}

// Volume returns the total volume across the emitted legs.
func (r Result) Volume() float64 {
	var v float64
	for _, req := range r.Requests {
		v += req.Volume
	}
	return v
}

// Converter owns one Holding per symbol and direction. All methods are
// safe for concurrent use; in the steady state only the bus dispatch
// goroutine mutates it.
type Converter struct {
	mu       sync.Mutex
	holdings map[string]*Holding // vtSymbol + "." + direction

	// orderID -> frozen close volume still held by that order
	frozen map[string]frozenRef
}

type frozenRef struct {
	key    string
	volume float64
}

// New creates an empty converter.
func New() *Converter {
	return &Converter{
		holdings: make(map[string]*Holding),
		frozen:   make(map[string]frozenRef),
	}
}

func holdingKey(vtSymbol string, direction common.Direction) string {
	return vtSymbol + "." + string(direction)
}

func (c *Converter) holding(vtSymbol string, direction common.Direction) *Holding {
	key := holdingKey(vtSymbol, direction)
	h, ok := c.holdings[key]
	if !ok {
		h = &Holding{}
		c.holdings[key] = h
	}
	return h
}

// Holding returns a copy of the tracked holding for a symbol+direction.
func (c *Converter) Holding(vtSymbol string, direction common.Direction) Holding {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.holdings[holdingKey(vtSymbol, direction)]; ok {
		return *h
	}
	return Holding{}
}

// UpdatePosition merges a broker position snapshot. It is authoritative
// for volume and yesterday volume and replaces any frozen accounting
// applied optimistically since the last snapshot.
func (c *Converter) UpdatePosition(pos *common.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.holding(pos.VtSymbol(), pos.Direction)
	h.Volume = pos.Volume
	h.YdVolume = pos.YdVolume
	h.Frozen = pos.Frozen
	h.clamp()
}

// UpdateOrderRequest records the broker order id assigned to a converted
// leg and freezes the volume a close leg commits.
func (c *Converter) UpdateOrderRequest(req common.OrderRequest, orderID string) {
	if req.Offset == common.OffsetOpen || orderID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// A close reduces the holding on the opposite direction.
	key := holdingKey(req.VtSymbol(), req.Direction.Opposite())
	h := c.holding(req.VtSymbol(), req.Direction.Opposite())
	h.Frozen += req.Volume
	c.frozen[orderID] = frozenRef{key: key, volume: req.Volume}
}

// UpdateOrder releases frozen volume when a close order terminates
// without (fully) filling. Fills themselves are applied by UpdateTrade.
func (c *Converter) UpdateOrder(order *common.Order) {
	if order.Offset == common.OffsetOpen || order.IsActive() {
		return
	}
	if order.Status != common.StatusCancelled && order.Status != common.StatusRejected {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, ok := c.frozen[order.OrderID]
	if !ok {
		return
	}
	delete(c.frozen, order.OrderID)
	if h, ok := c.holdings[ref.key]; ok {
		h.Frozen -= ref.volume
		h.clamp()
	}
}

// UpdateTrade applies a fill to the relevant holding: opens add to the
// trade's own direction, closes reduce the opposite one and release the
// matching frozen volume.
func (c *Converter) UpdateTrade(trade *common.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if trade.Offset == common.OffsetOpen {
		h := c.holding(trade.VtSymbol(), trade.Direction)
		h.Volume += trade.Volume
		return
	}

	h := c.holding(trade.VtSymbol(), trade.Direction.Opposite())
	h.Volume -= trade.Volume
	if trade.Offset == common.OffsetCloseYesterday || trade.Offset == common.OffsetClose {
		h.YdVolume -= trade.Volume
		if h.YdVolume < 0 {
			h.YdVolume = 0
		}
	}
	if ref, ok := c.frozen[trade.OrderID]; ok {
		release := trade.Volume
		if release > ref.volume {
			release = ref.volume
		}
		ref.volume -= release
		h.Frozen -= release
		if ref.volume <= 0 {
			delete(c.frozen, trade.OrderID)
		} else {
			c.frozen[trade.OrderID] = ref
		}
	}
	h.clamp()
}

// Convert rewrites a single order intent into one or more broker-legal
// requests. Open requests pass through; close requests are split into
// CloseYesterday then CloseToday legs against available lots, and under
// lock mode a close that would net against today volume becomes an Open
// order in the same direction instead.
func (c *Converter) Convert(req common.OrderRequest, lock bool) Result {
	if req.Offset == common.OffsetOpen {
		return Result{Requests: []common.OrderRequest{req}}
	}
	if lock {
		return c.convertLock(req)
	}
	return c.convertClose(req)
}

func (c *Converter) convertClose(req common.OrderRequest) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.holding(req.VtSymbol(), req.Direction.Opposite())
	ydAvail, tdAvail := h.available()

	res := Result{}
	remaining := req.Volume

	if ydAvail > 0 && remaining > 0 {
		leg := req
		leg.Offset = common.OffsetCloseYesterday
		leg.Volume = min(remaining, ydAvail)
		res.Requests = append(res.Requests, leg)
		remaining -= leg.Volume
	}
	if tdAvail > 0 && remaining > 0 {
		leg := req
		leg.Offset = common.OffsetCloseToday
		leg.Volume = min(remaining, tdAvail)
		res.Requests = append(res.Requests, leg)
		remaining -= leg.Volume
	}
	res.Shortfall = remaining
	return res
}

func (c *Converter) convertLock(req common.OrderRequest) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.holding(req.VtSymbol(), req.Direction.Opposite())
	ydAvail, tdAvail := h.available()

	// Netting against today lots is rejected by lock-mode exchanges, so
	// the whole intent becomes an opening order on this side.
	if tdAvail > 0 {
		leg := req
		leg.Offset = common.OffsetOpen
		return Result{Requests: []common.OrderRequest{leg}}
	}

	res := Result{}
	closeVolume := min(req.Volume, ydAvail)
	openVolume := req.Volume - closeVolume
	if closeVolume > 0 {
		leg := req
		leg.Offset = common.OffsetCloseYesterday
		leg.Volume = closeVolume
		res.Requests = append(res.Requests, leg)
	}
	if openVolume > 0 {
		leg := req
		leg.Offset = common.OffsetOpen
		leg.Volume = openVolume
		res.Requests = append(res.Requests, leg)
	}
	return res
}
