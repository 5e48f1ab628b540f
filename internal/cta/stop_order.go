package cta

import (
	"fmt"
	"sync"

	"cta-core/pkg/exchanges/common"
)

// StopOrderPrefix marks locally-simulated stop order ids; cancellation
// dispatches on it.
const StopOrderPrefix = "STOP."

// StopOrderStatus is the lifecycle state of a local stop order.
type StopOrderStatus string

const (
	StopOrderWaiting   StopOrderStatus = "WAITING"
	StopOrderTriggered StopOrderStatus = "TRIGGERED"
	StopOrderCancelled StopOrderStatus = "CANCELLED"
)

// StopOrder is a conditional order watched and submitted by the engine
// itself; it never reaches the broker until triggered.
type StopOrder struct {
	StopOrderID  string
	VtSymbol     string
	Direction    common.Direction
	Offset       common.Offset
	Price        float64
	Volume       float64
	StrategyName string
	Lock         bool
	Status       StopOrderStatus
	OrderIDs     []string
}

// StopOrderBook is the in-memory table of Waiting stop orders. The book
// owns its entries exclusively; strategies hold only the id.
type StopOrderBook struct {
	mu     sync.Mutex
	count  int
	orders map[string]*StopOrder
}

// NewStopOrderBook creates an empty book.
func NewStopOrderBook() *StopOrderBook {
	return &StopOrderBook{orders: make(map[string]*StopOrder)}
}

// NextID returns a fresh local stop order id.
func (b *StopOrderBook) NextID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return fmt.Sprintf("%s%d", StopOrderPrefix, b.count)
}

// Add inserts a Waiting stop order.
func (b *StopOrderBook) Add(so *StopOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[so.StopOrderID] = so
}

// Pop removes and returns a stop order by id.
func (b *StopOrderBook) Pop(id string) (*StopOrder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	so, ok := b.orders[id]
	if ok {
		delete(b.orders, id)
	}
	return so, ok
}

// ForSymbol returns the waiting stop orders on one instrument.
func (b *StopOrderBook) ForSymbol(vtSymbol string) []*StopOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*StopOrder
	for _, so := range b.orders {
		if so.VtSymbol == vtSymbol {
			out = append(out, so)
		}
	}
	return out
}

// Active returns a snapshot of all waiting stop orders.
func (b *StopOrderBook) Active() []StopOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StopOrder, 0, len(b.orders))
	for _, so := range b.orders {
		out = append(out, *so)
	}
	return out
}
