package events

import (
	"reflect"
	"sync"
	"time"
)

// DefaultTimerInterval is the cadence of KindTimer events when none is
// configured.
const DefaultTimerInterval = time.Second

// Bus dispatches typed events to registered handlers in publish order.
//
// Exactly one dispatch goroutine pulls from the queue and invokes
// handlers synchronously: kind handlers in registration order, then the
// general handlers. A slow handler therefore stalls all delivery. A
// second goroutine publishes KindTimer events at a fixed best-effort
// interval. The queue is unbounded and Publish never blocks; if
// producers outpace the dispatch loop, memory grows.
type Bus struct {
	interval time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	running bool
	done    chan struct{}

	hmu      sync.RWMutex
	handlers map[Kind][]Handler
	general  []Handler

	wg sync.WaitGroup
}

// NewBus creates a bus publishing timer events every interval. A
// non-positive interval falls back to DefaultTimerInterval.
func NewBus(interval time.Duration) *Bus {
	if interval <= 0 {
		interval = DefaultTimerInterval
	}
	b := &Bus{
		interval: interval,
		handlers: make(map[Kind][]Handler),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish enqueues an event without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	b.cond.Signal()
}

// Subscribe registers handler for a kind. Registering the same handler
// twice for the same kind is a no-op; identity is the handler's code
// pointer, so method values of different receivers compare equal.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	for _, h := range b.handlers[kind] {
		if sameHandler(h, handler) {
			return
		}
	}
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Unsubscribe removes a previously registered handler; no-op if absent.
func (b *Bus) Unsubscribe(kind Kind, handler Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	hs := b.handlers[kind]
	for i, h := range hs {
		if sameHandler(h, handler) {
			b.handlers[kind] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(b.handlers[kind]) == 0 {
		delete(b.handlers, kind)
	}
}

// SubscribeAll registers a handler invoked for every event, after the
// kind-specific handlers.
func (b *Bus) SubscribeAll(handler Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	for _, h := range b.general {
		if sameHandler(h, handler) {
			return
		}
	}
	b.general = append(b.general, handler)
}

// UnsubscribeAll removes a general handler; no-op if absent.
func (b *Bus) UnsubscribeAll(handler Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	for i, h := range b.general {
		if sameHandler(h, handler) {
			b.general = append(b.general[:i:i], b.general[i+1:]...)
			return
		}
	}
}

// Start spawns the dispatch and timer goroutines. Calling Start twice
// without an intervening Stop is not supported.
func (b *Bus) Start() {
	b.mu.Lock()
	b.running = true
	b.done = make(chan struct{})
	b.mu.Unlock()

	b.wg.Add(2)
	go b.runDispatch()
	go b.runTimer()
}

// Stop signals both goroutines to exit and blocks until they have.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.done)
	b.mu.Unlock()

	b.cond.Broadcast()
	b.wg.Wait()
}

func (b *Bus) runDispatch() {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && b.running {
			b.cond.Wait()
		}
		if !b.running {
			b.mu.Unlock()
			return
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.process(e)
	}
}

func (b *Bus) process(e Event) {
	b.hmu.RLock()
	kindHandlers := append([]Handler(nil), b.handlers[e.Kind]...)
	general := append([]Handler(nil), b.general...)
	b.hmu.RUnlock()

	for _, h := range kindHandlers {
		h(e)
	}
	for _, h := range general {
		h(e)
	}
}

func (b *Bus) runTimer() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case now := <-ticker.C:
			b.Publish(Event{Kind: KindTimer, Data: now})
		}
	}
}

func sameHandler(a, c Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(c).Pointer()
}
