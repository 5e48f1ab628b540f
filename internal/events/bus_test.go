package events

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(time.Hour)

	var mu sync.Mutex
	var got []int
	bus.Subscribe(KindTick, func(e Event) {
		mu.Lock()
		got = append(got, e.Data.(int))
		mu.Unlock()
	})

	bus.Start()
	defer bus.Stop()

	const n = 200
	for i := 0; i < n; i++ {
		bus.Publish(Event{Kind: KindTick, Data: i})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d delivered out of order: got %d", i, v)
		}
	}
}

func TestBusSubscribeIdempotent(t *testing.T) {
	bus := NewBus(time.Hour)

	var mu sync.Mutex
	count := 0
	handler := func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	bus.Subscribe(KindOrder, handler)
	bus.Subscribe(KindOrder, handler)

	bus.Start()
	defer bus.Stop()

	bus.Publish(Event{Kind: KindOrder})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("duplicate subscription delivered %d times, want 1", count)
	}
}

func TestBusGeneralHandlerRunsAfterKindHandlers(t *testing.T) {
	bus := NewBus(time.Hour)

	var mu sync.Mutex
	var order []string
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		order = append(order, "general")
		mu.Unlock()
	})
	bus.Subscribe(KindTrade, func(Event) {
		mu.Lock()
		order = append(order, "kind")
		mu.Unlock()
	})

	bus.Start()
	defer bus.Stop()

	bus.Publish(Event{Kind: KindTrade})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "kind" || order[1] != "general" {
		t.Fatalf("delivery order = %v, want [kind general]", order)
	}
}

func TestBusGeneralHandlerSeesAllKinds(t *testing.T) {
	bus := NewBus(time.Hour)

	var mu sync.Mutex
	kinds := make(map[Kind]int)
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		kinds[e.Kind]++
		mu.Unlock()
	})

	bus.Start()
	defer bus.Stop()

	bus.Publish(Event{Kind: KindTick})
	bus.Publish(Event{Kind: KindOrder})
	bus.Publish(Event{Kind: KindLog})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 3
	})
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(time.Hour)

	var mu sync.Mutex
	count := 0
	handler := func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	sentinel := 0
	marker := func(Event) {
		mu.Lock()
		sentinel++
		mu.Unlock()
	}

	bus.Subscribe(KindTick, handler)
	bus.Unsubscribe(KindTick, handler)
	bus.Subscribe(KindTick, marker)

	// Removing an absent handler must not panic.
	bus.Unsubscribe(KindOrder, handler)

	bus.Start()
	defer bus.Stop()

	bus.Publish(Event{Kind: KindTick})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sentinel == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("unsubscribed handler still invoked %d times", count)
	}
}

func TestBusTimerEvents(t *testing.T) {
	bus := NewBus(10 * time.Millisecond)

	var mu sync.Mutex
	ticks := 0
	bus.Subscribe(KindTimer, func(e Event) {
		if _, ok := e.Data.(time.Time); !ok {
			t.Errorf("timer payload is %T, want time.Time", e.Data)
		}
		mu.Lock()
		ticks++
		mu.Unlock()
	})

	bus.Start()
	defer bus.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 3
	})
}

func TestBusStopIsIdempotent(t *testing.T) {
	bus := NewBus(time.Hour)
	bus.Start()
	bus.Stop()
	bus.Stop()
}
