package cta

import (
	"sync"
	"sync/atomic"
)

// Runtime is the engine-owned lifecycle state of one strategy instance.
// The inited and trading flags are written by both the dispatch
// goroutine and the initialization worker, so they are atomics; pos is
// written only on the dispatch goroutine but read from API goroutines,
// hence the mutex.
type Runtime struct {
	name      string
	vtSymbol  string
	className string
	strategy  Strategy
	ctx       *Context

	// callMu serializes all strategy code: callbacks, setting updates
	// and snapshot reads. State() from an API goroutine therefore never
	// observes fields a callback is mutating.
	callMu sync.Mutex

	inited  atomic.Bool
	trading atomic.Bool

	mu  sync.Mutex
	pos float64
}

// Name returns the strategy instance name.
func (r *Runtime) Name() string { return r.name }

// VtSymbol returns the instrument the strategy trades.
func (r *Runtime) VtSymbol() string { return r.vtSymbol }

// Inited reports whether initialization completed.
func (r *Runtime) Inited() bool { return r.inited.Load() }

// Trading reports whether the strategy is live.
func (r *Runtime) Trading() bool { return r.trading.Load() }

// Pos returns the signed position quantity.
func (r *Runtime) Pos() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *Runtime) addPos(delta float64) {
	r.mu.Lock()
	r.pos += delta
	r.mu.Unlock()
}

func (r *Runtime) setPos(pos float64) {
	r.mu.Lock()
	r.pos = pos
	r.mu.Unlock()
}

// StrategyState is the externally visible snapshot of one strategy,
// published on the bus and returned by the API.
type StrategyState struct {
	Name       string         `json:"name"`
	VtSymbol   string         `json:"vt_symbol"`
	ClassName  string         `json:"class_name"`
	Parameters map[string]any `json:"parameters"`
	Variables  map[string]any `json:"variables"`
	Inited     bool           `json:"inited"`
	Trading    bool           `json:"trading"`
	Pos        float64        `json:"pos"`
}

// State captures a snapshot of the runtime and its strategy. It takes
// the strategy lock; use snapshot from code that already holds it.
func (r *Runtime) State() StrategyState {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	return r.snapshot()
}

func (r *Runtime) snapshot() StrategyState {
	return StrategyState{
		Name:       r.name,
		VtSymbol:   r.vtSymbol,
		ClassName:  r.className,
		Parameters: r.strategy.Parameters(),
		Variables:  r.strategy.Variables(),
		Inited:     r.inited.Load(),
		Trading:    r.trading.Load(),
		Pos:        r.Pos(),
	}
}
