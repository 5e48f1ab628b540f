package events

// Kind enumerates event topics inside the trading core.
type Kind string

const (
	KindTick      Kind = "tick"
	KindOrder     Kind = "order"
	KindTrade     Kind = "trade"
	KindPosition  Kind = "position"
	KindAccount   Kind = "account"
	KindContract  Kind = "contract"
	KindTimer     Kind = "timer"
	KindLog       Kind = "log"
	KindStrategy  Kind = "strategy"
	KindStopOrder Kind = "stop_order"
)

// Event pairs a kind with its payload. Events are immutable after
// construction; payload ownership transfers to handlers on dispatch.
type Event struct {
	Kind Kind
	Data any
}

// Handler processes one event on the dispatch goroutine.
type Handler func(Event)

// Log is the payload of KindLog events.
type Log struct {
	Msg    string
	Source string
}
