// Package market delivers ticks to the event bus, either from a
// websocket feed or from a synthetic generator for local development.
package market

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

// Matcher is notified of each tick before it reaches the bus. The
// paper gateway uses this to fill resting orders so that the order and
// trade events land on the bus ahead of the tick that caused them.
type Matcher interface {
	OnTick(*common.Tick)
}

// Feed streams ticks from a websocket endpoint and publishes them.
type Feed struct {
	URL     string
	Bus     *events.Bus
	Matcher Matcher
	Symbols []string

	dialer *websocket.Dialer
}

type subscribeMessage struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

type tickMessage struct {
	Symbol    string  `json:"symbol"`
	Exchange  string  `json:"exchange"`
	Last      float64 `json:"last"`
	Volume    float64 `json:"volume"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	LimitUp   float64 `json:"limit_up"`
	LimitDown float64 `json:"limit_down"`
	BidPrice  float64 `json:"bid_price"`
	BidVolume float64 `json:"bid_volume"`
	AskPrice  float64 `json:"ask_price"`
	AskVolume float64 `json:"ask_volume"`
	Time      int64   `json:"time"` // unix milliseconds
}

// Start runs the read loop with reconnect until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	if f.Bus == nil || f.URL == "" {
		log.Println("market feed not fully configured; skipping start")
		return
	}
	if f.dialer == nil {
		f.dialer = websocket.DefaultDialer
	}

	go func() {
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			if err := f.stream(ctx); err != nil {
				log.Printf("market feed: %v, reconnecting in %s", err, backoff)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (f *Feed) stream(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Op: "subscribe", Symbols: f.Symbols}); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		var m tickMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			log.Printf("market feed: parse tick: %v", err)
			continue
		}
		if m.Symbol == "" {
			continue
		}
		f.deliver(parseTick(m))
	}
}

func (f *Feed) deliver(tick *common.Tick) {
	if f.Matcher != nil {
		f.Matcher.OnTick(tick)
	}
	f.Bus.Publish(events.Event{Kind: events.KindTick, Data: tick})
}

func parseTick(m tickMessage) *common.Tick {
	return &common.Tick{
		Symbol:     m.Symbol,
		Exchange:   m.Exchange,
		LastPrice:  m.Last,
		Volume:     m.Volume,
		OpenPrice:  m.Open,
		HighPrice:  m.High,
		LowPrice:   m.Low,
		LimitUp:    m.LimitUp,
		LimitDown:  m.LimitDown,
		BidPrice1:  m.BidPrice,
		BidVolume1: m.BidVolume,
		AskPrice1:  m.AskPrice,
		AskVolume1: m.AskVolume,
		Timestamp:  time.UnixMilli(m.Time),
	}
}
