package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

// MockFeed generates random-walk ticks for local development.
type MockFeed struct {
	Bus       *events.Bus
	Matcher   Matcher
	Contracts []*common.Contract
	Start     float64
	Step      float64
	Interval  time.Duration
}

// Run publishes ticks until ctx is cancelled.
func (m *MockFeed) Run(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if m.Start == 0 {
		m.Start = 100
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	prices := make(map[string]float64, len(m.Contracts))
	for _, c := range m.Contracts {
		prices[c.VtSymbol()] = m.Start
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, c := range m.Contracts {
					key := c.VtSymbol()
					price := prices[key] + (rand.Float64()*2-1)*m.Step
					if price < m.Step {
						price = m.Step
					}
					prices[key] = price
					m.deliver(c, price)
				}
			}
		}
	}()
}

func (m *MockFeed) deliver(c *common.Contract, price float64) {
	spread := c.PriceTick
	if spread <= 0 {
		spread = 0.01
	}
	tick := &common.Tick{
		Symbol:     c.Symbol,
		Exchange:   c.Exchange,
		LastPrice:  price,
		LimitUp:    price * 1.1,
		LimitDown:  price * 0.9,
		BidPrice1:  price - spread,
		BidPrice2:  price - 2*spread,
		BidPrice3:  price - 3*spread,
		BidPrice4:  price - 4*spread,
		BidPrice5:  price - 5*spread,
		BidVolume1: float64(1 + rand.Intn(100)),
		BidVolume2: float64(1 + rand.Intn(100)),
		BidVolume3: float64(1 + rand.Intn(100)),
		BidVolume4: float64(1 + rand.Intn(100)),
		BidVolume5: float64(1 + rand.Intn(100)),
		AskPrice1:  price + spread,
		AskPrice2:  price + 2*spread,
		AskPrice3:  price + 3*spread,
		AskPrice4:  price + 4*spread,
		AskPrice5:  price + 5*spread,
		AskVolume1: float64(1 + rand.Intn(100)),
		AskVolume2: float64(1 + rand.Intn(100)),
		AskVolume3: float64(1 + rand.Intn(100)),
		AskVolume4: float64(1 + rand.Intn(100)),
		AskVolume5: float64(1 + rand.Intn(100)),
		Timestamp:  time.Now(),
	}

	if m.Matcher != nil {
		m.Matcher.OnTick(tick)
	}
	m.Bus.Publish(events.Event{Kind: events.KindTick, Data: tick})
}
