package market

import (
	"testing"
	"time"

	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

func TestMockFeedPublishesFullBook(t *testing.T) {
	bus := events.NewBus(time.Hour)
	ch := make(chan events.Event, 1)
	bus.Subscribe(events.KindTick, func(e events.Event) { ch <- e })
	bus.Start()
	defer bus.Stop()

	m := &MockFeed{Bus: bus}
	m.deliver(&common.Contract{Symbol: "rb2010", Exchange: "SHFE", PriceTick: 1}, 3500)

	var tick *common.Tick
	select {
	case e := <-ch:
		tick = e.Data.(*common.Tick)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}

	if tick.LimitUp <= tick.LastPrice || tick.LimitDown >= tick.LastPrice {
		t.Fatalf("limits %v/%v do not bracket last %v", tick.LimitDown, tick.LimitUp, tick.LastPrice)
	}

	bids := [5]float64{tick.BidPrice1, tick.BidPrice2, tick.BidPrice3, tick.BidPrice4, tick.BidPrice5}
	asks := [5]float64{tick.AskPrice1, tick.AskPrice2, tick.AskPrice3, tick.AskPrice4, tick.AskPrice5}
	bidVols := [5]float64{tick.BidVolume1, tick.BidVolume2, tick.BidVolume3, tick.BidVolume4, tick.BidVolume5}
	askVols := [5]float64{tick.AskVolume1, tick.AskVolume2, tick.AskVolume3, tick.AskVolume4, tick.AskVolume5}

	for i := 0; i < 5; i++ {
		want := 3500 - float64(i+1)
		if bids[i] != want {
			t.Fatalf("bid level %d = %v, want %v", i+1, bids[i], want)
		}
		want = 3500 + float64(i+1)
		if asks[i] != want {
			t.Fatalf("ask level %d = %v, want %v", i+1, asks[i], want)
		}
		if bidVols[i] <= 0 || askVols[i] <= 0 {
			t.Fatalf("level %d volumes = %v/%v, want positive", i+1, bidVols[i], askVols[i])
		}
	}
}
