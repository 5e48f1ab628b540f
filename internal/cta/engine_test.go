package cta

import (
	"fmt"
	"testing"
	"time"

	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

// fakeGateway records requests and returns deterministic order ids.
type fakeGateway struct {
	sent      []common.OrderRequest
	cancelled []common.CancelRequest
	nextID    int
	failSend  bool
}

func (g *fakeGateway) Subscribe(common.SubscribeRequest) error { return nil }

func (g *fakeGateway) SendOrder(req common.OrderRequest) string {
	if g.failSend {
		return ""
	}
	g.nextID++
	g.sent = append(g.sent, req)
	return fmt.Sprintf("gw-%d", g.nextID)
}

func (g *fakeGateway) CancelOrder(req common.CancelRequest) error {
	g.cancelled = append(g.cancelled, req)
	return nil
}

func (g *fakeGateway) Close() error { return nil }

// recorderStrategy records every callback it receives.
type recorderStrategy struct {
	ctx *Context

	ticks      []*common.Tick
	orders     []*common.Order
	trades     []*common.Trade
	stopOrders []*StopOrder

	panicOnTick bool
}

func (s *recorderStrategy) OnInit()  {}
func (s *recorderStrategy) OnStart() {}
func (s *recorderStrategy) OnStop()  {}

func (s *recorderStrategy) OnTick(tick *common.Tick) {
	if s.panicOnTick {
		panic("tick handler exploded")
	}
	s.ticks = append(s.ticks, tick)
}

func (s *recorderStrategy) OnBar(*common.Bar) {}
func (s *recorderStrategy) OnOrder(order *common.Order) { s.orders = append(s.orders, order) }
func (s *recorderStrategy) OnTrade(trade *common.Trade) { s.trades = append(s.trades, trade) }
func (s *recorderStrategy) OnStopOrder(so *StopOrder) { s.stopOrders = append(s.stopOrders, so) }
func (s *recorderStrategy) Parameters() map[string]any { return map[string]any{} }
func (s *recorderStrategy) Variables() map[string]any { return map[string]any{"ticks": len(s.ticks)} }
func (s *recorderStrategy) UpdateSetting(map[string]any) {}
func (s *recorderStrategy) Restore(map[string]any) {}

const testVtSymbol = "IF2006.CFFEX"

// newTestEngine builds an engine with one fake gateway, one contract
// and one live recorder strategy, bypassing the async init worker.
func newTestEngine(t *testing.T) (*Engine, *fakeGateway, *recorderStrategy) {
	t.Helper()

	bus := events.NewBus(time.Hour)
	e := NewEngine(bus, nil)

	var strat *recorderStrategy
	err := e.RegisterClass("Recorder", func(ctx *Context, _ map[string]any) Strategy {
		strat = &recorderStrategy{ctx: ctx}
		return strat
	})
	if err != nil {
		t.Fatalf("register class: %v", err)
	}

	gw := &fakeGateway{}
	e.AddGateway("FAKE", gw)
	e.AddContracts([]*common.Contract{{
		Symbol:    "IF2006",
		Exchange:  "CFFEX",
		PriceTick: 0.2,
		MinVolume: 1,
	}})

	if err := e.AddStrategy("Recorder", "rec", testVtSymbol, nil); err != nil {
		t.Fatalf("add strategy: %v", err)
	}
	e.initStrategy("rec")
	if err := e.StartStrategy("rec"); err != nil {
		t.Fatalf("start strategy: %v", err)
	}
	return e, gw, strat
}

func tickAt(price float64) *common.Tick {
	return &common.Tick{
		Symbol:    "IF2006",
		Exchange:  "CFFEX",
		LastPrice: price,
		LimitUp:   price * 1.1,
		LimitDown: price * 0.9,
		BidPrice1: price - 0.2,
		AskPrice1: price + 0.2,
		Timestamp: time.Now(),
	}
}

func TestRegisterClassRejectsDuplicate(t *testing.T) {
	e := NewEngine(events.NewBus(time.Hour), nil)
	factory := func(ctx *Context, _ map[string]any) Strategy { return &recorderStrategy{ctx: ctx} }
	if err := e.RegisterClass("X", factory); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := e.RegisterClass("X", factory); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestAddStrategyRejectsDuplicateNameAndUnknownClass(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.AddStrategy("Recorder", "rec", testVtSymbol, nil); err == nil {
		t.Fatal("duplicate strategy name accepted")
	}
	if err := e.AddStrategy("NoSuchClass", "other", testVtSymbol, nil); err == nil {
		t.Fatal("unknown class accepted")
	}
}

func TestStartRequiresInit(t *testing.T) {
	bus := events.NewBus(time.Hour)
	e := NewEngine(bus, nil)
	_ = e.RegisterClass("Recorder", func(ctx *Context, _ map[string]any) Strategy {
		return &recorderStrategy{ctx: ctx}
	})
	if err := e.AddStrategy("Recorder", "cold", testVtSymbol, nil); err != nil {
		t.Fatalf("add strategy: %v", err)
	}
	if err := e.StartStrategy("cold"); err == nil {
		t.Fatal("started an uninitialized strategy")
	}
}

func TestStartTwiceRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.StartStrategy("rec"); err == nil {
		t.Fatal("second start accepted")
	}
}

func TestOrderRoundTrip(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	ids := strat.ctx.Buy(3900.05, 1, false)
	if len(ids) != 1 {
		t.Fatalf("buy returned %d ids, want 1", len(ids))
	}
	if len(gw.sent) != 1 {
		t.Fatalf("gateway got %d orders, want 1", len(gw.sent))
	}
	sent := gw.sent[0]
	if sent.Price != 3900 {
		t.Fatalf("price not rounded to tick: %v", sent.Price)
	}
	if sent.Offset != common.OffsetOpen || sent.Direction != common.DirectionLong {
		t.Fatalf("sent %s/%s, want Open/LONG", sent.Offset, sent.Direction)
	}

	// Ack then fill.
	e.processOrderEvent(events.Event{Kind: events.KindOrder, Data: &common.Order{
		OrderID: ids[0], Symbol: "IF2006", Exchange: "CFFEX",
		Direction: common.DirectionLong, Offset: common.OffsetOpen,
		Price: 3900, Volume: 1, Status: common.StatusNotTraded,
	}})
	e.processTradeEvent(events.Event{Kind: events.KindTrade, Data: &common.Trade{
		TradeID: "t1", OrderID: ids[0], Symbol: "IF2006", Exchange: "CFFEX",
		Direction: common.DirectionLong, Offset: common.OffsetOpen,
		Price: 3900, Volume: 1,
	}})

	if len(strat.orders) != 1 || len(strat.trades) != 1 {
		t.Fatalf("strategy saw %d orders, %d trades", len(strat.orders), len(strat.trades))
	}
	if pos := strat.ctx.Pos(); pos != 1 {
		t.Fatalf("pos = %v, want 1", pos)
	}
	if h := e.Holding(testVtSymbol, common.DirectionLong); h.Volume != 1 {
		t.Fatalf("converter holding = %v, want 1", h.Volume)
	}
}

func TestTradeDeduplication(t *testing.T) {
	e, _, strat := newTestEngine(t)

	ids := strat.ctx.Buy(3900, 1, false)
	trade := &common.Trade{
		TradeID: "dup", OrderID: ids[0], Symbol: "IF2006", Exchange: "CFFEX",
		Direction: common.DirectionLong, Offset: common.OffsetOpen,
		Price: 3900, Volume: 1,
	}
	e.processTradeEvent(events.Event{Kind: events.KindTrade, Data: trade})
	e.processTradeEvent(events.Event{Kind: events.KindTrade, Data: trade})

	if pos := strat.ctx.Pos(); pos != 1 {
		t.Fatalf("pos = %v after duplicate trade, want 1", pos)
	}
	if len(strat.trades) != 1 {
		t.Fatalf("strategy saw %d trades, want 1", len(strat.trades))
	}
}

func TestSellSplitsCloseLegs(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	e.processPositionEvent(events.Event{Kind: events.KindPosition, Data: &common.Position{
		Symbol: "IF2006", Exchange: "CFFEX",
		Direction: common.DirectionLong, Volume: 10, YdVolume: 3,
	}})

	ids := strat.ctx.Sell(3900, 5, false)
	if len(ids) != 2 {
		t.Fatalf("sell produced %d orders, want 2", len(ids))
	}
	if gw.sent[0].Offset != common.OffsetCloseYesterday || gw.sent[0].Volume != 3 {
		t.Fatalf("first leg = %s/%v", gw.sent[0].Offset, gw.sent[0].Volume)
	}
	if gw.sent[1].Offset != common.OffsetCloseToday || gw.sent[1].Volume != 2 {
		t.Fatalf("second leg = %s/%v", gw.sent[1].Offset, gw.sent[1].Volume)
	}
}

func TestLocalStopOrderTriggersOnLongCross(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	ids := strat.ctx.Buy(3950, 1, true)
	if len(ids) != 1 || len(gw.sent) != 0 {
		t.Fatalf("stop order reached gateway early: ids=%v sent=%d", ids, len(gw.sent))
	}
	if len(e.StopOrders()) != 1 {
		t.Fatalf("stop book has %d orders, want 1", len(e.StopOrders()))
	}
	if strat.stopOrders[0].Status != StopOrderWaiting {
		t.Fatalf("initial status %s, want WAITING", strat.stopOrders[0].Status)
	}

	// Below the trigger: nothing happens.
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3949)})
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3949.8)})
	if len(gw.sent) != 0 {
		t.Fatal("stop order triggered below price")
	}

	// At the trigger: submitted at the upper limit price.
	trigger := tickAt(3950)
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: trigger})
	if len(gw.sent) != 1 {
		t.Fatalf("gateway got %d orders after trigger, want 1", len(gw.sent))
	}
	if gw.sent[0].Price != trigger.LimitUp {
		t.Fatalf("trigger price = %v, want limit-up %v", gw.sent[0].Price, trigger.LimitUp)
	}
	if gw.sent[0].Type != common.OrderTypeLimit {
		t.Fatalf("triggered order type = %s, want LIMIT", gw.sent[0].Type)
	}
	if len(e.StopOrders()) != 0 {
		t.Fatal("stop order still in book after trigger")
	}

	last := strat.stopOrders[len(strat.stopOrders)-1]
	if last.Status != StopOrderTriggered || len(last.OrderIDs) != 1 {
		t.Fatalf("final stop order = %s/%v", last.Status, last.OrderIDs)
	}
}

func TestLocalStopOrderTriggersOnShortCross(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	strat.ctx.Sell(3800, 1, true)
	e.processPositionEvent(events.Event{Kind: events.KindPosition, Data: &common.Position{
		Symbol: "IF2006", Exchange: "CFFEX",
		Direction: common.DirectionLong, Volume: 1, YdVolume: 1,
	}})

	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3801)})
	if len(gw.sent) != 0 {
		t.Fatal("short stop triggered above price")
	}

	trigger := tickAt(3799)
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: trigger})
	if len(gw.sent) != 1 {
		t.Fatalf("gateway got %d orders, want 1", len(gw.sent))
	}
	if gw.sent[0].Price != trigger.LimitDown {
		t.Fatalf("trigger price = %v, want limit-down %v", gw.sent[0].Price, trigger.LimitDown)
	}
}

func TestStopOrderStaysWaitingWhenSubmissionFails(t *testing.T) {
	e, gw, strat := newTestEngine(t)
	gw.failSend = true

	strat.ctx.Buy(3950, 1, true)
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3951)})

	if len(e.StopOrders()) != 1 {
		t.Fatal("stop order left the book despite submission failure")
	}
	if got := e.StopOrders()[0].Status; got != StopOrderWaiting {
		t.Fatalf("status = %s, want WAITING", got)
	}

	// Next tick retries and succeeds.
	gw.failSend = false
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3951)})
	if len(e.StopOrders()) != 0 || len(gw.sent) != 1 {
		t.Fatalf("retry failed: book=%d sent=%d", len(e.StopOrders()), len(gw.sent))
	}
}

func TestCancelLocalStopOrder(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	ids := strat.ctx.Buy(3950, 1, true)
	strat.ctx.CancelOrder(ids[0])

	if len(e.StopOrders()) != 0 {
		t.Fatal("cancelled stop order still in book")
	}
	last := strat.stopOrders[len(strat.stopOrders)-1]
	if last.Status != StopOrderCancelled {
		t.Fatalf("status = %s, want CANCELLED", last.Status)
	}

	// A later tick through the trigger must not submit anything.
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3951)})
	if len(gw.sent) != 0 {
		t.Fatal("cancelled stop order still triggered")
	}
}

func TestStopStrategyCancelsAllOrders(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	ids := strat.ctx.Buy(3900, 1, false) // broker order
	strat.ctx.Buy(3950, 1, true)         // local stop order

	// The broker ack caches the order so cancellation can find it.
	e.processOrderEvent(events.Event{Kind: events.KindOrder, Data: &common.Order{
		OrderID: ids[0], Symbol: "IF2006", Exchange: "CFFEX",
		Direction: common.DirectionLong, Offset: common.OffsetOpen,
		Price: 3900, Volume: 1, Status: common.StatusNotTraded,
	}})

	if err := e.StopStrategy("rec"); err != nil {
		t.Fatalf("stop strategy: %v", err)
	}
	if len(gw.cancelled) != 1 {
		t.Fatalf("gateway got %d cancels, want 1", len(gw.cancelled))
	}
	if len(e.StopOrders()) != 0 {
		t.Fatal("local stop order survived StopStrategy")
	}

	// Not trading anymore: new orders are refused silently.
	if ids := strat.ctx.Buy(3900, 1, false); len(ids) != 0 {
		t.Fatalf("stopped strategy still sent orders: %v", ids)
	}
}

func TestStrategyPanicHaltsOnlyThatStrategy(t *testing.T) {
	e, _, strat := newTestEngine(t)
	strat.panicOnTick = true

	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3900)})

	state, err := e.StrategyState("rec")
	if err != nil {
		t.Fatalf("strategy state: %v", err)
	}
	if state.Trading || state.Inited {
		t.Fatalf("strategy still live after panic: trading=%v inited=%v", state.Trading, state.Inited)
	}

	// The engine keeps routing; a second tick is a no-op for the halted
	// strategy rather than another panic.
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3901)})
	if len(strat.ticks) != 0 {
		t.Fatalf("halted strategy still received %d ticks", len(strat.ticks))
	}
}

func TestRemoveStrategyRejectedWhileTrading(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.RemoveStrategy("rec"); err == nil {
		t.Fatal("removed a trading strategy")
	}

	if err := e.StopStrategy("rec"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := e.RemoveStrategy("rec"); err != nil {
		t.Fatalf("remove after stop: %v", err)
	}
	if _, err := e.StrategyState("rec"); err == nil {
		t.Fatal("removed strategy still resolvable")
	}

	// Its ticks no longer reach anyone.
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3900)})
}

func TestVolumeRoundsToZeroRejected(t *testing.T) {
	_, gw, strat := newTestEngine(t)
	if ids := strat.ctx.Buy(3900, 0.3, false); len(ids) != 0 {
		t.Fatalf("zero-volume order accepted: %v", ids)
	}
	if len(gw.sent) != 0 {
		t.Fatal("zero-volume order reached gateway")
	}
}

func TestUnknownContractRejected(t *testing.T) {
	e, gw, _ := newTestEngine(t)

	var strat *recorderStrategy
	_ = e.RegisterClass("Recorder2", func(ctx *Context, _ map[string]any) Strategy {
		strat = &recorderStrategy{ctx: ctx}
		return strat
	})
	if err := e.AddStrategy("Recorder2", "ghost", "XX9999.NOWHERE", nil); err != nil {
		t.Fatalf("add strategy: %v", err)
	}
	e.initStrategy("ghost")
	if err := e.StartStrategy("ghost"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if ids := strat.ctx.Buy(100, 1, false); len(ids) != 0 {
		t.Fatalf("order on unknown contract accepted: %v", ids)
	}
	if len(gw.sent) != 0 {
		t.Fatal("order on unknown contract reached gateway")
	}
}

func TestServerStopStatusMapping(t *testing.T) {
	cases := []struct {
		in   common.Status
		want StopOrderStatus
	}{
		{common.StatusSubmitting, StopOrderWaiting},
		{common.StatusNotTraded, StopOrderWaiting},
		{common.StatusPartTraded, StopOrderTriggered},
		{common.StatusAllTraded, StopOrderTriggered},
		{common.StatusCancelled, StopOrderCancelled},
		{common.StatusRejected, StopOrderCancelled},
	}
	for _, c := range cases {
		if got := serverStopStatus(c.in); got != c.want {
			t.Fatalf("serverStopStatus(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestStateSnapshotsSafeWhileTicking(t *testing.T) {
	e, _, strat := newTestEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3900 + float64(i))})
		}
	}()

	// Snapshot reads from another goroutine, the way the HTTP API does,
	// while the dispatch path is running the strategy.
	for i := 0; i < 500; i++ {
		for _, st := range e.Strategies() {
			if st.Name != "rec" {
				t.Fatalf("unexpected strategy %q", st.Name)
			}
		}
		if _, err := e.StrategyState("rec"); err != nil {
			t.Fatalf("strategy state: %v", err)
		}
	}
	<-done

	st, err := e.StrategyState("rec")
	if err != nil {
		t.Fatalf("strategy state: %v", err)
	}
	if got := st.Variables["ticks"]; got != len(strat.ticks) {
		t.Fatalf("variables report %v ticks, strategy saw %d", got, len(strat.ticks))
	}
}

func TestStopStrategySafeWhileTicking(t *testing.T) {
	e, _, _ := newTestEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			e.processTickEvent(events.Event{Kind: events.KindTick, Data: tickAt(3900)})
		}
	}()

	if err := e.StopStrategy("rec"); err != nil {
		t.Fatalf("stop strategy: %v", err)
	}
	<-done

	st, err := e.StrategyState("rec")
	if err != nil {
		t.Fatalf("strategy state: %v", err)
	}
	if st.Trading {
		t.Fatal("strategy reports trading after stop")
	}
}

func TestStopTriggerPriceFallsBackThroughBookToStopPrice(t *testing.T) {
	e, gw, strat := newTestEngine(t)

	// No price limit on the tick: the fifth ask level is used.
	strat.ctx.Buy(3950, 1, true)
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: &common.Tick{
		Symbol: "IF2006", Exchange: "CFFEX",
		LastPrice: 3951, AskPrice5: 3955,
		Timestamp: time.Now(),
	}})
	if len(gw.sent) != 1 {
		t.Fatalf("gateway got %d orders, want 1", len(gw.sent))
	}
	if gw.sent[0].Price != 3955 {
		t.Fatalf("trigger price = %v, want ask level 5 (3955)", gw.sent[0].Price)
	}

	// No limit and a single-level book: the stop price itself.
	strat.ctx.Buy(3950, 1, true)
	e.processTickEvent(events.Event{Kind: events.KindTick, Data: &common.Tick{
		Symbol: "IF2006", Exchange: "CFFEX",
		LastPrice: 3951,
		Timestamp: time.Now(),
	}})
	if len(gw.sent) != 2 {
		t.Fatalf("gateway got %d orders, want 2", len(gw.sent))
	}
	if gw.sent[1].Price != 3950 {
		t.Fatalf("trigger price = %v, want stop price (3950)", gw.sent[1].Price)
	}
}

func TestContractEventExtendsTable(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.processContractEvent(events.Event{Kind: events.KindContract, Data: &common.Contract{
		Symbol: "rb2010", Exchange: "SHFE", PriceTick: 1, MinVolume: 1,
	}})
	if e.Contract("rb2010.SHFE") == nil {
		t.Fatal("contract event not applied")
	}
}
