// Package paper provides an in-process simulated gateway. Orders rest
// in memory and fill against incoming ticks, so strategies can run a
// full order lifecycle without touching a broker.
package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

// Gateway simulates a broker. SendOrder acknowledges immediately and
// fills are produced by Gateway.OnTick when the book crosses the
// resting price.
type Gateway struct {
	name string
	bus  *events.Bus

	mu        sync.Mutex
	orders    map[string]*common.Order
	contracts map[string]*common.Contract
	positions map[string]*common.Position
	balance   float64
	slippage  int // ticks applied against the taker on market fills
}

// NewGateway builds a paper gateway publishing to bus.
func NewGateway(bus *events.Bus, name string, balance float64, slippageTicks int) *Gateway {
	if name == "" {
		name = "PAPER"
	}
	return &Gateway{
		name:      name,
		bus:       bus,
		orders:    make(map[string]*common.Order),
		contracts: make(map[string]*common.Contract),
		positions: make(map[string]*common.Position),
		balance:   balance,
		slippage:  slippageTicks,
	}
}

// Name returns the gateway name used in contract routing.
func (g *Gateway) Name() string { return g.name }

// AddContract registers an instrument and publishes a contract event,
// mirroring what a broker session does on login.
func (g *Gateway) AddContract(c *common.Contract) {
	contract := *c
	contract.GatewayName = g.name
	contract.StopSupported = false // stop orders are simulated locally

	g.mu.Lock()
	g.contracts[contract.VtSymbol()] = &contract
	g.mu.Unlock()

	g.bus.Publish(events.Event{Kind: events.KindContract, Data: &contract})
}

// Connect publishes the initial account snapshot.
func (g *Gateway) Connect() {
	g.publishAccount()
}

// Subscribe is a no-op: the paper gateway sees every tick the feed
// publishes on the bus.
func (g *Gateway) Subscribe(req common.SubscribeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.contracts[common.JoinSymbol(req.Symbol, req.Exchange)]; !ok {
		return fmt.Errorf("unknown contract %s.%s", req.Symbol, req.Exchange)
	}
	return nil
}

// SendOrder accepts the request and emits a live order event. The
// order rests until a tick crosses it.
func (g *Gateway) SendOrder(req common.OrderRequest) string {
	order := &common.Order{
		OrderID:   uuid.NewString(),
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		Direction: req.Direction,
		Offset:    req.Offset,
		Type:      req.Type,
		Price:     req.Price,
		Volume:    req.Volume,
		Status:    common.StatusNotTraded,
		Timestamp: time.Now(),
	}

	g.mu.Lock()
	g.orders[order.OrderID] = order
	g.mu.Unlock()

	g.publishOrder(order)
	return order.OrderID
}

// CancelOrder removes a resting order and emits a cancelled event.
func (g *Gateway) CancelOrder(req common.CancelRequest) error {
	g.mu.Lock()
	order, ok := g.orders[req.OrderID]
	if ok {
		delete(g.orders, req.OrderID)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("cancel %s: order not found", req.OrderID)
	}
	order.Status = common.StatusCancelled
	g.publishOrder(order)
	return nil
}

// Close drops all resting orders.
func (g *Gateway) Close() error {
	g.mu.Lock()
	var cancelled []*common.Order
	for id, order := range g.orders {
		order.Status = common.StatusCancelled
		delete(g.orders, id)
		cancelled = append(cancelled, order)
	}
	g.mu.Unlock()

	for _, order := range cancelled {
		g.publishOrder(order)
	}
	return nil
}

// OnTick matches resting orders against the new book. The tick feed
// calls this before publishing the tick, so strategy callbacks observe
// fills caused by earlier ticks, never by the one in flight.
func (g *Gateway) OnTick(tick *common.Tick) {
	vtSymbol := tick.VtSymbol()

	g.mu.Lock()
	var filled []*common.Order
	for id, order := range g.orders {
		if order.VtSymbol() != vtSymbol {
			continue
		}
		if !g.crossed(order, tick) {
			continue
		}
		delete(g.orders, id)
		order.Status = common.StatusAllTraded
		order.Traded = order.Volume
		filled = append(filled, order)
	}
	g.mu.Unlock()

	for _, order := range filled {
		g.fill(order, tick)
	}
}

func (g *Gateway) crossed(order *common.Order, tick *common.Tick) bool {
	if order.Type == common.OrderTypeMarket {
		return true
	}
	if order.Direction == common.DirectionLong {
		return tick.AskPrice1 > 0 && tick.AskPrice1 <= order.Price
	}
	return tick.BidPrice1 > 0 && tick.BidPrice1 >= order.Price
}

func (g *Gateway) fill(order *common.Order, tick *common.Tick) {
	price := g.fillPrice(order, tick)

	g.publishOrder(order)

	trade := &common.Trade{
		TradeID:   uuid.NewString(),
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Exchange:  order.Exchange,
		Direction: order.Direction,
		Offset:    order.Offset,
		Price:     price,
		Volume:    order.Volume,
		Timestamp: time.Now(),
	}
	g.bus.Publish(events.Event{Kind: events.KindTrade, Data: trade})

	g.updatePosition(trade)
	g.publishAccount()
}

func (g *Gateway) fillPrice(order *common.Order, tick *common.Tick) float64 {
	price := order.Price
	if order.Direction == common.DirectionLong && tick.AskPrice1 > 0 {
		price = tick.AskPrice1
	} else if order.Direction == common.DirectionShort && tick.BidPrice1 > 0 {
		price = tick.BidPrice1
	} else if order.Type == common.OrderTypeMarket {
		price = tick.LastPrice
	}

	if g.slippage > 0 {
		g.mu.Lock()
		contract := g.contracts[order.VtSymbol()]
		g.mu.Unlock()
		if contract != nil && contract.PriceTick > 0 {
			adj := float64(g.slippage) * contract.PriceTick
			if order.Direction == common.DirectionLong {
				price += adj
			} else {
				price -= adj
			}
		}
	}
	return price
}

// updatePosition maintains directional buckets the way CTP-style
// brokers report them: opens grow the same-direction bucket, closes
// shrink the opposite one.
func (g *Gateway) updatePosition(trade *common.Trade) {
	direction := trade.Direction
	if trade.Offset != common.OffsetOpen {
		direction = trade.Direction.Opposite()
	}

	key := trade.VtSymbol() + "." + string(direction)

	g.mu.Lock()
	pos, ok := g.positions[key]
	if !ok {
		pos = &common.Position{
			Symbol:    trade.Symbol,
			Exchange:  trade.Exchange,
			Direction: direction,
		}
		g.positions[key] = pos
	}
	if trade.Offset == common.OffsetOpen {
		pos.Volume += trade.Volume
	} else {
		pos.Volume -= trade.Volume
		if pos.Volume < 0 {
			pos.Volume = 0
		}
	}
	pos.Price = trade.Price
	snapshot := *pos
	g.mu.Unlock()

	g.bus.Publish(events.Event{Kind: events.KindPosition, Data: &snapshot})
}

func (g *Gateway) publishAccount() {
	g.mu.Lock()
	acc := &common.Account{
		AccountID: g.name,
		Balance:   g.balance,
		Available: g.balance,
	}
	g.mu.Unlock()

	g.bus.Publish(events.Event{Kind: events.KindAccount, Data: acc})
}

func (g *Gateway) publishOrder(order *common.Order) {
	snapshot := *order
	g.bus.Publish(events.Event{Kind: events.KindOrder, Data: &snapshot})
}
