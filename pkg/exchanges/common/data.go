package common

import "time"

// Tick is a single market data snapshot with a five-level book.
type Tick struct {
	Symbol   string
	Exchange string

	LastPrice  float64
	LastVolume float64
	Volume     float64

	OpenPrice  float64
	HighPrice  float64
	LowPrice   float64
	PreClose   float64
	LimitUp    float64
	LimitDown  float64

	BidPrice1 float64
	BidPrice2 float64
	BidPrice3 float64
	BidPrice4 float64
	BidPrice5 float64
	AskPrice1 float64
	AskPrice2 float64
	AskPrice3 float64
	AskPrice4 float64
	AskPrice5 float64

	BidVolume1 float64
	BidVolume2 float64
	BidVolume3 float64
	BidVolume4 float64
	BidVolume5 float64
	AskVolume1 float64
	AskVolume2 float64
	AskVolume3 float64
	AskVolume4 float64
	AskVolume5 float64

	Timestamp time.Time
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (t *Tick) VtSymbol() string { return JoinSymbol(t.Symbol, t.Exchange) }

// Bar is one OHLCV candle.
type Bar struct {
	Symbol    string
	Exchange  string
	Interval  Interval
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (b *Bar) VtSymbol() string { return JoinSymbol(b.Symbol, b.Exchange) }

// Order is the broker-identified view of an order. It is updated by each
// order event from the gateway and terminal once status reaches
// AllTraded, Cancelled or Rejected.
type Order struct {
	OrderID   string
	Symbol    string
	Exchange  string
	Direction Direction
	Offset    Offset
	Type      OrderType
	Price     float64
	Volume    float64
	Traded    float64
	Status    Status
	Timestamp time.Time
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (o *Order) VtSymbol() string { return JoinSymbol(o.Symbol, o.Exchange) }

// IsActive reports whether the order can still trade or be cancelled.
func (o *Order) IsActive() bool {
	switch o.Status {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	}
	return false
}

// CancelRequest builds a cancel request for this order.
func (o *Order) CancelRequest() CancelRequest {
	return CancelRequest{OrderID: o.OrderID, Symbol: o.Symbol, Exchange: o.Exchange}
}

// Trade is an immutable fill report. Gateways may deliver the same trade
// more than once on reconnect; consumers deduplicate by TradeID.
type Trade struct {
	TradeID   string
	OrderID   string
	Symbol    string
	Exchange  string
	Direction Direction
	Offset    Offset
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (t *Trade) VtSymbol() string { return JoinSymbol(t.Symbol, t.Exchange) }

// Position is a broker-reported holding snapshot for one direction.
type Position struct {
	Symbol    string
	Exchange  string
	Direction Direction
	Volume    float64
	YdVolume  float64
	Frozen    float64
	Price     float64
	PnL       float64
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (p *Position) VtSymbol() string { return JoinSymbol(p.Symbol, p.Exchange) }

// Account is a broker-reported balance snapshot.
type Account struct {
	AccountID string
	Balance   float64
	Available float64
	Frozen    float64
}

// Contract is instrument metadata needed for order routing.
type Contract struct {
	Symbol        string
	Exchange      string
	Name          string
	PriceTick     float64
	MinVolume     float64
	StopSupported bool
	GatewayName   string
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (c *Contract) VtSymbol() string { return JoinSymbol(c.Symbol, c.Exchange) }
