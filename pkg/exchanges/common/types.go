package common

// Direction denotes the side of an order or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Offset denotes whether an order opens or closes a position.
type Offset string

const (
	OffsetOpen           Offset = "OPEN"
	OffsetClose          Offset = "CLOSE"
	OffsetCloseToday     Offset = "CLOSE_TODAY"
	OffsetCloseYesterday Offset = "CLOSE_YESTERDAY"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeStop   OrderType = "STOP"
	OrderTypeFAK    OrderType = "FAK"
	OrderTypeFOK    OrderType = "FOK"
)

// Status normalizes broker order status into a small set.
type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusNotTraded  Status = "NOT_TRADED"
	StatusPartTraded Status = "PART_TRADED"
	StatusAllTraded  Status = "ALL_TRADED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Interval denotes bar intervals for historical data.
type Interval string

const (
	IntervalMinute Interval = "1m"
	IntervalHour   Interval = "1h"
	IntervalDaily  Interval = "d"
)

// OrderRequest captures an order intent to be sent to a gateway.
type OrderRequest struct {
	Symbol    string
	Exchange  string
	Direction Direction
	Offset    Offset
	Type      OrderType
	Price     float64
	Volume    float64
}

// VtSymbol returns the instrument in SYMBOL.EXCHANGE form.
func (r OrderRequest) VtSymbol() string {
	return JoinSymbol(r.Symbol, r.Exchange)
}

// CancelRequest asks a gateway to cancel an existing order.
type CancelRequest struct {
	OrderID  string
	Symbol   string
	Exchange string
}

// SubscribeRequest asks a gateway for market data on one instrument.
type SubscribeRequest struct {
	Symbol   string
	Exchange string
}
