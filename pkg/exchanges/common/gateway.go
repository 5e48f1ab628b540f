package common

// Gateway abstracts a broker connection. SendOrder returns the broker
// order id, or an empty string when the request was not accepted locally;
// rejections surface later as order events. CancelOrder is fire-and-forget
// in the same way.
type Gateway interface {
	Subscribe(req SubscribeRequest) error
	SendOrder(req OrderRequest) string
	CancelOrder(req CancelRequest) error
	Close() error
}
