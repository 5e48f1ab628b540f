package cta

import (
	"fmt"
	"strings"
	"time"

	"cta-core/pkg/exchanges/common"
)

var nowFunc = time.Now

// sendOrder is the single entry point for strategy order intents. Price
// and volume are rounded to the contract's tick and lot size before any
// routing decision. The returned slice is empty on total failure.
func (e *Engine) sendOrder(rt *Runtime, direction common.Direction, offset common.Offset, price, volume float64, stop, lock bool) []string {
	contract := e.Contract(rt.vtSymbol)
	if contract == nil {
		e.writeLog(fmt.Sprintf("order failed, unknown contract %s", rt.vtSymbol), rt)
		return nil
	}

	price = common.RoundTo(price, contract.PriceTick)
	volume = common.RoundTo(volume, contract.MinVolume)
	if volume <= 0 {
		e.writeLog("order failed, volume rounds to zero", rt)
		return nil
	}

	if stop {
		if contract.StopSupported {
			return e.sendServerOrder(rt, contract, direction, offset, price, volume, common.OrderTypeStop, lock)
		}
		return []string{e.sendLocalStopOrder(rt, direction, offset, price, volume, lock)}
	}
	return e.sendServerOrder(rt, contract, direction, offset, price, volume, common.OrderTypeLimit, lock)
}

// sendServerOrder converts the intent into broker-legal legs and submits
// them in order (yesterday leg before today leg).
func (e *Engine) sendServerOrder(rt *Runtime, contract *common.Contract, direction common.Direction, offset common.Offset, price, volume float64, orderType common.OrderType, lock bool) []string {
	gw := e.gatewayFor(contract)
	if gw == nil {
		e.writeLog(fmt.Sprintf("order failed, no gateway for %s", contract.VtSymbol()), rt)
		return nil
	}

	req := common.OrderRequest{
		Symbol:    contract.Symbol,
		Exchange:  contract.Exchange,
		Direction: direction,
		Offset:    offset,
		Type:      orderType,
		Price:     price,
		Volume:    volume,
	}

	res := e.converter.Convert(req, lock)
	if res.Shortfall > 0 {
		e.writeLog(fmt.Sprintf("close volume short by %v on %s, submitting available lots only", res.Shortfall, contract.VtSymbol()), rt)
	}

	var orderIDs []string
	for _, leg := range res.Requests {
		orderID := gw.SendOrder(leg)
		if orderID == "" {
			continue
		}
		e.converter.UpdateOrderRequest(leg, orderID)

		e.mu.Lock()
		e.orderStrategy[orderID] = rt
		e.strategyOrders[rt.name][orderID] = struct{}{}
		e.mu.Unlock()

		orderIDs = append(orderIDs, orderID)
	}
	return orderIDs
}

// sendLocalStopOrder inserts a synthetic stop order into the book; the
// broker is not involved until the trigger fires.
func (e *Engine) sendLocalStopOrder(rt *Runtime, direction common.Direction, offset common.Offset, price, volume float64, lock bool) string {
	so := &StopOrder{
		StopOrderID:  e.stopOrders.NextID(),
		VtSymbol:     rt.vtSymbol,
		Direction:    direction,
		Offset:       offset,
		Price:        price,
		Volume:       volume,
		StrategyName: rt.name,
		Lock:         lock,
		Status:       StopOrderWaiting,
	}
	e.stopOrders.Add(so)

	e.mu.Lock()
	e.strategyOrders[rt.name][so.StopOrderID] = struct{}{}
	e.mu.Unlock()

	// Reached from Context.SendOrder inside a callback; the caller
	// already holds the strategy lock.
	e.invokeStrategy(rt, func() { rt.strategy.OnStopOrder(so) })
	e.putStopOrderEvent(so)
	return so.StopOrderID
}

// checkStopOrders evaluates every waiting stop order on the tick's
// instrument. A long stop triggers at last >= trigger, a short stop at
// last <= trigger. Submission failure leaves the order Waiting for the
// next tick.
func (e *Engine) checkStopOrders(tick *common.Tick) {
	for _, so := range e.stopOrders.ForSymbol(tick.VtSymbol()) {
		longTriggered := so.Direction == common.DirectionLong && tick.LastPrice >= so.Price
		shortTriggered := so.Direction == common.DirectionShort && tick.LastPrice <= so.Price
		if !longTriggered && !shortTriggered {
			continue
		}

		rt, err := e.runtime(so.StrategyName)
		if err != nil {
			continue
		}
		contract := e.Contract(so.VtSymbol)
		if contract == nil {
			continue
		}

		// Cross the book as aggressively as the exchange allows: the
		// price limit when the tick reports one, else the fifth level
		// of the opposite side, else the stop price itself (feeds that
		// publish a single book level report zero for level 5).
		var price float64
		if so.Direction == common.DirectionLong {
			switch {
			case tick.LimitUp > 0:
				price = tick.LimitUp
			case tick.AskPrice5 > 0:
				price = tick.AskPrice5
			default:
				price = so.Price
			}
		} else {
			switch {
			case tick.LimitDown > 0:
				price = tick.LimitDown
			case tick.BidPrice5 > 0:
				price = tick.BidPrice5
			default:
				price = so.Price
			}
		}

		orderIDs := e.sendServerOrder(rt, contract, so.Direction, so.Offset, price, so.Volume, common.OrderTypeLimit, so.Lock)
		if len(orderIDs) == 0 {
			continue
		}

		e.stopOrders.Pop(so.StopOrderID)
		e.mu.Lock()
		delete(e.strategyOrders[rt.name], so.StopOrderID)
		e.mu.Unlock()

		so.Status = StopOrderTriggered
		so.OrderIDs = orderIDs
		e.callStrategyFunc(rt, func() { rt.strategy.OnStopOrder(so) })
		e.putStopOrderEvent(so)
	}
}

// cancelOrder dispatches on the id shape: local stop orders carry the
// STOP. prefix, everything else is a broker order.
func (e *Engine) cancelOrder(rt *Runtime, orderID string) {
	if strings.HasPrefix(orderID, StopOrderPrefix) {
		e.cancelLocalStopOrder(orderID)
		return
	}
	e.cancelServerOrder(rt, orderID)
}

func (e *Engine) cancelServerOrder(rt *Runtime, orderID string) {
	e.mu.RLock()
	order := e.orders[orderID]
	e.mu.RUnlock()
	if order == nil {
		e.writeLog(fmt.Sprintf("cancel failed, order %s not found", orderID), rt)
		return
	}

	contract := e.Contract(order.VtSymbol())
	if contract == nil {
		e.writeLog(fmt.Sprintf("cancel failed, unknown contract %s", order.VtSymbol()), rt)
		return
	}
	gw := e.gatewayFor(contract)
	if gw == nil {
		return
	}
	if err := gw.CancelOrder(order.CancelRequest()); err != nil {
		e.writeLog(fmt.Sprintf("cancel %s failed: %v", orderID, err), rt)
	}
}

func (e *Engine) cancelLocalStopOrder(stopOrderID string) {
	so, ok := e.stopOrders.Pop(stopOrderID)
	if !ok {
		return
	}
	rt, err := e.runtime(so.StrategyName)
	if err != nil {
		return
	}

	e.mu.Lock()
	delete(e.strategyOrders[rt.name], stopOrderID)
	e.mu.Unlock()

	so.Status = StopOrderCancelled
	// Reached from Context.CancelOrder/CancelAll or StopStrategy, all
	// of which hold the strategy lock.
	e.invokeStrategy(rt, func() { rt.strategy.OnStopOrder(so) })
	e.putStopOrderEvent(so)
}

// cancelAll cancels every active order (broker and local) of one
// strategy.
func (e *Engine) cancelAll(rt *Runtime) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.strategyOrders[rt.name]))
	for id := range e.strategyOrders[rt.name] {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.cancelOrder(rt, id)
	}
}
