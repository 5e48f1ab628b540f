// Package cta is the strategy execution core: it routes gateway events
// to strategies, converts strategy order intents into gateway calls, and
// simulates stop orders locally for contracts without native support.
package cta

import (
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/time/rate"

	"cta-core/internal/converter"
	"cta-core/internal/events"
	"cta-core/pkg/exchanges/common"
)

const engineName = "CtaEngine"

// accountSaveInterval throttles account snapshot persistence per account.
const accountSaveInterval = 10 // seconds

// Engine owns every piece of strategy execution state. All lookups go
// through engine methods; there is no package-level registry.
type Engine struct {
	bus   *events.Bus
	store Store

	mu               sync.RWMutex
	gateways         map[string]common.Gateway
	defaultGateway   string
	contracts        map[string]*common.Contract
	classes          map[string]Factory
	strategies       map[string]*Runtime
	symbolStrategies map[string][]*Runtime
	orderStrategy    map[string]*Runtime
	strategyOrders   map[string]map[string]struct{}
	orders           map[string]*common.Order

	settings map[string]StrategySetting
	data     map[string]map[string]any

	tradeIDs   map[string]struct{} // grows for process lifetime
	stopOrders *StopOrderBook
	converter  *converter.Converter

	initMu      sync.Mutex
	initQueue   []string
	initRunning bool

	limiterMu       sync.Mutex
	accountLimiters map[string]*rate.Limiter
}

// NewEngine creates an engine bound to a bus and a store. The store may
// be nil, in which case settings and history are unavailable but the
// engine still runs.
func NewEngine(bus *events.Bus, store Store) *Engine {
	return &Engine{
		bus:              bus,
		store:            store,
		gateways:         make(map[string]common.Gateway),
		contracts:        make(map[string]*common.Contract),
		classes:          make(map[string]Factory),
		strategies:       make(map[string]*Runtime),
		symbolStrategies: make(map[string][]*Runtime),
		orderStrategy:    make(map[string]*Runtime),
		strategyOrders:   make(map[string]map[string]struct{}),
		orders:           make(map[string]*common.Order),
		settings:         make(map[string]StrategySetting),
		data:             make(map[string]map[string]any),
		tradeIDs:         make(map[string]struct{}),
		stopOrders:       NewStopOrderBook(),
		converter:        converter.New(),
		accountLimiters:  make(map[string]*rate.Limiter),
	}
}

// Init subscribes the engine on the bus and loads persisted strategy
// settings and data. Strategy classes must be registered before Init so
// persisted settings can be instantiated.
func (e *Engine) Init() {
	e.registerEvents()
	e.loadStrategySettings()
	e.loadStrategyData()
	e.writeLog("strategy engine initialized", nil)
}

// Close stops all strategies.
func (e *Engine) Close() {
	e.StopAllStrategies()
}

// RegisterClass adds a strategy factory under a class name. Duplicate
// registration is a configuration error.
func (e *Engine) RegisterClass(className string, factory Factory) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.classes[className]; ok {
		return fmt.Errorf("strategy class %s already registered", className)
	}
	e.classes[className] = factory
	return nil
}

// ClassNames lists the registered strategy class names.
func (e *Engine) ClassNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.classes))
	for name := range e.classes {
		names = append(names, name)
	}
	return names
}

// AddGateway registers a broker gateway. The first gateway added becomes
// the default route for contracts without an explicit gateway name.
func (e *Engine) AddGateway(name string, gw common.Gateway) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gateways[name] = gw
	if e.defaultGateway == "" {
		e.defaultGateway = name
	}
}

// AddContracts seeds the contract table, typically from configuration.
// Contract events from gateways extend it at runtime.
func (e *Engine) AddContracts(contracts []*common.Contract) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range contracts {
		e.contracts[c.VtSymbol()] = c
	}
}

// Contract returns the metadata for an instrument, or nil when unknown.
func (e *Engine) Contract(vtSymbol string) *common.Contract {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contracts[vtSymbol]
}

func (e *Engine) gatewayFor(contract *common.Contract) common.Gateway {
	e.mu.RLock()
	defer e.mu.RUnlock()
	name := contract.GatewayName
	if name == "" {
		name = e.defaultGateway
	}
	return e.gateways[name]
}

func (e *Engine) registerEvents() {
	e.bus.Subscribe(events.KindTick, e.processTickEvent)
	e.bus.Subscribe(events.KindOrder, e.processOrderEvent)
	e.bus.Subscribe(events.KindTrade, e.processTradeEvent)
	e.bus.Subscribe(events.KindPosition, e.processPositionEvent)
	e.bus.Subscribe(events.KindAccount, e.processAccountEvent)
	e.bus.Subscribe(events.KindContract, e.processContractEvent)
}

// --- event processing (dispatch goroutine) ---

func (e *Engine) processTickEvent(ev events.Event) {
	tick, ok := ev.Data.(*common.Tick)
	if !ok {
		return
	}

	e.mu.RLock()
	strategies := append([]*Runtime(nil), e.symbolStrategies[tick.VtSymbol()]...)
	e.mu.RUnlock()
	if len(strategies) == 0 {
		return
	}

	e.checkStopOrders(tick)

	for _, rt := range strategies {
		if rt.inited.Load() {
			e.callStrategyFunc(rt, func() { rt.strategy.OnTick(tick) })
		}
	}
}

func (e *Engine) processOrderEvent(ev events.Event) {
	order, ok := ev.Data.(*common.Order)
	if !ok {
		return
	}

	e.converter.UpdateOrder(order)

	e.mu.Lock()
	e.orders[order.OrderID] = order
	rt := e.orderStrategy[order.OrderID]
	if rt != nil && !order.IsActive() {
		delete(e.strategyOrders[rt.name], order.OrderID)
	}
	e.mu.Unlock()
	if rt == nil {
		return
	}

	// Broker-native stop orders surface to the strategy as stop order
	// updates too.
	if order.Type == common.OrderTypeStop {
		so := &StopOrder{
			StopOrderID:  order.OrderID,
			VtSymbol:     order.VtSymbol(),
			Direction:    order.Direction,
			Offset:       order.Offset,
			Price:        order.Price,
			Volume:       order.Volume,
			StrategyName: rt.name,
			Status:       serverStopStatus(order.Status),
			OrderIDs:     []string{order.OrderID},
		}
		e.callStrategyFunc(rt, func() { rt.strategy.OnStopOrder(so) })
	}

	e.callStrategyFunc(rt, func() { rt.strategy.OnOrder(order) })
}

func serverStopStatus(s common.Status) StopOrderStatus {
	switch s {
	case common.StatusSubmitting, common.StatusNotTraded:
		return StopOrderWaiting
	case common.StatusPartTraded, common.StatusAllTraded:
		return StopOrderTriggered
	default:
		return StopOrderCancelled
	}
}

func (e *Engine) processTradeEvent(ev events.Event) {
	trade, ok := ev.Data.(*common.Trade)
	if !ok {
		return
	}

	// Gateways may re-deliver trades on reconnect.
	e.mu.Lock()
	if _, dup := e.tradeIDs[trade.TradeID]; dup {
		e.mu.Unlock()
		return
	}
	e.tradeIDs[trade.TradeID] = struct{}{}
	rt := e.orderStrategy[trade.OrderID]
	e.mu.Unlock()

	e.converter.UpdateTrade(trade)

	if rt == nil {
		return
	}

	if trade.Direction == common.DirectionLong {
		rt.addPos(trade.Volume)
	} else {
		rt.addPos(-trade.Volume)
	}

	e.callStrategyFunc(rt, func() { rt.strategy.OnTrade(trade) })

	e.syncStrategyData(rt)
	e.putStrategyEvent(rt)
}

func (e *Engine) processPositionEvent(ev events.Event) {
	if pos, ok := ev.Data.(*common.Position); ok {
		e.converter.UpdatePosition(pos)
	}
}

func (e *Engine) processAccountEvent(ev events.Event) {
	acc, ok := ev.Data.(*common.Account)
	if !ok || e.store == nil {
		return
	}
	if !e.accountLimiter(acc.AccountID).Allow() {
		return
	}
	if err := e.store.SaveAccount(acc); err != nil {
		e.writeLog(fmt.Sprintf("save account %s failed: %v", acc.AccountID, err), nil)
	}
}

func (e *Engine) accountLimiter(accountID string) *rate.Limiter {
	e.limiterMu.Lock()
	defer e.limiterMu.Unlock()
	lim, ok := e.accountLimiters[accountID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1.0/accountSaveInterval), 1)
		e.accountLimiters[accountID] = lim
	}
	return lim
}

func (e *Engine) processContractEvent(ev events.Event) {
	if c, ok := ev.Data.(*common.Contract); ok {
		e.mu.Lock()
		e.contracts[c.VtSymbol()] = c
		e.mu.Unlock()
	}
}

// callStrategyFunc invokes strategy code defensively: it takes the
// strategy lock so no other goroutine reads or runs the strategy
// meanwhile, and a panic halts the strategy (trading and inited
// cleared), not the engine.
func (e *Engine) callStrategyFunc(rt *Runtime, fn func()) {
	rt.callMu.Lock()
	defer rt.callMu.Unlock()
	e.invokeStrategy(rt, fn)
}

// invokeStrategy runs strategy code with panic protection only. The
// caller must hold rt.callMu; Context methods reach here from inside a
// callback that already does.
func (e *Engine) invokeStrategy(rt *Runtime, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.trading.Store(false)
			rt.inited.Store(false)
			e.writeLog(fmt.Sprintf("strategy halted by exception: %v\n%s", r, debug.Stack()), rt)
		}
	}()
	fn()
}

// --- strategy lifecycle ---

// AddStrategy instantiates a strategy from configuration and persists
// its setting. Unknown classes and duplicate names are configuration
// errors: logged, operation aborted.
func (e *Engine) AddStrategy(className, name, vtSymbol string, setting map[string]any) error {
	e.mu.Lock()
	if _, dup := e.strategies[name]; dup {
		e.mu.Unlock()
		err := fmt.Errorf("strategy name %s already exists", name)
		e.writeLog(err.Error(), nil)
		return err
	}
	factory, ok := e.classes[className]
	if !ok {
		e.mu.Unlock()
		err := fmt.Errorf("strategy class %s not registered", className)
		e.writeLog(err.Error(), nil)
		return err
	}

	rt := &Runtime{name: name, vtSymbol: vtSymbol, className: className}
	ctx := &Context{engine: e, rt: rt}
	rt.ctx = ctx
	rt.strategy = factory(ctx, setting)

	e.strategies[name] = rt
	e.symbolStrategies[vtSymbol] = append(e.symbolStrategies[vtSymbol], rt)
	e.strategyOrders[name] = make(map[string]struct{})
	e.settings[name] = StrategySetting{ClassName: className, VtSymbol: vtSymbol, Setting: setting}
	e.mu.Unlock()

	e.saveStrategySetting(name)
	e.putStrategyEvent(rt)
	return nil
}

// InitStrategy queues a strategy for initialization. A single worker
// drains the queue, serializing all OnInit calls.
func (e *Engine) InitStrategy(name string) error {
	if _, err := e.runtime(name); err != nil {
		return err
	}

	e.initMu.Lock()
	e.initQueue = append(e.initQueue, name)
	spawn := !e.initRunning
	if spawn {
		e.initRunning = true
	}
	e.initMu.Unlock()

	if spawn {
		go e.initWorker()
	}
	return nil
}

func (e *Engine) initWorker() {
	for {
		e.initMu.Lock()
		if len(e.initQueue) == 0 {
			e.initRunning = false
			e.initMu.Unlock()
			return
		}
		name := e.initQueue[0]
		e.initQueue = e.initQueue[1:]
		e.initMu.Unlock()

		e.initStrategy(name)
	}
}

func (e *Engine) initStrategy(name string) {
	rt, err := e.runtime(name)
	if err != nil {
		return
	}
	if rt.inited.Load() {
		e.writeLog("already initialized, ignoring", rt)
		return
	}
	e.writeLog("initialization started", rt)

	e.callStrategyFunc(rt, rt.strategy.OnInit)

	// Restore persisted variables before going live.
	e.mu.RLock()
	vars := e.data[name]
	e.mu.RUnlock()
	if len(vars) > 0 {
		e.callStrategyFunc(rt, func() { rt.strategy.Restore(vars) })
		if pos, ok := vars["pos"].(float64); ok {
			rt.setPos(pos)
		}
	}

	// Subscribe market data for the strategy's instrument.
	contract := e.Contract(rt.vtSymbol)
	if contract != nil {
		if gw := e.gatewayFor(contract); gw != nil {
			req := common.SubscribeRequest{Symbol: contract.Symbol, Exchange: contract.Exchange}
			if err := gw.Subscribe(req); err != nil {
				e.writeLog(fmt.Sprintf("market data subscription failed: %v", err), rt)
			}
		}
	} else {
		e.writeLog(fmt.Sprintf("market data subscription failed, unknown contract %s", rt.vtSymbol), rt)
	}

	rt.inited.Store(true)
	e.putStrategyEvent(rt)
	e.writeLog("initialization finished", rt)
}

// StartStrategy flips a strategy to trading; it refuses when the
// strategy has not initialized or is already trading.
func (e *Engine) StartStrategy(name string) error {
	rt, err := e.runtime(name)
	if err != nil {
		return err
	}
	if !rt.inited.Load() {
		err := fmt.Errorf("start failed, %s not initialized", name)
		e.writeLog(err.Error(), rt)
		return err
	}
	if rt.trading.Load() {
		err := fmt.Errorf("%s already started", name)
		e.writeLog(err.Error(), rt)
		return err
	}

	e.callStrategyFunc(rt, rt.strategy.OnStart)
	rt.trading.Store(true)
	e.putStrategyEvent(rt)
	return nil
}

// StopStrategy takes a strategy out of trading, cancels all of its
// active orders and persists its variables.
func (e *Engine) StopStrategy(name string) error {
	rt, err := e.runtime(name)
	if err != nil {
		return err
	}
	if !rt.trading.Load() {
		return nil
	}

	e.callStrategyFunc(rt, rt.strategy.OnStop)
	rt.trading.Store(false)

	// Cancellation may fan out into OnStopOrder callbacks, so it runs
	// under the strategy lock like any other strategy invocation.
	e.callStrategyFunc(rt, func() { e.cancelAll(rt) })
	e.syncStrategyData(rt)
	e.putStrategyEvent(rt)
	return nil
}

// EditStrategy applies a new parameter setting and persists it.
func (e *Engine) EditStrategy(name string, setting map[string]any) error {
	rt, err := e.runtime(name)
	if err != nil {
		return err
	}
	e.callStrategyFunc(rt, func() { rt.strategy.UpdateSetting(setting) })

	e.mu.Lock()
	s := e.settings[name]
	s.Setting = setting
	e.settings[name] = s
	e.mu.Unlock()

	e.saveStrategySetting(name)
	e.putStrategyEvent(rt)
	return nil
}

// RemoveStrategy deletes a strategy; it is rejected while the strategy
// is trading.
func (e *Engine) RemoveStrategy(name string) error {
	rt, err := e.runtime(name)
	if err != nil {
		return err
	}
	if rt.trading.Load() {
		err := fmt.Errorf("remove failed, stop %s first", name)
		e.writeLog(err.Error(), rt)
		return err
	}

	e.mu.Lock()
	delete(e.settings, name)

	list := e.symbolStrategies[rt.vtSymbol]
	for i, s := range list {
		if s == rt {
			e.symbolStrategies[rt.vtSymbol] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	for orderID := range e.strategyOrders[name] {
		delete(e.orderStrategy, orderID)
	}
	delete(e.strategyOrders, name)
	delete(e.strategies, name)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.RemoveStrategySetting(name); err != nil {
			e.writeLog(fmt.Sprintf("remove setting failed: %v", err), nil)
		}
	}
	return nil
}

// InitAllStrategies queues every strategy for initialization.
func (e *Engine) InitAllStrategies() {
	for _, name := range e.strategyNames() {
		_ = e.InitStrategy(name)
	}
}

// StartAllStrategies starts every strategy.
func (e *Engine) StartAllStrategies() {
	for _, name := range e.strategyNames() {
		_ = e.StartStrategy(name)
	}
}

// StopAllStrategies stops every strategy.
func (e *Engine) StopAllStrategies() {
	for _, name := range e.strategyNames() {
		_ = e.StopStrategy(name)
	}
}

func (e *Engine) strategyNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.strategies))
	for name := range e.strategies {
		names = append(names, name)
	}
	return names
}

func (e *Engine) runtime(name string) (*Runtime, error) {
	e.mu.RLock()
	rt := e.strategies[name]
	e.mu.RUnlock()
	if rt == nil {
		err := fmt.Errorf("strategy %s not found", name)
		e.writeLog(err.Error(), nil)
		return nil, err
	}
	return rt, nil
}

// Strategies returns state snapshots for every strategy.
func (e *Engine) Strategies() []StrategyState {
	e.mu.RLock()
	rts := make([]*Runtime, 0, len(e.strategies))
	for _, rt := range e.strategies {
		rts = append(rts, rt)
	}
	e.mu.RUnlock()

	out := make([]StrategyState, 0, len(rts))
	for _, rt := range rts {
		out = append(out, rt.State())
	}
	return out
}

// StrategyState returns one strategy's snapshot.
func (e *Engine) StrategyState(name string) (StrategyState, error) {
	rt, err := e.runtime(name)
	if err != nil {
		return StrategyState{}, err
	}
	return rt.State(), nil
}

// StopOrders returns a snapshot of the active local stop orders.
func (e *Engine) StopOrders() []StopOrder {
	return e.stopOrders.Active()
}

// Holding returns the converter's holding for one symbol+direction.
func (e *Engine) Holding(vtSymbol string, direction common.Direction) converter.Holding {
	return e.converter.Holding(vtSymbol, direction)
}

// --- persistence ---

func (e *Engine) loadStrategySettings() {
	if e.store == nil {
		return
	}
	settings, err := e.store.LoadStrategySettings()
	if err != nil {
		e.writeLog(fmt.Sprintf("load strategy settings failed: %v", err), nil)
		return
	}
	for name, s := range settings {
		if err := e.AddStrategy(s.ClassName, name, s.VtSymbol, s.Setting); err == nil {
			if rt, rerr := e.runtime(name); rerr == nil {
				e.writeLog("loaded from settings", rt)
			}
		}
	}
}

func (e *Engine) loadStrategyData() {
	if e.store == nil {
		return
	}
	data, err := e.store.LoadStrategyData()
	if err != nil {
		e.writeLog(fmt.Sprintf("load strategy data failed: %v", err), nil)
		return
	}
	e.mu.Lock()
	e.data = data
	e.mu.Unlock()
}

func (e *Engine) saveStrategySetting(name string) {
	if e.store == nil {
		return
	}
	e.mu.RLock()
	s, ok := e.settings[name]
	e.mu.RUnlock()
	if !ok {
		return
	}
	if err := e.store.SaveStrategySetting(name, s); err != nil {
		e.writeLog(fmt.Sprintf("save setting failed: %v", err), nil)
	}
}

// syncStrategyData snapshots a strategy's variables to storage. The
// inited/trading flags live on the runtime, never in the snapshot.
func (e *Engine) syncStrategyData(rt *Runtime) {
	rt.callMu.Lock()
	vars := rt.strategy.Variables()
	rt.callMu.Unlock()
	snapshot := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		snapshot[k] = v
	}
	snapshot["pos"] = rt.Pos()

	e.mu.Lock()
	e.data[rt.name] = snapshot
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveStrategyData(rt.name, snapshot); err != nil {
			e.writeLog(fmt.Sprintf("save data failed: %v", err), rt)
		}
	}
}

func (e *Engine) loadBars(rt *Runtime, days int, interval common.Interval, callback func(*common.Bar)) {
	if e.store == nil {
		return
	}
	symbol, exchange := common.SplitSymbol(rt.vtSymbol)
	end := nowFunc()
	start := end.AddDate(0, 0, -days)
	bars, err := e.store.LoadBars(symbol, exchange, interval, start, end)
	if err != nil {
		e.writeLog(fmt.Sprintf("load bars failed: %v", err), rt)
		return
	}
	for _, bar := range bars {
		callback(bar)
	}
}

func (e *Engine) loadTicks(rt *Runtime, days int, callback func(*common.Tick)) {
	if e.store == nil {
		return
	}
	symbol, exchange := common.SplitSymbol(rt.vtSymbol)
	end := nowFunc()
	start := end.AddDate(0, 0, -days)
	ticks, err := e.store.LoadTicks(symbol, exchange, start, end)
	if err != nil {
		e.writeLog(fmt.Sprintf("load ticks failed: %v", err), rt)
		return
	}
	for _, tick := range ticks {
		callback(tick)
	}
}

// --- notifications ---

func (e *Engine) putStrategyEvent(rt *Runtime) {
	e.bus.Publish(events.Event{Kind: events.KindStrategy, Data: rt.State()})
}

func (e *Engine) putStopOrderEvent(so *StopOrder) {
	cp := *so
	e.bus.Publish(events.Event{Kind: events.KindStopOrder, Data: &cp})
}

func (e *Engine) writeLog(msg string, rt *Runtime) {
	if rt != nil {
		msg = rt.name + ": " + msg
	}
	e.bus.Publish(events.Event{Kind: events.KindLog, Data: events.Log{Msg: msg, Source: engineName}})
}
