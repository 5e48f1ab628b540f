package main

import (
	"context"
	"log"
	"time"

	"cta-core/internal/cta"
	"cta-core/internal/events"
	"cta-core/internal/market"
	"cta-core/internal/monitor"
	"cta-core/internal/strategies"
	"cta-core/pkg/exchanges/common"
	"cta-core/pkg/exchanges/paper"
)

// paper_demo runs a double moving average strategy against the mock
// feed and the paper gateway for a short while, then prints the
// resulting strategy state. It touches no database and no network.
//
// Usage:
//   go run ./scripts/paper_demo

func main() {
	log.Println("=== paper trading demo starting ===")

	bus := events.NewBus(time.Second)
	monitor.New(bus)

	engine := cta.NewEngine(bus, nil)
	if err := strategies.RegisterAll(engine); err != nil {
		log.Fatalf("register strategies: %v", err)
	}

	contract := &common.Contract{
		Symbol:    "rb2010",
		Exchange:  "SHFE",
		PriceTick: 1,
		MinVolume: 1,
	}

	gateway := paper.NewGateway(bus, "PAPER", 1_000_000, 0)
	engine.AddGateway(gateway.Name(), gateway)
	gateway.AddContract(contract)

	bus.Start()
	defer bus.Stop()

	engine.Init()
	engine.AddContracts([]*common.Contract{contract})
	gateway.Connect()
	defer engine.Close()

	if err := engine.AddStrategy("DoubleMaStrategy", "demo", "rb2010.SHFE", map[string]any{
		"fast_window": 3,
		"slow_window": 5,
	}); err != nil {
		log.Fatalf("add strategy: %v", err)
	}
	if err := engine.InitStrategy("demo"); err != nil {
		log.Fatalf("init strategy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := &market.MockFeed{
		Bus:       bus,
		Matcher:   gateway,
		Contracts: []*common.Contract{contract},
		Start:     3500,
		Step:      5,
		Interval:  50 * time.Millisecond,
	}
	mock.Run(ctx)

	// Give the init worker time to finish before trading starts.
	time.Sleep(time.Second)
	if err := engine.StartStrategy("demo"); err != nil {
		log.Fatalf("start strategy: %v", err)
	}

	time.Sleep(30 * time.Second)

	state, err := engine.StrategyState("demo")
	if err != nil {
		log.Fatalf("strategy state: %v", err)
	}
	log.Printf("final state: pos=%.0f variables=%v", state.Pos, state.Variables)
	log.Println("=== paper trading demo finished ===")
}
