package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cta-core/internal/api"
	"cta-core/internal/cta"
	"cta-core/internal/events"
	"cta-core/internal/market"
	"cta-core/internal/monitor"
	"cta-core/internal/strategies"
	"cta-core/pkg/config"
	"cta-core/pkg/db"
	"cta-core/pkg/exchanges/common"
	"cta-core/pkg/exchanges/paper"
)

const buildVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := db.NewStore(database)
	defer store.Close()

	bus := events.NewBus(cfg.TimerInterval)
	mon := monitor.New(bus)

	engine := cta.NewEngine(bus, store)
	if err := strategies.RegisterAll(engine); err != nil {
		log.Fatalf("register strategies: %v", err)
	}

	contracts := loadContracts(cfg)

	gateway := paper.NewGateway(bus, "PAPER", cfg.PaperInitialBalance, cfg.PaperSlippageTicks)
	engine.AddGateway(gateway.Name(), gateway)
	for _, c := range contracts {
		gateway.AddContract(c)
	}

	// Recorder builds the bar/tick history strategies replay on init.
	market.NewRecorder(bus, store)

	bus.Start()
	defer bus.Stop()

	engine.Init()
	engine.AddContracts(contracts)
	gateway.Connect()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.UseMockFeed {
		mock := &market.MockFeed{
			Bus:       bus,
			Matcher:   gateway,
			Contracts: contracts,
		}
		mock.Run(ctx)
		log.Println("mock feed started")
	} else {
		feed := &market.Feed{
			URL:     cfg.FeedURL,
			Bus:     bus,
			Matcher: gateway,
			Symbols: cfg.Symbols,
		}
		feed.Start(ctx)
		log.Printf("market feed started: %s", cfg.FeedURL)
	}

	server := api.NewServer(bus, engine, mon, api.SystemMeta{
		Symbols:     cfg.Symbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     buildVersion,
	}, cfg.JWTSecret, cfg.APIRateLimit, cfg.APIRateBurst)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()
	log.Printf("api listening on :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

// loadContracts reads the YAML instrument table, falling back to
// minimal defaults built from the configured symbols so the runtime
// stays usable without a contracts file.
func loadContracts(cfg *config.Config) []*common.Contract {
	contracts, err := config.LoadContracts(cfg.ContractsPath)
	if err != nil {
		log.Fatalf("load contracts: %v", err)
	}
	if len(contracts) > 0 {
		return contracts
	}

	for _, vtSymbol := range cfg.Symbols {
		symbol, exchange := common.SplitSymbol(vtSymbol)
		if symbol == "" || exchange == "" {
			log.Printf("skipping malformed symbol %q", vtSymbol)
			continue
		}
		contracts = append(contracts, &common.Contract{
			Symbol:    symbol,
			Exchange:  exchange,
			PriceTick: 0.01,
			MinVolume: 1,
		})
	}
	return contracts
}
