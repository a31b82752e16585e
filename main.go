package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engine-core/internal/api"
	"engine-core/internal/engine"
	"engine-core/internal/events"
	"engine-core/internal/market"
	"engine-core/internal/monitor"
	"engine-core/internal/order"
	"engine-core/internal/recovery"
	"engine-core/internal/registry"
	"engine-core/internal/risk"
	sig "engine-core/internal/signal"
	"engine-core/pkg/config"
	"engine-core/pkg/db"
	"engine-core/pkg/ident"
	"engine-core/pkg/logging"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.Production)
	defer log.Sync()

	instanceID := ident.InstanceID()
	log.Info("engine core starting",
		zap.String("instance_id", instanceID),
		zap.Strings("symbols", cfg.Symbols))

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("database open failed", zap.Error(err))
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	reg := registry.New(database, log, instanceID)
	if rows, err := reg.LoadSnapshot(ctx); err == nil && len(rows) > 0 {
		for _, row := range rows {
			log.Info("previous run left registry entry",
				zap.String("symbol", row.Symbol),
				zap.String("status", row.Status))
		}
	}

	riskMgr := risk.NewManager(risk.Policy{
		MaxDailyLossPct:        cfg.MaxDailyLossPct,
		MaxConcurrentPositions: cfg.MaxConcurrentPositions,
		KellyFraction:          cfg.KellyFraction,
		VolTargetAnn:           cfg.VolTargetAnn,
		MaxSymbolRiskPct:       cfg.MaxSymbolRiskPct,
	}, cfg.InitialEquity, log)
	riskMgr.SetAlerts(&bus.Risk)

	// Market data: mock for local runs, websocket stream otherwise.
	if cfg.UseMockFeed {
		feed := &market.MockFeed{
			Bus:     bus,
			Log:     log,
			Symbols: cfg.Symbols,
		}
		feed.Start(ctx)
	} else {
		market.NewStreamFeed(cfg.FeedURL, bus, log).Start(ctx)
	}

	producer, err := sig.NewWorkerClient(cfg.SignalWorkerAddr, cfg.SignalWorkerTimeout)
	if err != nil {
		log.Fatal("signal worker client failed", zap.Error(err))
	}
	defer producer.Close()

	executor := order.NewPaperExecutor(database, bus, log, cfg.ExecutorRate)
	metrics := monitor.NewCycleMetrics()

	fleet, err := config.LoadFleet(cfg.FleetFile)
	if err != nil {
		log.Warn("fleet file not loaded, using defaults for all symbols",
			zap.String("path", cfg.FleetFile), zap.Error(err))
	}
	overrides := make(map[string]config.EngineConfig, len(fleet))
	symbols := cfg.Symbols
	if len(fleet) > 0 {
		symbols = symbols[:0]
		for _, e := range fleet {
			overrides[e.Symbol] = e
			if e.IsEnabled() {
				symbols = append(symbols, e.Symbol)
			}
		}
	}
	cfgFor := func(symbol string) engine.Config {
		ec := engine.Config{CycleInterval: cfg.CycleInterval}
		if o, ok := overrides[symbol]; ok {
			if o.CycleInterval > 0 {
				ec.CycleInterval = o.CycleInterval
			}
			ec.VolWindow = o.VolWindow
		}
		return ec
	}

	deps := engine.Deps{
		Producer: producer,
		Executor: executor,
		Risk:     riskMgr,
		Registry: reg,
		Observer: metrics,
	}
	policy := recovery.New(cfg.MaxRestartsPerHour, cfg.BackoffBase)
	mgr := engine.NewManager(ctx, cfgFor, deps, policy, bus, log)
	mgr.StartAll(symbols)

	hm := monitor.NewHealthMonitor(mgr, log)
	hm.Interval = cfg.MonitorInterval
	hm.HeartbeatTimeout = cfg.HeartbeatTimeout
	hm.ErrorSpike = cfg.ErrorSpike
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	hm.Start(monitorCtx)
	mgr.SetMonitorStop(stopMonitor)

	server := api.NewServer(mgr, riskMgr, metrics, bus, log, cfg.JWTSecret)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()
	log.Info("engine core ready", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received")
	mgr.StopAll(15 * time.Second)
	cancel()
	log.Info("engine core stopped")
}
