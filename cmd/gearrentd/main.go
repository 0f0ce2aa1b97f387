package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gearrent/config"
	"gearrent/core/events"
	"gearrent/core/state"
	"gearrent/native/rental"
	"gearrent/observability"
	"gearrent/observability/logging"
	"gearrent/rpc"
	"gearrent/settlement"
	"gearrent/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GEARRENT_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup(cfg.ServiceName, env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		logger.Error("Failed to restore state", slog.Any("error", err))
		os.Exit(1)
	}

	journal, err := settlement.NewJournal(db, logger)
	if err != nil {
		logger.Error("Failed to open settlement journal", slog.Any("error", err))
		os.Exit(1)
	}

	admin, err := cfg.Admin()
	if err != nil {
		logger.Error("Failed to decode admin address", slog.Any("error", err))
		os.Exit(1)
	}
	if admin.IsZero() {
		logger.Warn("No admin configured; bulk clear is disabled")
	}

	feed := events.NewFeed(cfg.FeedRetention)
	engine := rental.NewEngine()
	engine.SetState(manager)
	engine.SetPayoutChannel(journal)
	engine.SetAdmin(admin)
	engine.SetEmitter(feed)

	totals := engine.Totals()
	observability.EngineMetrics().SetLedgerTotals(totals.PaidIn, totals.Escrowed, totals.Withdrawn)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics server listening", slog.String("address", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(engine, feed)
	logger.Info("Rental engine ready",
		slog.String("data_dir", cfg.DataDir),
		slog.String("rpc_address", cfg.RPCAddress),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
