// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-signalbot/internal/config"
	"github.com/rovshanmuradov/solana-signalbot/internal/engine"
	"github.com/rovshanmuradov/solana-signalbot/internal/export"
	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
	"github.com/rovshanmuradov/solana-signalbot/internal/logger"
	"github.com/rovshanmuradov/solana-signalbot/internal/notify"
	"github.com/rovshanmuradov/solana-signalbot/internal/storage"
	"github.com/rovshanmuradov/solana-signalbot/internal/storage/mongo"
	"github.com/rovshanmuradov/solana-signalbot/internal/swap"
	"github.com/rovshanmuradov/solana-signalbot/internal/transport"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("🤖 Starting signal bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence is advisory: without a database URI, or when the
	// database is unreachable, the bot runs fully in memory.
	var store storage.Adapter = storage.Noop{}
	if cfg.MongoURI != "" {
		mongoStore, err := mongo.NewStore(ctx, cfg.MongoURI, log.Logger)
		if err != nil {
			log.Warn("⚠️  Database unavailable, running without persistence", zap.Error(err))
		} else {
			store = mongoStore
			defer func() {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer closeCancel()
				_ = mongoStore.Close(closeCtx)
			}()
		}
	}

	session := transport.NewSession(cfg.TransportURL, cfg.PermalinkBase, log.Logger)
	book := ledger.NewBook(log.Logger)

	eng := engine.New(&engine.Config{
		Logger:   log.Logger,
		Settings: settings,
		Book:     book,
		Swap:     swap.NewClient(cfg.SwapAPIURL, log.Logger),
		Store:    store,
		Fanout:   notify.NewFanout(session, cfg.OutboundChannel, log.Logger),
		Session:  session,
	})

	if err := eng.Start(ctx); err != nil {
		log.Error("Failed to start engine", zap.Error(err))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("🛑 Shutdown signal received", zap.String("signal", sig.String()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.Error("Engine shutdown error", zap.Error(err))
	}

	// Dump the session's trade history on the way out when configured.
	if cfg.ExportDir != "" {
		if history := book.Recent(0); len(history) > 0 {
			exporter := export.NewExporter(log.Logger)
			if _, err := exporter.Export(history, export.Options{
				Format:    export.FormatCSV,
				OutputDir: cfg.ExportDir,
			}); err != nil {
				log.Warn("Trade history export failed", zap.Error(err))
			}
		}
	}
}
