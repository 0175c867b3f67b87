package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Terasay/viau-sub000/internal/catalog"
	"github.com/Terasay/viau-sub000/internal/clock"
	"github.com/Terasay/viau-sub000/internal/config"
	"github.com/Terasay/viau-sub000/internal/ledger"
	"github.com/Terasay/viau-sub000/internal/research"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cat := catalog.Default
	if cfg.CatalogPath != "" {
		cat = func() (*catalog.Catalog, error) { return catalog.LoadFile(cfg.CatalogPath) }
	}
	techs, err := cat()
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}

	store, closeStore, err := ledger.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("store open failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	svc := research.NewService(techs, store, clock.RealClock{}, logger)

	if cfg.RunOnce {
		if _, err := svc.AdvanceTurn(ctx, cfg.TurnIncome); err != nil {
			logger.Error("turn failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TurnEvery)
	defer ticker.Stop()

	logger.Info("worker started", "turn_every", cfg.TurnEvery.String(), "income", cfg.TurnIncome)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if _, err := svc.AdvanceTurn(ctx, cfg.TurnIncome); err != nil {
				logger.Error("turn failed", "err", err)
				continue
			}
		}
	}
}
