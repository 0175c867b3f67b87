package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Terasay/viau-sub000/internal/api"
	"github.com/Terasay/viau-sub000/internal/catalog"
	"github.com/Terasay/viau-sub000/internal/clock"
	"github.com/Terasay/viau-sub000/internal/config"
	"github.com/Terasay/viau-sub000/internal/ledger"
	"github.com/Terasay/viau-sub000/internal/metrics"
	"github.com/Terasay/viau-sub000/internal/research"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "path", cfg.CatalogPath, "err", err)
		os.Exit(1)
	}

	store, closeStore, err := ledger.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("store open failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	svc := research.NewService(cat, store, clock.RealClock{}, logger)
	if cfg.AdminToken == "" {
		logger.Warn("VIAU_ADMIN_TOKEN is empty, privileged endpoints are disabled")
	}

	server := api.New(cfg, logger, svc, metrics.New("viau"))
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("viau api listening", "addr", cfg.Addr, "store", cfg.Store.Driver, "technologies", cat.Len())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}
