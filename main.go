package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	auction "github.com/Krishnaraaju/auct-sealed/internal/auctionService"
	"github.com/Krishnaraaju/auct-sealed/internal/config"
	"github.com/Krishnaraaju/auct-sealed/internal/events"
	"github.com/Krishnaraaju/auct-sealed/internal/notifications"
	"github.com/Krishnaraaju/auct-sealed/internal/repository"
	"github.com/Krishnaraaju/auct-sealed/internal/repository/postgres"
	"github.com/Krishnaraaju/auct-sealed/internal/scheduler"
	"github.com/Krishnaraaju/auct-sealed/internal/server"
	"github.com/Krishnaraaju/auct-sealed/utils"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("Failed to load config", map[string]any{"error": err.Error()})
	}

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		utils.Fatal("Failed to initialize store", map[string]any{"error": err.Error()})
	}
	defer cleanup()

	hub := events.NewHub(cfg.Events.SubscriberBuffer)

	auctionSvc := auction.NewAuctionService(store, hub, auction.Config{
		FirstBidStrict: cfg.Bidding.FirstBidStrict,
	})

	sweeper := scheduler.NewSweeper(store, auctionSvc, scheduler.Config{
		Interval:     cfg.Sweep.Interval,
		MaxRetries:   cfg.Sweep.MaxRetries,
		RetryBackoff: cfg.Sweep.RetryBackoff,
	})
	go sweeper.Run(ctx)

	dispatcher := notifications.NewDispatcher(hub, store, notifications.NewMemorySink())
	go dispatcher.Run(ctx)

	limiter := server.NewBidRateLimiter(float64(cfg.Bidding.RateLimitPerSec), cfg.Bidding.RateLimitBurst)
	router := server.SetupRouter(auctionSvc, hub, limiter)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: router,
	}

	go func() {
		utils.Info("Starting auction server", map[string]any{
			"addr": cfg.HTTP.Addr(),
			"env":  cfg.Env,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("HTTP server error", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("Shutting down auction server", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("Server shutdown error", map[string]any{"error": err.Error()})
	}

	// One last sweep so transitions due right now are not left to the restart
	sweeper.RunOnce(shutdownCtx, time.Now())

	utils.Info("Server stopped", nil)
}

// buildStore selects the persistence backend: postgres when a DSN is
// configured, the in-memory store otherwise.
func buildStore(ctx context.Context, cfg *config.Config) (repository.AuctionStore, func(), error) {
	if cfg.Postgres.DSN == "" {
		utils.Info("Using in-memory store", nil)
		return repository.NewMemoryStore(), func() {}, nil
	}

	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	utils.Info("Using postgres store", nil)
	return store, store.Close, nil
}
