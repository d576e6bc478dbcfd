package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanloom/scanloom/internal/config"
	"github.com/scanloom/scanloom/internal/persist"
	"github.com/scanloom/scanloom/internal/server"
	"github.com/scanloom/scanloom/internal/storage"
	"github.com/scanloom/scanloom/internal/storage/postgres"
	"github.com/scanloom/scanloom/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	breakerTimeout, err := time.ParseDuration(cfg.Persistence.BreakerTimeout)
	if err != nil {
		log.Printf("WARNING: invalid breaker timeout %q, using 30s", cfg.Persistence.BreakerTimeout)
		breakerTimeout = 30 * time.Second
	}
	// Every API write goes through the persister, so the circuit breaker
	// and write throttle protect the backend under load. The handlers use
	// its synchronous path; the background queue stays idle here.
	persister := persist.New(store, persist.Config{
		MaxFailures:     uint32(cfg.Persistence.BreakerFailures),
		Timeout:         breakerTimeout,
		WritesPerSecond: cfg.Persistence.WritesPerSecond,
	})

	addr, _, err := server.Start(ctx, cfg, store, persister)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Scanloom scene API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()

	// Let in-flight requests and connections close.
	time.Sleep(1 * time.Second)
}

func openStore(cfg *config.Config) (storage.SceneStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.NewSceneStore(cfg.Storage.PostgresDSN)
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, err
	}
	return sqlite.NewSceneStore(cfg.Storage.DataPath + "/scanloom.db")
}
