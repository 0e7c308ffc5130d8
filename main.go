package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/petlobby/config"
	"github.com/wfunc/petlobby/logger"
	"github.com/wfunc/petlobby/persistence"
	"github.com/wfunc/petlobby/server"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level); err != nil {
		logger.Log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize record store
	db, err := persistence.Open(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to %s store: %v", cfg.Store.Driver, err)
	}
	defer db.Close()
	logger.Log.Infof("Record store %q ready.", cfg.Store.Driver)

	gameServer := server.NewGameServer(cfg, db)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	case sig := <-quit:
		logger.Log.Infof("Received %s, shutting down.", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Shutdown error: %v", err)
	}
}
