package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	container "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Container"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewIngestorContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize container: %v\n", err)
		os.Exit(1)
	}

	logger := ctr.GetLogger()
	cfg := ctr.GetConfig()
	logger.Logger.Info().
		Str("store", string(cfg.Store.Driver)).
		Str("bus", string(cfg.Bus.Driver)).
		Msg("Starting telemetry ingestor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := ctr.GetRepository(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize store")
	}

	if err := ctr.Build(repo); err != nil {
		logger.FatalWithError(err, "Failed to build ingestor")
	}

	logger.Info("Telemetry ingestor running... press Ctrl+C to stop")
	runErr := ctr.Run(ctx)
	if runErr != nil {
		logger.ErrorWithError(runErr, "Ingestor stopped with error")
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ctr.Shutdown(shutdownCtx); err != nil || runErr != nil {
		os.Exit(1)
	}
}
