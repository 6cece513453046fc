// Command lazyscout runs the coordination service: it ingests webhook
// (and optionally MQTT) sightings, classifies and enqueues them,
// dispatches scouts under a concurrency cap, and matches returning IV
// data back to the originating entry. See spec.md / SPEC_FULL.md.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lazyscout/lazyscout/internal/config"
	"github.com/lazyscout/lazyscout/internal/orchestrator"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

var version = "dev"

func main() {
	runtimeFilePath := os.Getenv("RUNTIME_CONFIG_PATH")
	if runtimeFilePath == "" {
		runtimeFilePath = "config/runtime.yaml"
	}

	cfg, err := config.Load(runtimeFilePath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := setupLogger(cfg)
	logger.WithField("version", version).Info("starting lazyscout")

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to construct orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				if err := orch.Reload(); err != nil {
					logger.WithField("error", err.Error()).Error("config reload failed")
				}
				continue
			}
			logger.WithField("signal", sig.String()).Info("received shutdown signal")
			cancel()
			return
		}
	}()

	if err := orch.Run(ctx); err != nil {
		logger.WithField("error", err.Error()).Error("orchestrator exited with error")
		os.Exit(1)
	}

	logger.Info("lazyscout stopped")
}

func setupLogger(cfg *config.Config) *utils.Logger {
	return utils.NewFileLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath, 100, 5, 28)
}
