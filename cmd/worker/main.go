// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/pushleopard-backend/internal/app"
	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewStructured("error", "json").Error("Failed to load config", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Queue.Driver != "amqp" {
		log.Warn("Worker running without a broker; only stale recovery is active", map[string]interface{}{"driver": cfg.Queue.Driver})
	} else if err := a.StartConsumers(); err != nil {
		log.Error("Failed to register consumers", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	c, err := scheduleRecovery(ctx, cfg.Dispatch.RecoverySchedule, a.Recoverer, log)
	if err != nil {
		log.Error("Invalid recovery schedule", map[string]interface{}{"error": err, "schedule": cfg.Dispatch.RecoverySchedule})
		os.Exit(1)
	}
	c.Start()

	log.Info("Worker running, waiting for messages...", map[string]interface{}{
		"dispatch_topic": cfg.Queue.DispatchTopic,
		"schedule":       cfg.Dispatch.RecoverySchedule,
	})
	<-ctx.Done()

	// Wait for a recovery sweep in progress before closing connections.
	<-c.Stop().Done()
	log.Info("Worker stopped", nil)
}
