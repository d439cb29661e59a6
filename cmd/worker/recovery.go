package main

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
)

// staleRecoverer is satisfied by service.Recoverer.
type staleRecoverer interface {
	RecoverStale(ctx context.Context) (int, error)
}

// scheduleRecovery registers the stale-dispatch sweep. Overlapping sweeps are skipped.
func scheduleRecovery(ctx context.Context, spec string, r staleRecoverer, log logger.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() { runRecovery(ctx, r, log) })
	if err != nil {
		return nil, err
	}
	return c, nil
}

func runRecovery(ctx context.Context, r staleRecoverer, log logger.Logger) {
	resumed, err := r.RecoverStale(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("Stale recovery sweep stopped for shutdown", map[string]interface{}{"resumed": resumed})
		return
	}
	if err != nil {
		log.Error("Stale recovery sweep failed", map[string]interface{}{"error": err})
		return
	}
	if resumed > 0 {
		log.Info("Stale recovery sweep finished", map[string]interface{}{"resumed": resumed})
	}
}
