package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/gateway"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// accumulator is the single owner of a run's counters. It folds worker results and
// periodically checkpoints them together with the heartbeat.
type accumulator struct {
	campaignID string
	token      string
	repo       repository.CampaignRepositoryInterface
	logger     logger.Logger
	interval   time.Duration
	writeCtx   context.Context
	cancelRun  context.CancelFunc

	counters        model.Counters
	invalid         []model.RecipientEndpoint
	lockLost        bool
	cancelRequested bool
	done            chan struct{}
}

func newAccumulator(writeCtx context.Context, campaignID, token string, seed model.Counters, repo repository.CampaignRepositoryInterface,
	interval time.Duration, cancelRun context.CancelFunc, log logger.Logger) *accumulator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &accumulator{
		campaignID: campaignID,
		token:      token,
		repo:       repo,
		logger:     log,
		interval:   interval,
		writeCtx:   writeCtx,
		cancelRun:  cancelRun,
		counters:   seed,
		done:       make(chan struct{}),
	}
}

func (a *accumulator) run(results <-chan deliveryResult) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			a.fold(r)
		case <-ticker.C:
			a.checkpoint()
		}
	}
}

func (a *accumulator) fold(r deliveryResult) {
	if !r.Outcome.OK && r.Outcome.Reason == gateway.ReasonInvalidToken {
		a.invalid = append(a.invalid, r.Endpoint)
	}
	if !r.Counted {
		return
	}
	a.counters.Sent++
	if r.Failed {
		a.counters.Failed++
	} else {
		a.counters.Delivered++
	}
}

func (a *accumulator) checkpoint() {
	if a.lockLost {
		return
	}
	ctx, cancel := context.WithTimeout(a.writeCtx, 5*time.Second)
	defer cancel()

	cancelRequested, err := a.repo.Checkpoint(ctx, a.campaignID, a.token, a.counters)
	if errors.Is(err, appErrors.ErrLockLost) {
		a.lockLost = true
		a.logger.Error("Dispatch lock lost, stopping run", nil)
		a.cancelRun()
		return
	}
	if err != nil {
		a.logger.Warn("Checkpoint failed", map[string]interface{}{"error": err})
		return
	}
	if cancelRequested && !a.cancelRequested {
		a.cancelRequested = true
		a.logger.Info("Cancellation requested, no further launches", nil)
		a.cancelRun()
	}
}

// wait blocks until results is closed and drained.
func (a *accumulator) wait() {
	<-a.done
}
