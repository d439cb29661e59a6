package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// CampaignDispatcher is the part of Dispatcher the recovery sweep needs.
type CampaignDispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (*DispatchResult, error)
}

// Recoverer resumes campaigns whose run stopped heartbeating.
type Recoverer struct {
	CampaignRepo repository.CampaignRepositoryInterface
	Dispatcher   CampaignDispatcher
	StaleAfter   time.Duration
	Logger       logger.Logger
	now          func() time.Time
}

func NewRecoverer(repo repository.CampaignRepositoryInterface, d CampaignDispatcher, staleAfter time.Duration, log logger.Logger) *Recoverer {
	return &Recoverer{CampaignRepo: repo, Dispatcher: d, StaleAfter: staleAfter, Logger: log, now: time.Now}
}

// RecoverStale re-dispatches every stale campaign and returns how many were resumed.
// Cancelling ctx stops the sweep before the next campaign; the rest stay dispatching
// and are picked up by a later sweep.
func (r *Recoverer) RecoverStale(ctx context.Context) (int, error) {
	ids, err := r.CampaignRepo.ListStale(ctx, r.now().Add(-r.StaleAfter))
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}
		// Shutdown only stops the sweep between campaigns. A resumed run is finished,
		// since cancelling it would end the campaign as failed.
		res, err := r.Dispatcher.Dispatch(context.WithoutCancel(ctx), id)
		switch {
		case err == nil:
			resumed++
			r.Logger.Info("Recovered stale dispatch", map[string]interface{}{
				"campaign_id": id,
				"status":      string(res.Status),
				"skipped":     res.Skipped,
			})
		case errors.Is(err, appErrors.ErrNoRecipients):
			resumed++
		case errors.Is(err, appErrors.ErrAlreadyDispatching):
			// another process got there first
		default:
			r.Logger.Error("Failed to recover stale dispatch", map[string]interface{}{
				"campaign_id": id,
				"error":       err,
			})
		}
	}
	return resumed, nil
}
