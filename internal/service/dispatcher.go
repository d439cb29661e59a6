// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/unclebandit/pushleopard-backend/internal/config"
	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/gateway"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/metrics"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/queue"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// DispatchResult summarises one run. Per-recipient detail lives in the delivery log.
type DispatchResult struct {
	CampaignID string               `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	model.Counters
	Recipients int  `json:"recipients"`
	Skipped    int  `json:"skipped"`
	Resumed    bool `json:"resumed"`
	Cancelled  bool `json:"cancelled"`
}

type DispatchOptions struct {
	Workers            int
	RatePerSec         int
	MaxAttempts        int
	RetryBackoff       time.Duration
	CheckpointInterval time.Duration
	StaleAfter         time.Duration
	GatewayTimeout     time.Duration
	EndpointTopic      string
}

func DispatchOptionsFromConfig(cfg *config.Config) DispatchOptions {
	return DispatchOptions{
		Workers:            cfg.Dispatch.Workers,
		RatePerSec:         cfg.Dispatch.RatePerSec,
		MaxAttempts:        cfg.Dispatch.MaxAttempts,
		RetryBackoff:       config.GetDuration(cfg.Dispatch.RetryBackoff),
		CheckpointInterval: config.GetDuration(cfg.Dispatch.CheckpointInterval),
		StaleAfter:         config.GetDuration(cfg.Dispatch.StaleAfter),
		GatewayTimeout:     config.GetDuration(cfg.Gateway.Timeout),
		EndpointTopic:      cfg.Queue.EndpointEventsTopic,
	}
}

// staleFloor is the shortest liveness window that a heartbeating run always stays inside.
func staleFloor(opts DispatchOptions) time.Duration {
	longest := opts.CheckpointInterval
	if opts.GatewayTimeout > longest {
		longest = opts.GatewayTimeout
	}
	return 3 * longest
}

// Dispatcher fans a campaign out to every registered recipient.
type Dispatcher struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	LogRepo       repository.DeliveryLogRepositoryInterface
	AuditRepo     repository.AuditRepositoryInterface
	Gateway       gateway.Gateway
	Queue         queue.Queue
	Logger        logger.Logger

	opts    DispatchOptions
	limiter *rate.Limiter
	now     func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewDispatcher(
	campaignRepo repository.CampaignRepositoryInterface,
	recipientRepo repository.RecipientRepositoryInterface,
	logRepo repository.DeliveryLogRepositoryInterface,
	auditRepo repository.AuditRepositoryInterface,
	gw gateway.Gateway,
	q queue.Queue,
	log logger.Logger,
	opts DispatchOptions,
) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 2 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	// A live run must never look stale, or a second run would take it over.
	if floor := staleFloor(opts); opts.StaleAfter < floor {
		log.Warn("dispatch stale_after raised to keep live runs from being taken over", map[string]interface{}{
			"configured": opts.StaleAfter.String(),
			"effective":  floor.String(),
		})
		opts.StaleAfter = floor
	}

	limit := rate.Inf
	burst := opts.Workers
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = opts.RatePerSec
	}

	return &Dispatcher{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		LogRepo:       logRepo,
		AuditRepo:     auditRepo,
		Gateway:       gw,
		Queue:         q,
		Logger:        log,
		opts:          opts,
		limiter:       rate.NewLimiter(limit, burst),
		now:           time.Now,
		running:       make(map[string]context.CancelFunc),
	}
}

// Dispatch runs the campaign to a terminal status. Cancelling ctx, or calling Cancel,
// stops new launches; the run then ends as failed with the counters of completed attempts.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string) (*DispatchResult, error) {
	token := uuid.NewString()
	staleBefore := d.now().Add(-d.opts.StaleAfter)

	acquired, err := d.CampaignRepo.AcquireDispatch(ctx, campaignID, token, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !acquired {
		return nil, d.refusal(ctx, campaignID)
	}

	started := time.Now()
	metrics.DispatchRunsActive.Inc()
	defer metrics.DispatchRunsActive.Dec()

	log := d.Logger.With(map[string]interface{}{"campaign_id": campaignID})

	campaign, prior, endpoints, err := d.snapshot(ctx, campaignID)
	if err != nil {
		log.WithError(err).Error("Snapshot failed, releasing campaign", nil)
		if relErr := d.CampaignRepo.Release(context.WithoutCancel(ctx), campaignID, token); relErr != nil {
			log.WithError(relErr).Error("Failed to release dispatch lock", nil)
		}
		return nil, err
	}

	seed := model.Counters{}
	for _, status := range prior {
		seed.Sent++
		if status == model.DeliveryFailed {
			seed.Failed++
		} else {
			seed.Delivered++
		}
	}

	pending := make([]model.RecipientEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if _, done := prior[ep.UserID]; done {
			continue
		}
		pending = append(pending, ep)
	}

	result := &DispatchResult{
		CampaignID: campaignID,
		Recipients: len(prior) + len(pending),
		Skipped:    len(endpoints) - len(pending),
		Resumed:    len(prior) > 0,
	}

	if result.Recipients == 0 {
		if err := d.complete(ctx, campaign, token, model.CampaignFailed, seed, result, nil, started); err != nil {
			return nil, err
		}
		log.Warn("No recipients registered, campaign failed", nil)
		return result, appErrors.ErrNoRecipients
	}

	log.Info("Dispatch started", map[string]interface{}{
		"recipients": result.Recipients,
		"pending":    len(pending),
		"skipped":    result.Skipped,
		"resumed":    result.Resumed,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.register(campaignID, cancel)
	defer d.unregister(campaignID)

	acc := newAccumulator(context.WithoutCancel(ctx), campaignID, token, seed, d.CampaignRepo,
		d.opts.CheckpointInterval, cancel, log)
	results := make(chan deliveryResult, d.opts.Workers)
	go acc.run(results)

	jobs := make(chan model.RecipientEndpoint)
	var wg sync.WaitGroup
	msg := BuildMessage(campaign)
	for i := 0; i < d.opts.Workers; i++ {
		w := &Worker{
			CampaignID:   campaignID,
			Message:      msg,
			Gateway:      d.Gateway,
			LogRepo:      d.LogRepo,
			JobChan:      jobs,
			Results:      results,
			Logger:       log,
			RunCtx:       runCtx,
			Timeout:      d.opts.GatewayTimeout,
			MaxAttempts:  d.opts.MaxAttempts,
			RetryBackoff: d.opts.RetryBackoff,
			now:          d.now,
		}
		wg.Add(1)
		go w.Start(&wg)
	}

	launched := d.feed(runCtx, jobs, pending)
	close(jobs)

	// Join: every launched worker has reported before the terminal write.
	wg.Wait()
	close(results)
	acc.wait()

	if acc.lockLost {
		return nil, appErrors.ErrLockLost
	}

	// A cancel that lands after the last launch does not fail a complete run.
	result.Cancelled = launched < len(pending)
	status := model.CampaignFailed
	if acc.counters.Sent > 0 && !result.Cancelled {
		status = model.CampaignSent
	}
	if err := d.complete(ctx, campaign, token, status, acc.counters, result, acc.invalid, started); err != nil {
		return nil, err
	}

	log.Info("Dispatch finished", map[string]interface{}{
		"status":          string(result.Status),
		"sent_count":      result.Sent,
		"delivered_count": result.Delivered,
		"failed_count":    result.Failed,
		"cancelled":       result.Cancelled,
	})
	return result, nil
}

func (d *Dispatcher) snapshot(ctx context.Context, campaignID string) (*model.Campaign, map[string]model.DeliveryStatus, []model.RecipientEndpoint, error) {
	campaign, err := d.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load campaign: %w", err)
	}
	prior, err := d.LogRepo.Attempted(ctx, campaignID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load delivery log: %w", err)
	}
	endpoints, err := d.RecipientRepo.Snapshot(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load recipients: %w", err)
	}
	return campaign, prior, endpoints, nil
}

// feed hands endpoints to the pool, pacing launches through the shared limiter.
// It returns how many were launched before ctx was cancelled.
func (d *Dispatcher) feed(ctx context.Context, jobs chan<- model.RecipientEndpoint, pending []model.RecipientEndpoint) int {
	launched := 0
	for _, ep := range pending {
		if err := d.limiter.Wait(ctx); err != nil {
			return launched
		}
		if ctx.Err() != nil {
			return launched
		}
		select {
		case jobs <- ep:
			launched++
		case <-ctx.Done():
			return launched
		}
	}
	return launched
}

func (d *Dispatcher) complete(ctx context.Context, campaign *model.Campaign, token string, status model.CampaignStatus,
	counters model.Counters, result *DispatchResult, invalid []model.RecipientEndpoint, started time.Time) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := d.CampaignRepo.Complete(writeCtx, campaign.ID, token, status, counters); err != nil {
		if errors.Is(err, appErrors.ErrLockLost) {
			return err
		}
		return fmt.Errorf("write terminal status: %w", err)
	}

	result.Status = status
	result.Counters = counters

	metrics.DispatchRuns.WithLabelValues(string(status)).Inc()
	metrics.DispatchRunDuration.Observe(time.Since(started).Seconds())

	d.audit(writeCtx, campaign, result)
	d.publishInvalid(campaign.ID, invalid)
	return nil
}

func (d *Dispatcher) audit(ctx context.Context, campaign *model.Campaign, result *DispatchResult) {
	if d.AuditRepo == nil {
		return
	}
	entry := &model.AuditLog{
		AdminUserID: campaign.CreatedBy,
		ActionType:  model.ActionPushNotificationSent,
		Details: map[string]interface{}{
			"notification_id": campaign.ID,
			"title":           campaign.Title,
			"target_type":     campaign.TargetType,
			"status":          string(result.Status),
			"result": map[string]interface{}{
				"sent_count":      result.Sent,
				"delivered_count": result.Delivered,
				"failed_count":    result.Failed,
				"cancelled":       result.Cancelled,
			},
		},
	}
	if err := d.AuditRepo.Insert(ctx, entry); err != nil {
		d.Logger.Error("Failed to write audit entry", map[string]interface{}{
			"campaign_id": campaign.ID,
			"error":       err,
		})
	}
}

func (d *Dispatcher) publishInvalid(campaignID string, invalid []model.RecipientEndpoint) {
	if d.Queue == nil || d.opts.EndpointTopic == "" {
		return
	}
	for _, ep := range invalid {
		ev := queue.EndpointInvalidEvent{
			CampaignID: campaignID,
			UserID:     ep.UserID,
			Token:      ep.Token,
			Reason:     string(gateway.ReasonInvalidToken),
			OccurredAt: d.now(),
		}
		if err := queue.PublishJSON(d.Queue, d.opts.EndpointTopic, ev); err != nil {
			d.Logger.Warn("Failed to publish endpoint event", map[string]interface{}{
				"campaign_id": campaignID,
				"user_id":     ep.UserID,
				"error":       err,
			})
		}
	}
}

// refusal explains why the lock could not be taken.
func (d *Dispatcher) refusal(ctx context.Context, campaignID string) error {
	c, err := d.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	switch c.Status {
	case model.CampaignDraft, model.CampaignSent, model.CampaignFailed:
		return appErrors.NewInvalidState(campaignID, string(c.Status), "dispatch")
	default:
		// dispatching, or pending that another caller took between our update and read
		return appErrors.ErrAlreadyDispatching
	}
}

// Cancel stops a running dispatch. A run in this process is cancelled directly; a run in
// another process sees the flag at its next checkpoint.
func (d *Dispatcher) Cancel(ctx context.Context, campaignID string) error {
	flagged, err := d.CampaignRepo.RequestCancel(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}

	d.mu.Lock()
	cancel, local := d.running[campaignID]
	d.mu.Unlock()
	if local {
		cancel()
	}

	if flagged || local {
		d.Logger.Info("Dispatch cancellation requested", map[string]interface{}{
			"campaign_id": campaignID,
			"local":       local,
		})
		return nil
	}
	if _, err := d.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return err
	}
	return appErrors.ErrNotDispatching
}

func (d *Dispatcher) register(campaignID string, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[campaignID] = cancel
}

func (d *Dispatcher) unregister(campaignID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, campaignID)
}
