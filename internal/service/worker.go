package service

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/pushleopard-backend/internal/gateway"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/metrics"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// deliveryResult is what a worker reports to the accumulator for one recipient.
type deliveryResult struct {
	Endpoint model.RecipientEndpoint
	Outcome  gateway.Outcome
	// Recorded is false when the log already held an entry for this recipient.
	Recorded bool
	// Counted is false only for a duplicate entry; a failed log write still counts as failed.
	Counted bool
	Failed  bool
}

// Worker delivers one campaign message to the endpoints it receives on JobChan
type Worker struct {
	CampaignID string
	Message    gateway.Message
	Gateway    gateway.Gateway
	LogRepo    repository.DeliveryLogRepositoryInterface
	JobChan    <-chan model.RecipientEndpoint
	Results    chan<- deliveryResult
	Logger     logger.Logger

	// RunCtx stops retries once the run is cancelled. Sends and log writes use a
	// context detached from it so an in-flight attempt always completes.
	RunCtx       context.Context
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	now          func() time.Time
}

// Start processes jobs until JobChan is closed
func (w *Worker) Start(wg *sync.WaitGroup) {
	defer wg.Done()
	for ep := range w.JobChan {
		w.Results <- w.deliver(ep)
	}
}

func (w *Worker) deliver(ep model.RecipientEndpoint) deliveryResult {
	detached := context.WithoutCancel(w.RunCtx)
	outcome := w.send(detached, ep)

	now := w.now()
	entry := &model.DeliveryLogEntry{
		CampaignID: w.CampaignID,
		UserID:     ep.UserID,
	}
	if outcome.OK {
		entry.Status = model.DeliveryDelivered
		entry.SentAt = &now
		entry.DeliveredAt = &now
	} else {
		entry.Status = model.DeliveryFailed
		entry.ErrorMessage = outcome.ErrorMessage()
	}

	writeCtx, cancel := context.WithTimeout(detached, w.Timeout)
	defer cancel()
	inserted, err := w.LogRepo.Record(writeCtx, entry)
	if err != nil {
		metrics.DeliveryLogWriteFailures.Inc()
		w.Logger.Error("Failed to write delivery log entry", map[string]interface{}{
			"user_id": ep.UserID,
			"error":   err,
		})
		return deliveryResult{Endpoint: ep, Outcome: outcome, Counted: true, Failed: true}
	}
	if !inserted {
		w.Logger.Warn("Delivery log entry already present", map[string]interface{}{
			"user_id": ep.UserID,
		})
		return deliveryResult{Endpoint: ep, Outcome: outcome}
	}
	return deliveryResult{Endpoint: ep, Outcome: outcome, Recorded: true, Counted: true, Failed: !outcome.OK}
}

// send makes the gateway attempt, re-trying transient reasons while attempts remain.
func (w *Worker) send(ctx context.Context, ep model.RecipientEndpoint) gateway.Outcome {
	var outcome gateway.Outcome
	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, w.Timeout)
		started := time.Now()
		outcome = w.Gateway.Send(sendCtx, ep, w.Message)
		cancel()

		metrics.GatewayLatency.WithLabelValues(w.Gateway.Name()).Observe(time.Since(started).Seconds())
		reason := "ok"
		if !outcome.OK {
			reason = string(outcome.Reason)
		}
		metrics.DeliveryOutcomes.WithLabelValues(w.Gateway.Name(), reason).Inc()

		if outcome.OK || !outcome.Reason.Transient() || attempt >= w.MaxAttempts {
			return outcome
		}

		select {
		case <-w.RunCtx.Done():
			return outcome
		case <-time.After(time.Duration(attempt) * w.RetryBackoff):
		}
	}
}
