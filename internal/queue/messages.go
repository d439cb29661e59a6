package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
)

// DispatchJob asks a worker to run Dispatch for a campaign.
type DispatchJob struct {
	CampaignID  string    `json:"campaign_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// EndpointInvalidEvent reports a token the gateway rejected permanently.
type EndpointInvalidEvent struct {
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func PublishJSON(q Queue, topic string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	return q.Publish(topic, body)
}

// StartDispatchSubscriber runs dispatch jobs. Outcomes that a retry cannot change are acked.
func StartDispatchSubscriber(q Queue, topic string, run func(ctx context.Context, campaignID string) error, log logger.Logger) error {
	return q.Subscribe(topic, func(body []byte) error {
		var job DispatchJob
		if err := json.Unmarshal(body, &job); err != nil {
			log.Warn("Invalid dispatch job", map[string]interface{}{"error": err})
			return nil
		}

		err := run(context.Background(), job.CampaignID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, appErrors.ErrAlreadyDispatching),
			errors.Is(err, appErrors.ErrNoRecipients),
			errors.Is(err, appErrors.ErrLockLost),
			appErrors.IsNotFound(err),
			appErrors.IsInvalidState(err):
			log.Info("Dispatch job dropped", map[string]interface{}{
				"campaign_id": job.CampaignID,
				"reason":      err.Error(),
			})
			return nil
		default:
			return err
		}
	})
}

// StartEndpointInvalidSubscriber removes endpoints reported as invalid.
func StartEndpointInvalidSubscriber(q Queue, topic string, remove func(ctx context.Context, userID, token string) error, log logger.Logger) error {
	return q.Subscribe(topic, func(body []byte) error {
		var ev EndpointInvalidEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			log.Warn("Invalid endpoint event", map[string]interface{}{"error": err})
			return nil
		}
		return remove(context.Background(), ev.UserID, ev.Token)
	})
}
