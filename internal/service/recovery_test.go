package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

type stubDispatcher struct {
	errs  map[string]error
	calls []string
}

func (s *stubDispatcher) Dispatch(ctx context.Context, campaignID string) (*DispatchResult, error) {
	s.calls = append(s.calls, campaignID)
	if err := s.errs[campaignID]; err != nil {
		return nil, err
	}
	return &DispatchResult{CampaignID: campaignID, Status: model.CampaignSent}, nil
}

func TestRecoverer_RecoverStale(t *testing.T) {
	repo := newFakeCampaignRepo()
	repo.stale = []string{"c-1", "c-2", "c-3", "c-4"}
	d := &stubDispatcher{errs: map[string]error{
		"c-2": appErrors.ErrAlreadyDispatching,
		"c-3": errors.New("database unavailable"),
		"c-4": appErrors.ErrNoRecipients,
	}}

	r := NewRecoverer(repo, d, 5*time.Minute, logger.NewTestLogger(t))
	resumed, err := r.RecoverStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, resumed)
	assert.Equal(t, []string{"c-1", "c-2", "c-3", "c-4"}, d.calls)
}

func TestRecoverer_ResumesStuckCampaignEndToEnd(t *testing.T) {
	h := newHarness(t, defaultOptions())
	stale := time.Now().Add(-time.Hour)
	c := h.campaigns.add(&model.Campaign{Title: "t", Body: "b", Status: model.CampaignDispatching, HeartbeatAt: &stale})
	h.logs.seed(c.ID, "u1", model.DeliveryDelivered)
	h.recipients.endpoints = endpoints("u1", "u2")
	h.campaigns.stale = []string{c.ID}

	r := NewRecoverer(h.campaigns, h.d, 5*time.Minute, logger.NewTestLogger(t))
	resumed, err := r.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	stored := h.campaigns.get(c.ID)
	assert.Equal(t, model.CampaignSent, stored.Status)
	assert.Equal(t, 2, stored.SentCount)
	assert.Equal(t, 2, h.logs.count(c.ID))
	assert.Equal(t, 0, h.gw.callCount("u1"))
}

func TestRecoverer_ShutdownDoesNotFailResumedCampaign(t *testing.T) {
	h := newHarness(t, defaultOptions())
	stale := time.Now().Add(-time.Hour)
	first := h.campaigns.add(&model.Campaign{Title: "t", Body: "b", Status: model.CampaignDispatching, HeartbeatAt: &stale})
	second := h.campaigns.add(&model.Campaign{Title: "t", Body: "b", Status: model.CampaignDispatching, HeartbeatAt: &stale})
	h.recipients.endpoints = endpoints("u1", "u2", "u3", "u4")
	h.campaigns.stale = []string{first.ID, second.ID}

	ctx, shutdown := context.WithCancel(context.Background())
	defer shutdown()
	h.gw.onSend = func(string) { shutdown() }

	r := NewRecoverer(h.campaigns, h.d, 5*time.Minute, logger.NewTestLogger(t))
	resumed, err := r.RecoverStale(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, resumed)

	done := h.campaigns.get(first.ID)
	assert.Equal(t, model.CampaignSent, done.Status)
	assert.Equal(t, 4, done.SentCount)
	assert.Equal(t, 4, h.logs.count(first.ID))

	// The sweep stopped before the second campaign, which a later sweep can still resume.
	assert.Equal(t, model.CampaignDispatching, h.campaigns.get(second.ID).Status)
	later, err := NewRecoverer(h.campaigns, h.d, 5*time.Minute, logger.NewTestLogger(t)).RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, later)
	assert.Equal(t, model.CampaignSent, h.campaigns.get(second.ID).Status)
}
