// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/handler"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/service"
	"github.com/unclebandit/pushleopard-backend/internal/validation"
)

const maxBodyBytes = 1 << 20

// CampaignWriter is the command side of the campaign service.
type CampaignWriter interface {
	CreateCampaign(ctx context.Context, in service.CreateCampaignInput) (*model.Campaign, error)
	Submit(ctx context.Context, campaignID string) (*model.Campaign, error)
	RequestDispatch(ctx context.Context, campaignID string) error
	TrackClick(ctx context.Context, campaignID, userID string) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string) (*service.DispatchResult, error)
	Cancel(ctx context.Context, campaignID string) error
}

type Registrar interface {
	Register(ctx context.Context, userID, token, platform string) (*model.RecipientEndpoint, error)
}

var (
	_ CampaignWriter = (*service.CampaignService)(nil)
	_ Dispatcher     = (*service.Dispatcher)(nil)
	_ Registrar      = (*service.RegistrationService)(nil)
)

type CampaignController struct {
	CampaignService CampaignWriter
	Dispatcher      Dispatcher
	Registration    Registrar
	Logger          logger.Logger
}

// readValidated reads the request body and checks it against a JSON schema.
func readValidated(r *http.Request, check func([]byte) error) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, appErrors.NewValidation("unreadable body: " + err.Error())
	}
	if err := check(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	raw, err := readValidated(r, validation.Campaign)
	if err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}

	var in service.CreateCampaignInput
	if err := json.Unmarshal(raw, &in); err != nil {
		handler.WriteError(w, r, c.Logger, appErrors.NewValidation("invalid body: "+err.Error()))
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), in)
	if err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) SubmitCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := c.CampaignService.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, campaign)
}

// DispatchCampaign runs the dispatch inline and returns the counters, or queues
// it for a worker when called with ?async=true.
func (c *CampaignController) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("async") == "true" {
		if err := c.CampaignService.RequestDispatch(r.Context(), id); err != nil {
			handler.WriteError(w, r, c.Logger, err)
			return
		}
		handler.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"campaign_id": id,
			"status":      "queued",
		})
		return
	}

	// A dropped client connection must not abort the run.
	result, err := c.Dispatcher.Dispatch(context.WithoutCancel(r.Context()), id)
	switch {
	case err == nil:
		handler.WriteJSON(w, http.StatusOK, result)
	case errors.Is(err, appErrors.ErrNoRecipients) && result != nil:
		handler.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
	default:
		handler.WriteError(w, r, c.Logger, err)
	}
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.Dispatcher.Cancel(r.Context(), id); err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id":      id,
		"cancel_requested": true,
	})
}

// TrackClick answers 204 whether or not the click was counted.
func (c *CampaignController) TrackClick(w http.ResponseWriter, r *http.Request) {
	raw, err := readValidated(r, validation.Click)
	if err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		handler.WriteError(w, r, c.Logger, appErrors.NewValidation("invalid body: "+err.Error()))
		return
	}

	if _, err := c.CampaignService.TrackClick(r.Context(), chi.URLParam(r, "id"), body.UserID); err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *CampaignController) RegisterRecipient(w http.ResponseWriter, r *http.Request) {
	raw, err := readValidated(r, validation.Recipient)
	if err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	var body struct {
		UserID   string `json:"user_id"`
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		handler.WriteError(w, r, c.Logger, appErrors.NewValidation("invalid body: "+err.Error()))
		return
	}

	endpoint, err := c.Registration.Register(r.Context(), body.UserID, body.Token, body.Platform)
	if err != nil {
		handler.WriteError(w, r, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, endpoint)
}
