// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/service"
)

// CampaignReader is the reporting side of the campaign service.
type CampaignReader interface {
	ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, service.Pagination, error)
	GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*service.CampaignDetails, error)
	ListDeliveries(ctx context.Context, campaignID string, page, pageSize int) ([]*model.DeliveryLogEntry, service.Pagination, error)
	Overview(ctx context.Context) (*model.Overview, error)
}

var _ CampaignReader = (*service.CampaignService)(nil)

// CampaignHandler serves the read-only reporting endpoints.
type CampaignHandler struct {
	Service CampaignReader
	Logger  logger.Logger
}

func NewCampaignHandler(svc CampaignReader, log logger.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Logger: log}
}

// ListCampaignsHandler returns a paginated list of campaigns
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := h.Service.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, details)
}

func (h *CampaignHandler) ListDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	entries, pagination, err := h.Service.ListDeliveries(r.Context(), chi.URLParam(r, "id"), page, pageSize)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       entries,
		"pagination": pagination,
	})
}

func (h *CampaignHandler) OverviewHandler(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.Overview(r.Context())
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, o)
}
