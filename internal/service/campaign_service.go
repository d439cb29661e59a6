// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/queue"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// StatsCache stores reporting snapshots of finished campaigns.
type StatsCache interface {
	Get(ctx context.Context, campaignID string, dest interface{}) (bool, error)
	Set(ctx context.Context, campaignID string, v interface{}) error
	Invalidate(ctx context.Context, campaignID string) error
}

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	LogRepo       repository.DeliveryLogRepositoryInterface
	Queue         queue.Queue
	DispatchTopic string
	Cache         StatsCache
	Logger        logger.Logger
}

type CreateCampaignInput struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	ImageURL    string            `json:"image_url"`
	CTAURL      string            `json:"cta_url"`
	DataPayload map[string]string `json:"data_payload"`
	TargetType  string            `json:"target_type"`
	CreatedBy   string            `json:"created_by"`
	Draft       bool              `json:"draft"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p *Pagination) setTotal(total int) {
	p.TotalCount = total
	p.TotalPages = (total + p.PageSize - 1) / p.PageSize
}

func validateCampaignInput(in CreateCampaignInput) error {
	var problems []string
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Body)

	if title == "" {
		problems = append(problems, "title is required")
	} else if utf8.RuneCountInString(title) > model.MaxTitleLength {
		problems = append(problems, fmt.Sprintf("title must be at most %d characters", model.MaxTitleLength))
	}
	if body == "" {
		problems = append(problems, "body is required")
	} else if utf8.RuneCountInString(body) > model.MaxBodyLength {
		problems = append(problems, fmt.Sprintf("body must be at most %d characters", model.MaxBodyLength))
	}
	for field, raw := range map[string]string{"image_url": in.ImageURL, "cta_url": in.CTAURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, field+" must be an absolute http(s) URL")
		}
	}
	if in.TargetType != "" && in.TargetType != model.TargetAll {
		problems = append(problems, "target_type must be \"all\"")
	}

	if len(problems) > 0 {
		return appErrors.NewValidation(problems...)
	}
	return nil
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if err := validateCampaignInput(in); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Title:       strings.TrimSpace(in.Title),
		Body:        strings.TrimSpace(in.Body),
		ImageURL:    in.ImageURL,
		CTAURL:      in.CTAURL,
		DataPayload: in.DataPayload,
		TargetType:  model.TargetAll,
		Status:      model.CampaignPending,
		CreatedBy:   in.CreatedBy,
	}
	if in.Draft {
		c.Status = model.CampaignDraft
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

// Submit moves a draft campaign to pending.
func (s *CampaignService) Submit(ctx context.Context, campaignID string) (*model.Campaign, error) {
	ok, err := s.CampaignRepo.Submit(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("submit campaign: %w", err)
	}
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.NewInvalidState(campaignID, string(c.Status), "submit")
	}
	return c, nil
}

// RequestDispatch queues a dispatch job for a worker process.
func (s *CampaignService) RequestDispatch(ctx context.Context, campaignID string) error {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	switch c.Status {
	case model.CampaignPending:
	case model.CampaignDispatching:
		return appErrors.ErrAlreadyDispatching
	default:
		return appErrors.NewInvalidState(campaignID, string(c.Status), "dispatch")
	}

	job := queue.DispatchJob{CampaignID: campaignID, RequestedAt: time.Now().UTC()}
	if err := queue.PublishJSON(s.Queue, s.DispatchTopic, job); err != nil {
		return fmt.Errorf("queue dispatch job: %w", err)
	}
	s.Logger.Info("Dispatch job queued", map[string]interface{}{"campaign_id": campaignID})
	return nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, Pagination, error) {
	p := newPagination(page, pageSize)
	campaigns, total, err := s.CampaignRepo.ListCampaigns(ctx, p.offset(), p.PageSize, status)
	if err != nil {
		return nil, p, err
	}
	p.setTotal(total)
	return campaigns, p, nil
}

// GetCampaignDetailsWithStats returns the campaign with its delivery log grouped by status.
// Snapshots of terminal campaigns are served from the cache when one is configured.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*CampaignDetails, error) {
	if s.Cache != nil {
		var cached CampaignDetails
		hit, err := s.Cache.Get(ctx, campaignID, &cached)
		if err != nil {
			s.Logger.Warn("Stats cache read failed", map[string]interface{}{"campaign_id": campaignID, "error": err})
		} else if hit {
			return &cached, nil
		}
	}

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.LogRepo.StatsByStatus(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load delivery stats: %w", err)
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["total"] = total

	details := &CampaignDetails{Campaign: campaign, Stats: stats}

	if s.Cache != nil && campaign.Status.Terminal() {
		s.cacheDetails(ctx, details)
	}
	return details, nil
}

// cacheDetails stores a terminal snapshot, then drops it again if a click landed
// between our read and the write, since that click's invalidation came too early.
func (s *CampaignService) cacheDetails(ctx context.Context, details *CampaignDetails) {
	id := details.ID
	if err := s.Cache.Set(ctx, id, details); err != nil {
		s.Logger.Warn("Stats cache write failed", map[string]interface{}{"campaign_id": id, "error": err})
		return
	}
	current, err := s.CampaignRepo.GetByID(ctx, id)
	if err == nil && current.ClickCount == details.ClickCount {
		return
	}
	if err := s.Cache.Invalidate(ctx, id); err != nil {
		s.Logger.Warn("Stats cache invalidation failed", map[string]interface{}{"campaign_id": id, "error": err})
	}
}

func (s *CampaignService) ListDeliveries(ctx context.Context, campaignID string, page, pageSize int) ([]*model.DeliveryLogEntry, Pagination, error) {
	p := newPagination(page, pageSize)
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, p, err
	}
	entries, total, err := s.LogRepo.ListByCampaign(ctx, campaignID, p.offset(), p.PageSize)
	if err != nil {
		return nil, p, err
	}
	p.setTotal(total)
	return entries, p, nil
}

// TrackClick records a recipient's click. Only the first click on a delivered
// entry counts; anything else is a silent no-op.
func (s *CampaignService) TrackClick(ctx context.Context, campaignID, userID string) (bool, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return false, err
	}
	clicked, err := s.LogRepo.MarkClicked(ctx, campaignID, userID)
	if err != nil {
		return false, fmt.Errorf("track click: %w", err)
	}
	if clicked && s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, campaignID); err != nil {
			s.Logger.Warn("Stats cache invalidation failed", map[string]interface{}{"campaign_id": campaignID, "error": err})
		}
	}
	return clicked, nil
}

func (s *CampaignService) Overview(ctx context.Context) (*model.Overview, error) {
	o, err := s.CampaignRepo.Overview(ctx)
	if err != nil {
		return nil, err
	}
	subscribers, err := s.RecipientRepo.CountSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	o.Subscribers = subscribers
	return o, nil
}
