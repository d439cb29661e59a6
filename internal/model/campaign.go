// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft       CampaignStatus = "draft"
	CampaignPending     CampaignStatus = "pending"
	CampaignDispatching CampaignStatus = "dispatching"
	CampaignSent        CampaignStatus = "sent"
	CampaignFailed      CampaignStatus = "failed"
)

// Terminal reports whether counters are frozen.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignSent || s == CampaignFailed
}

const TargetAll = "all"

const (
	MaxTitleLength = 50
	MaxBodyLength  = 200
)

type Campaign struct {
	ID          string            `db:"id" json:"id"`
	Title       string            `db:"title" json:"title"`
	Body        string            `db:"body" json:"body"`
	ImageURL    string            `db:"image_url" json:"image_url,omitempty"`
	CTAURL      string            `db:"cta_url" json:"cta_url,omitempty"`
	DataPayload map[string]string `db:"data_payload" json:"data_payload,omitempty"`
	TargetType  string            `db:"target_type" json:"target_type"`
	Status      CampaignStatus    `db:"status" json:"status"`
	CreatedBy   string            `db:"created_by" json:"created_by"`

	SentCount      int `db:"sent_count" json:"sent_count"`
	DeliveredCount int `db:"delivered_count" json:"delivered_count"`
	FailedCount    int `db:"failed_count" json:"failed_count"`
	ClickCount     int `db:"click_count" json:"click_count"`

	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DispatchStartedAt *time.Time `db:"dispatch_started_at" json:"dispatch_started_at,omitempty"`
	HeartbeatAt       *time.Time `db:"heartbeat_at" json:"heartbeat_at,omitempty"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Counters is the aggregate delivery tally of one campaign.
type Counters struct {
	Sent      int `json:"sent_count"`
	Delivered int `json:"delivered_count"`
	Failed    int `json:"failed_count"`
}

// Overview is the dashboard rollup across campaigns.
type Overview struct {
	TotalCampaigns int `json:"total_campaigns"`
	SentCampaigns  int `json:"sent_campaigns"`
	TotalSent      int `json:"total_sent"`
	TotalDelivered int `json:"total_delivered"`
	TotalFailed    int `json:"total_failed"`
	TotalClicks    int `json:"total_clicks"`
	Subscribers    int `json:"subscribers"`
}
