// internal/model/delivery_log.go
package model

import "time"

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryClicked   DeliveryStatus = "clicked"
)

// Successful reports whether the entry counts towards delivered_count.
func (s DeliveryStatus) Successful() bool {
	return s == DeliveryDelivered || s == DeliveryClicked
}

type DeliveryLogEntry struct {
	ID           string         `db:"id" json:"id"`
	CampaignID   string         `db:"campaign_id" json:"campaign_id"`
	UserID       string         `db:"user_id" json:"user_id"`
	Status       DeliveryStatus `db:"status" json:"status"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt  *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	ClickedAt    *time.Time     `db:"clicked_at" json:"clicked_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
