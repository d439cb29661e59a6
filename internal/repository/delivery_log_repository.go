package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

type DeliveryLogRepositoryInterface interface {
	Record(ctx context.Context, e *model.DeliveryLogEntry) (bool, error)
	Attempted(ctx context.Context, campaignID string) (map[string]model.DeliveryStatus, error)
	ListByCampaign(ctx context.Context, campaignID string, offset, limit int) ([]*model.DeliveryLogEntry, int, error)
	StatsByStatus(ctx context.Context, campaignID string) (map[string]int, error)
	MarkClicked(ctx context.Context, campaignID, userID string) (bool, error)
}

type DeliveryLogRepository struct {
	DB *sql.DB
}

// Record appends one outcome. Inserting a second entry for the same
// (campaign_id, user_id) is a no-op and reports false.
func (r *DeliveryLogRepository) Record(ctx context.Context, e *model.DeliveryLogEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO delivery_logs (id, campaign_id, user_id, status, error_message, sent_at, delivered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (campaign_id, user_id) DO NOTHING
	`
	res, err := r.DB.ExecContext(ctx, query,
		e.ID, e.CampaignID, e.UserID, e.Status, e.ErrorMessage, e.SentAt, e.DeliveredAt)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Attempted returns the users already recorded for a campaign with their status.
func (r *DeliveryLogRepository) Attempted(ctx context.Context, campaignID string) (map[string]model.DeliveryStatus, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT user_id, status FROM delivery_logs WHERE campaign_id=$1`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempted := map[string]model.DeliveryStatus{}
	for rows.Next() {
		var userID string
		var status model.DeliveryStatus
		if err := rows.Scan(&userID, &status); err != nil {
			return nil, err
		}
		attempted[userID] = status
	}
	return attempted, rows.Err()
}

func (r *DeliveryLogRepository) ListByCampaign(ctx context.Context, campaignID string, offset, limit int) ([]*model.DeliveryLogEntry, int, error) {
	query := `
		SELECT id, campaign_id, user_id, status, error_message, sent_at, delivered_at, clicked_at, created_at
		FROM delivery_logs
		WHERE campaign_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []*model.DeliveryLogEntry{}
	for rows.Next() {
		e := &model.DeliveryLogEntry{}
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.UserID, &e.Status, &e.ErrorMessage,
			&e.SentAt, &e.DeliveredAt, &e.ClickedAt, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_logs WHERE campaign_id=$1`, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *DeliveryLogRepository) StatsByStatus(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM delivery_logs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		string(model.DeliverySent):      0,
		string(model.DeliveryDelivered): 0,
		string(model.DeliveryFailed):    0,
		string(model.DeliveryClicked):   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// MarkClicked records the first click of a delivered entry and bumps the campaign
// click_count in the same transaction. Later clicks and unknown entries report false.
func (r *DeliveryLogRepository) MarkClicked(ctx context.Context, campaignID, userID string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE delivery_logs
		SET status='clicked', clicked_at=NOW()
		WHERE campaign_id=$1 AND user_id=$2 AND clicked_at IS NULL AND status IN ('delivered', 'sent')
	`, campaignID, userID)
	if err != nil {
		return false, fmt.Errorf("mark clicked: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET click_count=click_count+1, updated_at=NOW() WHERE id=$1`, campaignID); err != nil {
		return false, fmt.Errorf("increment click_count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
