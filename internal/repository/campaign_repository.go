package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	Submit(ctx context.Context, id string) (bool, error)

	// Dispatch run bookkeeping. Every write after AcquireDispatch is guarded by the token.
	AcquireDispatch(ctx context.Context, id, token string, staleBefore time.Time) (bool, error)
	Checkpoint(ctx context.Context, id, token string, counters model.Counters) (bool, error)
	Complete(ctx context.Context, id, token string, status model.CampaignStatus, counters model.Counters) error
	Release(ctx context.Context, id, token string) error
	RequestCancel(ctx context.Context, id string) (bool, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]string, error)

	// Reporting
	Overview(ctx context.Context) (*model.Overview, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, title, body, image_url, cta_url, data_payload, target_type, status, created_by,
	sent_count, delivered_count, failed_count, click_count,
	created_at, sent_at, dispatch_started_at, heartbeat_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// validID reports whether id can name a campaign row. Anything else is simply not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var payload []byte
	err := row.Scan(
		&c.ID, &c.Title, &c.Body, &c.ImageURL, &c.CTAURL, &payload, &c.TargetType, &c.Status, &c.CreatedBy,
		&c.SentCount, &c.DeliveredCount, &c.FailedCount, &c.ClickCount,
		&c.CreatedAt, &c.SentAt, &c.DispatchStartedAt, &c.HeartbeatAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c.DataPayload); err != nil {
			return nil, fmt.Errorf("decode data_payload of campaign %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignPending
	}
	if c.TargetType == "" {
		c.TargetType = model.TargetAll
	}

	var payload interface{}
	if len(c.DataPayload) > 0 {
		raw, err := json.Marshal(c.DataPayload)
		if err != nil {
			return fmt.Errorf("encode data_payload: %w", err)
		}
		payload = string(raw)
	}

	query := `
		INSERT INTO campaigns (id, title, body, image_url, cta_url, data_payload, target_type, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at
	`
	return r.DB.QueryRowContext(ctx, query,
		c.ID, c.Title, c.Body, c.ImageURL, c.CTAURL, payload, c.TargetType, c.Status, c.CreatedBy,
	).Scan(&c.CreatedAt)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	if !validID(id) {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		countQuery += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	countArgs := append([]interface{}{}, args...)

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// Submit moves a draft to pending. It reports false when the campaign was not a draft.
func (r *CampaignRepository) Submit(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET status='pending', updated_at=NOW() WHERE id=$1 AND status='draft'`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ====================== Dispatch run ======================

// AcquireDispatch is the pending->dispatching compare-and-set. A dispatching row whose
// heartbeat is older than staleBefore is considered abandoned and may be taken over.
func (r *CampaignRepository) AcquireDispatch(ctx context.Context, id, token string, staleBefore time.Time) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	query := `
		UPDATE campaigns
		SET status='dispatching', dispatch_token=$2, dispatch_started_at=NOW(), heartbeat_at=NOW(),
		    cancel_requested=FALSE, updated_at=NOW()
		WHERE id=$1 AND (status='pending' OR (status='dispatching' AND heartbeat_at < $3))
	`
	res, err := r.DB.ExecContext(ctx, query, id, token, staleBefore)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Checkpoint persists progress counters and refreshes the heartbeat. It returns the
// cancel_requested flag, or ErrLockLost when the token no longer owns the row.
func (r *CampaignRepository) Checkpoint(ctx context.Context, id, token string, counters model.Counters) (bool, error) {
	query := `
		UPDATE campaigns
		SET sent_count=$3, delivered_count=$4, failed_count=$5, heartbeat_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND dispatch_token=$2 AND status='dispatching'
		RETURNING cancel_requested
	`
	var cancelRequested bool
	err := r.DB.QueryRowContext(ctx, query, id, token, counters.Sent, counters.Delivered, counters.Failed).Scan(&cancelRequested)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.ErrLockLost
		}
		return false, err
	}
	return cancelRequested, nil
}

// Complete is the terminal write of a run.
func (r *CampaignRepository) Complete(ctx context.Context, id, token string, status model.CampaignStatus, counters model.Counters) error {
	query := `
		UPDATE campaigns
		SET status=$3, sent_count=$4, delivered_count=$5, failed_count=$6, sent_at=NOW(),
		    dispatch_token=NULL, cancel_requested=FALSE, heartbeat_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND dispatch_token=$2 AND status='dispatching'
	`
	res, err := r.DB.ExecContext(ctx, query, id, token, status, counters.Sent, counters.Delivered, counters.Failed)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrLockLost
	}
	return nil
}

// Release hands a campaign back to pending after a run could not start.
func (r *CampaignRepository) Release(ctx context.Context, id, token string) error {
	query := `
		UPDATE campaigns
		SET status='pending', dispatch_token=NULL, dispatch_started_at=NULL, heartbeat_at=NULL, updated_at=NOW()
		WHERE id=$1 AND dispatch_token=$2 AND status='dispatching'
	`
	res, err := r.DB.ExecContext(ctx, query, id, token)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrLockLost
	}
	return nil
}

func (r *CampaignRepository) RequestCancel(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET cancel_requested=TRUE, updated_at=NOW() WHERE id=$1 AND status='dispatching'`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ListStale returns dispatching campaigns whose heartbeat is older than cutoff.
func (r *CampaignRepository) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id FROM campaigns WHERE status='dispatching' AND heartbeat_at < $1 ORDER BY heartbeat_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ====================== Reporting ======================

func (r *CampaignRepository) Overview(ctx context.Context) (*model.Overview, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status='sent'),
		       COALESCE(SUM(sent_count) FILTER (WHERE status='sent'), 0),
		       COALESCE(SUM(delivered_count) FILTER (WHERE status='sent'), 0),
		       COALESCE(SUM(failed_count) FILTER (WHERE status='sent'), 0),
		       COALESCE(SUM(click_count) FILTER (WHERE status='sent'), 0)
		FROM campaigns
	`
	var o model.Overview
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&o.TotalCampaigns, &o.SentCampaigns, &o.TotalSent, &o.TotalDelivered, &o.TotalFailed, &o.TotalClicks,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
