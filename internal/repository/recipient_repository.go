package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// RecipientRepositoryInterface defines methods used by the services
type RecipientRepositoryInterface interface {
	Upsert(ctx context.Context, e *model.RecipientEndpoint) error
	Snapshot(ctx context.Context) ([]model.RecipientEndpoint, error)
	CountSubscribers(ctx context.Context) (int, error)
	Delete(ctx context.Context, userID, token string) (bool, error)
}

// RecipientRepository is the concrete implementation
type RecipientRepository struct {
	DB *sql.DB
}

// Upsert registers an endpoint, refreshing platform and updated_at when the
// (user_id, token) pair already exists.
func (r *RecipientRepository) Upsert(ctx context.Context, e *model.RecipientEndpoint) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Platform == "" {
		e.Platform = model.PlatformWeb
	}
	query := `
		INSERT INTO recipient_endpoints (id, user_id, token, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, token)
		DO UPDATE SET platform = EXCLUDED.platform, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	return r.DB.QueryRowContext(ctx, query, e.ID, e.UserID, e.Token, e.Platform).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Snapshot fetches one endpoint per user, the most recently updated one, ordered by user.
func (r *RecipientRepository) Snapshot(ctx context.Context) ([]model.RecipientEndpoint, error) {
	query := `
		SELECT DISTINCT ON (user_id) id, user_id, token, platform, created_at, updated_at
		FROM recipient_endpoints
		ORDER BY user_id, updated_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := []model.RecipientEndpoint{}
	for rows.Next() {
		var e model.RecipientEndpoint
		if err := rows.Scan(&e.ID, &e.UserID, &e.Token, &e.Platform, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (r *RecipientRepository) CountSubscribers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM recipient_endpoints`).Scan(&n)
	return n, err
}

// Delete removes an endpoint the gateway reported as no longer valid.
func (r *RecipientRepository) Delete(ctx context.Context, userID, token string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM recipient_endpoints WHERE user_id=$1 AND token=$2`, userID, token)
	if err != nil {
		return false, err
	}
	return affected(res)
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
