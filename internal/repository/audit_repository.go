package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

type AuditRepositoryInterface interface {
	Insert(ctx context.Context, a *model.AuditLog) error
}

// AuditRepository writes to the shared administrative audit log.
type AuditRepository struct {
	DB *sql.DB
}

func (r *AuditRepository) Insert(ctx context.Context, a *model.AuditLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	var target interface{}
	if a.TargetUserID != "" {
		target = a.TargetUserID
	}
	query := `
		INSERT INTO audit_logs (id, admin_user_id, action_type, target_user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	return r.DB.QueryRowContext(ctx, query, a.ID, a.AdminUserID, a.ActionType, target, string(details)).
		Scan(&a.CreatedAt)
}

var _ AuditRepositoryInterface = (*AuditRepository)(nil)
