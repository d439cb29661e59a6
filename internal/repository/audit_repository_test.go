package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

func TestAuditRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := &AuditRepository{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "admin-1", model.ActionPushNotificationSent, nil, `{"notification_id":"c-1","status":"sent"}`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	entry := &model.AuditLog{
		AdminUserID: "admin-1",
		ActionType:  model.ActionPushNotificationSent,
		Details:     map[string]interface{}{"notification_id": "c-1", "status": "sent"},
	}
	require.NoError(t, repo.Insert(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
