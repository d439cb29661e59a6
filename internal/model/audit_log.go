// internal/model/audit_log.go
package model

import "time"

const ActionPushNotificationSent = "push_notification_sent"

type AuditLog struct {
	ID           string                 `db:"id" json:"id"`
	AdminUserID  string                 `db:"admin_user_id" json:"admin_user_id"`
	ActionType   string                 `db:"action_type" json:"action_type"`
	TargetUserID string                 `db:"target_user_id" json:"target_user_id,omitempty"`
	Details      map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}
