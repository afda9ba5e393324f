package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safar/storefront/internal/models"
)

const attemptColumns = `id, dispatch_id, trigger_kind, subject_id, recipient, audience, attempt, sent, error, created_at`

func RecordNotificationAttempt(ctx context.Context, db sqlx.ExecerContext, a models.NotificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO notification_attempts (id, dispatch_id, trigger_kind, subject_id, recipient, audience, attempt, sent, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
		a.ID, a.DispatchID, a.TriggerKind, a.SubjectID, a.Recipient, a.Audience, a.Attempt, a.Sent, a.Error)
	if err != nil {
		return fmt.Errorf("record notification attempt: %w", err)
	}

	return nil
}

// ListNotificationAttempts returns the audit trail for one trigger, oldest first.
func ListNotificationAttempts(ctx context.Context, db sqlx.QueryerContext, triggerKind, subjectID string) ([]models.NotificationAttempt, error) {
	attempts := []models.NotificationAttempt{}

	err := sqlx.SelectContext(ctx, db, &attempts,
		`SELECT `+attemptColumns+` FROM notification_attempts
		 WHERE trigger_kind = $1 AND subject_id = $2
		 ORDER BY created_at, attempt`, triggerKind, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list notification attempts: %w", err)
	}

	return attempts, nil
}

// AttemptLog persists dispatcher attempts to notification_attempts.
type AttemptLog struct {
	db *sqlx.DB
}

func NewAttemptLog(db *sqlx.DB) *AttemptLog {
	return &AttemptLog{db: db}
}

func (l *AttemptLog) RecordAttempt(ctx context.Context, a models.NotificationAttempt) error {
	return RecordNotificationAttempt(ctx, l.db, a)
}
