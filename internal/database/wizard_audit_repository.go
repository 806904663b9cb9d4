package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
)

// WizardAuditRepository handles wizard audit operations
type WizardAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewWizardAuditRepository creates a new wizard audit repository
func NewWizardAuditRepository(db *sqlx.DB, logger *logrus.Logger) *WizardAuditRepository {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WizardAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends a wizard audit entry
func (r *WizardAuditRepository) Log(ctx context.Context, audit *models.WizardAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO wizard_audits (
			id, session_id, flow, event_type, step,
			total_amount, booking_code, failure_reason,
			ip_address, user_agent, device_info,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.SessionID, audit.Flow, audit.EventType, audit.Step,
		audit.TotalAmount, audit.BookingCode, audit.FailureReason,
		audit.IPAddress, audit.UserAgent, audit.DeviceInfo,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"session_id": audit.SessionID,
		}).Error("Failed to log wizard audit")
		return fmt.Errorf("failed to log wizard audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"session_id": audit.SessionID,
	}).Debug("Wizard audit logged")

	return nil
}

// ListBySession retrieves all audit entries for a wizard session, oldest first
func (r *WizardAuditRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.WizardAudit, error) {
	var audits []*models.WizardAudit
	query := `
		SELECT id, session_id, flow, event_type, step,
			total_amount, booking_code, failure_reason,
			ip_address, user_agent, device_info, created_at
		FROM wizard_audits
		WHERE session_id = $1
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &audits, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audits by session ID: %w", err)
	}

	return audits, nil
}

// CountByEventSince counts events of one type newer than the given time
func (r *WizardAuditRepository) CountByEventSince(ctx context.Context, eventType models.WizardAuditEventType, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM wizard_audits
		WHERE event_type = $1
		AND created_at > $2`

	if err := r.db.GetContext(ctx, &count, query, eventType, since); err != nil {
		return 0, fmt.Errorf("failed to count wizard audits: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes audit entries created before the cutoff
func (r *WizardAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM wizard_audits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old wizard audits: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted wizard audits: %w", err)
	}
	return deleted, nil
}
