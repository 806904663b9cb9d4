package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
	"github.com/smarthotel/booking-wizard/internal/utils"
)

// WizardAuditStore persists wizard audit entries
type WizardAuditStore interface {
	Log(ctx context.Context, audit *models.WizardAudit) error
}

// WizardAuditEvent is one wizard lifecycle event to be recorded
type WizardAuditEvent struct {
	SessionID     uuid.UUID
	Flow          models.WizardFlow
	Event         models.WizardAuditEventType
	Step          models.WizardStep
	Total         *float64
	BookingCode   string
	FailureReason string
	Client        models.WizardClientMeta
}

// WizardAuditService records wizard outcomes. Without a store it only logs.
type WizardAuditService struct {
	store  WizardAuditStore
	logger *logrus.Logger
}

// NewWizardAuditService creates a new wizard audit service; store may be nil
func NewWizardAuditService(store WizardAuditStore, logger *logrus.Logger) *WizardAuditService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WizardAuditService{
		store:  store,
		logger: logger,
	}
}

// Record writes one event. Audit failures never affect the wizard, so errors are only logged.
func (s *WizardAuditService) Record(ctx context.Context, event WizardAuditEvent) {
	fields := logrus.Fields{
		"session_id": event.SessionID,
		"flow":       event.Flow,
		"event_type": event.Event,
		"step":       event.Step,
	}
	if event.BookingCode != "" {
		fields["booking_code"] = event.BookingCode
	}
	if event.FailureReason != "" {
		fields["failure_reason"] = event.FailureReason
	}
	s.logger.WithFields(fields).Info("Wizard event")

	if s.store == nil {
		return
	}

	audit := &models.WizardAudit{
		SessionID:     event.SessionID,
		Flow:          event.Flow,
		EventType:     event.Event,
		Step:          event.Step,
		TotalAmount:   event.Total,
		BookingCode:   optionalString(event.BookingCode),
		FailureReason: optionalString(event.FailureReason),
		IPAddress:     optionalString(event.Client.IPAddress),
		UserAgent:     optionalString(event.Client.UserAgent),
	}
	if event.Client.UserAgent != "" {
		audit.DeviceInfo = models.JSONB(utils.ParseUserAgent(event.Client.UserAgent).ToMap())
	}

	if err := s.store.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("Failed to persist wizard audit")
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
