package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
)

// BookingConfirmedEventType is the message type of confirmed-booking events
const BookingConfirmedEventType = "booking.confirmed"

var (
	ErrSessionNotFound = errors.New("booking wizard not found")
	ErrUnsupportedFlow = errors.New("booking flow is not supported")
)

// FlowCollaborators are the upstream services one flow talks to
type FlowCollaborators struct {
	Availability AvailabilityProvider
	Submitter    BookingSubmitter
}

// EventPublisher delivers domain events to the host side
type EventPublisher interface {
	Publish(eventType string, payload interface{}) error
}

// OpenPrecondition lets the host refuse to open a wizard (e.g. walk-in without staff context)
type OpenPrecondition func(ctx context.Context, flow models.WizardFlow, client models.WizardClientMeta) error

// WizardSessionConfig wires the session registry
type WizardSessionConfig struct {
	Flows            map[models.WizardFlow]FlowCollaborators
	Audit            *WizardAuditService
	Publisher        EventPublisher // Optional
	OpenPrecondition OpenPrecondition
	Logger           *logrus.Logger
	Location         *time.Location
	Now              func() time.Time
	SessionTTL       time.Duration
	SweepInterval    time.Duration
}

// WizardSession is one open wizard and the request that opened it
type WizardSession struct {
	ID       uuid.UUID
	Flow     models.WizardFlow
	Client   models.WizardClientMeta
	OpenedAt time.Time
	Wizard   *BookingWizard
}

// Snapshot renders the wizard with its session identity
func (s *WizardSession) Snapshot() models.WizardSnapshot {
	snapshot := s.Wizard.Snapshot()
	snapshot.SessionID = s.ID
	snapshot.Flow = s.Flow
	return snapshot
}

// WizardSessionService keeps one BookingWizard per open booking and expires idle ones.
// A wizard is forgotten once it is confirmed, cancelled or expired.
type WizardSessionService struct {
	flows         map[models.WizardFlow]FlowCollaborators
	audit         *WizardAuditService
	publisher     EventPublisher
	precondition  OpenPrecondition
	logger        *logrus.Logger
	location      *time.Location
	now           func() time.Time
	ttl           time.Duration
	sweepInterval time.Duration

	mu       sync.RWMutex
	sessions map[uuid.UUID]*WizardSession

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWizardSessionService creates a new wizard session service
func NewWizardSessionService(cfg WizardSessionConfig) *WizardSessionService {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	audit := cfg.Audit
	if audit == nil {
		audit = NewWizardAuditService(nil, logger)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	return &WizardSessionService{
		flows:         cfg.Flows,
		audit:         audit,
		publisher:     cfg.Publisher,
		precondition:  cfg.OpenPrecondition,
		logger:        logger,
		location:      cfg.Location,
		now:           now,
		ttl:           ttl,
		sweepInterval: interval,
		sessions:      make(map[uuid.UUID]*WizardSession),
		stopCh:        make(chan struct{}),
	}
}

// Open starts a new wizard for the given flow
func (s *WizardSessionService) Open(ctx context.Context, flow models.WizardFlow, client models.WizardClientMeta) (*WizardSession, error) {
	collaborators, ok := s.flows[flow]
	if !flow.IsValid() || !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFlow, flow)
	}
	if s.precondition != nil {
		if err := s.precondition(ctx, flow, client); err != nil {
			return nil, err
		}
	}

	session := &WizardSession{
		ID:       uuid.New(),
		Flow:     flow,
		Client:   client,
		OpenedAt: s.now(),
	}
	session.Wizard = NewBookingWizard(BookingWizardConfig{
		Availability: collaborators.Availability,
		Submitter:    collaborators.Submitter,
		Logger:       s.logger,
		Location:     s.location,
		Now:          s.now,
		OnConfirmed: func(booking *models.CreatedBooking, draft models.BookingDraft, quote models.Quote) {
			s.handleConfirmed(session, booking, draft, quote)
		},
		OnFailure: func(failure WizardFailure) {
			s.audit.Record(context.Background(), WizardAuditEvent{
				SessionID:     session.ID,
				Flow:          session.Flow,
				Event:         failure.Event,
				Step:          failure.Step,
				FailureReason: failure.Message,
				Client:        session.Client,
			})
		},
	})

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.audit.Record(ctx, WizardAuditEvent{
		SessionID: session.ID,
		Flow:      flow,
		Event:     models.WizardEventOpened,
		Step:      models.WizardStepIntake,
		Client:    client,
	})

	return session, nil
}

// Get returns an open session
func (s *WizardSessionService) Get(id uuid.UUID) (*WizardSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Close cancels a wizard and forgets it
func (s *WizardSessionService) Close(ctx context.Context, id uuid.UUID) (models.WizardSnapshot, error) {
	session, err := s.Get(id)
	if err != nil {
		return models.WizardSnapshot{}, err
	}

	if err := session.Wizard.Cancel(); err != nil {
		return session.Snapshot(), err
	}

	s.remove(id)
	s.audit.Record(ctx, WizardAuditEvent{
		SessionID: session.ID,
		Flow:      session.Flow,
		Event:     models.WizardEventCancelled,
		Step:      models.WizardStepCancelled,
		Client:    session.Client,
	})

	return session.Snapshot(), nil
}

// Count returns the number of tracked sessions
func (s *WizardSessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *WizardSessionService) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *WizardSessionService) handleConfirmed(session *WizardSession, booking *models.CreatedBooking, draft models.BookingDraft, quote models.Quote) {
	s.remove(session.ID)

	total := quote.Total
	s.audit.Record(context.Background(), WizardAuditEvent{
		SessionID:   session.ID,
		Flow:        session.Flow,
		Event:       models.WizardEventConfirmed,
		Step:        models.WizardStepConfirmed,
		Total:       &total,
		BookingCode: booking.Code,
		Client:      session.Client,
	})

	if s.publisher == nil {
		return
	}

	event := &models.BookingConfirmedEvent{
		SessionID:   session.ID.String(),
		Flow:        session.Flow,
		BookingID:   booking.ID,
		BookingCode: booking.Code,
		CheckIn:     draft.DateRange.CheckIn,
		CheckOut:    draft.DateRange.CheckOut,
		RoomCount:   models.TotalQuantity(draft.Cart),
		Total:       quote.Total,
		ConfirmedAt: s.now(),
	}
	if err := s.publisher.Publish(BookingConfirmedEventType, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id":   session.ID,
			"booking_code": booking.Code,
		}).Error("Failed to publish booking confirmed event")
	}
}

// ============================================================================
// EXPIRATION
// ============================================================================

// Start begins the background sweep of idle wizards
func (s *WizardSessionService) Start() {
	s.logger.WithFields(logrus.Fields{
		"ttl":      s.ttl.String(),
		"interval": s.sweepInterval.String(),
	}).Info("Starting wizard session sweeper")
	go s.run()
}

// Stop stops the background sweep
func (s *WizardSessionService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping wizard session sweeper")
		close(s.stopCh)
	})
}

func (s *WizardSessionService) run() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-s.stopCh:
			s.logger.Info("Wizard session sweeper stopped")
			return
		}
	}
}

// SweepOnce discards every session idle for longer than the TTL and returns how many
// were dropped. Wizards waiting on the hotel API are never touched.
func (s *WizardSessionService) SweepOnce() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.RLock()
	candidates := make([]*WizardSession, 0)
	for _, session := range s.sessions {
		if session.Wizard.LastActivity().Before(cutoff) {
			candidates = append(candidates, session)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, session := range candidates {
		finished, expired := session.Wizard.ExpireIfIdle(cutoff)
		if !finished {
			continue
		}
		if expired {
			s.audit.Record(context.Background(), WizardAuditEvent{
				SessionID: session.ID,
				Flow:      session.Flow,
				Event:     models.WizardEventExpired,
				Step:      models.WizardStepCancelled,
				Client:    session.Client,
			})
		}

		s.remove(session.ID)
		removed++
	}

	if removed > 0 {
		s.logger.WithField("count", removed).Info("Expired idle booking wizards")
	}
	return removed
}
