package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
)

// ============================================================================
// ERRORS & MESSAGES
// ============================================================================

var (
	ErrInvalidStep             = errors.New("action is not available at the current step")
	ErrGuardFailed             = errors.New("current step is incomplete")
	ErrOperationInFlight       = errors.New("another request for this booking is still in progress")
	ErrWizardClosed            = errors.New("booking wizard is closed")
	ErrCancelNotAllowed        = errors.New("booking cannot be cancelled while it is being submitted")
	ErrUnknownRoomType         = errors.New("room type is not offered for the selected dates")
	ErrSlotOutOfRange          = errors.New("occupant slot does not exist")
	ErrInvalidGuestCount       = errors.New("guest count cannot be negative")
	ErrAvailabilityUnavailable = errors.New("room availability could not be loaded")
	ErrSubmissionFailed        = errors.New("booking submission failed")

	errNoBookingReturned = errors.New("booking service returned no booking")
)

// User-visible fallback texts, used only when the upstream gives no reason of its own
const (
	AvailabilityFailureMessage = "We couldn't load room availability for these dates. Please try again."
	SubmissionFailureMessage   = "We couldn't complete your booking. Please try again."
)

// ============================================================================
// COLLABORATORS
// ============================================================================

// AvailabilityProvider supplies the sellable room types for a stay
type AvailabilityProvider interface {
	ListAvailableRoomTypes(ctx context.Context, dates models.DateRange) ([]models.RoomTypeOffer, error)
}

// BookingSubmitter accepts a finalized booking.
// A refusal carrying a human-readable reason must be returned as *models.BookingRejectedError.
type BookingSubmitter interface {
	SubmitBooking(ctx context.Context, submission *models.BookingSubmission) (*models.CreatedBooking, error)
}

// WizardFailure describes a recoverable upstream failure the user was shown
type WizardFailure struct {
	Event   models.WizardAuditEventType
	Step    models.WizardStep // Step the wizard returned to
	Message string            // Text shown to the user
	Err     error
}

// BookingWizardConfig wires a wizard to its collaborators
type BookingWizardConfig struct {
	Availability AvailabilityProvider
	Submitter    BookingSubmitter
	Logger       *logrus.Logger
	Location     *time.Location   // Calendar used for "today" (default time.Local)
	Now          func() time.Time // Clock (default time.Now)

	OnConfirmed func(booking *models.CreatedBooking, draft models.BookingDraft, quote models.Quote)
	OnFailure   func(failure WizardFailure)
}

// ============================================================================
// BOOKING WIZARD
// ============================================================================

// BookingWizard drives one booking from intake to submission.
// Each instance owns its draft exclusively. The mutex is never held across
// collaborator calls; inFlight refuses other actions until the call resolves.
type BookingWizard struct {
	availability AvailabilityProvider
	submitter    BookingSubmitter
	logger       *logrus.Logger
	location     *time.Location
	now          func() time.Time
	onConfirmed  func(*models.CreatedBooking, models.BookingDraft, models.Quote)
	onFailure    func(WizardFailure)

	mu           sync.Mutex
	step         models.WizardStep
	inFlight     bool
	dates        models.DateRange
	guestCount   int
	notes        string
	offers       []models.RoomTypeOffer
	offersFor    models.DateRange
	offersLoaded bool
	quantities   map[string]int
	occupants    []models.OccupantSlot
	message      string
	booking      *models.CreatedBooking
	lastActivity time.Time
}

// NewBookingWizard creates a wizard at the intake step with an empty draft
func NewBookingWizard(cfg BookingWizardConfig) *BookingWizard {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &BookingWizard{
		availability: cfg.Availability,
		submitter:    cfg.Submitter,
		logger:       logger,
		location:     loc,
		now:          now,
		onConfirmed:  cfg.OnConfirmed,
		onFailure:    cfg.OnFailure,
		step:         models.WizardStepIntake,
		quantities:   make(map[string]int),
		lastActivity: now(),
	}
}

// Step returns the current step
func (w *BookingWizard) Step() models.WizardStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Busy reports whether a network operation is in flight
func (w *BookingWizard) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

// LastActivity returns when the wizard last handled an action
func (w *BookingWizard) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActivity
}

// ============================================================================
// INTAKE
// ============================================================================

// UpdateIntake records dates and guest count. Either date may still be empty.
// Changing the dates does not fetch anything; the stale offers are dropped when
// the selection step is entered again.
func (w *BookingWizard) UpdateIntake(checkIn, checkOut civil.Date, guestCount int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(models.WizardStepIntake); err != nil {
		return err
	}
	w.touch()

	if guestCount < 0 {
		return ErrInvalidGuestCount
	}
	if (!checkIn.IsZero() && !checkIn.IsValid()) || (!checkOut.IsZero() && !checkOut.IsValid()) {
		return models.ErrInvalidCalendarDate
	}
	if !checkIn.IsZero() && checkIn.Before(w.today()) {
		return models.ErrCheckInInPast
	}
	if !checkIn.IsZero() && !checkOut.IsZero() && !checkOut.After(checkIn) {
		return models.ErrCheckOutNotAfterIn
	}

	w.dates = models.DateRange{CheckIn: checkIn, CheckOut: checkOut}
	w.guestCount = guestCount
	w.message = ""
	return nil
}

// SetNotes replaces the free-text notes; allowed at any open step
func (w *BookingWizard) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkMutable(); err != nil {
		return err
	}
	w.touch()
	w.notes = notes
	return nil
}

func (w *BookingWizard) intakeGuard() error {
	if err := w.dates.Validate(w.today()); err != nil {
		return fmt.Errorf("%w: %w", ErrGuardFailed, err)
	}
	if w.guestCount < 1 {
		return fmt.Errorf("%w: at least one guest is required", ErrGuardFailed)
	}
	return nil
}

// ============================================================================
// NAVIGATION
// ============================================================================

// Next advances one step. Leaving intake may fetch availability; leaving review submits.
func (w *BookingWizard) Next(ctx context.Context) (models.WizardStep, error) {
	w.mu.Lock()
	if err := w.checkMutable(); err != nil {
		step := w.step
		w.mu.Unlock()
		return step, err
	}
	w.touch()

	switch w.step {
	case models.WizardStepIntake:
		return w.advanceFromIntake(ctx)
	case models.WizardStepReview:
		step, _, err := w.submitLocked(ctx)
		return step, err
	}

	defer w.mu.Unlock()

	switch w.step {
	case models.WizardStepSelecting:
		cart := w.cartLocked()
		if models.TotalQuantity(cart) < 1 {
			return w.step, fmt.Errorf("%w: select at least one room", ErrGuardFailed)
		}
		w.occupants = ExpandOccupantSlots(cart)
		w.moveTo(models.WizardStepOccupants)
	case models.WizardStepOccupants:
		w.moveTo(models.WizardStepReview)
	}

	return w.step, nil
}

// Back returns to the immediately preceding step without any network call.
// Leaving occupants discards the slot expansion and every name typed into it.
func (w *BookingWizard) Back() (models.WizardStep, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkMutable(); err != nil {
		return w.step, err
	}
	w.touch()

	switch w.step {
	case models.WizardStepSelecting:
		w.moveTo(models.WizardStepIntake)
	case models.WizardStepOccupants:
		w.occupants = nil
		w.moveTo(models.WizardStepSelecting)
	case models.WizardStepReview:
		w.moveTo(models.WizardStepOccupants)
	default:
		return w.step, fmt.Errorf("%w: there is no previous step", ErrInvalidStep)
	}

	return w.step, nil
}

// Cancel discards the draft. Allowed at every step except while submitting.
func (w *BookingWizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == models.WizardStepSubmitting {
		return ErrCancelNotAllowed
	}
	if w.step.IsTerminal() {
		return ErrWizardClosed
	}

	w.cancelLocked()
	return nil
}

// ExpireIfIdle cancels the wizard if nothing has happened since before cutoff and
// no call is in flight. finished reports whether the wizard is now terminal;
// expired reports whether this call cancelled it.
func (w *BookingWizard) ExpireIfIdle(cutoff time.Time) (finished, expired bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inFlight || !w.lastActivity.Before(cutoff) {
		return false, false
	}
	if w.step.IsTerminal() {
		return true, false
	}

	w.cancelLocked()
	return true, true
}

func (w *BookingWizard) cancelLocked() {
	w.step = models.WizardStepCancelled
	w.dates = models.DateRange{}
	w.guestCount = 0
	w.notes = ""
	w.offers = nil
	w.offersFor = models.DateRange{}
	w.offersLoaded = false
	w.quantities = make(map[string]int)
	w.occupants = nil
	w.message = ""
	w.touch()
}

// advanceFromIntake moves to selection. mu must be held and is released.
func (w *BookingWizard) advanceFromIntake(ctx context.Context) (models.WizardStep, error) {
	if err := w.intakeGuard(); err != nil {
		w.mu.Unlock()
		return models.WizardStepIntake, err
	}

	if w.offersLoaded && w.offersFor == w.dates {
		w.moveTo(models.WizardStepSelecting)
		w.mu.Unlock()
		return models.WizardStepSelecting, nil
	}

	// New dates: everything derived from the previous fetch is stale
	dates := w.dates
	w.moveTo(models.WizardStepSelecting)
	w.inFlight = true
	w.offers = nil
	w.offersFor = models.DateRange{}
	w.offersLoaded = false
	w.quantities = make(map[string]int)
	w.occupants = nil
	w.mu.Unlock()

	offers, err := w.availability.ListAvailableRoomTypes(ctx, dates)

	w.mu.Lock()
	w.inFlight = false
	w.touch()

	if w.step == models.WizardStepCancelled {
		w.mu.Unlock()
		return models.WizardStepCancelled, ErrWizardClosed
	}

	if err != nil {
		w.step = models.WizardStepIntake
		w.message = AvailabilityFailureMessage
		w.mu.Unlock()

		w.logger.WithError(err).WithFields(logrus.Fields{
			"check_in":  dates.CheckIn.String(),
			"check_out": dates.CheckOut.String(),
		}).Warn("Availability fetch failed, returning wizard to intake")

		w.reportFailure(WizardFailure{
			Event:   models.WizardEventAvailabilityFailed,
			Step:    models.WizardStepIntake,
			Message: AvailabilityFailureMessage,
			Err:     err,
		})
		return models.WizardStepIntake, fmt.Errorf("%w: %w", ErrAvailabilityUnavailable, err)
	}

	normalized, dropped := normalizeOffers(offers)
	w.offers = normalized
	w.offersFor = dates
	w.offersLoaded = true
	count := len(w.offers)
	w.mu.Unlock()

	fields := logrus.Fields{
		"check_in":    dates.CheckIn.String(),
		"check_out":   dates.CheckOut.String(),
		"offer_count": count,
	}
	if dropped > 0 {
		fields["dropped_offers"] = dropped
		w.logger.WithFields(fields).Warn("Availability contained unusable offers")
	} else {
		w.logger.WithFields(fields).Debug("Availability loaded")
	}

	return models.WizardStepSelecting, nil
}

// ============================================================================
// ROOM SELECTION
// ============================================================================

// Increment adds one unit of a room type. At the offer's available quantity it
// is a no-op and returns the unchanged quantity.
func (w *BookingWizard) Increment(roomTypeID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(models.WizardStepSelecting); err != nil {
		return 0, err
	}
	w.touch()

	offer, ok := w.offerLocked(roomTypeID)
	if !ok {
		return 0, ErrUnknownRoomType
	}

	current := w.quantities[roomTypeID]
	if current >= offer.AvailableQuantity {
		return current, nil
	}

	w.quantities[roomTypeID] = current + 1
	return current + 1, nil
}

// Decrement removes one unit of a room type; reaching zero drops it from the cart
func (w *BookingWizard) Decrement(roomTypeID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(models.WizardStepSelecting); err != nil {
		return 0, err
	}
	w.touch()

	if _, ok := w.offerLocked(roomTypeID); !ok {
		return 0, ErrUnknownRoomType
	}

	next := w.quantities[roomTypeID] - 1
	if next <= 0 {
		delete(w.quantities, roomTypeID)
		return 0, nil
	}

	w.quantities[roomTypeID] = next
	return next, nil
}

// ============================================================================
// OCCUPANTS
// ============================================================================

// SetOccupantName names the occupant of one slot; blank names are allowed
func (w *BookingWizard) SetOccupantName(index int, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireStep(models.WizardStepOccupants); err != nil {
		return err
	}
	w.touch()

	if index < 0 || index >= len(w.occupants) {
		return ErrSlotOutOfRange
	}
	w.occupants[index].OccupantName = strings.TrimSpace(name)
	return nil
}

// ============================================================================
// REVIEW & SUBMISSION
// ============================================================================

// Quote derives the current price; never cached
func (w *BookingWizard) Quote() models.Quote {
	w.mu.Lock()
	defer w.mu.Unlock()
	return CalculateQuote(w.dates, w.cartLocked())
}

// Submit sends the finalized draft. Only valid at review.
func (w *BookingWizard) Submit(ctx context.Context) (*models.CreatedBooking, error) {
	w.mu.Lock()
	if err := w.requireStep(models.WizardStepReview); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.touch()

	_, booking, err := w.submitLocked(ctx)
	return booking, err
}

// submitLocked performs the single submission call. mu must be held and is released.
func (w *BookingWizard) submitLocked(ctx context.Context) (models.WizardStep, *models.CreatedBooking, error) {
	draft := w.draftLocked()
	quote := CalculateQuote(draft.DateRange, draft.Cart)
	submission := BuildSubmission(draft)

	w.moveTo(models.WizardStepSubmitting)
	w.inFlight = true
	w.mu.Unlock()

	booking, err := w.submitter.SubmitBooking(ctx, submission)
	if err == nil && booking == nil {
		err = errNoBookingReturned
	}

	w.mu.Lock()
	w.inFlight = false
	w.touch()

	if err != nil {
		message := submissionFailureMessage(err)
		w.step = models.WizardStepReview
		w.message = message
		w.mu.Unlock()

		w.logger.WithError(err).WithFields(logrus.Fields{
			"check_in":   draft.DateRange.CheckIn.String(),
			"check_out":  draft.DateRange.CheckOut.String(),
			"room_count": len(submission.Items),
		}).Warn("Booking submission failed, returning wizard to review")

		w.reportFailure(WizardFailure{
			Event:   models.WizardEventSubmissionRejected,
			Step:    models.WizardStepReview,
			Message: message,
			Err:     err,
		})
		return models.WizardStepReview, nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	w.step = models.WizardStepConfirmed
	w.booking = booking
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"booking_code": booking.Code,
		"total":        quote.Total,
	}).Info("Booking confirmed")

	if w.onConfirmed != nil {
		w.onConfirmed(booking, draft, quote)
	}

	return models.WizardStepConfirmed, booking, nil
}

func submissionFailureMessage(err error) string {
	var rejected *models.BookingRejectedError
	if errors.As(err, &rejected) && strings.TrimSpace(rejected.Reason) != "" {
		return rejected.Reason
	}
	return SubmissionFailureMessage
}

// ============================================================================
// SNAPSHOT
// ============================================================================

// Snapshot returns a consistent read-only view for rendering
func (w *BookingWizard) Snapshot() models.WizardSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	draft := w.draftLocked()
	interactive := !w.inFlight && !w.step.IsTerminal()
	selecting := interactive && w.step == models.WizardStepSelecting

	offers := make([]models.OfferView, len(w.offers))
	for i, offer := range w.offers {
		selected := w.quantities[offer.ID]
		offers[i] = models.OfferView{
			RoomTypeOffer:    offer,
			SelectedQuantity: selected,
			CanIncrement:     selected < offer.AvailableQuantity && selecting,
			CanDecrement:     selected > 0 && selecting,
		}
	}

	snapshot := models.WizardSnapshot{
		Step:           w.step,
		Pending:        w.inFlight,
		Draft:          draft,
		Offers:         offers,
		OffersLoaded:   w.offersLoaded,
		NoInventory:    w.offersLoaded && len(w.offers) == 0,
		Quote:          CalculateQuote(draft.DateRange, draft.Cart),
		MinCheckIn:     w.today().String(),
		CanAdvance:     interactive && w.canAdvanceLocked(draft),
		CanGoBack:      interactive && w.step != models.WizardStepIntake,
		CanCancel:      w.step != models.WizardStepSubmitting && !w.step.IsTerminal(),
		Message:        w.message,
		Booking:        w.booking,
		LastActivityAt: w.lastActivity,
	}
	if !w.dates.CheckIn.IsZero() {
		snapshot.MinCheckOut = w.dates.MinCheckOut().String()
	}

	return snapshot
}

func (w *BookingWizard) canAdvanceLocked(draft models.BookingDraft) bool {
	switch w.step {
	case models.WizardStepIntake:
		return w.intakeGuard() == nil
	case models.WizardStepSelecting:
		return models.TotalQuantity(draft.Cart) >= 1
	case models.WizardStepOccupants, models.WizardStepReview:
		return true
	}
	return false
}

// ============================================================================
// HELPERS (mu held)
// ============================================================================

func (w *BookingWizard) checkMutable() error {
	if w.step.IsTerminal() {
		return ErrWizardClosed
	}
	if w.inFlight {
		return ErrOperationInFlight
	}
	return nil
}

func (w *BookingWizard) requireStep(step models.WizardStep) error {
	if err := w.checkMutable(); err != nil {
		return err
	}
	if w.step != step {
		return fmt.Errorf("%w: wizard is at %s, not %s", ErrInvalidStep, w.step, step)
	}
	return nil
}

func (w *BookingWizard) moveTo(step models.WizardStep) {
	w.step = step
	w.message = ""
}

func (w *BookingWizard) touch() {
	w.lastActivity = w.now()
}

func (w *BookingWizard) today() civil.Date {
	return models.Today(w.now(), w.location)
}

func (w *BookingWizard) offerLocked(roomTypeID string) (models.RoomTypeOffer, bool) {
	for _, offer := range w.offers {
		if offer.ID == roomTypeID {
			return offer, true
		}
	}
	return models.RoomTypeOffer{}, false
}

// cartLocked lists selected lines in offer order so slot expansion is stable
func (w *BookingWizard) cartLocked() []models.SelectionLine {
	cart := make([]models.SelectionLine, 0, len(w.quantities))
	for _, offer := range w.offers {
		if quantity := w.quantities[offer.ID]; quantity > 0 {
			cart = append(cart, models.SelectionLine{Offer: offer, Quantity: quantity})
		}
	}
	return cart
}

func (w *BookingWizard) draftLocked() models.BookingDraft {
	occupants := make([]models.OccupantSlot, len(w.occupants))
	copy(occupants, w.occupants)

	return models.BookingDraft{
		DateRange:  w.dates,
		GuestCount: w.guestCount,
		Cart:       w.cartLocked(),
		Occupants:  occupants,
		Notes:      w.notes,
	}
}

func (w *BookingWizard) reportFailure(failure WizardFailure) {
	if w.onFailure != nil {
		w.onFailure(failure)
	}
}

// normalizeOffers copies the fetched list in server order. Offers without an id,
// with an id already seen, or with a price that is negative or not finite are
// dropped; the second return value counts them.
func normalizeOffers(offers []models.RoomTypeOffer) ([]models.RoomTypeOffer, int) {
	normalized := make([]models.RoomTypeOffer, 0, len(offers))
	seen := make(map[string]struct{}, len(offers))
	dropped := 0
	for _, offer := range offers {
		offer.ID = strings.TrimSpace(offer.ID)
		if offer.ID == "" || !validPrice(offer.BasePrice) {
			dropped++
			continue
		}
		if _, dup := seen[offer.ID]; dup {
			dropped++
			continue
		}
		seen[offer.ID] = struct{}{}

		if offer.AvailableQuantity < 0 {
			offer.AvailableQuantity = 0
		}
		normalized = append(normalized, offer)
	}
	return normalized, dropped
}

func validPrice(price float64) bool {
	return price >= 0 && !math.IsInf(price, 0) && !math.IsNaN(price)
}
