package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeAvailability struct {
	mu      sync.Mutex
	offers  []models.RoomTypeOffer
	err     error
	calls   []models.DateRange
	release chan struct{} // when set, each call blocks until it is closed
}

func (f *fakeAvailability) ListAvailableRoomTypes(ctx context.Context, dates models.DateRange) ([]models.RoomTypeOffer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, dates)
	release := f.release
	offers := append([]models.RoomTypeOffer(nil), f.offers...)
	err := f.err
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return offers, err
}

func (f *fakeAvailability) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSubmitter struct {
	mu          sync.Mutex
	submissions []*models.BookingSubmission
	booking     *models.CreatedBooking
	err         error
	release     chan struct{}
}

func (f *fakeSubmitter) SubmitBooking(ctx context.Context, submission *models.BookingSubmission) (*models.CreatedBooking, error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, submission)
	release := f.release
	booking, err := f.booking, f.err
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return booking, err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

// ============================================================================
// FIXTURES
// ============================================================================

var (
	deluxe = models.RoomTypeOffer{ID: "1", Name: "Deluxe", MaxCapacity: 2, BasePrice: 100, AvailableQuantity: 2}
	suite  = models.RoomTypeOffer{ID: "2", Name: "Suite", MaxCapacity: 4, BasePrice: 250, AvailableQuantity: 1}
)

func fixedNow() time.Time {
	return time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type wizardFixture struct {
	wizard       *BookingWizard
	availability *fakeAvailability
	submitter    *fakeSubmitter
	confirmed    []models.Quote
	failures     []WizardFailure
}

func newWizardFixture(offers ...models.RoomTypeOffer) *wizardFixture {
	f := &wizardFixture{
		availability: &fakeAvailability{offers: offers},
		submitter:    &fakeSubmitter{booking: &models.CreatedBooking{ID: "42", Code: "BK-1001", Status: "pending"}},
	}
	f.wizard = NewBookingWizard(BookingWizardConfig{
		Availability: f.availability,
		Submitter:    f.submitter,
		Logger:       quietLogger(),
		Location:     time.UTC,
		Now:          fixedNow,
		OnConfirmed: func(booking *models.CreatedBooking, draft models.BookingDraft, quote models.Quote) {
			f.confirmed = append(f.confirmed, quote)
		},
		OnFailure: func(failure WizardFailure) {
			f.failures = append(f.failures, failure)
		},
	})
	return f
}

// toSelecting fills intake for 2024-06-03..06 (3 nights) and advances
func (f *wizardFixture) toSelecting(t *testing.T) {
	t.Helper()
	require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 6), 2))
	step, err := f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.WizardStepSelecting, step)
}

func (f *wizardFixture) toReview(t *testing.T, roomTypeIDs ...string) {
	t.Helper()
	f.toSelecting(t)
	for _, id := range roomTypeIDs {
		_, err := f.wizard.Increment(id)
		require.NoError(t, err)
	}
	step, err := f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.WizardStepOccupants, step)
	step, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.WizardStepReview, step)
}

// ============================================================================
// TESTS
// ============================================================================

func TestBookingWizard_CompleteBooking(t *testing.T) {
	f := newWizardFixture(deluxe, suite)
	f.toSelecting(t)

	_, err := f.wizard.Increment("1")
	require.NoError(t, err)
	qty, err := f.wizard.Increment("1")
	require.NoError(t, err)
	assert.Equal(t, 2, qty)

	quote := f.wizard.Quote()
	assert.Equal(t, 3, quote.Nights)
	assert.Equal(t, 600.0, quote.Total)

	step, err := f.wizard.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.WizardStepOccupants, step)
	require.NoError(t, f.wizard.SetOccupantName(0, "  Ada Lovelace "))
	require.NoError(t, f.wizard.SetNotes("Late arrival"))

	step, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.WizardStepReview, step)

	booking, err := f.wizard.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BK-1001", booking.Code)
	assert.Equal(t, models.WizardStepConfirmed, f.wizard.Step())

	require.Equal(t, 1, f.submitter.callCount())
	submission := f.submitter.submissions[0]
	assert.Equal(t, 2, submission.GuestCount)
	assert.Equal(t, "Late arrival", submission.Notes)
	require.Len(t, submission.Items, 2)
	assert.Equal(t, models.BookingSubmissionItem{RoomTypeID: "1", OccupantName: "Ada Lovelace"}, submission.Items[0])
	assert.Equal(t, models.BookingSubmissionItem{RoomTypeID: "1", OccupantName: ""}, submission.Items[1])

	require.Len(t, f.confirmed, 1)
	assert.Equal(t, 600.0, f.confirmed[0].Total)

	snapshot := f.wizard.Snapshot()
	assert.Equal(t, "BK-1001", snapshot.Booking.Code)
	assert.False(t, snapshot.CanCancel)

	_, err = f.wizard.Next(context.Background())
	assert.ErrorIs(t, err, ErrWizardClosed)
}

func TestBookingWizard_ConsecutiveDaysIsOneNight(t *testing.T) {
	f := newWizardFixture(deluxe)
	require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 1), date(2024, 6, 2), 1))
	_, err := f.wizard.Next(context.Background())
	require.NoError(t, err)
	_, err = f.wizard.Increment("1")
	require.NoError(t, err)

	first := f.wizard.Quote()
	assert.Equal(t, 1, first.Nights)
	assert.Equal(t, 100.0, first.Total)

	// Reading twice with no change yields the same total
	assert.Equal(t, first, f.wizard.Quote())
}

func TestBookingWizard_IncrementStopsAtAvailableQuantity(t *testing.T) {
	f := newWizardFixture(suite)
	f.toSelecting(t)

	qty, err := f.wizard.Increment("2")
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	qty, err = f.wizard.Increment("2")
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	snapshot := f.wizard.Snapshot()
	require.Len(t, snapshot.Offers, 1)
	assert.False(t, snapshot.Offers[0].CanIncrement)
	assert.True(t, snapshot.Offers[0].CanDecrement)
}

func TestBookingWizard_DecrementToZeroDropsLine(t *testing.T) {
	f := newWizardFixture(deluxe, suite)
	f.toSelecting(t)

	_, err := f.wizard.Increment("2")
	require.NoError(t, err)
	qty, err := f.wizard.Decrement("2")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	qty, err = f.wizard.Decrement("2")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	assert.Empty(t, f.wizard.Snapshot().Draft.Cart)

	_, err = f.wizard.Next(context.Background())
	assert.ErrorIs(t, err, ErrGuardFailed)
	assert.Equal(t, models.WizardStepSelecting, f.wizard.Step())
}

func TestBookingWizard_SlotsMatchCartQuantities(t *testing.T) {
	f := newWizardFixture(deluxe, suite)
	f.toSelecting(t)

	// Select out of offer order; slots still follow offer order
	_, err := f.wizard.Increment("2")
	require.NoError(t, err)
	_, err = f.wizard.Increment("1")
	require.NoError(t, err)
	_, err = f.wizard.Increment("1")
	require.NoError(t, err)

	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)

	slots := f.wizard.Snapshot().Draft.Occupants
	require.Len(t, slots, 3)
	assert.Equal(t, []string{"1", "1", "2"}, []string{slots[0].RoomTypeID, slots[1].RoomTypeID, slots[2].RoomTypeID})
	for i, slot := range slots {
		assert.Equal(t, i, slot.Index)
	}
}

func TestBookingWizard_RefetchOnlyWhenDatesChange(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toSelecting(t)
	assert.Equal(t, 1, f.availability.callCount())

	_, err := f.wizard.Increment("1")
	require.NoError(t, err)

	// Same dates: cached offers and selections survive
	_, err = f.wizard.Back()
	require.NoError(t, err)
	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.availability.callCount())
	assert.Len(t, f.wizard.Snapshot().Draft.Cart, 1)

	// New dates: exactly one more fetch and the cart is dropped
	_, err = f.wizard.Back()
	require.NoError(t, err)
	require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 10), date(2024, 6, 12), 2))
	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, f.availability.callCount())
	assert.Equal(t, models.DateRange{CheckIn: date(2024, 6, 10), CheckOut: date(2024, 6, 12)}, f.availability.calls[1])
	assert.Empty(t, f.wizard.Snapshot().Draft.Cart)
}

func TestBookingWizard_BackFromOccupantsDiscardsNames(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toSelecting(t)
	_, err := f.wizard.Increment("1")
	require.NoError(t, err)
	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.wizard.SetOccupantName(0, "Grace Hopper"))

	step, err := f.wizard.Back()
	require.NoError(t, err)
	assert.Equal(t, models.WizardStepSelecting, step)
	assert.Empty(t, f.wizard.Snapshot().Draft.Occupants)

	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	slots := f.wizard.Snapshot().Draft.Occupants
	require.Len(t, slots, 1)
	assert.Equal(t, "", slots[0].OccupantName)
}

func TestBookingWizard_BackAtIntakeIsInvalid(t *testing.T) {
	f := newWizardFixture(deluxe)
	_, err := f.wizard.Back()
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestBookingWizard_IntakeValidation(t *testing.T) {
	tests := []struct {
		name     string
		checkIn  civil.Date
		checkOut civil.Date
		guests   int
		wantErr  error
	}{
		{"check-in in the past", date(2024, 5, 31), date(2024, 6, 2), 1, models.ErrCheckInInPast},
		{"check-out equals check-in", date(2024, 6, 3), date(2024, 6, 3), 1, models.ErrCheckOutNotAfterIn},
		{"check-out before check-in", date(2024, 6, 3), date(2024, 6, 2), 1, models.ErrCheckOutNotAfterIn},
		{"impossible date", civil.Date{Year: 2024, Month: time.February, Day: 30}, civil.Date{}, 1, models.ErrInvalidCalendarDate},
		{"negative guests", date(2024, 6, 3), date(2024, 6, 4), -1, ErrInvalidGuestCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWizardFixture(deluxe)
			err := f.wizard.UpdateIntake(tt.checkIn, tt.checkOut, tt.guests)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBookingWizard_IntakeGuard(t *testing.T) {
	t.Run("missing check-out", func(t *testing.T) {
		f := newWizardFixture(deluxe)
		require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 3), civil.Date{}, 2))
		assert.False(t, f.wizard.Snapshot().CanAdvance)

		_, err := f.wizard.Next(context.Background())
		assert.ErrorIs(t, err, ErrGuardFailed)
		assert.ErrorIs(t, err, models.ErrCheckOutRequired)
		assert.Equal(t, 0, f.availability.callCount())
	})

	t.Run("no guests", func(t *testing.T) {
		f := newWizardFixture(deluxe)
		require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 4), 0))

		_, err := f.wizard.Next(context.Background())
		assert.ErrorIs(t, err, ErrGuardFailed)
		assert.Equal(t, models.WizardStepIntake, f.wizard.Step())
	})

	t.Run("today is a valid check-in", func(t *testing.T) {
		f := newWizardFixture(deluxe)
		require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 1), date(2024, 6, 2), 1))
		snapshot := f.wizard.Snapshot()
		assert.True(t, snapshot.CanAdvance)
		assert.Equal(t, "2024-06-01", snapshot.MinCheckIn)
		assert.Equal(t, "2024-06-02", snapshot.MinCheckOut)
	})
}

func TestBookingWizard_AvailabilityFailureReturnsToIntake(t *testing.T) {
	f := newWizardFixture()
	f.availability.err = errors.New("connection refused")

	require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 6), 2))
	step, err := f.wizard.Next(context.Background())
	assert.ErrorIs(t, err, ErrAvailabilityUnavailable)
	assert.Equal(t, models.WizardStepIntake, step)

	snapshot := f.wizard.Snapshot()
	assert.Equal(t, AvailabilityFailureMessage, snapshot.Message)
	assert.False(t, snapshot.OffersLoaded)
	assert.Empty(t, snapshot.Offers)

	require.Len(t, f.failures, 1)
	assert.Equal(t, models.WizardEventAvailabilityFailed, f.failures[0].Event)

	// Same dates are fetched again after a failure
	f.availability.mu.Lock()
	f.availability.err = nil
	f.availability.offers = []models.RoomTypeOffer{deluxe}
	f.availability.mu.Unlock()

	step, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.WizardStepSelecting, step)
	assert.Equal(t, 2, f.availability.callCount())
	assert.Empty(t, f.wizard.Snapshot().Message)
}

func TestBookingWizard_EmptyInventory(t *testing.T) {
	f := newWizardFixture()
	f.toSelecting(t)

	snapshot := f.wizard.Snapshot()
	assert.True(t, snapshot.OffersLoaded)
	assert.True(t, snapshot.NoInventory)
	assert.False(t, snapshot.CanAdvance)
}

func TestBookingWizard_UnknownRoomTypeAndSlot(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toSelecting(t)

	_, err := f.wizard.Increment("99")
	assert.ErrorIs(t, err, ErrUnknownRoomType)

	_, err = f.wizard.Increment("1")
	require.NoError(t, err)
	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, f.wizard.SetOccupantName(1, "Nobody"), ErrSlotOutOfRange)
	assert.ErrorIs(t, f.wizard.SetOccupantName(-1, "Nobody"), ErrSlotOutOfRange)
}

func TestBookingWizard_ActionsAtWrongStep(t *testing.T) {
	f := newWizardFixture(deluxe)

	_, err := f.wizard.Increment("1")
	assert.ErrorIs(t, err, ErrInvalidStep)
	assert.ErrorIs(t, f.wizard.SetOccupantName(0, "x"), ErrInvalidStep)
	_, err = f.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidStep)

	f.toSelecting(t)
	assert.ErrorIs(t, f.wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 4), 1), ErrInvalidStep)
}

func TestBookingWizard_RejectedSubmissionKeepsReason(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toReview(t, "1")

	f.submitter.err = &models.BookingRejectedError{StatusCode: 400, Reason: "No rooms of this type remain"}

	step, err := f.wizard.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, models.WizardStepReview, step)

	snapshot := f.wizard.Snapshot()
	assert.Equal(t, "No rooms of this type remain", snapshot.Message)
	assert.Len(t, snapshot.Draft.Cart, 1)
	assert.Len(t, snapshot.Draft.Occupants, 1)

	require.Len(t, f.failures, 1)
	assert.Equal(t, models.WizardEventSubmissionRejected, f.failures[0].Event)
	assert.Equal(t, "No rooms of this type remain", f.failures[0].Message)

	// Retry from review after the server recovers
	f.submitter.mu.Lock()
	f.submitter.err = nil
	f.submitter.mu.Unlock()

	booking, err := f.wizard.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BK-1001", booking.Code)
	assert.Equal(t, 2, f.submitter.callCount())
}

func TestBookingWizard_SubmissionFailureWithoutReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"blank reason", &models.BookingRejectedError{StatusCode: 500, Reason: "  "}},
		{"transport error", errors.New("i/o timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWizardFixture(deluxe)
			f.toReview(t, "1")
			f.submitter.err = tt.err

			_, err := f.wizard.Submit(context.Background())
			assert.Error(t, err)
			assert.Equal(t, SubmissionFailureMessage, f.wizard.Snapshot().Message)
			assert.Equal(t, models.WizardStepReview, f.wizard.Step())
		})
	}
}

func TestBookingWizard_NilBookingIsFailure(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toReview(t, "1")
	f.submitter.booking = nil

	_, err := f.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, models.WizardStepReview, f.wizard.Step())
	assert.Empty(t, f.confirmed)
}

func TestBookingWizard_CancelAtOccupantsSubmitsNothing(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toSelecting(t)
	_, err := f.wizard.Increment("1")
	require.NoError(t, err)
	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.wizard.Cancel())
	assert.Equal(t, models.WizardStepCancelled, f.wizard.Step())
	assert.Equal(t, 0, f.submitter.callCount())

	snapshot := f.wizard.Snapshot()
	assert.Empty(t, snapshot.Draft.Cart)
	assert.Empty(t, snapshot.Draft.Occupants)
	assert.False(t, snapshot.CanCancel)

	assert.ErrorIs(t, f.wizard.Cancel(), ErrWizardClosed)
	_, err = f.wizard.Back()
	assert.ErrorIs(t, err, ErrWizardClosed)
}

func TestBookingWizard_SingleOperationInFlight(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.availability.release = make(chan struct{})
	require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 6), 2))

	done := make(chan error, 1)
	go func() {
		_, err := f.wizard.Next(context.Background())
		done <- err
	}()
	require.Eventually(t, f.wizard.Busy, time.Second, time.Millisecond)

	_, err := f.wizard.Next(context.Background())
	assert.ErrorIs(t, err, ErrOperationInFlight)
	_, err = f.wizard.Increment("1")
	assert.ErrorIs(t, err, ErrOperationInFlight)
	_, err = f.wizard.Back()
	assert.ErrorIs(t, err, ErrOperationInFlight)

	snapshot := f.wizard.Snapshot()
	assert.True(t, snapshot.Pending)
	assert.False(t, snapshot.CanAdvance)

	close(f.availability.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.availability.callCount())
	assert.False(t, f.wizard.Busy())
}

func TestBookingWizard_CancelDuringAvailabilityFetch(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.availability.release = make(chan struct{})
	require.NoError(t, f.wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 6), 2))

	done := make(chan error, 1)
	go func() {
		_, err := f.wizard.Next(context.Background())
		done <- err
	}()
	require.Eventually(t, f.wizard.Busy, time.Second, time.Millisecond)

	require.NoError(t, f.wizard.Cancel())
	close(f.availability.release)

	assert.ErrorIs(t, <-done, ErrWizardClosed)
	assert.Equal(t, models.WizardStepCancelled, f.wizard.Step())
	assert.Empty(t, f.wizard.Snapshot().Offers)
}

func TestBookingWizard_NoCancelWhileSubmitting(t *testing.T) {
	f := newWizardFixture(deluxe)
	f.toReview(t, "1")
	f.submitter.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.wizard.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, f.wizard.Busy, time.Second, time.Millisecond)

	assert.Equal(t, models.WizardStepSubmitting, f.wizard.Step())
	assert.ErrorIs(t, f.wizard.Cancel(), ErrCancelNotAllowed)
	_, err := f.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, ErrOperationInFlight)
	assert.False(t, f.wizard.Snapshot().CanCancel)

	close(f.submitter.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.submitter.callCount())
}

func TestBookingWizard_UnusableOffersAreDropped(t *testing.T) {
	f := newWizardFixture(
		deluxe,
		models.RoomTypeOffer{ID: "1", Name: "Deluxe again", BasePrice: 100, AvailableQuantity: 5},
		models.RoomTypeOffer{ID: " ", Name: "No id", BasePrice: 80, AvailableQuantity: 3},
		models.RoomTypeOffer{ID: "3", Name: "Broken price", BasePrice: math.NaN(), AvailableQuantity: 3},
		models.RoomTypeOffer{ID: "4", Name: "Negative price", BasePrice: -10, AvailableQuantity: 3},
		models.RoomTypeOffer{ID: "5", Name: "Infinite price", BasePrice: math.Inf(1), AvailableQuantity: 3},
		suite,
	)
	f.toSelecting(t)

	offers := f.wizard.Snapshot().Offers
	require.Len(t, offers, 2)
	assert.Equal(t, "Deluxe", offers[0].Name)
	assert.Equal(t, "Suite", offers[1].Name)

	for _, expected := range []int{1, 2, 2} {
		quantity, err := f.wizard.Increment("1")
		require.NoError(t, err)
		assert.Equal(t, expected, quantity)
	}
	_, err := f.wizard.Increment("3")
	assert.ErrorIs(t, err, ErrUnknownRoomType)

	snapshot := f.wizard.Snapshot()
	require.Len(t, snapshot.Draft.Cart, 1)
	assert.Equal(t, 2, models.TotalQuantity(snapshot.Draft.Cart))
	assert.Equal(t, 600.0, snapshot.Quote.Total)

	_, err = json.Marshal(snapshot)
	require.NoError(t, err)

	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.wizard.Snapshot().Draft.Occupants, 2)
}

func TestBookingWizard_BackFromReviewKeepsNames(t *testing.T) {
	f := newWizardFixture(deluxe, suite)
	f.toSelecting(t)
	_, err := f.wizard.Increment("1")
	require.NoError(t, err)
	_, err = f.wizard.Increment("2")
	require.NoError(t, err)
	_, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.wizard.SetOccupantName(0, "Ada Lovelace"))

	before := f.wizard.Snapshot().Draft.Occupants
	step, err := f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.WizardStepReview, step)

	step, err = f.wizard.Back()
	require.NoError(t, err)
	require.Equal(t, models.WizardStepOccupants, step)
	assert.Equal(t, before, f.wizard.Snapshot().Draft.Occupants)

	step, err = f.wizard.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.WizardStepReview, step)
	_, err = f.wizard.Submit(context.Background())
	require.NoError(t, err)

	require.Len(t, f.submitter.submissions, 1)
	assert.Equal(t, []models.BookingSubmissionItem{
		{RoomTypeID: "1", OccupantName: "Ada Lovelace"},
		{RoomTypeID: "2", OccupantName: ""},
	}, f.submitter.submissions[0].Items)
}

func TestBookingWizard_ExpireIfIdle(t *testing.T) {
	clock := &testClock{now: fixedNow()}
	wizard := NewBookingWizard(BookingWizardConfig{
		Availability: &fakeAvailability{offers: []models.RoomTypeOffer{deluxe}},
		Submitter:    &fakeSubmitter{},
		Logger:       quietLogger(),
		Location:     time.UTC,
		Now:          clock.Now,
	})

	clock.Advance(time.Hour)
	cutoff := clock.Now().Add(-30 * time.Minute)
	require.True(t, wizard.LastActivity().Before(cutoff))

	// Activity after the cutoff was taken keeps the wizard alive
	require.NoError(t, wizard.UpdateIntake(date(2024, 6, 3), date(2024, 6, 6), 2))
	finished, expired := wizard.ExpireIfIdle(cutoff)
	assert.False(t, finished)
	assert.False(t, expired)
	assert.Equal(t, models.WizardStepIntake, wizard.Step())

	clock.Advance(time.Hour)
	cutoff = clock.Now().Add(-30 * time.Minute)
	finished, expired = wizard.ExpireIfIdle(cutoff)
	assert.True(t, finished)
	assert.True(t, expired)
	assert.Equal(t, models.WizardStepCancelled, wizard.Step())
	assert.True(t, wizard.Snapshot().Draft.DateRange.CheckIn.IsZero())

	clock.Advance(time.Hour)
	finished, expired = wizard.ExpireIfIdle(clock.Now().Add(-30 * time.Minute))
	assert.True(t, finished)
	assert.False(t, expired)
}

