package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// ============================================================================
// WIZARD FLOWS & STEPS
// ============================================================================

// WizardFlow identifies which surface opened the wizard.
// Both flows run the same state machine and differ only in the injected collaborators.
type WizardFlow string

const (
	WizardFlowGuest  WizardFlow = "guest"   // Public guest booking
	WizardFlowWalkIn WizardFlow = "walk_in" // Staff front-desk walk-in booking
)

// IsValid reports whether the flow is one the service knows how to host
func (f WizardFlow) IsValid() bool {
	return f == WizardFlowGuest || f == WizardFlowWalkIn
}

// WizardStep is a state of the booking wizard, in strict forward order
type WizardStep string

const (
	WizardStepIntake     WizardStep = "intake"     // Dates + guest count
	WizardStepSelecting  WizardStep = "selecting"  // Room-type quantities
	WizardStepOccupants  WizardStep = "occupants"  // Occupant name per room unit
	WizardStepReview     WizardStep = "review"     // Derived pricing, submit
	WizardStepSubmitting WizardStep = "submitting" // Submission in flight
	WizardStepConfirmed  WizardStep = "confirmed"  // Booking created (terminal)
	WizardStepCancelled  WizardStep = "cancelled"  // Draft discarded (terminal)
)

// IsTerminal reports whether the wizard is finished
func (s WizardStep) IsTerminal() bool {
	return s == WizardStepConfirmed || s == WizardStepCancelled
}

// ============================================================================
// DATE RANGE
// ============================================================================

var (
	ErrCheckInRequired     = errors.New("check-in date is required")
	ErrCheckOutRequired    = errors.New("check-out date is required")
	ErrCheckInInPast       = errors.New("check-in date cannot be in the past")
	ErrCheckOutNotAfterIn  = errors.New("check-out date must be at least one day after check-in")
	ErrInvalidCalendarDate = errors.New("invalid calendar date")
)

// DateRange is a stay expressed in calendar dates (no time component)
type DateRange struct {
	CheckIn  civil.Date `json:"checkIn"`
	CheckOut civil.Date `json:"checkOut"`
}

// NewDateRange builds a range and enforces its invariants relative to today
func NewDateRange(checkIn, checkOut, today civil.Date) (DateRange, error) {
	r := DateRange{CheckIn: checkIn, CheckOut: checkOut}
	if err := r.Validate(today); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks both dates are present and ordered, and check-in is not before today
func (r DateRange) Validate(today civil.Date) error {
	if r.CheckIn.IsZero() {
		return ErrCheckInRequired
	}
	if r.CheckOut.IsZero() {
		return ErrCheckOutRequired
	}
	if !r.CheckIn.IsValid() || !r.CheckOut.IsValid() {
		return ErrInvalidCalendarDate
	}
	if r.CheckIn.Before(today) {
		return ErrCheckInInPast
	}
	if !r.CheckOut.After(r.CheckIn) {
		return ErrCheckOutNotAfterIn
	}
	return nil
}

// IsComplete reports whether both dates are set
func (r DateRange) IsComplete() bool {
	return !r.CheckIn.IsZero() && !r.CheckOut.IsZero()
}

// Nights is the number of calendar days between check-in and check-out.
// Computed on dates only so DST and timezone shifts cannot change it.
func (r DateRange) Nights() int {
	if !r.IsComplete() {
		return 0
	}
	return r.CheckOut.DaysSince(r.CheckIn)
}

// MinCheckOut is the earliest check-out the intake step accepts
func (r DateRange) MinCheckOut() civil.Date {
	if r.CheckIn.IsZero() {
		return civil.Date{}
	}
	return r.CheckIn.AddDays(1)
}

// MarshalJSON writes an unset date as null instead of "0000-00-00"
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CheckIn  *string `json:"checkIn"`
		CheckOut *string `json:"checkOut"`
	}{
		CheckIn:  optionalDate(r.CheckIn),
		CheckOut: optionalDate(r.CheckOut),
	})
}

func optionalDate(d civil.Date) *string {
	if d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.CheckIn, r.CheckOut)
}

// Today returns the calendar date of t in loc
func Today(t time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.Local
	}
	return civil.DateOf(t.In(loc))
}

// ============================================================================
// OFFERS, CART & OCCUPANTS
// ============================================================================

// RoomTypeOffer is a server snapshot of one sellable room type for a date range.
// Never patched in place: a new fetch replaces the whole list.
type RoomTypeOffer struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	MaxCapacity       int     `json:"maxCapacity"`
	BasePrice         float64 `json:"basePrice"`
	AvailableQuantity int     `json:"availableQuantity"`
}

// SelectionLine is a chosen quantity of one offer
type SelectionLine struct {
	Offer    RoomTypeOffer `json:"offer"`
	Quantity int           `json:"quantity"`
}

// TotalQuantity sums quantities across cart lines
func TotalQuantity(cart []SelectionLine) int {
	total := 0
	for _, line := range cart {
		total += line.Quantity
	}
	return total
}

// OccupantSlot is one physical room unit requested, with an optional occupant name
type OccupantSlot struct {
	Index        int    `json:"index"`
	RoomTypeID   string `json:"roomTypeId"`
	RoomTypeName string `json:"roomTypeName"`
	OccupantName string `json:"occupantName"`
}

// BookingDraft is the state the wizard accumulates across steps
type BookingDraft struct {
	DateRange  DateRange       `json:"dateRange"`
	GuestCount int             `json:"guestCount"`
	Cart       []SelectionLine `json:"cart"`
	Occupants  []OccupantSlot  `json:"occupants"`
	Notes      string          `json:"notes"`
}

// ============================================================================
// PRICING
// ============================================================================

// QuoteLine is the derived price of one cart line
type QuoteLine struct {
	RoomTypeID string  `json:"roomTypeId"`
	Name       string  `json:"name"`
	BasePrice  float64 `json:"basePrice"`
	Quantity   int     `json:"quantity"`
	Subtotal   float64 `json:"subtotal"` // basePrice * nights * quantity
}

// Quote is the derived price of the whole cart
type Quote struct {
	Nights int         `json:"nights"`
	Lines  []QuoteLine `json:"lines"`
	Total  float64     `json:"total"`
}

// ============================================================================
// SUBMISSION
// ============================================================================

// BookingSubmission is the finalized draft sent to the booking service
type BookingSubmission struct {
	DateRange  DateRange
	GuestCount int
	Items      []BookingSubmissionItem
	Notes      string
}

// BookingSubmissionItem is one occupant slot in slot order
type BookingSubmissionItem struct {
	RoomTypeID   string `json:"roomTypeId"`
	OccupantName string `json:"occupantName"`
}

// CreatedBooking is what the booking service returns on success
type CreatedBooking struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
}

// BookingRejectedError is a submission refused by the booking service.
// Reason is the server's human-readable text and is shown to the user verbatim.
type BookingRejectedError struct {
	StatusCode int
	Reason     string
}

func (e *BookingRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("booking rejected (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("booking rejected (status %d): %s", e.StatusCode, e.Reason)
}

// BookingConfirmedEvent is published to the host side once a booking exists
type BookingConfirmedEvent struct {
	SessionID   string     `json:"sessionId"`
	Flow        WizardFlow `json:"flow"`
	BookingID   string     `json:"bookingId"`
	BookingCode string     `json:"bookingCode"`
	CheckIn     civil.Date `json:"checkIn"`
	CheckOut    civil.Date `json:"checkOut"`
	RoomCount   int        `json:"roomCount"`
	Total       float64    `json:"total"`
	ConfirmedAt time.Time  `json:"confirmedAt"`
}
