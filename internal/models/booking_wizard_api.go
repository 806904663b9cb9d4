package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// REQUEST STRUCTS
// ============================================================================

// OpenWizardRequest opens a new wizard for a flow
type OpenWizardRequest struct {
	Flow WizardFlow `json:"flow" binding:"required"`
}

// UpdateIntakeRequest sets dates and guest count on the intake step.
// Dates are "YYYY-MM-DD"; either may be empty while the user is still typing.
type UpdateIntakeRequest struct {
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	GuestCount int    `json:"guestCount" binding:"min=0"`
}

// UpdateOccupantRequest names the occupant of one slot
type UpdateOccupantRequest struct {
	Name string `json:"name" binding:"max=120"`
}

// UpdateNotesRequest sets free-text notes on the draft
type UpdateNotesRequest struct {
	Notes string `json:"notes" binding:"max=1000"`
}

// WizardClientMeta describes the host request that opened a wizard
type WizardClientMeta struct {
	IPAddress string
	UserAgent string
}

// ============================================================================
// SNAPSHOT (what the host renders)
// ============================================================================

// OfferView is an offer plus the current selection and control state
type OfferView struct {
	RoomTypeOffer
	SelectedQuantity int  `json:"selectedQuantity"`
	CanIncrement     bool `json:"canIncrement"`
	CanDecrement     bool `json:"canDecrement"`
}

// WizardSnapshot is a read-only view of a wizard at one instant
type WizardSnapshot struct {
	SessionID uuid.UUID  `json:"sessionId,omitempty"`
	Flow      WizardFlow `json:"flow,omitempty"`
	Step      WizardStep `json:"step"`
	Pending   bool       `json:"pending"` // A network operation is in flight; every control is disabled

	Draft        BookingDraft `json:"draft"`
	Offers       []OfferView  `json:"offers"`
	OffersLoaded bool         `json:"offersLoaded"`
	NoInventory  bool         `json:"noInventory"`
	Quote        Quote        `json:"quote"`

	MinCheckIn  string `json:"minCheckIn"`
	MinCheckOut string `json:"minCheckOut,omitempty"`

	CanAdvance bool `json:"canAdvance"`
	CanGoBack  bool `json:"canGoBack"`
	CanCancel  bool `json:"canCancel"`

	Message string          `json:"message,omitempty"` // Last user-visible failure
	Booking *CreatedBooking `json:"booking,omitempty"`

	LastActivityAt time.Time `json:"lastActivityAt"`
}
