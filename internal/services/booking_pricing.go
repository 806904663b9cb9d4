package services

import (
	"github.com/smarthotel/booking-wizard/internal/models"
)

// CalculateQuote derives the price of a cart for a stay.
// It is a pure function of its inputs and is recomputed on every read.
func CalculateQuote(dates models.DateRange, cart []models.SelectionLine) models.Quote {
	nights := dates.Nights()
	quote := models.Quote{
		Nights: nights,
		Lines:  make([]models.QuoteLine, 0, len(cart)),
	}

	for _, line := range cart {
		if line.Quantity <= 0 {
			continue
		}
		subtotal := line.Offer.BasePrice * float64(nights) * float64(line.Quantity)
		quote.Lines = append(quote.Lines, models.QuoteLine{
			RoomTypeID: line.Offer.ID,
			Name:       line.Offer.Name,
			BasePrice:  line.Offer.BasePrice,
			Quantity:   line.Quantity,
			Subtotal:   subtotal,
		})
		quote.Total += subtotal
	}

	return quote
}

// ExpandOccupantSlots turns a cart into one slot per requested room unit.
// Slot order follows cart order, then unit order within a line, so the same cart
// always yields the same slots.
func ExpandOccupantSlots(cart []models.SelectionLine) []models.OccupantSlot {
	slots := make([]models.OccupantSlot, 0, models.TotalQuantity(cart))
	for _, line := range cart {
		for i := 0; i < line.Quantity; i++ {
			slots = append(slots, models.OccupantSlot{
				Index:        len(slots),
				RoomTypeID:   line.Offer.ID,
				RoomTypeName: line.Offer.Name,
			})
		}
	}
	return slots
}

// BuildSubmission flattens a draft into the payload the booking service accepts,
// one item per occupant slot in slot order.
func BuildSubmission(draft models.BookingDraft) *models.BookingSubmission {
	items := make([]models.BookingSubmissionItem, len(draft.Occupants))
	for i, slot := range draft.Occupants {
		items[i] = models.BookingSubmissionItem{
			RoomTypeID:   slot.RoomTypeID,
			OccupantName: slot.OccupantName,
		}
	}

	return &models.BookingSubmission{
		DateRange:  draft.DateRange,
		GuestCount: draft.GuestCount,
		Items:      items,
		Notes:      draft.Notes,
	}
}
