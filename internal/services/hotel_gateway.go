package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/smarthotel/booking-wizard/internal/models"
	"github.com/smarthotel/booking-wizard/pkg/hotelapi"
)

// Default submission paths of the two booking surfaces
const (
	DefaultGuestBookingPath  = "/bookings/"
	DefaultWalkInBookingPath = "/staff/walk-in-bookings/"
)

// HotelAvailabilityProvider reads room-type availability from the hotel API
type HotelAvailabilityProvider struct {
	client *hotelapi.Client
}

// NewHotelAvailabilityProvider creates an availability provider backed by the hotel API
func NewHotelAvailabilityProvider(client *hotelapi.Client) *HotelAvailabilityProvider {
	return &HotelAvailabilityProvider{client: client}
}

// ListAvailableRoomTypes implements AvailabilityProvider
func (p *HotelAvailabilityProvider) ListAvailableRoomTypes(ctx context.Context, dates models.DateRange) ([]models.RoomTypeOffer, error) {
	items, err := p.client.GetAvailability(ctx, dates.CheckIn.String(), dates.CheckOut.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}

	offers := make([]models.RoomTypeOffer, len(items))
	for i, item := range items {
		offers[i] = models.RoomTypeOffer{
			ID:                string(item.ID),
			Name:              item.Name,
			MaxCapacity:       item.MaxCapacity,
			BasePrice:         float64(item.BasePrice),
			AvailableQuantity: item.AvailableQuantity,
		}
	}
	return offers, nil
}

// HotelBookingSubmitter posts finalized bookings to one hotel API endpoint.
// The guest and walk-in flows use the same submitter type on different paths.
type HotelBookingSubmitter struct {
	client *hotelapi.Client
	path   string
}

// NewGuestBookingSubmitter submits public guest bookings
func NewGuestBookingSubmitter(client *hotelapi.Client, path string) *HotelBookingSubmitter {
	if path == "" {
		path = DefaultGuestBookingPath
	}
	return &HotelBookingSubmitter{client: client, path: path}
}

// NewWalkInBookingSubmitter submits staff walk-in bookings
func NewWalkInBookingSubmitter(client *hotelapi.Client, path string) *HotelBookingSubmitter {
	if path == "" {
		path = DefaultWalkInBookingPath
	}
	return &HotelBookingSubmitter{client: client, path: path}
}

// SubmitBooking implements BookingSubmitter.
// Any error response becomes a *models.BookingRejectedError carrying the server's reason;
// transport failures are returned wrapped and surface with the generic message.
func (s *HotelBookingSubmitter) SubmitBooking(ctx context.Context, submission *models.BookingSubmission) (*models.CreatedBooking, error) {
	items := make([]hotelapi.BookingItem, len(submission.Items))
	for i, item := range submission.Items {
		items[i] = hotelapi.BookingItem{
			RoomTypeID:   hotelapi.ID(item.RoomTypeID),
			OccupantName: item.OccupantName,
		}
	}

	req := &hotelapi.CreateBookingRequest{
		CheckInDate:  submission.DateRange.CheckIn.String(),
		CheckOutDate: submission.DateRange.CheckOut.String(),
		GuestCount:   submission.GuestCount,
		Items:        items,
		Notes:        submission.Notes,
	}

	booking, err := s.client.CreateBooking(ctx, s.path, req)
	if err != nil {
		var apiErr *hotelapi.APIError
		if errors.As(err, &apiErr) {
			return nil, &models.BookingRejectedError{
				StatusCode: apiErr.StatusCode,
				Reason:     apiErr.Detail,
			}
		}
		return nil, fmt.Errorf("failed to submit booking: %w", err)
	}

	return &models.CreatedBooking{
		ID:     string(booking.ID),
		Code:   booking.Code,
		Status: booking.Status,
	}, nil
}
