package hotelapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const maxErrorBodyBytes = 64 * 1024

// Client talks to the hotel API that owns room inventory, prices and bookings
type Client struct {
	baseURL          string
	availabilityPath string
	userAgent        string
	client           *http.Client
	logger           *logrus.Logger
}

// Config holds configuration for the hotel API client
type Config struct {
	BaseURL          string        // e.g. https://api.hotel.example/api
	AvailabilityPath string        // Relative path of the availability query
	Timeout          time.Duration // Per-request timeout
	UserAgent        string        // Optional: sent on every request
}

// NewClient creates a new hotel API client
func NewClient(config Config, logger *logrus.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	availabilityPath := config.AvailabilityPath
	if availabilityPath == "" {
		availabilityPath = "/room-types/availability/"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:          strings.TrimRight(config.BaseURL, "/"),
		availabilityPath: availabilityPath,
		userAgent:        config.UserAgent,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ============================================================================
// WIRE TYPES
// ============================================================================

// RoomTypeAvailability is one entry of the availability response
type RoomTypeAvailability struct {
	ID                ID     `json:"id"`
	Name              string `json:"name"`
	BasePrice         Amount `json:"basePrice"`
	MaxCapacity       int    `json:"maxCapacity"`
	AvailableQuantity int    `json:"availableQuantity"`
}

// BookingItem is one room unit in a booking request
type BookingItem struct {
	RoomTypeID   ID     `json:"roomTypeId"`
	OccupantName string `json:"occupantName"`
}

// CreateBookingRequest is the body of a booking submission
type CreateBookingRequest struct {
	CheckInDate  string        `json:"checkInDate"`  // "2024-06-01"
	CheckOutDate string        `json:"checkOutDate"` // "2024-06-04"
	GuestCount   int           `json:"guestCount"`
	Items        []BookingItem `json:"items"`
	Notes        string        `json:"notes,omitempty"`
}

// Booking is the created booking returned by the API
type Booking struct {
	ID     ID     `json:"id"`
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
}

// APIError is a non-2xx response from the hotel API
type APIError struct {
	StatusCode int
	Detail     string // Human-readable reason from the body, empty when none was given
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("hotel API returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("hotel API returned %d", e.StatusCode)
}

// ============================================================================
// OPERATIONS
// ============================================================================

// GetAvailability lists sellable room types for a stay. Dates are "YYYY-MM-DD".
func (c *Client) GetAvailability(ctx context.Context, checkIn, checkOut string) ([]RoomTypeAvailability, error) {
	query := url.Values{}
	query.Set("checkIn", checkIn)
	query.Set("checkOut", checkOut)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.availabilityPath, query, nil, &raw); err != nil {
		return nil, err
	}

	// Plain array, or a paginated envelope with "results"
	var offers []RoomTypeAvailability
	if err := json.Unmarshal(raw, &offers); err == nil {
		return offers, nil
	}
	var page struct {
		Results []RoomTypeAvailability `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to parse availability response: %w", err)
	}
	return page.Results, nil
}

// CreateBooking submits a booking to the given path
func (c *Client) CreateBooking(ctx context.Context, path string, req *CreateBookingRequest) (*Booking, error) {
	if req == nil {
		return nil, fmt.Errorf("booking request cannot be nil")
	}

	var booking Booking
	if err := c.do(ctx, http.MethodPost, path, nil, req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"url":    endpoint,
		}).Error("Hotel API request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":     method,
		"url":        endpoint,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Hotel API response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     ParseErrorDetail(respBody),
			Body:       string(respBody),
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// ParseErrorDetail extracts the human-readable reason from an error body.
// Accepts {"detail": "..."}, {"detail": ["..."]}, {"message": "..."}, {"error": "..."},
// {"non_field_errors": ["..."]} and a bare ["..."] list. Returns "" when none is present.
func ParseErrorDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return firstNonBlank(list)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}

	for _, key := range []string{"detail", "message", "error", "non_field_errors"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		var texts []string
		if err := json.Unmarshal(raw, &texts); err == nil {
			if text := firstNonBlank(texts); text != "" {
				return text
			}
		}
	}

	return ""
}

func firstNonBlank(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
