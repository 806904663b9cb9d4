package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarthotel/booking-wizard/internal/models"
	"github.com/smarthotel/booking-wizard/internal/services"
	"github.com/smarthotel/booking-wizard/internal/utils"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WizardErrorResponse is an error that leaves the wizard in a known state the host should render
type WizardErrorResponse struct {
	ErrorResponse
	Wizard *models.WizardSnapshot `json:"wizard,omitempty"`
}

// BookingWizardHandler exposes booking wizards over HTTP
type BookingWizardHandler struct {
	sessions *services.WizardSessionService
	logger   *logrus.Logger
}

// NewBookingWizardHandler creates a new BookingWizardHandler
func NewBookingWizardHandler(sessions *services.WizardSessionService, logger *logrus.Logger) *BookingWizardHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BookingWizardHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes mounts the wizard endpoints on a router group
func (h *BookingWizardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	wizards := rg.Group("/wizards")
	{
		wizards.POST("", h.Open)
		wizards.GET("/:id", h.Get)
		wizards.DELETE("/:id", h.Cancel)
		wizards.PUT("/:id/intake", h.UpdateIntake)
		wizards.PUT("/:id/notes", h.UpdateNotes)
		wizards.POST("/:id/next", h.Next)
		wizards.POST("/:id/back", h.Back)
		wizards.POST("/:id/submit", h.Submit)
		wizards.POST("/:id/rooms/:room_type_id/increment", h.Increment)
		wizards.POST("/:id/rooms/:room_type_id/decrement", h.Decrement)
		wizards.PUT("/:id/occupants/:index", h.UpdateOccupant)
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Open handles POST /api/v1/wizards
func (h *BookingWizardHandler) Open(c *gin.Context) {
	var req models.OpenWizardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	client := models.WizardClientMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}

	session, err := h.sessions.Open(c.Request.Context(), req.Flow, client)
	if err != nil {
		h.respondError(c, nil, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"flow":       session.Flow,
		"ip":         client.IPAddress,
	}).Info("Booking wizard opened")

	c.JSON(http.StatusCreated, session.Snapshot())
}

// Get handles GET /api/v1/wizards/:id
func (h *BookingWizardHandler) Get(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// Cancel handles DELETE /api/v1/wizards/:id
func (h *BookingWizardHandler) Cancel(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}

	snapshot, err := h.sessions.Close(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			h.respondError(c, nil, err)
			return
		}
		h.respondError(c, &snapshot, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// ============================================================================
// DRAFT EDITS
// ============================================================================

// UpdateIntake handles PUT /api/v1/wizards/:id/intake
func (h *BookingWizardHandler) UpdateIntake(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req models.UpdateIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	checkIn, err := parseOptionalDate(req.CheckIn)
	if err != nil {
		h.respondError(c, nil, err)
		return
	}
	checkOut, err := parseOptionalDate(req.CheckOut)
	if err != nil {
		h.respondError(c, nil, err)
		return
	}

	if err := session.Wizard.UpdateIntake(checkIn, checkOut, req.GuestCount); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// UpdateNotes handles PUT /api/v1/wizards/:id/notes
func (h *BookingWizardHandler) UpdateNotes(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req models.UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	if err := session.Wizard.SetNotes(req.Notes); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// Increment handles POST /api/v1/wizards/:id/rooms/:room_type_id/increment
func (h *BookingWizardHandler) Increment(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := session.Wizard.Increment(c.Param("room_type_id")); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// Decrement handles POST /api/v1/wizards/:id/rooms/:room_type_id/decrement
func (h *BookingWizardHandler) Decrement(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := session.Wizard.Decrement(c.Param("room_type_id")); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// UpdateOccupant handles PUT /api/v1/wizards/:id/occupants/:index
func (h *BookingWizardHandler) UpdateOccupant(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Occupant index must be a number",
		})
		return
	}

	var req models.UpdateOccupantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	if err := session.Wizard.SetOccupantName(index, req.Name); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// ============================================================================
// NAVIGATION
// ============================================================================

// Next handles POST /api/v1/wizards/:id/next.
// Leaving intake loads availability; leaving review submits the booking.
func (h *BookingWizardHandler) Next(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := session.Wizard.Next(c.Request.Context()); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// Back handles POST /api/v1/wizards/:id/back
func (h *BookingWizardHandler) Back(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := session.Wizard.Back(); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// Submit handles POST /api/v1/wizards/:id/submit
func (h *BookingWizardHandler) Submit(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if _, err := session.Wizard.Submit(c.Request.Context()); err != nil {
		h.respondWizardError(c, session, err)
		return
	}

	c.JSON(http.StatusOK, session.Snapshot())
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *BookingWizardHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid wizard ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *BookingWizardHandler) session(c *gin.Context) (*services.WizardSession, bool) {
	id, ok := h.sessionID(c)
	if !ok {
		return nil, false
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		h.respondError(c, nil, err)
		return nil, false
	}
	return session, true
}

func (h *BookingWizardHandler) respondWizardError(c *gin.Context, session *services.WizardSession, err error) {
	snapshot := session.Snapshot()
	h.respondError(c, &snapshot, err)
}

// respondError maps wizard errors to HTTP statuses. snapshot may be nil.
func (h *BookingWizardHandler) respondError(c *gin.Context, snapshot *models.WizardSnapshot, err error) {
	status, code := classifyError(err)
	message := err.Error()

	switch {
	case errors.Is(err, services.ErrAvailabilityUnavailable):
		message = services.AvailabilityFailureMessage
	case errors.Is(err, services.ErrSubmissionFailed) && snapshot != nil && snapshot.Message != "":
		message = snapshot.Message
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Booking wizard request failed")
	}

	c.JSON(status, WizardErrorResponse{
		ErrorResponse: ErrorResponse{
			Error:   code,
			Message: message,
		},
		Wizard: snapshot,
	})
}

func classifyError(err error) (int, string) {
	var rejected *models.BookingRejectedError

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrUnsupportedFlow):
		return http.StatusBadRequest, "unsupported_flow"
	case errors.Is(err, services.ErrOperationInFlight):
		return http.StatusConflict, "operation_in_flight"
	case errors.Is(err, services.ErrWizardClosed):
		return http.StatusConflict, "wizard_closed"
	case errors.Is(err, services.ErrCancelNotAllowed):
		return http.StatusConflict, "cancel_not_allowed"
	case errors.Is(err, services.ErrInvalidStep):
		return http.StatusConflict, "invalid_step"
	case errors.Is(err, services.ErrGuardFailed):
		return http.StatusUnprocessableEntity, "step_incomplete"
	case errors.Is(err, services.ErrUnknownRoomType):
		return http.StatusNotFound, "unknown_room_type"
	case errors.Is(err, services.ErrSlotOutOfRange):
		return http.StatusNotFound, "slot_not_found"
	case errors.Is(err, services.ErrInvalidGuestCount),
		errors.Is(err, models.ErrInvalidCalendarDate),
		errors.Is(err, models.ErrCheckInInPast),
		errors.Is(err, models.ErrCheckOutNotAfterIn),
		errors.Is(err, models.ErrCheckInRequired),
		errors.Is(err, models.ErrCheckOutRequired):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, services.ErrAvailabilityUnavailable):
		return http.StatusBadGateway, "availability_unavailable"
	case errors.As(err, &rejected):
		return http.StatusConflict, "booking_rejected"
	case errors.Is(err, services.ErrSubmissionFailed):
		return http.StatusBadGateway, "submission_failed"
	}
	return http.StatusInternalServerError, "internal_error"
}

func parseOptionalDate(value string) (civil.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return civil.Date{}, nil
	}
	date, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, models.ErrInvalidCalendarDate
	}
	return date, nil
}
