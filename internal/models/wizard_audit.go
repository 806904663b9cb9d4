package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WizardAuditEventType is the kind of wizard lifecycle event recorded
type WizardAuditEventType string

const (
	WizardEventOpened             WizardAuditEventType = "opened"
	WizardEventAvailabilityFailed WizardAuditEventType = "availability_failed"
	WizardEventSubmissionRejected WizardAuditEventType = "submission_rejected"
	WizardEventConfirmed          WizardAuditEventType = "confirmed"
	WizardEventCancelled          WizardAuditEventType = "cancelled"
	WizardEventExpired            WizardAuditEventType = "expired"
)

// JSONB is a map stored in a PostgreSQL JSONB column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface.
// Returns JSON as string so it binds under the simple query protocol.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// WizardAudit is an append-only record of a wizard lifecycle event (wizard_audits table).
// It never stores the draft itself, only the outcome.
type WizardAudit struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	SessionID     uuid.UUID            `json:"session_id" db:"session_id"`
	Flow          WizardFlow           `json:"flow" db:"flow"`
	EventType     WizardAuditEventType `json:"event_type" db:"event_type"`
	Step          WizardStep           `json:"step" db:"step"`
	TotalAmount   *float64             `json:"total_amount,omitempty" db:"total_amount"`
	BookingCode   *string              `json:"booking_code,omitempty" db:"booking_code"`
	FailureReason *string              `json:"failure_reason,omitempty" db:"failure_reason"`
	IPAddress     *string              `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string              `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo    JSONB                `json:"device_info,omitempty" db:"device_info"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
}
