package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CallStatus enumerates the lifecycle of an outbound call record.
type CallStatus string

const (
	CallStatusRegistered CallStatus = "registered"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusAnalyzed   CallStatus = "analyzed"
)

// CallAnalysis is the vendor-produced analysis attached to a finished call.
type CallAnalysis struct {
	Summary   string
	Sentiment string
	Custom    map[string]any
}

// Custom analysis keys the vendor emits for follow-up handling.
const (
	CustomKeyName            = "name"
	CustomKeyIntent          = "intent"
	CustomKeyEmail           = "email"
	CustomKeyPhoneNumber     = "phone_number"
	CustomKeyFollowUpTime    = "follow_up_time"
	CustomKeyNeedsScheduling = "needs_scheduling"
	CustomKeyScheduleDelay   = "schedule_delay"
	CustomKeyPreferredWindow = "Preferred Follow-Up Time & Days"
	CustomKeyAppointment     = "Appointment Details"
)

// NeedsScheduling reports whether the analysis asks for the call to be
// deferred instead of finalized. Only boolean true and the case-insensitive
// string "true" count; anything else, including absence, is false.
func (a *CallAnalysis) NeedsScheduling() bool {
	if a == nil || a.Custom == nil {
		return false
	}
	switch v := a.Custom[CustomKeyNeedsScheduling].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// CustomString returns the named custom field when it is a non-empty string.
func (a *CallAnalysis) CustomString(key string) (string, bool) {
	if a == nil || a.Custom == nil {
		return "", false
	}
	s, ok := a.Custom[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Call is one attempted or completed outbound call. VendorCallID is the
// correlation key for asynchronous completion events; at most one record may
// ever hold a given vendor call id.
type Call struct {
	ID           uuid.UUID
	VendorCallID string
	LeadID       uuid.UUID
	Status       CallStatus
	Analysis     *CallAnalysis
	Transcript   string
	RecordingURL string
	DurationMs   int64
	Cost         float64
	FromNumber   string
	ToNumber     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
