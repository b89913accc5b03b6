package models

import "time"

type EmergencyStatus string

const (
	StatusSafe       EmergencyStatus = "safe"
	StatusMonitoring EmergencyStatus = "monitoring"
	StatusAlert      EmergencyStatus = "alert"
	StatusEmergency  EmergencyStatus = "emergency"
	StatusResolved   EmergencyStatus = "resolved"
)

func (s EmergencyStatus) Valid() bool {
	switch s {
	case StatusSafe, StatusMonitoring, StatusAlert, StatusEmergency, StatusResolved:
		return true
	}
	return false
}

// Active reports whether an emergency episode is in progress (alert or emergency).
func (s EmergencyStatus) Active() bool {
	return s == StatusAlert || s == StatusEmergency
}

type TriggerType string

const (
	TriggerVoice      TriggerType = "voice"
	TriggerManual     TriggerType = "manual"
	TriggerInactivity TriggerType = "inactivity"
)

func (t TriggerType) Valid() bool {
	return t == TriggerVoice || t == TriggerManual || t == TriggerInactivity
}

type VerificationMethod string

const (
	VerifyVoice    VerificationMethod = "voice"
	VerifyButton   VerificationMethod = "button"
	VerifyActivity VerificationMethod = "activity"
)

func (m VerificationMethod) Valid() bool {
	return m == VerifyVoice || m == VerifyButton || m == VerifyActivity
}

// ResolvedBySelf marks an event closed by the user's own safety confirmation.
const ResolvedBySelf = "self"

type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type VerificationAttempt struct {
	Type      VerificationMethod `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Success   bool               `json:"success"`
}

type EmergencyEvent struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"user_id"`
	TriggeredAt          time.Time             `json:"triggered_at"`
	Status               EmergencyStatus       `json:"status"`
	TriggerType          TriggerType           `json:"trigger_type"`
	Keyword              string                `json:"keyword,omitempty"` // voice triggers only
	Location             Location              `json:"location"`          // snapshot taken at trigger time
	VerificationAttempts []VerificationAttempt `json:"verification_attempts"`
	ConfirmedBy          string                `json:"confirmed_by,omitempty"`
	EscalatedAt          *time.Time            `json:"escalated_at,omitempty"`
	ResolvedAt           *time.Time            `json:"resolved_at,omitempty"`
	ResolvedBy           string                `json:"resolved_by,omitempty"`
}

// Clone returns a deep copy that shares no memory with e.
func (e *EmergencyEvent) Clone() *EmergencyEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.VerificationAttempts = append([]VerificationAttempt(nil), e.VerificationAttempts...)
	if c.VerificationAttempts == nil {
		c.VerificationAttempts = []VerificationAttempt{}
	}
	if e.EscalatedAt != nil {
		t := *e.EscalatedAt
		c.EscalatedAt = &t
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
