// Package trigger binds the collaborators that raise or clear emergencies
// (voice, reminders, the hold-to-trigger button) to the state machine.
package trigger

import "github.com/mr1hm/safety-concierge/internal/models"

// Machine is the part of the emergency state machine the collaborators drive.
type Machine interface {
	Status() models.EmergencyStatus
	TriggerEmergency(triggerType models.TriggerType, keyword string)
	VerifySafe(method models.VerificationMethod)
}

// ActivityHandler returns the callback for the reminder scheduler's activity
// signal. Activity counts as a safety confirmation only while monitoring.
func ActivityHandler(m Machine) func() {
	return func() {
		if m.Status() == models.StatusMonitoring {
			m.VerifySafe(models.VerifyActivity)
		}
	}
}

// Manual returns a callback that raises a manual emergency.
func Manual(m Machine) func() {
	return func() {
		m.TriggerEmergency(models.TriggerManual, "")
	}
}
