package models

import "time"

// Transition is one entry in the emergency timeline. EventID is empty for
// transitions outside an episode, such as entering monitoring.
type Transition struct {
	EventID string          `json:"event_id,omitempty"`
	Kind    string          `json:"kind"`
	From    EmergencyStatus `json:"from"`
	To      EmergencyStatus `json:"to"`
	At      time.Time       `json:"at"`
}
