package models

import "time"

type ReminderType string

const (
	ReminderMedicine ReminderType = "medicine"
	ReminderFood     ReminderType = "food"
	ReminderWater    ReminderType = "water"
	ReminderExercise ReminderType = "exercise"
	ReminderRest     ReminderType = "rest"
)

func (t ReminderType) Valid() bool {
	switch t {
	case ReminderMedicine, ReminderFood, ReminderWater, ReminderExercise, ReminderRest:
		return true
	}
	return false
}

type CompletionMethod string

const (
	CompletedByButton CompletionMethod = "button"
	CompletedByVoice  CompletionMethod = "voice"
)

type Reminder struct {
	ID               string           `json:"id"`
	Type             ReminderType     `json:"type"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	ScheduledTime    time.Time        `json:"scheduled_time"`
	IsCompleted      bool             `json:"is_completed"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CompletionMethod CompletionMethod `json:"completion_method,omitempty"`
}
