package repository

import (
	"context"
	"time"

	"github.com/mr1hm/safety-concierge/internal/models"
)

type Filter struct {
	Limit       int
	Offset      int
	Since       *time.Time
	TriggerType *models.TriggerType
	Status      *models.EmergencyStatus
}

type HistoryRepository interface {
	SaveEvent(ctx context.Context, e *models.EmergencyEvent) error
	GetEvent(ctx context.Context, id string) (*models.EmergencyEvent, error)
	ListEvents(ctx context.Context, opts Filter) ([]models.EmergencyEvent, error)
	AddTransition(ctx context.Context, t *models.Transition) error
	ListTransitions(ctx context.Context, eventID string) ([]models.Transition, error)
}
