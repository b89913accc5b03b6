// Package reminder tracks daily care reminders. Completing one counts as
// activity, which the emergency machine accepts as proof of safety while it
// is monitoring.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/safety-concierge/internal/clock"
	"github.com/mr1hm/safety-concierge/internal/models"
)

const DefaultPollInterval = 30 * time.Second

var (
	ErrNotFound         = errors.New("reminder not found")
	ErrAlreadyCompleted = errors.New("reminder already completed")
)

type Scheduler struct {
	mu        sync.RWMutex
	reminders []models.Reminder
	activeID  string

	clock    clock.Clock
	interval time.Duration
	wg       sync.WaitGroup

	polling   bool
	pollGen   uint64
	pollTimer clock.Timer

	// OnCompleted and OnActivity fire after a reminder is completed.
	OnCompleted func(models.Reminder)
	OnActivity  func()
	// OnDue fires when a due reminder becomes the active one.
	OnDue func(models.Reminder)
}

func NewScheduler(clk clock.Clock, interval time.Duration, seed []models.Reminder) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		reminders: append([]models.Reminder(nil), seed...),
		clock:     clk,
		interval:  interval,
	}
}

// DefaultReminders returns the day's standard care plan starting from now.
func DefaultReminders(now time.Time) []models.Reminder {
	return []models.Reminder{
		{ID: "reminder-1", Type: models.ReminderMedicine, Title: "Prenatal Vitamins", Description: "Take your daily prenatal vitamins with breakfast", ScheduledTime: now.Add(30 * time.Minute)},
		{ID: "reminder-2", Type: models.ReminderWater, Title: "Hydration Check", Description: "Drink a glass of water", ScheduledTime: now.Add(time.Hour)},
		{ID: "reminder-3", Type: models.ReminderFood, Title: "Healthy Snack", Description: "Time for a nutritious snack", ScheduledTime: now.Add(2 * time.Hour)},
		{ID: "reminder-4", Type: models.ReminderRest, Title: "Rest Break", Description: "Take a 15-minute rest break", ScheduledTime: now.Add(3 * time.Hour)},
		{ID: "reminder-5", Type: models.ReminderExercise, Title: "Gentle Stretching", Description: "Do some light stretching exercises", ScheduledTime: now.Add(4 * time.Hour)},
	}
}

func (s *Scheduler) Add(reminderType models.ReminderType, title string, at time.Time, description string) (models.Reminder, error) {
	if !reminderType.Valid() {
		return models.Reminder{}, fmt.Errorf("invalid reminder type: %s", reminderType)
	}
	if title == "" {
		return models.Reminder{}, fmt.Errorf("reminder title is required")
	}

	r := models.Reminder{
		ID:            uuid.NewString(),
		Type:          reminderType,
		Title:         title,
		Description:   description,
		ScheduledTime: at,
	}

	s.mu.Lock()
	s.reminders = append(s.reminders, r)
	s.mu.Unlock()

	slog.Info("reminder added", "id", r.ID, "type", r.Type, "scheduled_time", r.ScheduledTime)
	return r, nil
}

// Complete marks a reminder done and reports the activity.
func (s *Scheduler) Complete(id string, method models.CompletionMethod) (models.Reminder, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.reminders[i].IsCompleted {
		r := s.reminders[i]
		s.mu.Unlock()
		return r, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	}

	now := s.clock.Now()
	s.reminders[i].IsCompleted = true
	s.reminders[i].CompletedAt = &now
	s.reminders[i].CompletionMethod = method
	if s.activeID == id {
		s.activeID = ""
	}
	r := s.reminders[i]
	onCompleted, onActivity := s.OnCompleted, s.OnActivity
	s.mu.Unlock()

	slog.Info("reminder completed", "id", id, "method", method)
	if onCompleted != nil {
		onCompleted(r)
	}
	if onActivity != nil {
		onActivity()
	}
	return r, nil
}

func (s *Scheduler) Reminders() []models.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Reminder(nil), s.reminders...)
}

// Upcoming returns open reminders scheduled in the future, soonest first.
func (s *Scheduler) Upcoming() []models.Reminder {
	now := s.clock.Now()

	s.mu.RLock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if !r.IsCompleted && r.ScheduledTime.After(now) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out
}

func (s *Scheduler) PastDue() []models.Reminder {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Reminder
	for _, r := range s.reminders {
		if !r.IsCompleted && !r.ScheduledTime.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// Active returns the reminder currently awaiting the user, if any.
func (s *Scheduler) Active() (models.Reminder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(s.activeID); i >= 0 {
		return s.reminders[i], true
	}
	return models.Reminder{}, false
}

// Start polls for due reminders immediately and then every interval on the
// scheduler's clock, until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting reminder poller", "interval", s.interval)

	s.mu.Lock()
	s.polling = true
	s.pollGen++
	s.schedulePollLocked(s.pollGen)
	s.mu.Unlock()

	s.checkDue()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()

		s.mu.Lock()
		s.polling = false
		s.pollGen++
		if s.pollTimer != nil {
			s.pollTimer.Stop()
			s.pollTimer = nil
		}
		s.mu.Unlock()
		slog.Info("reminder poller shutting down")
	}()
}

// Stop waits for the poller to wind down after its context is cancelled.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	slog.Info("reminder scheduler stopped")
}

func (s *Scheduler) schedulePollLocked(gen uint64) {
	s.pollTimer = s.clock.AfterFunc(s.interval, func() { s.poll(gen) })
}

func (s *Scheduler) poll(gen uint64) {
	s.mu.Lock()
	if !s.polling || gen != s.pollGen {
		s.mu.Unlock()
		return
	}
	s.schedulePollLocked(gen)
	s.mu.Unlock()

	s.checkDue()
}

// checkDue promotes the first due reminder to active when nothing is active.
func (s *Scheduler) checkDue() {
	now := s.clock.Now()

	s.mu.Lock()
	if s.activeID != "" {
		s.mu.Unlock()
		return
	}
	var due *models.Reminder
	for i := range s.reminders {
		r := &s.reminders[i]
		if !r.IsCompleted && !r.ScheduledTime.After(now) {
			due = r
			break
		}
	}
	if due == nil {
		s.mu.Unlock()
		return
	}
	s.activeID = due.ID
	r := *due
	onDue := s.OnDue
	s.mu.Unlock()

	slog.Debug("reminder due", "id", r.ID, "title", r.Title)
	if onDue != nil {
		onDue(r)
	}
}

func (s *Scheduler) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range s.reminders {
		if r.ID == id {
			return i
		}
	}
	return -1
}
