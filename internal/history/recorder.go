// Package history keeps the audit trail of emergency episodes. The recorder
// owns its own copies of every event so the timeline survives after the state
// machine discards the active episode.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mr1hm/safety-concierge/internal/emergency"
	"github.com/mr1hm/safety-concierge/internal/models"
	"github.com/mr1hm/safety-concierge/internal/repository"
	"github.com/mr1hm/safety-concierge/internal/worker"
)

const DefaultBufferSize = 100

type persistJob struct {
	event      *models.EmergencyEvent
	transition models.Transition
}

type Recorder struct {
	mu       sync.RWMutex
	events   []*models.EmergencyEvent
	index    map[string]int
	timeline []models.Transition
	stopped  bool

	repo repository.HistoryRepository
	pool *worker.WorkerPool[persistJob]
}

// NewRecorder creates a recorder. When repo is non-nil every recorded entry is
// also written to it, in order, on a background worker.
func NewRecorder(repo repository.HistoryRepository, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Recorder{
		index: make(map[string]int),
		repo:  repo,
	}
	if repo != nil {
		r.pool = worker.NewWorkerPool(1, bufferSize, r.persist)
	}
	return r
}

// Start launches the persistence worker.
func (r *Recorder) Start(ctx context.Context) {
	if r.pool != nil {
		r.pool.Start(ctx)
	}
}

// Stop flushes pending writes. Notifications recorded afterwards are dropped.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	if r.pool != nil {
		r.pool.Stop()
	}
	slog.Info("history recorder stopped")
}

// Record is the machine observer.
func (r *Recorder) Record(n emergency.Notification) {
	t := models.Transition{
		Kind: string(n.Kind),
		From: n.Previous,
		To:   n.Status,
		At:   n.At,
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	var stored *models.EmergencyEvent
	if n.Event != nil {
		t.EventID = n.Event.ID
		stored = n.Event.Clone()
		if i, ok := r.index[stored.ID]; ok {
			r.events[i] = stored
		} else {
			r.index[stored.ID] = len(r.events)
			r.events = append(r.events, stored)
		}
	}
	r.timeline = append(r.timeline, t)

	// Submitting under the lock keeps Stop from closing the queue mid-send.
	if r.pool != nil {
		r.pool.Submit(persistJob{event: stored.Clone(), transition: t})
	}
	r.mu.Unlock()
}

// Events returns copies of every recorded event in trigger order.
func (r *Recorder) Events() []models.EmergencyEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.EmergencyEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e.Clone())
	}
	return out
}

func (r *Recorder) Event(id string) (*models.EmergencyEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.events[i].Clone(), true
}

// Timeline returns the transitions for one event, or every transition when
// eventID is empty.
func (r *Recorder) Timeline(eventID string) []models.Transition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.Transition{}
	for _, t := range r.timeline {
		if eventID == "" || t.EventID == eventID {
			out = append(out, t)
		}
	}
	return out
}

func (r *Recorder) persist(ctx context.Context, job persistJob) error {
	if job.event != nil {
		if err := r.repo.SaveEvent(ctx, job.event); err != nil {
			return fmt.Errorf("error persisting event: %w", err)
		}
	}
	if err := r.repo.AddTransition(ctx, &job.transition); err != nil {
		return fmt.Errorf("error persisting transition: %w", err)
	}
	return nil
}
