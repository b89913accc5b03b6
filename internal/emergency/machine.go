// Package emergency implements the escalation state machine that drives an
// emergency episode from the first trigger to resolution.
//
// A trigger moves the machine to alert and starts a verification window. If
// nobody confirms safety before the window closes the machine escalates to
// emergency and starts a second window, at the end of which the escalate
// callback recommends contacting emergency services. Every transition bumps a
// generation counter and stops outstanding timers; timer callbacks compare the
// generation they captured when scheduled and do nothing when superseded.
package emergency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/safety-concierge/internal/clock"
	"github.com/mr1hm/safety-concierge/internal/models"
)

const (
	DefaultVerificationTimeout = 30 * time.Second
	DefaultEscalationTimeout   = 120 * time.Second
	DefaultResolveRevertDelay  = 3 * time.Second
	DefaultCountdownTick       = time.Second
	DefaultInactivityTimeout   = 15 * time.Minute
)

// LocationProvider supplies the location snapshot captured at trigger time.
type LocationProvider interface {
	Current() models.Location
}

// StaticLocation always reports the same coordinates.
type StaticLocation models.Location

func (l StaticLocation) Current() models.Location {
	return models.Location(l)
}

type Options struct {
	Clock    clock.Clock
	Location LocationProvider
	UserID   string

	VerificationTimeout time.Duration
	EscalationTimeout   time.Duration
	ResolveRevertDelay  time.Duration
	CountdownTick       time.Duration
	// InactivityTimeout bounds a monitoring window. Zero leaves monitoring open
	// until activity or StopMonitoring.
	InactivityTimeout time.Duration

	OnStatusChange func(models.EmergencyStatus)
	OnEscalate     func()

	Logger *slog.Logger
}

// Snapshot is a copy of the machine's observable state.
type Snapshot struct {
	Status               models.EmergencyStatus       `json:"status"`
	Event                *models.EmergencyEvent       `json:"current_event"`
	TimeRemaining        *time.Duration               `json:"-"`
	VerificationAttempts []models.VerificationAttempt `json:"verification_attempts"`
}

type Machine struct {
	mu sync.Mutex

	clock    clock.Clock
	location LocationProvider
	userID   string
	logger   *slog.Logger

	verificationTimeout time.Duration
	escalationTimeout   time.Duration
	revertDelay         time.Duration
	tick                time.Duration
	inactivityTimeout   time.Duration

	status    models.EmergencyStatus
	event     *models.EmergencyEvent
	attempts  []models.VerificationAttempt
	remaining time.Duration
	counting  bool

	gen        uint64
	phaseTimer clock.Timer
	tickTimer  clock.Timer
	closed     bool

	onStatusChange func(models.EmergencyStatus)
	onEscalate     func()
	observers      []observer
	nextObserverID uint64
	queue          []Notification
	delivering     bool
}

func New(opts Options) *Machine {
	m := &Machine{
		clock:               opts.Clock,
		location:            opts.Location,
		userID:              opts.UserID,
		logger:              opts.Logger,
		verificationTimeout: opts.VerificationTimeout,
		escalationTimeout:   opts.EscalationTimeout,
		revertDelay:         opts.ResolveRevertDelay,
		tick:                opts.CountdownTick,
		inactivityTimeout:   opts.InactivityTimeout,
		status:              models.StatusSafe,
		onStatusChange:      opts.OnStatusChange,
		onEscalate:          opts.OnEscalate,
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.location == nil {
		m.location = StaticLocation{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.verificationTimeout <= 0 {
		m.verificationTimeout = DefaultVerificationTimeout
	}
	if m.escalationTimeout <= 0 {
		m.escalationTimeout = DefaultEscalationTimeout
	}
	if m.revertDelay <= 0 {
		m.revertDelay = DefaultResolveRevertDelay
	}
	if m.tick <= 0 {
		m.tick = DefaultCountdownTick
	}
	return m
}

// TriggerEmergency opens a new episode in alert, replacing any episode or
// timers already in progress. The keyword is kept only for voice triggers.
func (m *Machine) TriggerEmergency(triggerType models.TriggerType, keyword string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if !triggerType.Valid() {
		m.mu.Unlock()
		m.logger.Warn("ignoring trigger with unknown type", "trigger_type", triggerType)
		return
	}
	m.triggerLocked(triggerType, keyword)
	m.mu.Unlock()

	m.deliver()
}

func (m *Machine) triggerLocked(triggerType models.TriggerType, keyword string) {
	prev := m.status
	m.cancelTimersLocked()

	now := m.clock.Now()
	loc := m.location.Current()
	if loc.Timestamp.IsZero() {
		loc.Timestamp = now
	}
	if triggerType != models.TriggerVoice {
		keyword = ""
	}

	m.event = &models.EmergencyEvent{
		ID:                   uuid.NewString(),
		UserID:               m.userID,
		TriggeredAt:          now,
		Status:               models.StatusAlert,
		TriggerType:          triggerType,
		Keyword:              keyword,
		Location:             loc,
		VerificationAttempts: []models.VerificationAttempt{},
	}
	m.attempts = nil
	m.status = models.StatusAlert

	m.startCountdownLocked(m.verificationTimeout)
	m.schedulePhaseLocked(m.verificationTimeout, m.verificationExpired)
	m.enqueueStatusLocked(prev, now)

	m.logger.Info("emergency triggered",
		"event_id", m.event.ID,
		"trigger_type", triggerType,
		"keyword", keyword,
		"previous", prev,
	)
}

// VerifySafe records a successful safety confirmation. From alert or emergency
// it closes the episode as self-resolved; from monitoring it ends the watch.
func (m *Machine) VerifySafe(method models.VerificationMethod) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	attempt := models.VerificationAttempt{Type: method, Timestamp: now, Success: true}

	switch m.status {
	case models.StatusAlert, models.StatusEmergency:
		prev := m.status
		m.cancelTimersLocked()
		m.attempts = append(m.attempts, attempt)
		m.event.VerificationAttempts = append(m.event.VerificationAttempts, attempt)
		m.event.Status = models.StatusResolved
		if m.event.ResolvedAt == nil {
			m.event.ResolvedAt = &now
			m.event.ResolvedBy = models.ResolvedBySelf
		}
		m.status = models.StatusSafe
		m.enqueueStatusLocked(prev, now)
		m.logger.Info("safety verified", "event_id", m.event.ID, "method", method, "previous", prev)

	case models.StatusMonitoring:
		m.cancelTimersLocked()
		m.attempts = append(m.attempts, attempt)
		m.status = models.StatusSafe
		m.enqueueStatusLocked(models.StatusMonitoring, now)
		m.logger.Debug("activity ended monitoring window", "method", method)

	case models.StatusSafe:
		m.cancelTimersLocked()
		// A self-resolved episode is still on display; keep its attempt log complete.
		if m.event != nil {
			m.attempts = append(m.attempts, attempt)
			m.event.VerificationAttempts = append(m.event.VerificationAttempts, attempt)
		}
	}
	m.mu.Unlock()

	m.deliver()
}

// RecordFailedVerification logs an unsuccessful confirmation attempt. The
// running countdown is left untouched.
func (m *Machine) RecordFailedVerification(method models.VerificationMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.status.Active() {
		return
	}
	attempt := models.VerificationAttempt{Type: method, Timestamp: m.clock.Now(), Success: false}
	m.attempts = append(m.attempts, attempt)
	m.event.VerificationAttempts = append(m.event.VerificationAttempts, attempt)
	m.logger.Info("verification failed", "event_id", m.event.ID, "method", method)
}

// ConfirmDanger is a human confirmation that the emergency is real. It stops
// all countdowns and escalates immediately.
func (m *Machine) ConfirmDanger(confirmedBy string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	switch m.status {
	case models.StatusAlert, models.StatusEmergency:
		prev := m.status
		now := m.clock.Now()
		m.cancelTimersLocked()
		m.status = models.StatusEmergency
		m.event.Status = models.StatusEmergency
		m.event.ConfirmedBy = confirmedBy
		m.event.EscalatedAt = &now
		m.enqueueStatusLocked(prev, now)
		m.enqueueLocked(Notification{
			Kind:     KindEscalate,
			Status:   m.status,
			Previous: m.status,
			Event:    m.event.Clone(),
			At:       now,
		})
		m.logger.Warn("danger confirmed", "event_id", m.event.ID, "confirmed_by", confirmedBy, "previous", prev)

	case models.StatusSafe:
		m.cancelTimersLocked()
	}
	m.mu.Unlock()

	m.deliver()
}

// ResolveEmergency closes the episode on behalf of a contact. The machine
// stays in resolved for the revert delay and then returns to safe, dropping
// the event.
func (m *Machine) ResolveEmergency(resolvedBy string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	switch m.status {
	case models.StatusAlert, models.StatusEmergency:
		prev := m.status
		now := m.clock.Now()
		m.cancelTimersLocked()
		m.status = models.StatusResolved
		m.event.Status = models.StatusResolved
		m.event.ResolvedAt = &now
		m.event.ResolvedBy = resolvedBy
		m.enqueueStatusLocked(prev, now)
		m.schedulePhaseLocked(m.revertDelay, m.revertToSafe)
		m.logger.Info("emergency resolved", "event_id", m.event.ID, "resolved_by", resolvedBy, "previous", prev)

	case models.StatusSafe:
		m.cancelTimersLocked()
	}
	m.mu.Unlock()

	m.deliver()
}

// Monitor opens an ambient monitoring window from safe. Without activity
// before the inactivity timeout the machine triggers an inactivity emergency.
func (m *Machine) Monitor() {
	m.mu.Lock()
	if m.closed || m.status != models.StatusSafe {
		m.mu.Unlock()
		return
	}

	m.cancelTimersLocked()
	m.event = nil
	m.attempts = nil
	m.status = models.StatusMonitoring
	if m.inactivityTimeout > 0 {
		m.schedulePhaseLocked(m.inactivityTimeout, m.inactivityExpired)
	}
	m.enqueueStatusLocked(models.StatusSafe, m.clock.Now())
	m.logger.Debug("monitoring started", "inactivity_timeout", m.inactivityTimeout)
	m.mu.Unlock()

	m.deliver()
}

// StopMonitoring closes a monitoring window without recording activity.
func (m *Machine) StopMonitoring() {
	m.mu.Lock()
	if m.closed || m.status != models.StatusMonitoring {
		m.mu.Unlock()
		return
	}

	m.cancelTimersLocked()
	m.status = models.StatusSafe
	m.enqueueStatusLocked(models.StatusMonitoring, m.clock.Now())
	m.mu.Unlock()

	m.deliver()
}

// Close stops every timer and turns all later calls into no-ops.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.cancelTimersLocked()
	m.queue = nil
	m.observers = nil
}

func (m *Machine) Status() models.EmergencyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentEvent returns a copy of the active event, or nil.
func (m *Machine) CurrentEvent() *models.EmergencyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.event.Clone()
}

// TimeRemaining reports the visible countdown. ok is false when no countdown runs.
func (m *Machine) TimeRemaining() (remaining time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining, m.counting
}

func (m *Machine) VerificationAttempts() []models.VerificationAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.VerificationAttempt{}, m.attempts...)
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Status:               m.status,
		Event:                m.event.Clone(),
		VerificationAttempts: append([]models.VerificationAttempt{}, m.attempts...),
	}
	if m.counting {
		r := m.remaining
		s.TimeRemaining = &r
	}
	return s
}

func (m *Machine) verificationExpired(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.status != models.StatusAlert {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	m.cancelTimersLocked()
	m.status = models.StatusEmergency
	m.event.Status = models.StatusEmergency
	m.startCountdownLocked(m.escalationTimeout)
	m.schedulePhaseLocked(m.escalationTimeout, m.escalationExpired)
	m.enqueueStatusLocked(models.StatusAlert, now)
	m.logger.Warn("verification window expired, escalating", "event_id", m.event.ID)
	m.mu.Unlock()

	m.deliver()
}

func (m *Machine) escalationExpired(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.status != models.StatusEmergency {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	m.phaseTimer = nil
	m.event.EscalatedAt = &now
	m.enqueueLocked(Notification{
		Kind:     KindEscalate,
		Status:   m.status,
		Previous: m.status,
		Event:    m.event.Clone(),
		At:       now,
	})
	m.logger.Warn("no response during escalation window, recommending emergency services", "event_id", m.event.ID)
	m.mu.Unlock()

	m.deliver()
}

func (m *Machine) revertToSafe(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.status != models.StatusResolved {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	m.cancelTimersLocked()
	ended := m.event
	m.event = nil
	m.status = models.StatusSafe
	m.enqueueLocked(Notification{
		Kind:     KindStatus,
		Status:   models.StatusSafe,
		Previous: models.StatusResolved,
		Event:    ended.Clone(),
		At:       now,
	})
	m.mu.Unlock()

	m.deliver()
}

func (m *Machine) inactivityExpired(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.status != models.StatusMonitoring {
		m.mu.Unlock()
		return
	}
	m.logger.Warn("no activity during monitoring window")
	m.triggerLocked(models.TriggerInactivity, "")
	m.mu.Unlock()

	m.deliver()
}

// cancelTimersLocked invalidates every scheduled callback and clears the countdown.
func (m *Machine) cancelTimersLocked() {
	m.gen++
	if m.phaseTimer != nil {
		m.phaseTimer.Stop()
		m.phaseTimer = nil
	}
	if m.tickTimer != nil {
		m.tickTimer.Stop()
		m.tickTimer = nil
	}
	m.remaining = 0
	m.counting = false
}

func (m *Machine) schedulePhaseLocked(d time.Duration, fn func(gen uint64)) {
	gen := m.gen
	m.phaseTimer = m.clock.AfterFunc(d, func() { fn(gen) })
}

func (m *Machine) startCountdownLocked(d time.Duration) {
	m.remaining = d
	m.counting = true
	m.scheduleTickLocked(m.gen)
}

func (m *Machine) scheduleTickLocked(gen uint64) {
	m.tickTimer = m.clock.AfterFunc(m.tick, func() { m.countdownTick(gen) })
}

func (m *Machine) countdownTick(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.gen || !m.counting {
		return
	}
	if m.remaining <= m.tick {
		m.remaining = 0
		m.counting = false
		m.tickTimer = nil
		return
	}
	m.remaining -= m.tick
	m.scheduleTickLocked(gen)
}
