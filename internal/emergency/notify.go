package emergency

import (
	"time"

	"github.com/mr1hm/safety-concierge/internal/models"
)

type NotificationKind string

const (
	KindStatus   NotificationKind = "status"
	KindEscalate NotificationKind = "escalate"
)

// Notification describes one status transition or escalation. Event is a
// copy of the episode the notification concerns; on the final revert to safe
// it is the episode that was just discarded.
type Notification struct {
	Kind     NotificationKind       `json:"kind"`
	Status   models.EmergencyStatus `json:"status"`
	Previous models.EmergencyStatus `json:"previous"`
	Event    *models.EmergencyEvent `json:"event,omitempty"`
	At       time.Time              `json:"at"`
}

type observer struct {
	id uint64
	fn func(Notification)
}

// Observe registers fn for every notification. The returned func removes it.
// Observers run one at a time in transition order and may call back into the
// machine.
func (m *Machine) Observe(fn func(Notification)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextObserverID++
	id := m.nextObserverID
	m.observers = append(m.observers, observer{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

func (m *Machine) enqueueStatusLocked(prev models.EmergencyStatus, at time.Time) {
	m.enqueueLocked(Notification{
		Kind:     KindStatus,
		Status:   m.status,
		Previous: prev,
		Event:    m.event.Clone(),
		At:       at,
	})
}

func (m *Machine) enqueueLocked(n Notification) {
	if m.closed {
		return
	}
	m.queue = append(m.queue, n)
}

// deliver drains the notification queue. Only one goroutine delivers at a
// time; a call made while another delivery is running (including re-entrant
// calls from an observer) leaves its notifications to that delivery.
func (m *Machine) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	for len(m.queue) > 0 {
		n := m.queue[0]
		m.queue = m.queue[1:]
		observers := append([]observer(nil), m.observers...)
		onStatusChange, onEscalate := m.onStatusChange, m.onEscalate
		m.mu.Unlock()

		switch n.Kind {
		case KindStatus:
			if onStatusChange != nil {
				onStatusChange(n.Status)
			}
		case KindEscalate:
			if onEscalate != nil {
				onEscalate()
			}
		}
		for _, o := range observers {
			o.fn(n)
		}

		m.mu.Lock()
	}

	m.delivering = false
	m.mu.Unlock()
}
