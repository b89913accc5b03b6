// Package metrics exposes emergency transitions as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/safety-concierge/internal/emergency"
	"github.com/mr1hm/safety-concierge/internal/models"
)

var statuses = []models.EmergencyStatus{
	models.StatusSafe,
	models.StatusMonitoring,
	models.StatusAlert,
	models.StatusEmergency,
	models.StatusResolved,
}

type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	triggers    *prometheus.CounterVec
	escalations prometheus.Counter
	status      *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concierge",
		Name:      "emergency_transitions_total",
		Help:      "Emergency status transitions by source and target status",
	}, []string{"from", "to"})
	m.triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concierge",
		Name:      "emergency_triggers_total",
		Help:      "Emergency episodes opened by trigger type",
	}, []string{"trigger_type"})
	m.escalations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "concierge",
		Name:      "emergency_escalations_total",
		Help:      "Escalations to emergency contacts",
	})
	m.status = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "concierge",
		Name:      "emergency_status",
		Help:      "1 for the current emergency status, 0 otherwise",
	}, []string{"status"})

	m.registry.MustRegister(m.transitions, m.triggers, m.escalations, m.status)
	m.setStatus(models.StatusSafe)
	return m
}

// Observe is shaped to be passed to Machine.Observe.
func (m *Metrics) Observe(n emergency.Notification) {
	switch n.Kind {
	case emergency.KindEscalate:
		m.escalations.Inc()
	case emergency.KindStatus:
		m.transitions.WithLabelValues(string(n.Previous), string(n.Status)).Inc()
		if n.Status == models.StatusAlert && n.Event != nil {
			m.triggers.WithLabelValues(string(n.Event.TriggerType)).Inc()
		}
		m.setStatus(n.Status)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) setStatus(current models.EmergencyStatus) {
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.status.WithLabelValues(string(s)).Set(v)
	}
}
