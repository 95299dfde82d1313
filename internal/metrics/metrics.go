// Package metrics exposes Prometheus collectors for pipeline runs, phases
// and chat notifications.
//
// Collectors are registered on a private registry owned by each Metrics
// value, so tests and multiple servers in one process never collide.
//
// Metrics:
//   - tinytree_runs_started_total{mode,variant}
//   - tinytree_runs_finished_total{outcome}
//   - tinytree_phase_duration_seconds{phase,outcome}
//   - tinytree_active_sessions
//   - tinytree_notifications_total{outcome}
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/tinytree/internal/event"
)

const namespace = "tinytree"

// ActiveCounter reports the number of non-terminal sessions.
// session.Store satisfies it.
type ActiveCounter interface {
	ActiveCount() int
}

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsStarted   *prometheus.CounterVec
	RunsFinished  *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	Notifications *prometheus.CounterVec

	subscriptions []string
}

// New creates a Metrics value with its own registry. When sessions is
// non-nil, tinytree_active_sessions reports its ActiveCount at scrape time.
// Go runtime and process collectors are registered alongside.
func New(sessions ActiveCounter) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		RunsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of accepted pipeline runs",
			},
			[]string{"mode", "variant"},
		),
		RunsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finished_total",
				Help:      "Total number of finished pipeline runs",
			},
			[]string{"outcome"}, // "success", "error" or "cancelled"
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of pipeline phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
			},
			[]string{"phase", "outcome"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total number of chat notification deliveries",
			},
			[]string{"outcome"}, // "success" or "failure"
		),
	}

	if sessions != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of non-terminal sessions",
			},
			func() float64 { return float64(sessions.ActiveCount()) },
		)
	}
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRunStarted counts an accepted run.
func (m *Metrics) RecordRunStarted(mode, variant string) {
	m.RunsStarted.WithLabelValues(mode, variant).Inc()
}

// RecordRunFinished counts a finished run.
func (m *Metrics) RecordRunFinished(outcome string) {
	m.RunsFinished.WithLabelValues(outcome).Inc()
}

// RecordPhase observes the duration of one phase.
func (m *Metrics) RecordPhase(phase, outcome string, seconds float64) {
	m.PhaseDuration.WithLabelValues(phase, outcome).Observe(seconds)
}

// RecordNotification counts a notification delivery. It matches the
// notify.WithObserver callback.
func (m *Metrics) RecordNotification(outcome string) {
	m.Notifications.WithLabelValues(outcome).Inc()
}

// Subscribe records run and phase events published on bus.
func (m *Metrics) Subscribe(bus *event.Bus) {
	m.subscriptions = append(m.subscriptions,
		bus.Subscribe(event.TypeRunAccepted, func(e event.Event) {
			ev := e.(event.RunAcceptedEvent)
			m.RecordRunStarted(ev.Mode, ev.Variant)
		}),
		bus.Subscribe(event.TypeRunCompleted, func(e event.Event) {
			m.RecordRunFinished(e.(event.RunCompletedEvent).Outcome())
		}),
		bus.Subscribe(event.TypePhaseFinished, func(e event.Event) {
			ev := e.(event.PhaseFinishedEvent)
			m.RecordPhase(ev.Phase, ev.Outcome, ev.Duration.Seconds())
		}),
	)
}

// Unsubscribe removes the handlers added by Subscribe.
func (m *Metrics) Unsubscribe(bus *event.Bus) {
	for _, id := range m.subscriptions {
		bus.Unsubscribe(id)
	}
	m.subscriptions = nil
}
