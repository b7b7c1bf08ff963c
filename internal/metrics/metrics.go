// Package metrics exposes Prometheus collectors for the alarm daemon.
// Every method is safe on a nil *Metrics, which disables collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartalarm"

// Firing outcomes.
const (
	OutcomeRetired     = "retired"
	OutcomeRescheduled = "rescheduled"
	OutcomeStale       = "stale"
	OutcomeError       = "error"
)

// Metrics bundles the daemon's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	AlarmsActive   prometheus.Gauge
	FiringsTotal   *prometheus.CounterVec
	NotifyFailures prometheus.Counter
	NotifyDuration prometheus.Histogram
	Restored       *prometheus.GaugeVec
	HistoryPruned  prometheus.Counter
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		AlarmsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarms_active",
			Help:      "Alarms currently held in the store",
		}),
		FiringsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "firings_total",
			Help:      "Matured alarms by outcome",
		}, []string{"outcome"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notifier calls that returned an error or timed out",
		}),
		NotifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notify_duration_seconds",
			Help:      "Notifier call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		Restored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recovery_alarms",
			Help:      "Alarms seen by the last recovery, by result",
		}, []string{"result"}),
		HistoryPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pruned_total",
			Help:      "Notification records removed by retention",
		}),
	}
	m.reg.MustRegister(
		m.AlarmsActive,
		m.FiringsTotal,
		m.NotifyFailures,
		m.NotifyDuration,
		m.Restored,
		m.HistoryPruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ActiveAlarms implements alarm.Observer.
func (m *Metrics) ActiveAlarms(n int) {
	if m == nil {
		return
	}
	m.AlarmsActive.Set(float64(n))
}

func (m *Metrics) Firing(outcome string) {
	if m == nil {
		return
	}
	m.FiringsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notified(took time.Duration, err error) {
	if m == nil {
		return
	}
	m.NotifyDuration.Observe(took.Seconds())
	if err != nil {
		m.NotifyFailures.Inc()
	}
}

func (m *Metrics) Recovered(restored, expired, skipped int) {
	if m == nil {
		return
	}
	m.Restored.WithLabelValues("restored").Set(float64(restored))
	m.Restored.WithLabelValues("expired").Set(float64(expired))
	m.Restored.WithLabelValues("skipped").Set(float64(skipped))
}

func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryPruned.Add(float64(n))
}

// WatchPending exports fn as the scheduler queue depth.
func (m *Metrics) WatchPending(fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_pending",
		Help:      "Timers waiting in the scheduler queue",
	}, func() float64 { return float64(fn()) }))
}
