package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ActiveAlarms(3)
	m.Firing(OutcomeRetired)
	m.Notified(time.Second, errors.New("x"))
	m.Recovered(1, 2, 3)
	m.Pruned(4)
	m.WatchPending(func() int { return 1 })
	if m.Registry() != nil {
		t.Fatal("nil metrics returned a registry")
	}
}

func TestCollectors(t *testing.T) {
	m := New()
	m.ActiveAlarms(2)
	m.Firing(OutcomeRescheduled)
	m.Firing(OutcomeRescheduled)
	m.Firing(OutcomeStale)
	m.Notified(10*time.Millisecond, nil)
	m.Notified(10*time.Millisecond, errors.New("down"))
	m.Pruned(5)
	m.Pruned(-1)

	body := scrape(t, m)
	for _, want := range []string{
		"smartalarm_alarms_active 2",
		`smartalarm_firings_total{outcome="rescheduled"} 2`,
		`smartalarm_firings_total{outcome="stale"} 1`,
		"smartalarm_notify_failures_total 1",
		"smartalarm_notify_duration_seconds_count 2",
		"smartalarm_history_pruned_total 5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestHandler(t *testing.T) {
	m := New()
	m.WatchPending(func() int { return 7 })
	body := scrape(t, m)
	if !strings.Contains(body, "smartalarm_scheduler_pending 7") {
		t.Fatalf("exposition missing pending gauge:\n%s", body)
	}
}
