package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smartalarm/internal/alarm"
	"smartalarm/internal/recurrence"
	"smartalarm/internal/scheduler"
	"smartalarm/internal/storage"
	logx "smartalarm/pkg/logx"
)

var now = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*Handler, *alarm.Store, *storage.Memory) {
	t.Helper()
	clk := func() time.Time { return now }
	sched := scheduler.New(scheduler.Config{}, logx.Nop(), scheduler.WithClock(clk))
	store := alarm.NewStore(sched, nil, logx.Nop(), alarm.WithClock(clk))
	hist := storage.NewMemory(0)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") })
	return NewHandler(store, hist, time.UTC, logx.Nop(), metrics, ""), store, hist
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func TestCreateListGetDelete(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/alarms", `{"name":"standup","date_time":"16/03/2024 10:00","recurrence":"Daily"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var msg messageView
	_ = json.NewDecoder(rec.Body).Decode(&msg)
	if msg.Message != "Alarm of Event standup has been Created successfully" || msg.Alarm == nil || msg.Alarm.Recurrence != "Daily" {
		t.Fatalf("create body: %+v", msg)
	}

	// datetime-local form input
	rec = do(t, h, http.MethodPost, "/alarms", `{"name":"party","date_time":"2024-03-15T20:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create party: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodGet, "/alarms", "")
	var list []alarmView
	_ = json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 2 || list[0].Name != "party" || list[0].Recurrence != "Once" || list[1].DateTime != "16/03/2024 10:00" {
		t.Fatalf("list: %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/alarms/standup", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/alarms/standup", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "removed successfully") {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body)
	}
	if rec = do(t, h, http.MethodGet, "/alarms/standup", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", rec.Code)
	}
}

func TestErrorStatuses(t *testing.T) {
	h, store, _ := newTestHandler(t)
	if _, err := store.Add("a", now.Add(time.Hour), recurrence.Once); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Add("b", now.Add(time.Hour), recurrence.Once); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"duplicate", http.MethodPost, "/alarms", `{"name":"a","date_time":"16/03/2024 10:00"}`, http.StatusConflict},
		{"past", http.MethodPost, "/alarms", `{"name":"c","date_time":"14/03/2024 10:00"}`, http.StatusUnprocessableEntity},
		{"bad date", http.MethodPost, "/alarms", `{"name":"c","date_time":"tomorrow"}`, http.StatusUnprocessableEntity},
		{"bad recurrence", http.MethodPost, "/alarms", `{"name":"c","date_time":"16/03/2024 10:00","recurrence":"Hourly"}`, http.StatusUnprocessableEntity},
		{"empty name", http.MethodPost, "/alarms", `{"name":" ","date_time":"16/03/2024 10:00"}`, http.StatusUnprocessableEntity},
		{"bad json", http.MethodPost, "/alarms", `{`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/alarms", `{"event":"x"}`, http.StatusBadRequest},
		{"update missing", http.MethodPut, "/alarms/zzz", `{"date_time":"16/03/2024 10:00"}`, http.StatusNotFound},
		{"rename onto existing", http.MethodPut, "/alarms/a", `{"name":"b","date_time":"16/03/2024 10:00"}`, http.StatusConflict},
		{"delete missing", http.MethodDelete, "/alarms/zzz", "", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/notifications?limit=-1", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status=%d want %d: %s", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestUpdateRenames(t *testing.T) {
	h, store, _ := newTestHandler(t)
	_, _ = store.Add("gym", now.Add(time.Hour), recurrence.Once)

	rec := do(t, h, http.MethodPut, "/alarms/gym", `{"name":"gym-late","date_time":"15/03/2024 19:30","recurrence":"Every Week"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	a, err := store.Get("gym-late")
	if err != nil || a.Recurrence != recurrence.Weekly {
		t.Fatalf("renamed alarm: %+v %v", a, err)
	}

	// name omitted keeps the path name
	rec = do(t, h, http.MethodPut, "/alarms/gym-late", `{"date_time":"15/03/2024 20:00","recurrence":"Weekly"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update keep name: %d %s", rec.Code, rec.Body)
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	h, _, hist := newTestHandler(t)
	for i, name := range []string{"one", "two", "three"} {
		_ = hist.Append(context.Background(), alarm.Notification{ID: name, Name: name, FiredAt: now.Add(time.Duration(i) * time.Minute)})
	}
	rec := do(t, h, http.MethodGet, "/notifications?limit=2", "")
	var got []alarm.Notification
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if len(got) != 2 || got[0].Name != "three" || got[1].Name != "two" {
		t.Fatalf("notifications: %+v", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body)
	}
}

func TestServerLifecycle(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second}, h, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)

	actx, acancel := context.WithTimeout(ctx, 3*time.Second)
	defer acancel()
	addr, err := srv.Addr(actx)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer scancel()
	srv.Stop(sctx)
	if _, err := http.Get("http://" + addr + "/healthz"); err == nil {
		t.Fatal("server still serving after Stop")
	}
}
