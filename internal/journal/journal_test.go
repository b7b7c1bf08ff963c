package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"smartalarm/internal/alarm"
	"smartalarm/internal/recurrence"
	"smartalarm/internal/scheduler"
	logx "smartalarm/pkg/logx"
)

type nopSched struct {
	mu   sync.Mutex
	next scheduler.Handle
}

func (s *nopSched) ScheduleAfter(time.Duration, scheduler.Callback) scheduler.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

func (s *nopSched) Cancel(scheduler.Handle) scheduler.CancelResult { return scheduler.Cancelled }

var now = time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func newStore(snap alarm.Snapshotter) *alarm.Store {
	return alarm.NewStore(&nopSched{}, snap, logx.Nop(), alarm.WithClock(clock))
}

func TestFormatLine(t *testing.T) {
	at := time.Date(2024, 1, 31, 9, 12, 3, 417_000_000, time.UTC)
	payload, err := Encode([]alarm.Entry{{
		TriggerTime: time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
		Name:        "standup",
		Recurrence:  recurrence.Daily,
	}})
	if err != nil {
		t.Fatal(err)
	}
	got := FormatLine(at, payload)
	want := `2024-01-31 09:12:03,417 - smartalarm.snapshot - CRITICAL - Alarms list : @[{"date_time":"31/01/2024 10:00","event_name":"standup","event_period":"Daily"}]` + "\n"
	if got != want {
		t.Fatalf("line mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{"empty array", `[]`, 0, false},
		{"canonical", `[{"date_time":"01/02/2024 08:30","event_name":"a","event_period":"Weekly"}]`, 1, false},
		{"legacy labels and quotes", `[{'date_time': '01/02/2024 08:30', 'event_name': 'a', 'event_period': 'Every Month'}, {'date_time': '02/02/2024 08:30', 'event_name': 'b', 'event_period': 'Everyday'}]`, 2, false},
		{"apostrophe in name", `[{"date_time":"01/02/2024 08:30","event_name":"Mom's call","event_period":"Once"}]`, 1, false},
		{"not json", `{{{`, 0, true},
		{"bad date", `[{"date_time":"2024-02-01","event_name":"a","event_period":"Once"}]`, 0, true},
		{"unknown period", `[{"date_time":"01/02/2024 08:30","event_name":"a","event_period":"Hourly"}]`, 0, true},
		{"empty name", `[{"date_time":"01/02/2024 08:30","event_name":" ","event_period":"Once"}]`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.payload), time.UTC)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("err=%v want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("entries=%d want %d", len(got), tc.want)
			}
		})
	}
}

func TestPersistAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.log")
	l, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l.now = clock

	s := newStore(l)
	if _, err := s.Add("a", now.Add(time.Hour), recurrence.Once); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add("b", now.Add(2*time.Hour), recurrence.Daily); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3:\n%s", len(lines), b)
	}
	if !strings.HasSuffix(lines[2], `@[{"date_time":"31/01/2024 11:00","event_name":"b","event_period":"Daily"}]`) {
		t.Fatalf("last line: %s", lines[2])
	}

	// reopening never truncates
	l2, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := l2.PersistSnapshot(nil); err != nil {
		t.Fatal(err)
	}
	_ = l2.Close()
	b, _ = os.ReadFile(path)
	if n := strings.Count(string(b), "\n"); n != 4 {
		t.Fatalf("lines after reopen=%d want 4", n)
	}
	if err := l2.PersistSnapshot(nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close: %v", err)
	}
}

func TestRecoveryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.log")
	l, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s := newStore(l)
	_, _ = s.Add("late", now.Add(48*time.Hour), recurrence.Yearly)
	_, _ = s.Add("early", now.Add(time.Hour), recurrence.Once)
	_, _ = s.Add("mid", now.Add(3*time.Hour), recurrence.Monthly)
	want := s.ListSortedByTime()
	_ = l.Close()

	restored := newStore(nil)
	rep := Restore(path, restored, time.UTC, logx.Nop())
	if rep.Reason != nil || rep.Restored != 3 {
		t.Fatalf("report: %+v", rep)
	}
	got := restored.ListSortedByTime()
	if len(got) != len(want) {
		t.Fatalf("restored %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name || !got[i].TriggerTime.Equal(want[i].TriggerTime) || got[i].Recurrence != want[i].Recurrence {
			t.Fatalf("[%d] got %+v want %+v", i, got[i], want[i])
		}
		if got[i].Handle == 0 {
			t.Fatalf("[%d] not armed", i)
		}
	}

	// restoring does not append
	b, _ := os.ReadFile(path)
	if n := strings.Count(string(b), "\n"); n != 3 {
		t.Fatalf("journal lines=%d want 3", n)
	}
}

func TestRestartKeepsUnfiredSubMinuteOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.log")
	l, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	before := alarm.NewStore(&nopSched{}, l, logx.Nop(),
		alarm.WithClock(func() time.Time { return base.Add(10 * time.Second) }))
	added, err := before.Add("party", base.Add(40*time.Second), recurrence.Once)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	// restarted before the alarm fired
	after := alarm.NewStore(&nopSched{}, nil, logx.Nop(),
		alarm.WithClock(func() time.Time { return base.Add(20 * time.Second) }))
	rep := Restore(path, after, time.UTC, logx.Nop())
	if rep.Restored != 1 || rep.Expired != 0 {
		t.Fatalf("report: %+v", rep)
	}
	got, err := after.Get("party")
	if err != nil {
		t.Fatalf("unfired alarm lost on restart: %v", err)
	}
	if !got.TriggerTime.Equal(added.TriggerTime) {
		t.Fatalf("restored trigger=%s want %s", got.TriggerTime, added.TriggerTime)
	}
}

func TestRestoreDropsExpiredOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.log")
	payload := `[{"date_time":"30/01/2024 10:00","event_name":"gone","event_period":"Once"},` +
		`{"date_time":"30/01/2024 10:00","event_name":"daily","event_period":"Daily"},` +
		`{"date_time":"01/02/2024 10:00","event_name":"next","event_period":"Once"}]`
	content := FormatLine(now, []byte(`[]`)) + FormatLine(now, []byte(payload)) + "\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s := newStore(nil)
	rep := Restore(path, s, time.UTC, logx.Nop())
	if rep.Restored != 2 || rep.Expired != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if _, err := s.Get("gone"); !errors.Is(err, alarm.ErrNotFound) {
		t.Fatalf("expired once restored: %v", err)
	}
}

func TestRestoreFailuresStartEmpty(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}
	valid := FormatLine(now, []byte(`[{"date_time":"01/02/2024 10:00","event_name":"a","event_period":"Once"}]`))

	cases := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "nope.log"), os.ErrNotExist},
		{"empty", write("empty.log", ""), ErrEmpty},
		{"blank lines", write("blank.log", "\n \n"), ErrEmpty},
		{"no delimiter", write("nodelim.log", valid+"garbage without payload\n"), ErrNoPayload},
		{"corrupt last line", write("corrupt.log", valid+"x - y @[{\"date_time\":\n"), ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(nil)
			rep := Restore(tc.path, s, time.UTC, logx.Nop())
			if !errors.Is(rep.Reason, tc.want) {
				t.Fatalf("reason=%v want %v", rep.Reason, tc.want)
			}
			if s.Len() != 0 {
				t.Fatalf("store not empty after failed recovery")
			}
		})
	}
}

func TestLastLineLongFile(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString(FormatLine(now, []byte(`[]`)))
	}
	last := `[{"date_time":"01/02/2024 10:00","event_name":"` + strings.Repeat("x", 3*readChunk) + `","event_period":"Weekly"}]`
	b.WriteString(FormatLine(now, []byte(last)))

	got, err := lastLine(strings.NewReader(b.String()), int64(b.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(got), last) {
		t.Fatalf("wrong last line (len %d)", len(got))
	}
}

