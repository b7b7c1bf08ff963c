package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "smartalarm/pkg/logx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC)}
	return New(Config{}, logx.Nop(), WithClock(clk.Now)), clk
}

func TestRunDueFiresInTimeOrder(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)

	var got []string
	record := func(name string) Callback {
		return func(context.Context, Handle) error {
			got = append(got, name)
			return nil
		}
	}
	s.ScheduleAfter(3*time.Second, record("c"))
	s.ScheduleAfter(time.Second, record("a"))
	s.ScheduleAfter(2*time.Second, record("b1"))
	s.ScheduleAfter(2*time.Second, record("b2"))

	if n := s.RunDue(context.Background()); n != 0 {
		t.Fatalf("nothing should be due yet, ran %d", n)
	}
	clk.Advance(2 * time.Second)
	if n := s.RunDue(context.Background()); n != 3 {
		t.Fatalf("expected 3 callbacks, ran %d", n)
	}
	clk.Advance(time.Second)
	s.RunDue(context.Background())

	want := []string{"a", "b1", "b2", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRunDueCountsOnlyInvokedOnCancel(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int32
	first := s.ScheduleAfter(time.Second, func(context.Context, Handle) error {
		ran.Add(1)
		cancel()
		return nil
	})
	second := s.ScheduleAfter(2*time.Second, func(context.Context, Handle) error {
		ran.Add(1)
		return nil
	})
	third := s.ScheduleAfter(3*time.Second, func(context.Context, Handle) error {
		ran.Add(1)
		return nil
	})

	clk.Advance(3 * time.Second)
	if n := s.RunDue(ctx); n != 1 {
		t.Fatalf("RunDue=%d want 1", n)
	}
	if ran.Load() != 1 {
		t.Fatalf("callbacks ran=%d want 1", ran.Load())
	}
	for _, h := range []Handle{first, second, third} {
		if got := s.Cancel(h); got != AlreadyFired {
			t.Fatalf("Cancel(%s)=%s want already_fired", h, got)
		}
	}
	if s.Pending() != 0 {
		t.Fatalf("pending=%d", s.Pending())
	}
}

func TestNegativeDelayFiresOnNextTick(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	var ran atomic.Bool
	s.ScheduleAfter(-time.Hour, func(context.Context, Handle) error {
		ran.Store(true)
		return nil
	})
	s.RunDue(context.Background())
	if !ran.Load() {
		t.Fatal("overdue entry did not fire")
	}
}

func TestCancelBeforeFire(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	var ran atomic.Bool
	h := s.ScheduleAfter(time.Minute, func(context.Context, Handle) error {
		ran.Store(true)
		return nil
	})
	if res := s.Cancel(h); res != Cancelled {
		t.Fatalf("Cancel = %v, want Cancelled", res)
	}
	if res := s.Cancel(h); res != AlreadyFired {
		t.Fatalf("second Cancel = %v, want AlreadyFired", res)
	}
	clk.Advance(time.Hour)
	s.RunDue(context.Background())
	if ran.Load() {
		t.Fatal("cancelled callback ran")
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending = %d", s.Pending())
	}
}

func TestCancelAfterFireReportsAlreadyFired(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	h := s.ScheduleAfter(0, func(context.Context, Handle) error { return nil })
	s.RunDue(context.Background())
	if res := s.Cancel(h); res != AlreadyFired {
		t.Fatalf("Cancel = %v, want AlreadyFired", res)
	}
}

func TestCancelRacingWithFireNeverBoth(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		s, _ := newTestService(t)
		var ran atomic.Bool
		h := s.ScheduleAfter(0, func(context.Context, Handle) error {
			ran.Store(true)
			return nil
		})
		var res CancelResult
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.RunDue(context.Background()) }()
		go func() { defer wg.Done(); res = s.Cancel(h) }()
		wg.Wait()
		if res == Cancelled && ran.Load() {
			t.Fatal("entry was both cancelled and fired")
		}
		if res == AlreadyFired && !ran.Load() {
			t.Fatal("AlreadyFired reported but callback never ran")
		}
	}
}

func TestCallbackHandleMatchesScheduledHandle(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	var seen Handle
	h := s.ScheduleAfter(0, func(_ context.Context, got Handle) error {
		seen = got
		return nil
	})
	s.RunDue(context.Background())
	if seen != h {
		t.Fatalf("callback saw %v, scheduled %v", seen, h)
	}
}

func TestFailingCallbacksDoNotStopTheLoop(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	var after atomic.Int32
	s.ScheduleAfter(0, func(context.Context, Handle) error { panic("boom") })
	s.ScheduleAfter(0, func(context.Context, Handle) error { return errors.New("bad") })
	s.ScheduleAfter(0, func(context.Context, Handle) error {
		after.Add(1)
		return nil
	})
	if n := s.RunDue(context.Background()); n != 3 {
		t.Fatalf("ran %d, want 3", n)
	}
	if after.Load() != 1 {
		t.Fatal("callback after failures did not run")
	}
	snap := s.Snapshot()
	if snap.Fired != 3 || snap.Failed != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCallbackTimeoutIsApplied(t *testing.T) {
	t.Parallel()
	s := New(Config{CallbackTimeout: 10 * time.Millisecond}, logx.Nop())
	var hasDeadline atomic.Bool
	s.ScheduleAfter(0, func(ctx context.Context, _ Handle) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return nil
	})
	s.RunDue(context.Background())
	if !hasDeadline.Load() {
		t.Fatal("callback context has no deadline")
	}
}

func TestWorkerFiresWithRealClock(t *testing.T) {
	s := New(Config{PollInterval: 5 * time.Millisecond}, logx.Nop())
	done := make(chan struct{})
	s.ScheduleAfter(20*time.Millisecond, func(context.Context, Handle) error {
		close(done)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never fired the entry")
	}
}

func TestNilCallbackIsRejected(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	if h := s.ScheduleAfter(0, nil); h != 0 {
		t.Fatalf("nil callback got handle %v", h)
	}
	if s.Pending() != 0 {
		t.Fatal("nil callback was queued")
	}
}
