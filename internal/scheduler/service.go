package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	rtsup "smartalarm/internal/runtime/supervisor"
	logx "smartalarm/pkg/logx"
)

var ErrNilCallback = errors.New("scheduler: nil callback")

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is a priority-queue timer with one polling worker.
// It is safe for concurrent use.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	log   logx.Logger
	now   func() time.Time
	queue entryQueue
	byH   map[Handle]*entry
	seq   uint64

	sup *rtsup.Supervisor

	fired  atomic.Uint64
	failed atomic.Uint64
}

func New(cfg Config, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg: cfg.withDefaults(),
		log: log,
		now: time.Now,
		byH: map[Handle]*entry{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScheduleAfter arms cb to fire once delay has elapsed. A zero or negative
// delay fires on the next tick.
func (s *Service) ScheduleAfter(delay time.Duration, cb Callback) Handle {
	return s.ScheduleAt(s.now().Add(delay), cb)
}

// ScheduleAt arms cb to fire at the given instant.
func (s *Service) ScheduleAt(at time.Time, cb Callback) Handle {
	if cb == nil {
		s.log.Error("schedule rejected", logx.Err(ErrNilCallback))
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e := &entry{handle: Handle(s.seq), at: at, seq: s.seq, cb: cb}
	heap.Push(&s.queue, e)
	s.byH[e.handle] = e
	s.log.Trace("entry armed", logx.String("handle", e.handle.String()), logx.Time("at", at))
	return e.handle
}

// Cancel removes a pending entry. See the package doc for race semantics.
func (s *Service) Cancel(h Handle) CancelResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byH[h]
	if !ok || e.index < 0 {
		return AlreadyFired
	}
	heap.Remove(&s.queue, e.index)
	delete(s.byH, h)
	s.log.Trace("entry cancelled", logx.String("handle", h.String()))
	return Cancelled
}

// Pending returns the number of entries that have not been popped.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Pending: len(s.queue)}
	if e := s.queue.peek(); e != nil {
		snap.NextAt = e.at
	}
	s.mu.Unlock()
	snap.Fired = s.fired.Load()
	snap.Failed = s.failed.Load()
	return snap
}

// popDue removes every entry due at now. Entries leave byH here, which is
// what makes them non-cancellable.
func (s *Service) popDue(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*entry
	for {
		e := s.queue.peek()
		if e == nil || e.at.After(now) {
			break
		}
		heap.Pop(&s.queue)
		delete(s.byH, e.handle)
		due = append(due, e)
	}
	return due
}

// RunDue fires everything that has matured and returns how many callbacks
// ran. The worker calls it on every tick. Once ctx is done the remaining
// popped entries are dropped; they are no longer cancellable.
func (s *Service) RunDue(ctx context.Context) int {
	due := s.popDue(s.now())
	for i, e := range due {
		if ctx.Err() != nil {
			s.log.Warn("dropping due entries on shutdown",
				logx.Int("ran", i),
				logx.Int("dropped", len(due)-i),
			)
			return i
		}
		s.invoke(ctx, e)
	}
	return len(due)
}

func (s *Service) invoke(ctx context.Context, e *entry) {
	s.mu.Lock()
	timeout := s.cfg.CallbackTimeout
	s.mu.Unlock()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("callback panic: %v", r)
				s.log.Error("callback panicked", logx.String("handle", e.handle.String()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		return e.cb(runCtx, e.handle)
	}()
	s.fired.Add(1)
	if err != nil {
		s.failed.Add(1)
		s.log.Error("callback failed", logx.String("handle", e.handle.String()), logx.Err(err), logx.Duration("dur", time.Since(start)))
		return
	}
	s.log.Debug("callback done", logx.String("handle", e.handle.String()), logx.Duration("dur", time.Since(start)))
}

// Start launches the polling worker. Entries armed before Start simply wait.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	every := s.cfg.PollInterval
	s.mu.Unlock()

	sup.GoRestart("poll", func(c context.Context) error {
		return s.loop(c, every)
	}, rtsup.WithPublishFirstError(true))
	s.log.Info("scheduler started", logx.Duration("poll", every), logx.Int("pending", s.Pending()))
}

func (s *Service) loop(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.RunDue(ctx)
		}
	}
}

// Stop halts the worker. Pending entries stay queued and would fire after a
// later Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler stop", logx.Err(err))
	}
	s.log.Info("scheduler stopped", logx.Int("pending", s.Pending()))
}
