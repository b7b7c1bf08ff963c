package alarm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"smartalarm/internal/recurrence"
	"smartalarm/internal/scheduler"
	logx "smartalarm/pkg/logx"
)

// Observer is told the active alarm count after every change.
type Observer interface {
	ActiveAlarms(n int)
}

type Option func(*Store)

// WithClock overrides the time source used for validation and delays.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// Store is the in-memory registry of active alarms keyed by name.
//
// Mutations are serialised by a single write lock which also covers the
// snapshot append; reads take the read lock and return copies.
type Store struct {
	mu sync.RWMutex

	log   logx.Logger
	now   func() time.Time
	sched Scheduler
	snap  Snapshotter
	obs   Observer

	handler FireHandler

	order  []*Alarm // insertion order, which is also snapshot order
	byName map[string]*Alarm
	seq    uint64
}

func NewStore(sched Scheduler, snap Snapshotter, log logx.Logger, opts ...Option) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		log:    log,
		now:    time.Now,
		sched:  sched,
		snap:   snap,
		byName: map[string]*Alarm{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bind sets the handler matured alarms are dispatched to.
func (s *Store) Bind(h FireHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Add registers a new alarm and arms its timer. at is rounded up to the
// minute.
func (s *Store) Add(name string, at time.Time, p recurrence.Policy) (Alarm, error) {
	name = strings.TrimSpace(name)
	at = CeilMinute(at)
	if err := validate(name, p); err != nil {
		return Alarm{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; ok {
		return Alarm{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if now := s.now(); !at.After(now) {
		return Alarm{}, fmt.Errorf("%w: %s", ErrPastTime, FormatTime(at))
	}
	a := s.insertLocked(name, at, p)
	s.persistLocked("add")
	s.log.Info("alarm created", logx.String("name", name), logx.String("at", FormatTime(at)), logx.String("recurrence", p.String()))
	return *a, nil
}

// Get returns a copy of the named alarm.
func (s *Store) Get(name string) (Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byName[name]
	if !ok {
		return Alarm{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *a, nil
}

// Remove cancels the alarm's timer and deletes it.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.cancelLocked(a)
	s.removeLocked(a)
	s.persistLocked("remove")
	s.log.Info("alarm removed", logx.String("name", name))
	return nil
}

// Update replaces oldName with a freshly armed alarm, possibly renamed. at is
// rounded up to the minute.
func (s *Store) Update(oldName, newName string, at time.Time, p recurrence.Policy) (Alarm, error) {
	newName = strings.TrimSpace(newName)
	at = CeilMinute(at)
	if err := validate(newName, p); err != nil {
		return Alarm{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byName[oldName]
	if !ok {
		return Alarm{}, fmt.Errorf("%w: %q", ErrNotFound, oldName)
	}
	if newName != oldName {
		if _, taken := s.byName[newName]; taken {
			return Alarm{}, fmt.Errorf("%w: %q (renaming from %q)", ErrDuplicateName, newName, oldName)
		}
	}
	if now := s.now(); !at.After(now) {
		return Alarm{}, fmt.Errorf("%w: %s", ErrPastTime, FormatTime(at))
	}
	s.cancelLocked(old)
	s.removeLocked(old)
	a := s.insertLocked(newName, at, p)
	s.persistLocked("update")
	s.log.Info("alarm updated", logx.String("old_name", oldName), logx.String("name", newName), logx.String("at", FormatTime(at)), logx.String("recurrence", p.String()))
	return *a, nil
}

// ListSortedByTime returns every alarm ordered by trigger time; equal
// times keep insertion order.
func (s *Store) ListSortedByTime() []Alarm {
	s.mu.RLock()
	out := make([]Alarm, 0, len(s.order))
	for _, a := range s.order {
		out = append(out, *a)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TriggerTime.Equal(out[j].TriggerTime) {
			return out[i].seq < out[j].seq
		}
		return out[i].TriggerTime.Before(out[j].TriggerTime)
	})
	return out
}

// Entries returns the durable triples in store order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Reschedule moves a fired repeating alarm to next and arms a fresh timer.
// h must be the handle the firing came from.
func (s *Store) Reschedule(name string, h scheduler.Handle, next time.Time) (Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.matchLocked(name, h)
	if err != nil {
		return Alarm{}, err
	}
	p := cur.Recurrence
	s.removeLocked(cur)
	a := s.insertLocked(name, next, p)
	s.persistLocked("reschedule")
	s.log.Info("alarm rescheduled", logx.String("name", name), logx.String("at", FormatTime(next)), logx.String("recurrence", p.String()))
	return *a, nil
}

// Retire deletes a fired one-shot alarm. h must be the handle the firing
// came from.
func (s *Store) Retire(name string, h scheduler.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.matchLocked(name, h)
	if err != nil {
		return err
	}
	s.removeLocked(cur)
	s.persistLocked("retire")
	s.log.Info("alarm retired", logx.String("name", name))
	return nil
}

// RestoreReport summarises Restore.
type RestoreReport struct {
	Restored   int
	Expired    int
	Duplicates int
}

// Restore re-arms recovered entries. Expired one-shot entries are dropped.
// It never persists: the journal already holds what was restored.
func (s *Store) Restore(entries []Entry) RestoreReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rep RestoreReport
	now := s.now()
	for _, e := range entries {
		if _, dup := s.byName[e.Name]; dup {
			rep.Duplicates++
			s.log.Warn("duplicate alarm in snapshot skipped", logx.String("name", e.Name))
			continue
		}
		if !e.Recurrence.Repeats() && e.TriggerTime.Before(now) {
			rep.Expired++
			s.log.Warn("alarm expired while offline; not restored", logx.String("name", e.Name), logx.String("at", FormatTime(e.TriggerTime)))
			continue
		}
		s.insertLocked(e.Name, e.TriggerTime, e.Recurrence)
		rep.Restored++
		s.log.Info("alarm restored", logx.String("name", e.Name), logx.String("at", FormatTime(e.TriggerTime)), logx.String("recurrence", e.Recurrence.String()))
	}
	s.observeLocked()
	return rep
}

func (s *Store) matchLocked(name string, h scheduler.Handle) (*Alarm, error) {
	cur, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if cur.Handle != h {
		return nil, fmt.Errorf("%w: %q armed as %s, fired as %s", ErrStaleFiring, name, cur.Handle, h)
	}
	return cur, nil
}

func (s *Store) insertLocked(name string, at time.Time, p recurrence.Policy) *Alarm {
	s.seq++
	a := &Alarm{Name: name, TriggerTime: at, Recurrence: p, seq: s.seq}
	a.Handle = s.arm(a.Firing())
	s.order = append(s.order, a)
	s.byName[name] = a
	return a
}

func (s *Store) arm(f Firing) scheduler.Handle {
	return s.sched.ScheduleAfter(f.TriggerTime.Sub(s.now()), func(ctx context.Context, h scheduler.Handle) error {
		f.Handle = h
		return s.dispatch(ctx, f)
	})
}

func (s *Store) dispatch(ctx context.Context, f Firing) error {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		s.log.Warn("alarm matured with no fire handler bound", logx.String("name", f.Name))
		return nil
	}
	return h.Fire(ctx, f)
}

func (s *Store) cancelLocked(a *Alarm) {
	if res := s.sched.Cancel(a.Handle); res != scheduler.Cancelled {
		// The worker already popped it; the firing will be seen as stale.
		s.log.Debug("timer already fired while cancelling", logx.String("name", a.Name), logx.String("handle", a.Handle.String()))
	}
}

func (s *Store) removeLocked(a *Alarm) {
	delete(s.byName, a.Name)
	for i, cur := range s.order {
		if cur == a {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Store) entriesLocked() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, a := range s.order {
		out = append(out, a.Entry())
	}
	return out
}

func (s *Store) persistLocked(op string) {
	s.observeLocked()
	if s.snap == nil {
		return
	}
	if err := s.snap.PersistSnapshot(s.entriesLocked()); err != nil {
		s.log.Error("snapshot append failed; in-memory change kept", logx.String("op", op), logx.Err(err))
	}
}

func (s *Store) observeLocked() {
	if s.obs != nil {
		s.obs.ActiveAlarms(len(s.order))
	}
}

func validate(name string, p recurrence.Policy) error {
	if name == "" {
		return ErrEmptyName
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrBadPolicy, int(p))
	}
	return nil
}
