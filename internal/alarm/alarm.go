// Package alarm holds the authoritative registry of active alarms.
//
// The Store is the single writer of alarm state and of scheduler handles.
// Every successful mutation hands the full post-mutation set to a
// Snapshotter while the write lock is still held, so snapshots are
// appended in mutation order.
package alarm

import (
	"context"
	"strings"
	"time"

	"smartalarm/internal/recurrence"
	"smartalarm/internal/scheduler"
)

// TimeLayout is the minute-precision date-time format used by the journal
// and in notifications (DD/MM/YYYY HH:MM).
const TimeLayout = "02/01/2006 15:04"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string { return t.Format(TimeLayout) }

// CeilMinute rounds t up to a whole minute. Whole-minute values are
// returned unchanged.
func CeilMinute(t time.Time) time.Time {
	c := t.Truncate(time.Minute)
	if c.Before(t) {
		c = c.Add(time.Minute)
	}
	return c
}

// ParseTime parses TimeLayout in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(TimeLayout, strings.TrimSpace(s), loc)
}

// Alarm is a live, schedulable alarm.
type Alarm struct {
	Name        string
	TriggerTime time.Time
	Recurrence  recurrence.Policy
	Handle      scheduler.Handle

	seq uint64
}

// Entry returns the durable part of a.
func (a Alarm) Entry() Entry {
	return Entry{Name: a.Name, TriggerTime: a.TriggerTime, Recurrence: a.Recurrence}
}

// Firing builds the message dispatched when a's timer matures.
func (a Alarm) Firing() Firing {
	return Firing{Name: a.Name, TriggerTime: a.TriggerTime, Recurrence: a.Recurrence, Handle: a.Handle}
}

// Entry is the persisted triple; it has no handle because handles do not
// survive a restart.
type Entry struct {
	TriggerTime time.Time
	Name        string
	Recurrence  recurrence.Policy
}

// Notification is the record appended every time an alarm fires.
type Notification struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	TriggerTime time.Time         `json:"trigger_time"`
	Recurrence  recurrence.Policy `json:"recurrence"`
	FiredAt     time.Time         `json:"fired_at"`
	// Error is the notifier failure, if delivery failed.
	Error string `json:"error,omitempty"`
}

// Firing is the message the scheduler hands to the firing controller when an
// alarm's timer matures.
type Firing struct {
	Name        string
	TriggerTime time.Time
	Recurrence  recurrence.Policy
	Handle      scheduler.Handle
}

// Scheduler is the part of the timer service the store depends on.
type Scheduler interface {
	ScheduleAfter(delay time.Duration, cb scheduler.Callback) scheduler.Handle
	Cancel(h scheduler.Handle) scheduler.CancelResult
}

// Snapshotter persists the full active set after each mutation.
type Snapshotter interface {
	PersistSnapshot(entries []Entry) error
}

// FireHandler receives matured alarms.
type FireHandler interface {
	Fire(ctx context.Context, f Firing) error
}

// FireHandlerFunc adapts a function to FireHandler.
type FireHandlerFunc func(ctx context.Context, f Firing) error

func (fn FireHandlerFunc) Fire(ctx context.Context, f Firing) error { return fn(ctx, f) }
