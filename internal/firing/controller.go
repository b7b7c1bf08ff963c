// Package firing runs what happens when an alarm's timer matures: notify,
// record, then retire or reschedule through the store.
package firing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"smartalarm/internal/alarm"
	"smartalarm/internal/eventbus"
	"smartalarm/internal/metrics"
	"smartalarm/internal/notifier"
	"smartalarm/internal/recurrence"
	"smartalarm/internal/scheduler"
	"smartalarm/internal/storage"
	logx "smartalarm/pkg/logx"
)

const defaultNotifyTimeout = 30 * time.Second

// Store is the part of alarm.Store the controller drives.
type Store interface {
	Get(name string) (alarm.Alarm, error)
	Reschedule(name string, h scheduler.Handle, next time.Time) (alarm.Alarm, error)
	Retire(name string, h scheduler.Handle) error
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNotifyTimeout bounds each notifier call. Notifiers exposing their own
// Timeout() take precedence.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithEvents publishes each firing step on bus.
func WithEvents(bus eventbus.Bus) Option {
	return func(c *Controller) { c.events = bus }
}

// WithIDs overrides the notification ID generator.
func WithIDs(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Controller implements alarm.FireHandler.
type Controller struct {
	store   Store
	notify  notifier.Notifier
	history storage.History
	log     logx.Logger
	metrics *metrics.Metrics
	events  eventbus.Bus

	now     func() time.Time
	newID   func() string
	timeout time.Duration
}

func New(store Store, n notifier.Notifier, history storage.History, log logx.Logger, opts ...Option) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{
		store:   store,
		notify:  n,
		history: history,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
		timeout: defaultNotifyTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fire handles one matured alarm. Notifier and history failures are logged
// and never stop the bookkeeping. A firing whose alarm was removed or
// re-armed meanwhile is dropped.
func (c *Controller) Fire(ctx context.Context, f alarm.Firing) error {
	at := alarm.FormatTime(f.TriggerTime)
	log := c.log.With(logx.String("name", f.Name), logx.String("at", at), logx.String("handle", f.Handle.String()))

	start := time.Now()
	nerr := notifier.Call(ctx, c.notify, c.notifyTimeout(), f.Name, at)
	c.metrics.Notified(time.Since(start), nerr)
	if nerr != nil {
		log.Warn("notify failed; continuing", logx.Err(nerr))
	}

	c.record(ctx, f, nerr, log)
	fired := eventbus.Event{Kind: eventbus.AlarmFired, Name: f.Name, TriggerTime: f.TriggerTime}
	if nerr != nil {
		fired.Err = nerr.Error()
	}
	c.publish(fired)

	cur, err := c.store.Get(f.Name)
	if err != nil || cur.Handle != f.Handle {
		log.Warn("alarm changed before firing completed; dropping", logx.Err(err))
		c.metrics.Firing(metrics.OutcomeStale)
		c.publish(eventbus.Event{Kind: eventbus.AlarmDropped, Name: f.Name, TriggerTime: f.TriggerTime})
		return nil
	}

	next, ok := recurrence.NextTrigger(f.TriggerTime, f.Recurrence)
	if !ok {
		err = c.store.Retire(f.Name, f.Handle)
	} else {
		_, err = c.store.Reschedule(f.Name, f.Handle, next)
	}
	switch {
	case err == nil && ok:
		c.metrics.Firing(metrics.OutcomeRescheduled)
		c.publish(eventbus.Event{Kind: eventbus.AlarmRescheduled, Name: f.Name, TriggerTime: f.TriggerTime, Next: next})
		log.Debug("alarm fired", logx.String("next", alarm.FormatTime(next)))
		return nil
	case err == nil:
		c.metrics.Firing(metrics.OutcomeRetired)
		c.publish(eventbus.Event{Kind: eventbus.AlarmRetired, Name: f.Name, TriggerTime: f.TriggerTime})
		log.Debug("alarm fired and retired")
		return nil
	case errors.Is(err, alarm.ErrStaleFiring), errors.Is(err, alarm.ErrNotFound):
		c.metrics.Firing(metrics.OutcomeStale)
		c.publish(eventbus.Event{Kind: eventbus.AlarmDropped, Name: f.Name, TriggerTime: f.TriggerTime})
		log.Warn("alarm changed during firing; dropping", logx.Err(err))
		return nil
	default:
		c.metrics.Firing(metrics.OutcomeError)
		return err
	}
}

func (c *Controller) record(ctx context.Context, f alarm.Firing, nerr error, log logx.Logger) {
	if c.history == nil {
		return
	}
	n := alarm.Notification{
		ID:          c.newID(),
		Name:        f.Name,
		TriggerTime: f.TriggerTime,
		Recurrence:  f.Recurrence,
		FiredAt:     c.now(),
	}
	if nerr != nil {
		n.Error = nerr.Error()
	}
	// The notifier may have used up ctx; the record still gets written.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.history.Append(hctx, n); err != nil {
		log.Error("history append failed", logx.Err(err))
	}
}

func (c *Controller) publish(e eventbus.Event) {
	if c.events == nil {
		return
	}
	e.Time = c.now()
	c.events.Publish(e)
}

func (c *Controller) notifyTimeout() time.Duration {
	if t, ok := c.notify.(interface{ Timeout() time.Duration }); ok {
		if d := t.Timeout(); d > 0 {
			return d
		}
	}
	return c.timeout
}
