package scheduler

import (
	"context"
	"strconv"
	"time"
)

// Handle identifies a scheduled entry. The zero Handle is never issued.
type Handle uint64

func (h Handle) String() string { return "h" + strconv.FormatUint(uint64(h), 10) }

// Callback is invoked by the worker when an entry matures. It receives the
// handle it was scheduled under.
type Callback func(ctx context.Context, h Handle) error

// CancelResult reports the outcome of Cancel.
type CancelResult int

const (
	// Cancelled: the entry was pending and will never run.
	Cancelled CancelResult = iota
	// AlreadyFired: the entry was popped by the worker (or never existed).
	AlreadyFired
)

func (r CancelResult) String() string {
	if r == Cancelled {
		return "cancelled"
	}
	return "already_fired"
}

// Config controls the polling worker.
type Config struct {
	// PollInterval is the tick of the worker loop (default 100ms).
	PollInterval time.Duration
	// CallbackTimeout bounds each callback via its context; 0 disables it.
	CallbackTimeout time.Duration
}

const defaultPollInterval = 100 * time.Millisecond

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.CallbackTimeout < 0 {
		c.CallbackTimeout = 0
	}
	return c
}

// Snapshot is a diagnostics view of the queue.
type Snapshot struct {
	Pending int
	NextAt  time.Time
	Fired   uint64
	Failed  uint64
}
