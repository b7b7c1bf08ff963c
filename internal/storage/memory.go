package storage

import (
	"context"
	"sync"
	"time"

	"smartalarm/internal/alarm"
)

const defaultMemoryRecords = 1000

// Memory is a bounded in-process history. The oldest record is dropped
// once the ring is full.
type Memory struct {
	mu   sync.Mutex
	max  int
	recs []alarm.Notification
}

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = defaultMemoryRecords
	}
	return &Memory{max: max}
}

func (m *Memory) Append(_ context.Context, n alarm.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, n)
	if over := len(m.recs) - m.max; over > 0 {
		m.recs = append(m.recs[:0:0], m.recs[over:]...)
	}
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]alarm.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.recs, limit), nil
}

func (m *Memory) Prune(_ context.Context, keep int, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept, dropped := prune(m.recs, keep, cutoff)
	m.recs = kept
	return dropped, nil
}

func (m *Memory) Close() error { return nil }

// newestFirst copies up to limit records from the tail of recs, reversed.
func newestFirst(recs []alarm.Notification, limit int) []alarm.Notification {
	n := len(recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]alarm.Notification, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out
}

// prune applies the History.Prune rules to recs (oldest first).
func prune(recs []alarm.Notification, keep int, cutoff time.Time) ([]alarm.Notification, int64) {
	out := make([]alarm.Notification, 0, len(recs))
	for _, r := range recs {
		if !cutoff.IsZero() && r.FiredAt.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	if keep > 0 && len(out) > keep {
		out = out[len(out)-keep:]
	}
	return out, int64(len(recs) - len(out))
}
