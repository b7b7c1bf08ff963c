// Package eventbus fans alarm lifecycle events out to in-process listeners.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a full subscriber loses the event
//     and the loss is counted.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type Kind string

const (
	AlarmFired       Kind = "alarm.fired"
	AlarmRescheduled Kind = "alarm.rescheduled"
	AlarmRetired     Kind = "alarm.retired"
	AlarmDropped     Kind = "alarm.dropped"
)

// Event describes one step of a firing. Next is set only for
// AlarmRescheduled; Err carries the notifier failure for AlarmFired.
type Event struct {
	Kind        Kind
	Time        time.Time
	Name        string
	TriggerTime time.Time
	Next        time.Time
	Err         string
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped counts deliveries lost to full subscribers.
	Dropped() uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
