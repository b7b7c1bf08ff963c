package scheduler

import (
	"container/heap"
	"time"
)

type entry struct {
	handle Handle
	at     time.Time
	seq    uint64
	cb     Callback
	index  int // heap position, -1 once popped or removed
}

// entryQueue is a min-heap over (at, seq).
type entryQueue []*entry

var _ heap.Interface = (*entryQueue)(nil)

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

func (q entryQueue) peek() *entry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
