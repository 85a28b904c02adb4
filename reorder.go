package robomem

import (
	"container/heap"
	"time"

	"github.com/soundprediction/robomem/pkg/types"
)

type pendingObservation struct {
	obs types.Observation
	seq uint64
}

// observationQueue is a min-heap by observation time, then arrival order.
type observationQueue []pendingObservation

func (q observationQueue) Len() int { return len(q) }

func (q observationQueue) Less(i, j int) bool {
	if !q[i].obs.Time.Equal(q[j].obs.Time) {
		return q[i].obs.Time.Before(q[j].obs.Time)
	}
	return q[i].seq < q[j].seq
}

func (q observationQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *observationQueue) Push(x any) { *q = append(*q, x.(pendingObservation)) }

func (q *observationQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// reorderBuffer holds observations until no earlier one can still arrive
// within the tolerance window.
type reorderBuffer struct {
	tolerance time.Duration
	queue     observationQueue
	newest    time.Time
	arrivals  uint64
}

func newReorderBuffer(tolerance time.Duration) *reorderBuffer {
	return &reorderBuffer{tolerance: tolerance}
}

func (b *reorderBuffer) Len() int {
	return b.queue.Len()
}

// push enqueues obs. Two buffered observations may not share a timestamp.
func (b *reorderBuffer) push(obs types.Observation) error {
	for _, p := range b.queue {
		if p.obs.Time.Equal(obs.Time) {
			return types.NewObservationError(obs.Time, p.obs.Time)
		}
	}
	b.arrivals++
	heap.Push(&b.queue, pendingObservation{obs: obs, seq: b.arrivals})
	if obs.Time.After(b.newest) {
		b.newest = obs.Time
	}
	return nil
}

// requeue puts back an observation that could not be released.
func (b *reorderBuffer) requeue(obs types.Observation) {
	b.arrivals++
	heap.Push(&b.queue, pendingObservation{obs: obs, seq: b.arrivals})
}

// due reports whether the oldest observation is at least tolerance older than
// the newest one seen.
func (b *reorderBuffer) due() bool {
	if b.queue.Len() == 0 {
		return false
	}
	return !b.queue[0].obs.Time.After(b.newest.Add(-b.tolerance))
}

func (b *reorderBuffer) pop() types.Observation {
	return heap.Pop(&b.queue).(pendingObservation).obs
}
