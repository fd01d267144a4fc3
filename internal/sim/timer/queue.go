package timer

import (
	"container/heap"
	"time"
)

// Queue is a virtual-clock callback queue driven by the world loop.
// Callbacks are fire-and-forget: once scheduled they always run.
// All methods must be called from the owning goroutine.
type Queue struct {
	now     time.Duration
	seq     uint64
	pending entryHeap
}

type entry struct {
	due time.Duration
	seq uint64
	fn  func()
}

func NewQueue() *Queue {
	return &Queue{}
}

// Now reports the virtual time. While a callback runs, Now is that callback's due time.
func (q *Queue) Now() time.Duration { return q.now }

// Len reports how many callbacks are still pending.
func (q *Queue) Len() int { return len(q.pending) }

// After schedules fn to run once the clock reaches Now()+d.
// Negative delays are treated as zero.
func (q *Queue) After(d time.Duration, fn func()) {
	if fn == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	q.seq++
	heap.Push(&q.pending, entry{due: q.now + d, seq: q.seq, fn: fn})
}

// Advance moves the clock to `to` and runs every due callback in order.
// Callbacks scheduled while advancing run in the same call if they are due.
// It returns the number of callbacks that ran.
func (q *Queue) Advance(to time.Duration) int {
	if to < q.now {
		to = q.now
	}
	ran := 0
	for len(q.pending) > 0 && q.pending[0].due <= to {
		e := heap.Pop(&q.pending).(entry)
		q.now = e.due
		e.fn()
		ran++
	}
	q.now = to
	return ran
}

// AdvanceBy is Advance(Now()+d).
func (q *Queue) AdvanceBy(d time.Duration) int {
	if d < 0 {
		d = 0
	}
	return q.Advance(q.now + d)
}

// NextDue reports the due time of the earliest pending callback.
func (q *Queue) NextDue() (time.Duration, bool) {
	if len(q.pending) == 0 {
		return 0, false
	}
	return q.pending[0].due, true
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}
