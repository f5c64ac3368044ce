package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Manual is a deterministic Clock. Time only moves through Advance, AdvanceTo
// and MoveTo, and due timers fire on the caller's goroutine.
//
// While a timer callback runs, Now reports that timer's deadline, so a
// callback that arms a follow-up timer computes it from the exact instant it
// was due rather than from the advance target.
//
// Thread-safety: all methods are safe for concurrent use, but callbacks run
// without the internal lock held and may call back into the clock.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers timerHeap
}

// NewManual creates a manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the clock's current reading.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc arms f to run once the clock reaches Now()+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		fn:       f,
		index:    -1,
	}
	heap.Push(&m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer due at or before
// the new reading.
func (m *Manual) Advance(d time.Duration) {
	m.AdvanceTo(m.Now().Add(d))
}

// AdvanceTo moves the clock to t, firing every timer due at or before t.
// Moving backwards is a no-op.
func (m *Manual) AdvanceTo(t time.Time) {
	m.run(t, true)
}

// MoveTo moves the clock to t but only fires timers due strictly before t.
// Timers due exactly at t stay armed until the next advance, which lets a
// caller apply same-tick intents before same-tick maturations.
func (m *Manual) MoveTo(t time.Time) {
	m.run(t, false)
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers.Len()
}

// Next returns the deadline of the earliest armed timer.
func (m *Manual) Next() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers.Len() == 0 {
		return time.Time{}, false
	}
	return m.timers[0].deadline, true
}

func (m *Manual) run(target time.Time, inclusive bool) {
	for {
		m.mu.Lock()
		if m.timers.Len() == 0 || !due(m.timers[0].deadline, target, inclusive) {
			if target.After(m.now) {
				m.now = target
			}
			m.mu.Unlock()
			return
		}
		t := heap.Pop(&m.timers).(*manualTimer)
		if t.deadline.After(m.now) {
			m.now = t.deadline
		}
		t.fired = true
		fn := t.fn
		m.mu.Unlock()

		fn()
	}
}

func due(deadline, target time.Time, inclusive bool) bool {
	if inclusive {
		return !deadline.After(target)
	}
	return deadline.Before(target)
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      uint64
	fn       func()
	index    int
	fired    bool
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 {
		heap.Remove(&m.timers, t.index)
	}
	return true
}

// timerHeap orders timers by deadline, then by arm order.
type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
