// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"container/heap"
	"time"
)

// Timer is a one-shot callback scheduled on a reactor loop.
type Timer struct {
	when  time.Time
	fn    func()
	index int
}

type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
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

func (h *timerHeap) schedule(t *Timer) {
	heap.Push(h, t)
}

func (h *timerHeap) cancel(t *Timer) bool {
	if t.index < 0 || t.index >= len(*h) || (*h)[t.index] != t {
		return false
	}
	heap.Remove(h, t.index)
	return true
}

// next returns the delay until the earliest timer, or -1 when none is armed.
func (h timerHeap) next(now time.Time) time.Duration {
	if len(h) == 0 {
		return -1
	}
	d := h[0].when.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// expire pops every timer due at now.
func (h *timerHeap) expire(now time.Time, run func(func())) {
	for len(*h) > 0 && !(*h)[0].when.After(now) {
		t := heap.Pop(h).(*Timer)
		run(t.fn)
	}
}
