package scheduler

import "time"

// task is one unit of scheduler work: run (or resume) a node attempt for an
// execution.
type task struct {
	executionID string
	nodeID      string
	attempt     int  // 0-based retry counter
	resume      bool // woken delay step: complete it instead of re-running
}

// wakeItem parks a task until its wake time. Used both for suspended delay
// nodes and for retry backoff.
type wakeItem struct {
	at   time.Time
	task task
}

// wakeQueue is a min-heap ordered by wake time.
type wakeQueue []*wakeItem

func (q wakeQueue) Len() int { return len(q) }

func (q wakeQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }

func (q wakeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *wakeQueue) Push(x any) {
	item, ok := x.(*wakeItem)
	if !ok {
		return
	}

	*q = append(*q, item)
}

func (q *wakeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]

	return item
}
