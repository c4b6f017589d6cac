// Package timerq provides a monotonic millisecond timer queue backed by a
// min-heap. Cancellation uses a lazy sentinel: cancelled tasks stay in the
// heap and are handed their cancel flag at fire time.
package timerq

import (
	"container/heap"
	"time"
)

// Task is a single scheduled callback. Cancel is a writable sentinel
// consulted when the task fires; setting it does not remove the heap entry.
type Task struct {
	Cancel bool

	fn       func(cancelled bool)
	deadline int64
	id       uint64
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline == h[j].deadline {
		return h[i].id < h[j].id
	}
	return h[i].deadline < h[j].deadline
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	task, ok := x.(*Task)
	if !ok || task == nil {
		return
	}
	*h = append(*h, task)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*Task)(nil)
	}
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue schedules Tasks against a monotonic millisecond clock.
type Queue struct {
	tasks  taskHeap
	nextID uint64
	now    func() int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithNow replaces the clock, letting tests drive virtual time.
func WithNow(now func() int64) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New constructs an empty queue on the real monotonic clock.
func New(opts ...Option) *Queue {
	start := time.Now()
	q := &Queue{
		nextID: 1,
		now: func() int64 {
			return time.Since(start).Milliseconds()
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Post schedules fn to fire after timeoutMS milliseconds and returns the
// task so the caller can set its Cancel sentinel.
func (q *Queue) Post(fn func(cancelled bool), timeoutMS int64) *Task {
	if timeoutMS < 0 {
		timeoutMS = 0
	}
	task := &Task{
		fn:       fn,
		deadline: q.now() + timeoutMS,
		id:       q.nextID,
	}
	q.nextID++
	heap.Push(&q.tasks, task)
	return task
}

// Delay returns the milliseconds until the next task fires. The second
// return is false when the queue is idle. Cancelled tasks still count; they
// fire early as no-ops.
func (q *Queue) Delay() (int64, bool) {
	if len(q.tasks) == 0 {
		return 0, false
	}
	delay := q.tasks[0].deadline - q.now()
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// Next fires every task whose deadline has passed, delivering the Cancel
// sentinel observed at fire time.
func (q *Queue) Next() {
	now := q.now()
	for len(q.tasks) > 0 {
		head := q.tasks[0]
		if head == nil {
			heap.Pop(&q.tasks)
			continue
		}
		if head.deadline > now {
			break
		}
		heap.Pop(&q.tasks)
		head.fn(head.Cancel)
	}
}

// Kill drains the queue, firing every remaining task with cancelled=true.
func (q *Queue) Kill() {
	for len(q.tasks) > 0 {
		task, ok := heap.Pop(&q.tasks).(*Task)
		if !ok || task == nil {
			continue
		}
		task.fn(true)
	}
}

// Len reports the number of pending tasks, cancelled entries included.
func (q *Queue) Len() int {
	return len(q.tasks)
}
