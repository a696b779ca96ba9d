// Package task marshals work from background goroutines onto the
// simulation thread.
package task

import "sync"

// Queue is a mutex-guarded FIFO of closures drained once per tick.
type Queue struct {
	mu    sync.Mutex
	tasks []func()
	spare []func()
}

func NewQueue() *Queue {
	return &Queue{tasks: make([]func(), 0, 16)}
}

// Enqueue schedules fn to run on the next Drain. Safe from any goroutine.
func (q *Queue) Enqueue(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// Drain runs every task queued before the call, outside the lock, and
// returns how many ran. Tasks enqueued while draining wait for the next call.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.tasks
	q.tasks = q.spare[:0]
	q.mu.Unlock()

	for i, fn := range batch {
		fn()
		batch[i] = nil
	}

	q.mu.Lock()
	q.spare = batch[:0]
	q.mu.Unlock()
	return len(batch)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
