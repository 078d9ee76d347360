// Package controller contains the reconcile loop that turns persisted
// run records into executed runs, and the work queue feeding it.
package controller

import (
	"sync"
)

// WorkQueue is a deduplicating work queue. A key added while it is
// being processed is re-queued when Done is called, so a burst of
// updates for one run collapses into a single follow-up reconcile.
type WorkQueue struct {
	// queue is the ordered list of keys to process
	queue []string

	// dirty tracks keys that need processing
	dirty map[string]struct{}

	// processing tracks keys currently being processed
	processing map[string]struct{}

	// cond signals waiting workers when keys are added
	cond *sync.Cond

	shuttingDown bool

	mu sync.Mutex
}

// NewWorkQueue creates an empty work queue.
func NewWorkQueue() *WorkQueue {
	q := &WorkQueue{
		queue:      make([]string, 0),
		dirty:      make(map[string]struct{}),
		processing: make(map[string]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add marks a key as needing processing. A key already queued is not
// duplicated; a key currently being processed is re-queued once its
// worker calls Done.
func (q *WorkQueue) Add(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	if _, exists := q.dirty[key]; exists {
		return
	}
	q.dirty[key] = struct{}{}

	if _, exists := q.processing[key]; exists {
		return
	}

	q.queue = append(q.queue, key)
	q.cond.Signal()
}

// Get blocks until a key is ready, returning the key and whether the
// queue is shutting down.
func (q *WorkQueue) Get() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.shuttingDown {
		q.cond.Wait()
	}

	if q.shuttingDown {
		return "", true
	}

	key := q.queue[0]
	q.queue = q.queue[1:]

	delete(q.dirty, key)
	q.processing[key] = struct{}{}

	return key, false
}

// Done marks a key as done processing. If the key was re-added while
// being processed it goes back on the queue.
func (q *WorkQueue) Done(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, key)

	if _, exists := q.dirty[key]; exists {
		q.queue = append(q.queue, key)
		q.cond.Signal()
	}
}

// Requeue puts a key back on the queue after a failed reconcile.
func (q *WorkQueue) Requeue(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, key)

	if q.shuttingDown {
		return
	}

	q.dirty[key] = struct{}{}
	q.queue = append(q.queue, key)
	q.cond.Signal()
}

// Len returns the number of queued keys.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// ShutDown wakes all waiting workers and stops accepting keys.
func (q *WorkQueue) ShutDown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shuttingDown = true
	q.cond.Broadcast()
}

// ShuttingDown reports whether ShutDown has been called.
func (q *WorkQueue) ShuttingDown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuttingDown
}
