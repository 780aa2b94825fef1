package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
)

// Queue is a bounded in-memory priority queue of jobs. Higher priority
// classes are always drained first; within a class ordering is FIFO.
// Entries are deduplicated by job ID so the periodic DB refill cannot
// enqueue the same job twice.
type Queue struct {
	mu       sync.Mutex
	classes  map[shared.Priority][]*job.Job
	tracked  map[uuid.UUID]struct{}
	capacity int
}

// NewQueue creates a queue with the given total capacity
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 500
	}
	return &Queue{
		classes: map[shared.Priority][]*job.Job{
			shared.PriorityHigh:   nil,
			shared.PriorityNormal: nil,
			shared.PriorityLow:    nil,
		},
		tracked:  make(map[uuid.UUID]struct{}),
		capacity: capacity,
	}
}

// Enqueue appends a job to its priority class. Enqueueing a job already in
// the queue is a no-op.
func (q *Queue) Enqueue(j *job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tracked[j.ID]; exists {
		return nil
	}
	if len(q.tracked) >= q.capacity {
		return fmt.Errorf("%w: job queue at capacity %d", shared.ErrQueueFull, q.capacity)
	}

	q.classes[j.Priority] = append(q.classes[j.Priority], j)
	q.tracked[j.ID] = struct{}{}
	return nil
}

// DequeueReady removes and returns the next job eligible to run: the first
// ready job in the highest non-empty priority class. Jobs still inside
// their retry backoff are skipped without losing their position.
func (q *Queue) DequeueReady(now time.Time) *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, priority := range []shared.Priority{shared.PriorityHigh, shared.PriorityNormal, shared.PriorityLow} {
		class := q.classes[priority]
		for i, j := range class {
			if !j.Ready(now) {
				continue
			}
			q.classes[priority] = append(class[:i], class[i+1:]...)
			delete(q.tracked, j.ID)
			return j
		}
	}
	return nil
}

// Contains reports whether a job is currently queued
func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.tracked[id]
	return exists
}

// Len returns the number of queued jobs across all classes
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tracked)
}
