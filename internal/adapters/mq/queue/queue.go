// Package queue defines the contract for enqueuing and consuming selection jobs.
//
// The only implementation is an in-memory bounded queue backed by a channel.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/runtest/internal/domain/model"
	"github.com/okian/runtest/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Result is what a worker hands back for a job.
type Result struct {
	Selected model.Items
	Start    time.Time
	End      time.Time
	Err      error
}

// Job is one selection request waiting for a worker.
type Job struct {
	ID     string
	Ctx    context.Context //nolint:containedctx // the job outlives the enqueue call
	Items  model.Items
	Budget float64

	// result is buffered with capacity 1 so a worker never blocks on a caller
	// that already gave up.
	result chan Result
}

// NewJob creates a job bound to ctx with a fresh id.
func NewJob(ctx context.Context, items model.Items, budget float64) *Job {
	return &Job{
		ID:     uuid.NewString(),
		Ctx:    ctx,
		Items:  items,
		Budget: budget,
		result: make(chan Result, 1),
	}
}

// Complete delivers the result. Only the first call has an effect.
func (j *Job) Complete(r Result) {
	select {
	case j.result <- r:
	default:
	}
}

// Done returns the channel the result is delivered on.
func (j *Job) Done() <-chan Result {
	return j.result
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job to the queue.
	// Returns false if the queue is full or closed and the job was not enqueued.
	Enqueue(ctx context.Context, j *Job) bool

	// Dequeue returns a channel that will receive jobs as they become available.
	// The channel will be closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan *Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan *Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan *Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j *Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan *Job {
	out := make(chan *Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-q.jobs:
				if !ok {
					return
				}
				select {
				case out <- j:
					metrics.RecordQueueDequeue()
					q.observe()
				case <-ctx.Done():
					j.Complete(Result{Err: ErrStopped})
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

func (q *InMemoryQueue) observe() int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close stops accepting jobs. Buffered jobs stay readable until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true

	return nil
}

// Drain fails every job still buffered in a closed queue.
func (q *InMemoryQueue) Drain() int {
	if !q.IsClosed() {
		return 0
	}
	n := 0
	for j := range q.jobs {
		j.Complete(Result{Err: ErrStopped})
		n++
	}
	q.observe()
	return n
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
