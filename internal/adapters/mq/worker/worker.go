// Package worker runs selection jobs pulled from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/runtest/internal/adapters/mq/queue"
	"github.com/okian/runtest/internal/domain/selection"
	"github.com/okian/runtest/pkg/logger"
	"github.com/okian/runtest/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan *queue.Job
}

// Worker processes selection jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for jobs read from an in-process queue.
type InMemoryWorker struct {
	queue    Queue
	selector selection.Selector
	name     string

	// onDone is called after every job the worker ran.
	onDone func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, selector selection.Selector, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		selector: selector,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// Cancelling on return makes the queue fail any job it was handing over.
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := w.queue.Dequeue(dctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(job); err != nil {
				w.logger.Debug(job.Ctx, "job finished with error",
					logger.String("job_id", job.ID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.signal()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) signal() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// process runs one job and always completes it.
func (w *InMemoryWorker) process(job *queue.Job) error {
	if w.onDone != nil {
		defer w.onDone()
	}

	// The caller may have timed out while the job was waiting.
	if err := job.Ctx.Err(); err != nil {
		metrics.RecordSelectionCancelled()
		job.Complete(queue.Result{Err: err})
		return err
	}

	start := time.Now()
	selected, err := w.selector.Select(job.Ctx, job.Items, job.Budget)
	end := time.Now()

	latency := float64(end.Sub(start).Microseconds()) / 1000
	metrics.RecordWorkerProcessingLatency(latency)

	if err != nil {
		if errors.Is(err, selection.ErrCancelled) {
			metrics.RecordSelectionCancelled()
		} else {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "selection_error")
			metrics.RecordErrorByType("selection_error", "high")
		}
		job.Complete(queue.Result{Start: start, End: end, Err: err})
		return fmt.Errorf("select job %s: %w", job.ID, err)
	}

	metrics.RecordSelection(latency, len(job.Items), len(selected))
	job.Complete(queue.Result{Selected: selected, Start: start, End: end})
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	selector selection.Selector

	shutdown     chan struct{}
	shutdownOnce sync.Once

	processedCount    atomic.Int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count means twice the CPU count.
func NewPool(workerCount int, q Queue, selector selection.Selector, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		selector:          selector,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, selector, wopts...)
		w.onDone = pool.RecordProcessedMessage
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater periodically publishes the pool throughput.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	timeDiff := now.Sub(p.lastProcessedTime).Seconds()
	processed := p.processedCount.Swap(0)
	if timeDiff > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(processed) / timeDiff)
	}
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed job count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount.Add(1)
}

func (p *Pool) signal() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
		for _, w := range p.workers {
			w.signal()
		}
	})
}

// Shutdown closes the queue, stops the workers and fails any job left behind.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.signal()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	if drainer, ok := p.queue.(interface{ Drain() int }); ok {
		if n := drainer.Drain(); n > 0 {
			p.logger.Warn(ctx, "failed pending jobs on shutdown", logger.Int("count", n))
		}
	}

	return nil
}
