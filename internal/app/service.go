// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	jobqueue "github.com/okian/runtest/internal/adapters/mq/queue"
	workerpool "github.com/okian/runtest/internal/adapters/mq/worker"
	"github.com/okian/runtest/internal/domain/auth"
	"github.com/okian/runtest/internal/domain/model"
	"github.com/okian/runtest/internal/domain/selection"
	"github.com/okian/runtest/pkg/logger"
	"github.com/okian/runtest/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize        = 4096
	defaultSelectionTimeout = 5 * time.Second
	shutdownTimeout         = 10 * time.Second
)

// Service implements the API dependencies for the selection endpoint.
type Service struct {
	mu sync.RWMutex

	// Core components
	auth     *auth.SharedSecret
	selector selection.Selector
	queue    *jobqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	apiKey           string
	workerCount      int
	queueSize        int
	selectionTimeout time.Duration

	// State
	started   bool
	runCancel context.CancelFunc

	evaluated atomic.Int64
	timeouts  atomic.Int64
	rejected  atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAPIKey sets the shared secret requests must present. An empty key rejects everything.
func WithAPIKey(key string) Option {
	return func(s *Service) {
		s.apiKey = key
	}
}

// WithWorkerCount sets the number of selection workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many selection jobs may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSelectionTimeout bounds how long a request waits for its selection.
func WithSelectionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.selectionTimeout = d
		}
	}
}

// WithSelector replaces the greedy ratio selector.
func WithSelector(sel selection.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		selectionTimeout: defaultSelectionTimeout,
		selector:         selection.NewGreedyRatio(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.auth = auth.NewSharedSecret(s.apiKey)

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting selection service...")

	if !s.auth.Configured() {
		s.logger.Warn(ctx, "api key is not configured, every request will be rejected")
	}

	// Workers must outlive the context Start was called with.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel

	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.selector)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "selection service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("selectionTimeoutMs", int(s.selectionTimeout.Milliseconds())),
	)

	return nil
}

// Stop gracefully shuts down the service. Jobs still queued fail with ErrNotStarted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping selection service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}

	if s.runCancel != nil {
		s.runCancel()
	}

	s.started = false
	s.logger.Info(ctx, "selection service stopped")
}

// Authenticate reports whether secret matches the configured API key.
func (s *Service) Authenticate(_ context.Context, secret string) bool {
	if s.auth.Authenticate(secret) {
		return true
	}
	metrics.RecordAuthFailure()
	return false
}

// Evaluate selects items under budget on the worker pool and returns the
// response with the selection's start and end timestamps.
func (s *Service) Evaluate(ctx context.Context, items model.Items, budget float64) (model.Response, error) {
	s.mu.RLock()
	started, q := s.started, s.queue
	s.mu.RUnlock()

	if !started {
		return model.Response{}, ErrNotStarted
	}

	jctx, cancel := context.WithTimeout(ctx, s.selectionTimeout)
	defer cancel()

	job := jobqueue.NewJob(jctx, items, budget)
	if !q.Enqueue(jctx, job) {
		switch {
		case q.IsClosed():
			return model.Response{}, ErrNotStarted
		case jctx.Err() != nil:
			return model.Response{}, s.abandoned(ctx, job)
		}
		s.rejected.Add(1)
		metrics.RecordSelectionRejected()
		return model.Response{}, ErrBackpressure
	}

	select {
	case r := <-job.Done():
		return s.finish(ctx, job, r)
	case <-jctx.Done():
		// A result may have landed at the same instant.
		select {
		case r := <-job.Done():
			return s.finish(ctx, job, r)
		default:
		}
		return model.Response{}, s.abandoned(ctx, job)
	}
}

func (s *Service) finish(ctx context.Context, job *jobqueue.Job, r jobqueue.Result) (model.Response, error) {
	if r.Err != nil {
		switch {
		case errors.Is(r.Err, jobqueue.ErrStopped):
			return model.Response{}, ErrNotStarted
		case errors.Is(r.Err, context.DeadlineExceeded), errors.Is(r.Err, context.Canceled):
			return model.Response{}, s.abandoned(ctx, job)
		}
		return model.Response{}, fmt.Errorf("evaluate: %w", r.Err)
	}

	s.evaluated.Add(1)
	return model.NewResponse(r.Selected, r.Start, r.End), nil
}

// abandoned classifies a job whose context ended before it produced a selection.
func (s *Service) abandoned(ctx context.Context, job *jobqueue.Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	s.timeouts.Add(1)
	metrics.RecordSelectionTimeout()
	s.logger.Warn(ctx, "selection timed out",
		logger.String("job_id", job.ID),
		logger.Int("items", len(job.Items)),
	)
	return ErrTimeout
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":            s.started,
		"workerCount":        s.workerCount,
		"queueSize":          s.queueSize,
		"selectionTimeoutMs": s.selectionTimeout.Milliseconds(),
		"authConfigured":     s.auth.Configured(),
		"evaluated":          s.evaluated.Load(),
		"timeouts":           s.timeouts.Load(),
		"rejected":           s.rejected.Load(),
	}

	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
