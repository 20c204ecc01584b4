package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/runtest/internal/adapters/mq/queue"
	worker "github.com/okian/runtest/internal/adapters/mq/worker"
	model "github.com/okian/runtest/internal/domain/model"
	selection "github.com/okian/runtest/internal/domain/selection"
	logging "github.com/okian/runtest/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan *queue.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		jobs: make(chan *queue.Job, 16),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan *queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	close(mq.jobs)
	return nil
}

type mockSelector struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
}

func (ms *mockSelector) Select(ctx context.Context, items model.Items, budget float64) (model.Items, error) {
	ms.mu.Lock()
	ms.calls++
	err, delay := ms.err, ms.delay
	ms.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return append(model.Items(nil), items...), nil
}

func (ms *mockSelector) setError(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.err = err
}

func (ms *mockSelector) callCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.calls
}

// gateSelector blocks every Select until release is closed.
type gateSelector struct {
	startedOnce sync.Once
	started     chan struct{}
	release     chan struct{}
}

func newGateSelector() *gateSelector {
	return &gateSelector{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateSelector) Select(ctx context.Context, items model.Items, budget float64) (model.Items, error) {
	g.startedOnce.Do(func() { close(g.started) })
	<-g.release
	return items, nil
}

func waitResult(t *testing.T, j *queue.Job) queue.Result {
	t.Helper()
	select {
	case r := <-j.Done():
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job result")
		return queue.Result{}
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		sel := &mockSelector{}

		convey.Convey("When creating a worker with options", func() {
			w := worker.NewInMemoryWorker(q, sel, worker.WithName("test-worker"))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, sel)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And a job is queued", func() {
				items := model.Items{{X: 1, Y: 1}, {X: 2, Y: 3}}
				job := queue.NewJob(context.Background(), items, 10)
				q.jobs <- job

				r := waitResult(t, job)

				convey.Convey("Then the selection and its timing come back", func() {
					convey.So(r.Err, convey.ShouldBeNil)
					convey.So(r.Selected, convey.ShouldResemble, items)
					convey.So(r.Start.IsZero(), convey.ShouldBeFalse)
					convey.So(r.End.Before(r.Start), convey.ShouldBeFalse)
				})
			})

			convey.Convey("And the selector fails", func() {
				sel.setError(errors.New("boom"))
				job := queue.NewJob(context.Background(), model.Items{{X: 1, Y: 1}}, 10)
				q.jobs <- job

				r := waitResult(t, job)

				convey.Convey("Then the error is delivered", func() {
					convey.So(r.Err, convey.ShouldNotBeNil)
					convey.So(r.Selected, convey.ShouldBeNil)
				})
			})

			convey.Convey("And the job's caller has already given up", func() {
				jctx, jcancel := context.WithCancel(context.Background())
				jcancel()
				job := queue.NewJob(jctx, model.Items{{X: 1, Y: 1}}, 10)
				q.jobs <- job

				r := waitResult(t, job)

				convey.Convey("Then the selector is never called", func() {
					convey.So(errors.Is(r.Err, context.Canceled), convey.ShouldBeTrue)
					convey.So(sel.callCount(), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		_ = logging.Init()

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, newMockQueue(), &mockSelector{})

			convey.Convey("Then it sizes itself from the CPU count", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When running a pool against the real queue and selector", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(32))
			pool := worker.NewPool(4, q, selection.NewGreedyRatio())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			jobs := make([]*queue.Job, 0, 20)
			for i := 0; i < 20; i++ {
				j := queue.NewJob(context.Background(), model.Items{{X: 10, Y: 1}, {X: 1, Y: 1}, {X: 4, Y: 2}}, 2)
				convey.So(q.Enqueue(context.Background(), j), convey.ShouldBeTrue)
				jobs = append(jobs, j)
			}

			convey.Convey("Then every job gets the same greedy selection", func() {
				for _, j := range jobs {
					r := waitResult(t, j)
					convey.So(r.Err, convey.ShouldBeNil)
					convey.So(r.Selected, convey.ShouldResemble, model.Items{{X: 1, Y: 1}, {X: 10, Y: 1}})
				}
			})

			convey.Convey("And shutdown fails nothing that already ran", func() {
				for _, j := range jobs {
					_ = waitResult(t, j)
				}
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting a pool down twice", func() {
			pool := worker.NewPool(2, queue.NewInMemoryQueue(), &mockSelector{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			convey.Convey("Then it does not panic", func() {
				convey.So(func() { _ = pool.Shutdown(context.Background()) }, convey.ShouldNotPanic)
				convey.So(func() { _ = pool.Shutdown(context.Background()) }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestWorkerPool_ShutdownFailsPendingJobs(t *testing.T) {
	convey.Convey("Given a stopped pool with jobs still queued", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		pool := worker.NewPool(1, q, &mockSelector{})

		job := queue.NewJob(context.Background(), model.Items{{X: 1, Y: 1}}, 1)
		convey.So(q.Enqueue(context.Background(), job), convey.ShouldBeTrue)

		convey.Convey("When the pool shuts down without ever starting", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the pending job is failed with ErrStopped", func() {
				convey.So(err, convey.ShouldBeNil)
				r := waitResult(t, job)
				convey.So(errors.Is(r.Err, queue.ErrStopped), convey.ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryWorker_ShutdownCompletesHandedOverJob(t *testing.T) {
	convey.Convey("Given a busy worker on the real queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		sel := newGateSelector()
		w := worker.NewInMemoryWorker(q, sel)
		go w.Run(context.Background())

		first := queue.NewJob(context.Background(), model.Items{{X: 1, Y: 1}}, 1)
		convey.So(q.Enqueue(context.Background(), first), convey.ShouldBeTrue)
		<-sel.started

		// The second job leaves the buffer and waits in the dequeue hand-off.
		second := queue.NewJob(context.Background(), model.Items{{X: 2, Y: 1}}, 1)
		convey.So(q.Enqueue(context.Background(), second), convey.ShouldBeTrue)
		deadline := time.Now().Add(time.Second)
		for q.Len(context.Background()) > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		convey.So(q.Len(context.Background()), convey.ShouldEqual, 0)

		convey.Convey("When the worker shuts down", func() {
			shutdownErr := make(chan error, 1)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				shutdownErr <- w.Shutdown(ctx)
			}()
			close(sel.release)

			convey.Convey("Then both jobs are completed", func() {
				convey.So(waitResult(t, first).Err, convey.ShouldBeNil)
				r := waitResult(t, second)
				if r.Err != nil {
					convey.So(errors.Is(r.Err, queue.ErrStopped), convey.ShouldBeTrue)
				}
				convey.So(<-shutdownErr, convey.ShouldBeNil)
			})
		})
	})
}
