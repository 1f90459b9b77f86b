package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"teamsync/internal/config"
	"teamsync/internal/metrics"
)

// ErrQueueFull is returned when the task buffer cannot take another run.
var ErrQueueFull = errors.New("ingest: queue full")

// Runner executes one tenant+source ingestion run.
type Runner interface {
	Run(ctx context.Context, tenantID, source string, opts ...RunOption) RunResult
}

// RunOptions adjust how a single run fetches.
type RunOptions struct {
	// Window pins the fetch floor to now minus Window for every scope,
	// ignoring stored cursors; zero keeps the run incremental.
	Window time.Duration
}

// RunOption mutates RunOptions.
type RunOption func(*RunOptions)

// WithWindow pins the fetch floor to now minus d for every scope,
// ignoring stored cursors. Re-fetched records hit the idempotent
// upserts and the watermark never moves backwards. d <= 0 leaves the
// run incremental.
func WithWindow(d time.Duration) RunOption {
	return func(o *RunOptions) {
		o.Window = d
	}
}

func resolveRunOptions(opts []RunOption) RunOptions {
	var o RunOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Handle tracks one enqueued run to its final result, retries included.
type Handle struct {
	done   chan struct{}
	once   sync.Once
	result RunResult
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(res RunResult) {
	h.once.Do(func() {
		h.result = res
		close(h.done)
	})
}

// Done closes once the task reached a final result.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result is valid after Done has closed.
func (h *Handle) Result() RunResult {
	select {
	case <-h.done:
		return h.result
	default:
		return RunResult{}
	}
}

// Wait blocks until the task resolves or the context ends. The second
// return is false when the context won.
func (h *Handle) Wait(ctx context.Context) (RunResult, bool) {
	select {
	case <-h.done:
		return h.result, true
	case <-ctx.Done():
		return RunResult{}, false
	}
}

type task struct {
	tenantID string
	source   string
	opts     []RunOption
	attempt  int
	handle   *Handle
}

// Queue runs ingestion tasks on a bounded worker pool. Transient
// failures re-enter the queue with exponential backoff; skips and auth
// failures resolve immediately.
type Queue struct {
	runner     Runner
	log        *zap.Logger
	workers    int
	maxRetries int
	retryBase  time.Duration

	tasks chan task
}

func NewQueue(runner Runner, cfg config.SyncConfig, log *zap.Logger) *Queue {
	workers := cfg.QueueWorkers
	if workers <= 0 {
		workers = 4
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 256
	}
	retryBase := cfg.RunRetryBase
	if retryBase <= 0 {
		retryBase = time.Minute
	}
	maxRetries := cfg.RunMaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Queue{
		runner:     runner,
		log:        log,
		workers:    workers,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		tasks:      make(chan task, capacity),
	}
}

// Enqueue schedules a run and returns its handle without blocking.
// Options travel with the task through retries.
func (q *Queue) Enqueue(tenantID, source string, opts ...RunOption) (*Handle, error) {
	h := newHandle()
	select {
	case q.tasks <- task{tenantID: tenantID, source: source, opts: opts, handle: h}:
		metrics.QueueDepth.Inc()
		return h, nil
	default:
		return nil, ErrQueueFull
	}
}

// Run processes tasks until the context ends, then resolves whatever is
// still queued so no caller waits on a dead queue.
func (q *Queue) Run(ctx context.Context) error {
	if q == nil {
		return nil
	}
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-q.tasks:
					metrics.QueueDepth.Dec()
					q.process(ctx, t)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	q.drain()
	return ctx.Err()
}

func (q *Queue) process(ctx context.Context, t task) {
	res := q.runner.Run(ctx, t.tenantID, t.source, t.opts...)
	res.Attempt = t.attempt + 1
	if res.Retryable() && t.attempt < q.maxRetries {
		delay := q.retryBase << uint(t.attempt)
		if q.log != nil {
			q.log.Warn("ingestion run failed, scheduling retry",
				zap.String("tenant_id", t.tenantID),
				zap.String("source", t.source),
				zap.Int("attempt", t.attempt+1),
				zap.Duration("delay", delay))
		}
		go q.requeue(ctx, t, res, delay)
		return
	}
	t.handle.resolve(res)
}

func (q *Queue) requeue(ctx context.Context, t task, last RunResult, delay time.Duration) {
	select {
	case <-ctx.Done():
		t.handle.resolve(last)
	case <-time.After(delay):
		t.attempt++
		select {
		case q.tasks <- t:
			metrics.QueueDepth.Inc()
		default:
			// Saturated queue: surface the last result instead of waiting.
			t.handle.resolve(last)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case t := <-q.tasks:
			metrics.QueueDepth.Dec()
			t.handle.resolve(RunResult{
				TenantID: t.tenantID,
				Source:   t.source,
				Status:   StatusSkipped,
				Reason:   "queue stopped",
			})
		default:
			return
		}
	}
}
