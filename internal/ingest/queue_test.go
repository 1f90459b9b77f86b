package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"teamsync/internal/config"
)

// scriptedRunner returns the scripted results in call order; the last
// one repeats once the script runs out.
type scriptedRunner struct {
	mu      sync.Mutex
	results []RunResult
	calls   int
	windows []time.Duration
}

func (r *scriptedRunner) Run(ctx context.Context, tenantID, source string, opts ...RunOption) RunResult {
	r.mu.Lock()
	idx := r.calls
	r.calls++
	r.windows = append(r.windows, resolveRunOptions(opts).Window)
	var res RunResult
	if len(r.results) > 0 {
		if idx >= len(r.results) {
			idx = len(r.results) - 1
		}
		res = r.results[idx]
	} else {
		res.Status = StatusSuccess
	}
	r.mu.Unlock()
	res.TenantID = tenantID
	res.Source = source
	return res
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *scriptedRunner) seenWindows() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.windows...)
}

func queueConfig(capacity, maxRetries int) config.SyncConfig {
	return config.SyncConfig{
		QueueWorkers:  2,
		QueueCapacity: capacity,
		RunMaxRetries: maxRetries,
		RunRetryBase:  time.Millisecond,
	}
}

func waitResolved(t *testing.T, h *Handle) RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, ok := h.Wait(ctx)
	if !ok {
		t.Fatalf("task did not resolve in time")
	}
	return res
}

func TestQueue_ResolvesHandleOnCompletion(t *testing.T) {
	runner := &scriptedRunner{results: []RunResult{{Status: StatusSuccess, FetchedCount: 5, StoredCount: 3}}}
	q := NewQueue(runner, queueConfig(8, 0), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	h, err := q.Enqueue("t1", "slack")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res := waitResolved(t, h)
	if res.Status != StatusSuccess || res.TenantID != "t1" || res.Source != "slack" {
		t.Fatalf("res=%+v", res)
	}
	if res.StoredCount != 3 {
		t.Fatalf("stored=%d want 3", res.StoredCount)
	}
	if got := runner.callCount(); got != 1 {
		t.Fatalf("calls=%d want 1", got)
	}
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	runner := &scriptedRunner{results: []RunResult{
		{Status: StatusFailed, Reason: ReasonFetchFailed},
		{Status: StatusSuccess},
	}}
	q := NewQueue(runner, queueConfig(8, 3), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	h, err := q.Enqueue("t1", "github")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res := waitResolved(t, h)
	if res.Status != StatusSuccess {
		t.Fatalf("res=%+v want success after retry", res)
	}
	if got := runner.callCount(); got != 2 {
		t.Fatalf("calls=%d want 2", got)
	}
}

func TestQueue_WindowOptionTravelsThroughRetries(t *testing.T) {
	runner := &scriptedRunner{results: []RunResult{
		{Status: StatusFailed, Reason: ReasonFetchFailed},
		{Status: StatusSuccess},
	}}
	q := NewQueue(runner, queueConfig(8, 3), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	h, err := q.Enqueue("t1", "linear", WithWindow(48*time.Hour))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res := waitResolved(t, h)
	if res.Status != StatusSuccess {
		t.Fatalf("res=%+v want success after retry", res)
	}
	windows := runner.seenWindows()
	if len(windows) != 2 {
		t.Fatalf("windows=%v want one per attempt", windows)
	}
	for i, w := range windows {
		if w != 48*time.Hour {
			t.Fatalf("attempt %d saw window %v, want 48h", i+1, w)
		}
	}
}

func TestQueue_StopsRetryingAfterMaxAttempts(t *testing.T) {
	runner := &scriptedRunner{results: []RunResult{{Status: StatusFailed, Reason: ReasonStorageError}}}
	q := NewQueue(runner, queueConfig(8, 2), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	h, err := q.Enqueue("t1", "linear")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res := waitResolved(t, h)
	if res.Status != StatusFailed || res.Reason != ReasonStorageError {
		t.Fatalf("res=%+v", res)
	}
	// Initial attempt plus two retries.
	if got := runner.callCount(); got != 3 {
		t.Fatalf("calls=%d want 3", got)
	}
	if res.Attempt != 3 {
		t.Fatalf("attempt=%d want 3", res.Attempt)
	}
}

func TestQueue_AuthExpiredResolvesImmediately(t *testing.T) {
	runner := &scriptedRunner{results: []RunResult{{Status: StatusFailed, Reason: ReasonAuthExpired}}}
	q := NewQueue(runner, queueConfig(8, 3), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	h, err := q.Enqueue("t1", "slack")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	res := waitResolved(t, h)
	if res.Status != StatusFailed || res.Reason != ReasonAuthExpired {
		t.Fatalf("res=%+v", res)
	}
	if got := runner.callCount(); got != 1 {
		t.Fatalf("expired credentials retried %d times", got-1)
	}
}

func TestQueue_FullRejectsEnqueue(t *testing.T) {
	q := NewQueue(&scriptedRunner{}, queueConfig(1, 0), zap.NewNop())

	if _, err := q.Enqueue("t1", "slack"); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := q.Enqueue("t2", "slack"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
}

func TestQueue_DrainResolvesLeftoverTasks(t *testing.T) {
	q := NewQueue(&scriptedRunner{}, queueConfig(8, 0), zap.NewNop())
	h, err := q.Enqueue("t1", "slack")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := h.Result(); got.Status != "" {
		t.Fatalf("result before resolution should be zero, got %+v", got)
	}

	q.drain()
	res := h.Result()
	if res.Status != StatusSkipped || res.Reason != "queue stopped" {
		t.Fatalf("res=%+v", res)
	}
}

func TestQueue_RunReturnsWhenContextEnds(t *testing.T) {
	q := NewQueue(&scriptedRunner{}, queueConfig(8, 0), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
