package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"swap-settlement-go/internal/metrics"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type stubStage struct {
	queue string
	next  *NextJob
	err   error
	calls atomic.Int32
}

func (s *stubStage) Queue() string { return s.queue }

func (s *stubStage) Process(ctx context.Context, _ json.RawMessage) (*NextJob, error) {
	s.calls.Add(1)
	if models.GetJobContext(ctx) == nil {
		return nil, errors.New("missing job context")
	}
	return s.next, s.err
}

func setupTestRunner(t *testing.T, stage Stage, maxAttempts int) (*Runner, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := models.QueueConfig{
		Prefix:      "test",
		WorkerId:    "w1",
		Concurrency: 1,
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
		BackoffMax:  time.Second,
		LockTTL:     time.Minute,
		PollTimeout: 100 * time.Millisecond,
	}
	q := queue.New(client, cfg)
	return NewRunner(q, stage, cfg, metrics.New(prometheus.NewRegistry())), q
}

func stats(t *testing.T, q *queue.Queue, name string) queue.Stats {
	t.Helper()
	s, err := q.Stats(context.Background(), name)
	if err != nil {
		t.Fatalf("Failed to read stats: %v", err)
	}
	return s
}

func TestRunner_AckEnqueuesNextJob(t *testing.T) {
	stage := &stubStage{
		queue: queue.SuccessfulSwap,
		next:  &NextJob{Queue: queue.SweepRequest, Job: models.SweepRequestJob{SwapId: "swap-1"}},
	}
	runner, q := setupTestRunner(t, stage, 3)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.SuccessfulSwap, models.SwapTransactionJob{Id: "tx-1"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	taken, err := runner.poll(ctx)
	if err != nil || !taken {
		t.Fatalf("Expected job to be handled, got taken=%v err=%v", taken, err)
	}

	if s := stats(t, q, queue.SuccessfulSwap); s.Ready != 0 || s.Processing != 0 || s.Delayed != 0 {
		t.Errorf("Expected source queue to be empty, got %+v", s)
	}
	if s := stats(t, q, queue.SweepRequest); s.Ready != 1 {
		t.Errorf("Expected sweep request to be enqueued, got %+v", s)
	}
}

func TestRunner_EmptyQueue(t *testing.T) {
	stage := &stubStage{queue: queue.PendingSwap}
	runner, _ := setupTestRunner(t, stage, 3)

	taken, err := runner.poll(context.Background())
	if err != nil || taken {
		t.Errorf("Expected nothing to do, got taken=%v err=%v", taken, err)
	}
}

func TestRunner_DropAcks(t *testing.T) {
	stage := &stubStage{queue: queue.PendingSwap, err: ErrValidation}
	runner, q := setupTestRunner(t, stage, 3)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.PendingSwap, models.SwapInitiationJob{SwapId: "swap-1"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if _, err := runner.poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	s := stats(t, q, queue.PendingSwap)
	if s.Ready != 0 || s.Delayed != 0 || s.Dead != 0 || s.Processing != 0 {
		t.Errorf("Expected dropped job to disappear, got %+v", s)
	}
}

func TestRunner_RetryThenDeadLetter(t *testing.T) {
	stage := &stubStage{queue: queue.PendingSwap, err: errors.New("database is locked")}
	runner, q := setupTestRunner(t, stage, 2)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.PendingSwap, models.SwapInitiationJob{SwapId: "swap-1"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	if _, err := runner.poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if s := stats(t, q, queue.PendingSwap); s.Delayed != 1 || s.Dead != 0 {
		t.Fatalf("Expected job to be delayed for retry, got %+v", s)
	}

	time.Sleep(20 * time.Millisecond)
	runner.promote(ctx)
	if s := stats(t, q, queue.PendingSwap); s.Ready != 1 {
		t.Fatalf("Expected retry to be promoted, got %+v", s)
	}

	if _, err := runner.poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	s := stats(t, q, queue.PendingSwap)
	if s.Dead != 1 || s.Delayed != 0 || s.Ready != 0 {
		t.Fatalf("Expected job to be dead-lettered, got %+v", s)
	}

	dead, err := q.ListDead(ctx, queue.PendingSwap, 10)
	if err != nil {
		t.Fatalf("Failed to list dead jobs: %v", err)
	}
	if len(dead) != 1 || dead[0].Attempts != 2 || dead[0].LastError != "database is locked" {
		t.Errorf("Unexpected dead letter %+v", dead)
	}
	if stage.calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", stage.calls.Load())
	}
}

func TestRunner_LockedEntityIsRedelayed(t *testing.T) {
	stage := &stubStage{queue: queue.PendingSwap}
	runner, q := setupTestRunner(t, stage, 1)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.PendingSwap, models.SwapInitiationJob{SwapId: "swap-1"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	token, ok, err := q.AcquireLock(ctx, "swap:swap-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Failed to take lock: ok=%v err=%v", ok, err)
	}

	if _, err := runner.poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if stage.calls.Load() != 0 {
		t.Errorf("Expected stage not to run while the entity is locked")
	}
	// MaxAttempts is 1, so a counted attempt would have dead-lettered it.
	if s := stats(t, q, queue.PendingSwap); s.Delayed != 1 || s.Dead != 0 {
		t.Errorf("Expected job to be re-delayed, got %+v", s)
	}

	if err := q.ReleaseLock(ctx, "swap:swap-1", token); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
}

func TestRunner_StartStop(t *testing.T) {
	stage := &stubStage{queue: queue.PendingSwap}
	runner, q := setupTestRunner(t, stage, 3)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.PendingSwap, models.SwapInitiationJob{SwapId: "swap-1"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if err := runner.Start(ctx); err != nil {
		t.Fatalf("Failed to start runner: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for stage.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	runner.Stop()
	runner.Stop()

	if stage.calls.Load() != 1 {
		t.Errorf("Expected job to be processed once, got %d", stage.calls.Load())
	}
}

func TestBackoff(t *testing.T) {
	runner := NewRunner(nil, &stubStage{}, models.QueueConfig{BackoffBase: time.Second, BackoffMax: 10 * time.Second}, nil)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := runner.backoff(tt.attempts); got != tt.want {
			t.Errorf("Expected backoff %s after %d attempts, got %s", tt.want, tt.attempts, got)
		}
	}
}

func TestRunner_OperatorErrorsSkipRetries(t *testing.T) {
	stage := &stubStage{queue: queue.DepositSuccessful, err: fmt.Errorf("credit deposit: %w", store.ErrAmountPrecision)}
	runner, q := setupTestRunner(t, stage, 5)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.DepositSuccessful, models.DepositJob{Id: "dep-1"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if _, err := runner.poll(ctx); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	s := stats(t, q, queue.DepositSuccessful)
	if s.Dead != 1 || s.Delayed != 0 || s.Ready != 0 || s.Processing != 0 {
		t.Fatalf("Expected job to be dead-lettered on first attempt, got %+v", s)
	}
	if stage.calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", stage.calls.Load())
	}
}
