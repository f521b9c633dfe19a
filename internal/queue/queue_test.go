package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"swap-settlement-go/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	q := New(client, models.QueueConfig{Prefix: "test", WorkerId: "w1"})
	q.now = func() time.Time { return clock }
	return q, mr, &clock
}

func TestEnqueue_RejectsInvalidJob(t *testing.T) {
	q, mr, _ := setupTestQueue(t)

	_, err := q.Enqueue(context.Background(), DepositSuccessful, models.DepositJob{Currency: "trx"})
	if !errors.Is(err, models.ErrInvalidJob) {
		t.Fatalf("Expected ErrInvalidJob, got %v", err)
	}
	if mr.Exists("test:" + DepositSuccessful + ":ready") {
		t.Errorf("Expected nothing to be enqueued")
	}
}

func TestEnqueueDequeueAck(t *testing.T) {
	q, mr, _ := setupTestQueue(t)
	ctx := context.Background()

	envelope, err := q.Enqueue(ctx, PendingSwap, models.SwapInitiationJob{SwapId: "swap-1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if envelope.Key != "swap:swap-1" {
		t.Errorf("Expected partition key swap:swap-1, got %s", envelope.Key)
	}

	delivery, err := q.Dequeue(ctx, PendingSwap, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if delivery == nil {
		t.Fatalf("Expected a delivery")
	}
	if delivery.Id != envelope.Id {
		t.Errorf("Expected job %s, got %s", envelope.Id, delivery.Id)
	}

	var job models.SwapInitiationJob
	if err := json.Unmarshal(delivery.Payload, &job); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if job.SwapId != "swap-1" {
		t.Errorf("Expected swap-1, got %s", job.SwapId)
	}

	stats, err := q.Stats(ctx, PendingSwap)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Ready != 0 || stats.Processing != 1 {
		t.Errorf("Expected job to be in flight, got %+v", stats)
	}

	if err := q.Ack(ctx, delivery); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if mr.Exists("test:" + PendingSwap + ":processing:w1") {
		t.Errorf("Expected processing list to be empty after ack")
	}
}

func TestDequeue_Timeout(t *testing.T) {
	q, _, _ := setupTestQueue(t)

	delivery, err := q.Dequeue(context.Background(), PendingSwap, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if delivery != nil {
		t.Errorf("Expected no delivery, got %+v", delivery)
	}
}

func TestRetryAndPromote(t *testing.T) {
	q, _, clock := setupTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, PendingSwap, models.SwapInitiationJob{SwapId: "swap-1"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	delivery, err := q.Dequeue(ctx, PendingSwap, 100*time.Millisecond)
	if err != nil || delivery == nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if err := q.Retry(ctx, delivery, 10*time.Second, "gateway down", true); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	moved, err := q.Promote(ctx, PendingSwap, 10)
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if moved != 0 {
		t.Errorf("Expected nothing due yet, got %d", moved)
	}

	*clock = clock.Add(11 * time.Second)
	moved, err = q.Promote(ctx, PendingSwap, 10)
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if moved != 1 {
		t.Fatalf("Expected 1 promoted job, got %d", moved)
	}

	retried, err := q.Dequeue(ctx, PendingSwap, 100*time.Millisecond)
	if err != nil || retried == nil {
		t.Fatalf("Dequeue after promote failed: %v", err)
	}
	if retried.Attempts != 1 {
		t.Errorf("Expected attempts 1, got %d", retried.Attempts)
	}
	if retried.LastError != "gateway down" {
		t.Errorf("Expected last error to be kept, got %q", retried.LastError)
	}

	// A lock-held redelivery does not consume an attempt.
	if err := q.Retry(ctx, retried, 0, "", false); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if _, err := q.Promote(ctx, PendingSwap, 10); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	again, err := q.Dequeue(ctx, PendingSwap, 100*time.Millisecond)
	if err != nil || again == nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if again.Attempts != 1 {
		t.Errorf("Expected attempts to stay 1, got %d", again.Attempts)
	}
}

func TestDeadLetterAndReplay(t *testing.T) {
	q, _, _ := setupTestQueue(t)
	ctx := context.Background()

	envelope, err := q.Enqueue(ctx, SweepRequest, models.SweepRequestJob{SwapId: "swap-1"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	delivery, err := q.Dequeue(ctx, SweepRequest, 100*time.Millisecond)
	if err != nil || delivery == nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	if err := q.DeadLetter(ctx, delivery, "exhausted"); err != nil {
		t.Fatalf("DeadLetter failed: %v", err)
	}

	dead, err := q.ListDead(ctx, SweepRequest, 10)
	if err != nil {
		t.Fatalf("ListDead failed: %v", err)
	}
	if len(dead) != 1 || dead[0].Id != envelope.Id || dead[0].LastError != "exhausted" {
		t.Fatalf("Unexpected dead jobs: %+v", dead)
	}

	if err := q.Replay(ctx, SweepRequest, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := q.Replay(ctx, SweepRequest, envelope.Id); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	stats, err := q.Stats(ctx, SweepRequest)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Dead != 0 || stats.Ready != 1 || stats.Processing != 0 {
		t.Errorf("Expected job back on ready list, got %+v", stats)
	}

	replayed, err := q.Dequeue(ctx, SweepRequest, 100*time.Millisecond)
	if err != nil || replayed == nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if replayed.Attempts != 0 || replayed.LastError != "" {
		t.Errorf("Expected fresh attempt budget, got attempts=%d error=%q", replayed.Attempts, replayed.LastError)
	}
}

func TestRecover(t *testing.T) {
	q, _, _ := setupTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := q.Enqueue(ctx, PayoutRequest, models.PayoutRequestJob{SwapId: id}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if d, err := q.Dequeue(ctx, PayoutRequest, 100*time.Millisecond); err != nil || d == nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
	}

	recovered, err := q.Recover(ctx, PayoutRequest)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if recovered != 2 {
		t.Errorf("Expected 2 recovered jobs, got %d", recovered)
	}

	stats, err := q.Stats(ctx, PayoutRequest)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Ready != 2 || stats.Processing != 0 {
		t.Errorf("Expected jobs back on ready list, got %+v", stats)
	}
}

func TestMalformedEnvelopeIsParked(t *testing.T) {
	q, mr, _ := setupTestQueue(t)
	ctx := context.Background()

	if _, err := mr.Lpush("test:"+PendingSwap+":ready", "not json"); err != nil {
		t.Fatalf("Failed to seed list: %v", err)
	}

	delivery, err := q.Dequeue(ctx, PendingSwap, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if delivery != nil {
		t.Errorf("Expected malformed entry to be skipped")
	}

	dead, err := q.ListDead(ctx, PendingSwap, 10)
	if err != nil {
		t.Fatalf("ListDead failed: %v", err)
	}
	if len(dead) != 1 || dead[0].LastError == "" {
		t.Errorf("Expected malformed entry on dead list, got %+v", dead)
	}
}

func TestPartitionLock(t *testing.T) {
	q, _, _ := setupTestQueue(t)
	ctx := context.Background()

	token, ok, err := q.AcquireLock(ctx, "deposit:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}

	_, ok, err = q.AcquireLock(ctx, "deposit:1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if ok {
		t.Errorf("Expected second acquire to fail while held")
	}

	// A stale token must not release someone else's lock.
	if err := q.ReleaseLock(ctx, "deposit:1", "stale"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if _, ok, _ := q.AcquireLock(ctx, "deposit:1", time.Minute); ok {
		t.Errorf("Expected lock to survive a stale release")
	}

	if err := q.ReleaseLock(ctx, "deposit:1", token); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	if _, ok, _ := q.AcquireLock(ctx, "deposit:1", time.Minute); !ok {
		t.Errorf("Expected lock to be free after release")
	}
}
