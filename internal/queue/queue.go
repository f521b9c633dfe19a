package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"swap-settlement-go/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a dead-lettered job cannot be located.
var ErrNotFound = errors.New("job not found")

// Envelope is the stored form of a job. Payload is the job's JSON.
type Envelope struct {
	Id         string          `json:"id"`
	Queue      string          `json:"queue"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Key        string          `json:"key"`
	LastError  string          `json:"last_error,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// Delivery is an envelope taken off the ready list. raw is the exact
// processing-list member so it can be removed on ack.
type Delivery struct {
	Envelope
	raw string
}

// Stats reports the size of each list backing a queue
type Stats struct {
	Ready      int64
	Delayed    int64
	Processing int64
	Dead       int64
}

// Queue is a durable job queue on Redis lists. Ready jobs move atomically
// into a per-worker processing list and stay there until acked, retried or
// dead-lettered, so a crashed worker's jobs are recovered on restart.
type Queue struct {
	client   redis.UniversalClient
	prefix   string
	workerId string
	now      func() time.Time
}

// promoteScript moves due members of the delayed set onto the ready list.
var promoteScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, item in ipairs(items) do
	redis.call('ZREM', KEYS[1], item)
	redis.call('LPUSH', KEYS[2], item)
end
return #items
`)

// releaseScript deletes a lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func New(client redis.UniversalClient, cfg models.QueueConfig) *Queue {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "settlement"
	}
	workerId := cfg.WorkerId
	if workerId == "" {
		workerId = "worker-0"
	}
	return &Queue{
		client:   client,
		prefix:   prefix,
		workerId: workerId,
		now:      time.Now,
	}
}

func (q *Queue) readyKey(queue string) string { return q.prefix + ":" + queue + ":ready" }
func (q *Queue) delayedKey(queue string) string { return q.prefix + ":" + queue + ":delayed" }
func (q *Queue) deadKey(queue string) string { return q.prefix + ":" + queue + ":dead" }
func (q *Queue) lockKey(partition string) string { return q.prefix + ":lock:" + partition }
func (q *Queue) processingKey(queue string) string {
	return q.prefix + ":" + queue + ":processing:" + q.workerId
}

// Enqueue validates and stores a job on the ready list
func (q *Queue) Enqueue(ctx context.Context, queue string, job models.Job) (*Envelope, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	envelope := Envelope{
		Id:         uuid.New().String(),
		Queue:      queue,
		EnqueuedAt: q.now().UTC(),
		Key:        job.PartitionKey(),
		Payload:    payload,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := q.client.LPush(ctx, q.readyKey(queue), raw).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job on %s: %w", queue, err)
	}

	zap.L().Debug("Job enqueued",
		zap.String("queue", queue),
		zap.String("job_id", envelope.Id),
		zap.String("key", envelope.Key))
	return &envelope, nil
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when
// nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.readyKey(queue), q.processingKey(queue), "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue from %s: %w", queue, err)
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		// Unreadable entries can never succeed; park them with the error.
		zap.L().Error("Discarding malformed envelope", zap.String("queue", queue), zap.Error(err))
		quoted, _ := json.Marshal(raw)
		bad := Envelope{Id: uuid.New().String(), Queue: queue, LastError: err.Error(), Payload: quoted}
		badRaw, _ := json.Marshal(bad)
		_, pipeErr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processingKey(queue), 1, raw)
			pipe.LPush(ctx, q.deadKey(queue), badRaw)
			return nil
		})
		if pipeErr != nil {
			return nil, fmt.Errorf("failed to park malformed envelope: %w", pipeErr)
		}
		return nil, nil
	}
	if envelope.Queue == "" {
		envelope.Queue = queue
	}

	return &Delivery{Envelope: envelope, raw: raw}, nil
}

// Ack removes a finished job from the processing list
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processingKey(d.Queue), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.Id, err)
	}
	return nil
}

// Retry schedules the job again after delay. countAttempt is false when the
// job never ran, e.g. because its partition lock was held.
func (q *Queue) Retry(ctx context.Context, d *Delivery, delay time.Duration, lastError string, countAttempt bool) error {
	next := d.Envelope
	if countAttempt {
		next.Attempts++
	}
	if lastError != "" {
		next.LastError = lastError
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	due := q.now().Add(delay).UnixMilli()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(d.Queue), 1, d.raw)
		pipe.ZAdd(ctx, q.delayedKey(d.Queue), redis.Z{Score: float64(due), Member: string(raw)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry of job %s: %w", d.Id, err)
	}
	return nil
}

// DeadLetter moves the job to the dead list with its last error
func (q *Queue) DeadLetter(ctx context.Context, d *Delivery, lastError string) error {
	dead := d.Envelope
	dead.Attempts++
	dead.LastError = lastError
	raw, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(d.Queue), 1, d.raw)
		pipe.LPush(ctx, q.deadKey(d.Queue), string(raw))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", d.Id, err)
	}

	zap.L().Warn("Job dead-lettered",
		zap.String("queue", d.Queue),
		zap.String("job_id", d.Id),
		zap.Int("attempts", dead.Attempts),
		zap.String("last_error", lastError))
	return nil
}

// Promote moves up to limit due delayed jobs back to the ready list
func (q *Queue) Promote(ctx context.Context, queue string, limit int) (int, error) {
	moved, err := promoteScript.Run(ctx, q.client,
		[]string{q.delayedKey(queue), q.readyKey(queue)},
		q.now().UnixMilli(), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs on %s: %w", queue, err)
	}
	return moved, nil
}

// Recover returns jobs left in this worker's processing list by a previous
// run to the ready list. Call before any worker starts dequeuing.
func (q *Queue) Recover(ctx context.Context, queue string) (int, error) {
	recovered := 0
	for {
		_, err := q.client.LMove(ctx, q.processingKey(queue), q.readyKey(queue), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover jobs on %s: %w", queue, err)
		}
		recovered++
	}

	if recovered > 0 {
		zap.L().Info("Recovered in-flight jobs",
			zap.String("queue", queue),
			zap.String("worker_id", q.workerId),
			zap.Int("count", recovered))
	}
	return recovered, nil
}

// AcquireLock takes the partition lock for ttl. It returns a token to pass to
// ReleaseLock, or ok=false when another worker holds it.
func (q *Queue) AcquireLock(ctx context.Context, partition string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := q.client.SetNX(ctx, q.lockKey(partition), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", partition, err)
	}
	return token, ok, nil
}

func (q *Queue) ReleaseLock(ctx context.Context, partition, token string) error {
	if err := releaseScript.Run(ctx, q.client, []string{q.lockKey(partition)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", partition, err)
	}
	return nil
}

// ListDead returns up to limit dead-lettered jobs, newest first
func (q *Queue) ListDead(ctx context.Context, queue string, limit int) ([]Envelope, error) {
	raws, err := q.client.LRange(ctx, q.deadKey(queue), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs on %s: %w", queue, err)
	}

	envelopes := make([]Envelope, 0, len(raws))
	for _, raw := range raws {
		var envelope Envelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			zap.L().Warn("Skipping unreadable dead job", zap.String("queue", queue), zap.Error(err))
			continue
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

// Replay moves a dead-lettered job back to the ready list with a fresh
// attempt budget.
func (q *Queue) Replay(ctx context.Context, queue, jobId string) error {
	raws, err := q.client.LRange(ctx, q.deadKey(queue), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read dead jobs on %s: %w", queue, err)
	}

	for _, raw := range raws {
		var envelope Envelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil || envelope.Id != jobId {
			continue
		}

		envelope.Attempts = 0
		envelope.LastError = ""
		replayed, err := json.Marshal(envelope)
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}

		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.deadKey(queue), 1, raw)
			pipe.LPush(ctx, q.readyKey(queue), string(replayed))
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to replay job %s: %w", jobId, err)
		}

		zap.L().Info("Dead job replayed", zap.String("queue", queue), zap.String("job_id", jobId))
		return nil
	}

	return fmt.Errorf("%w: %s on %s", ErrNotFound, jobId, queue)
}

func (q *Queue) Stats(ctx context.Context, queue string) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey(queue))
	delayed := pipe.ZCard(ctx, q.delayedKey(queue))
	processing := pipe.LLen(ctx, q.processingKey(queue))
	dead := pipe.LLen(ctx, q.deadKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read stats for %s: %w", queue, err)
	}
	return Stats{
		Ready:      ready.Val(),
		Delayed:    delayed.Val(),
		Processing: processing.Val(),
		Dead:       dead.Val(),
	}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
