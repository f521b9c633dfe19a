package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"swap-settlement-go/internal/metrics"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/queue"

	"go.uber.org/zap"
)

const promoteBatch = 100

// Runner feeds one stage from its queue with a pool of workers
type Runner struct {
	queue   *queue.Queue
	stage   Stage
	cfg     models.QueueConfig
	metrics *metrics.Metrics

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewRunner(q *queue.Queue, stage Stage, cfg models.QueueConfig, m *metrics.Metrics) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = time.Second
	}

	return &Runner{
		queue:    q,
		stage:    stage,
		cfg:      cfg,
		metrics:  m,
		stopChan: make(chan struct{}),
	}
}

// Start recovers this worker's in-flight jobs and launches the workers
func (r *Runner) Start(ctx context.Context) error {
	name := r.stage.Queue()

	if _, err := r.queue.Recover(ctx, name); err != nil {
		return fmt.Errorf("failed to recover %s: %w", name, err)
	}

	for i := 0; i < r.cfg.Concurrency; i++ {
		r.wg.Add(1)
		go r.workLoop(ctx)
	}

	r.wg.Add(1)
	go r.promoteLoop(ctx)

	zap.L().Info("Stage runner started",
		zap.String("queue", name),
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.Int("max_attempts", r.cfg.MaxAttempts))
	return nil
}

// Stop waits for in-flight jobs to finish. Workers notice the stop between
// jobs, so it can take up to one poll timeout.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
		zap.L().Info("Stage runner stopped", zap.String("queue", r.stage.Queue()))
	})
}

func (r *Runner) stopped(ctx context.Context) bool {
	select {
	case <-r.stopChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Runner) workLoop(ctx context.Context) {
	defer r.wg.Done()

	for !r.stopped(ctx) {
		if _, err := r.poll(ctx); err != nil {
			zap.L().Error("Failed to poll queue",
				zap.String("queue", r.stage.Queue()),
				zap.Error(err))

			select {
			case <-time.After(r.cfg.BackoffBase):
			case <-r.stopChan:
			case <-ctx.Done():
			}
		}
	}
}

func (r *Runner) promoteLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.promote(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) promote(ctx context.Context) {
	name := r.stage.Queue()
	if _, err := r.queue.Promote(ctx, name, promoteBatch); err != nil {
		zap.L().Error("Failed to promote delayed jobs", zap.String("queue", name), zap.Error(err))
		return
	}

	stats, err := r.queue.Stats(ctx, name)
	if err != nil {
		zap.L().Debug("Failed to read queue stats", zap.String("queue", name), zap.Error(err))
		return
	}
	r.metrics.SetQueueDepth(name, "ready", stats.Ready)
	r.metrics.SetQueueDepth(name, "delayed", stats.Delayed)
	r.metrics.SetQueueDepth(name, "processing", stats.Processing)
	r.metrics.SetQueueDepth(name, "dead", stats.Dead)
}

// poll takes at most one job and handles it. It reports whether a job was
// taken.
func (r *Runner) poll(ctx context.Context) (bool, error) {
	delivery, err := r.queue.Dequeue(ctx, r.stage.Queue(), r.cfg.PollTimeout)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, r.handle(ctx, delivery)
}

func (r *Runner) handle(ctx context.Context, d *queue.Delivery) error {
	name := r.stage.Queue()
	logger := zap.L().With(
		zap.String("queue", name),
		zap.String("job_id", d.Id),
		zap.String("key", d.Key),
		zap.Int("attempt", d.Attempts+1))

	if d.Key != "" {
		token, ok, err := r.queue.AcquireLock(ctx, d.Key, r.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug("Entity locked, re-delaying job")
			r.metrics.ObserveLockContention(name)
			return r.queue.Retry(ctx, d, r.cfg.BackoffBase, "", false)
		}
		defer func() {
			if err := r.queue.ReleaseLock(context.WithoutCancel(ctx), d.Key, token); err != nil {
				logger.Warn("Failed to release entity lock", zap.Error(err))
			}
		}()
	}

	jobCtx := models.WithJobContext(ctx, &models.JobContext{
		JobId:      d.Id,
		Queue:      name,
		Attempt:    d.Attempts + 1,
		EnqueuedAt: d.EnqueuedAt,
	})

	start := time.Now()
	next, err := r.stage.Process(jobCtx, d.Payload)
	outcome := Classify(err)

	if (outcome == OutcomeAck || outcome == OutcomeDuplicate) && next != nil {
		if _, enqueueErr := r.queue.Enqueue(ctx, next.Queue, next.Job); enqueueErr != nil {
			// The stage re-emits the next job when it sees its own state again.
			outcome = OutcomeRetry
			err = fmt.Errorf("failed to enqueue next job on %s: %w", next.Queue, enqueueErr)
		}
	}
	r.metrics.ObserveJob(name, outcome.String(), time.Since(start))

	switch outcome {
	case OutcomeAck:
		logger.Info("Job processed", zap.Duration("duration", time.Since(start)))
		return r.queue.Ack(ctx, d)

	case OutcomeDuplicate:
		logger.Info("Duplicate event, already applied", zap.String("reason", err.Error()))
		return r.queue.Ack(ctx, d)

	case OutcomeDrop:
		logger.Warn("Dropping job with terminal error", zap.Error(err))
		return r.queue.Ack(ctx, d)

	case OutcomeDeadLetter:
		logger.Error("Job needs operator action, dead-lettering", zap.Error(err))
		return r.queue.DeadLetter(ctx, d, err.Error())

	default:
		if d.Attempts+1 >= r.cfg.MaxAttempts {
			logger.Error("Job exhausted retries", zap.Error(err))
			return r.queue.DeadLetter(ctx, d, err.Error())
		}
		delay := r.backoff(d.Attempts)
		logger.Warn("Job failed, retrying",
			zap.Duration("delay", delay),
			zap.Error(err))
		return r.queue.Retry(ctx, d, delay, err.Error(), true)
	}
}

// backoff doubles from BackoffBase per previous attempt, capped at BackoffMax
func (r *Runner) backoff(attempts int) time.Duration {
	delay := r.cfg.BackoffBase
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= r.cfg.BackoffMax {
			return r.cfg.BackoffMax
		}
	}
	return delay
}
