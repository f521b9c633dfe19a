package main

import (
	"context"
	"flag"
	"fmt"
	"slices"

	"swap-settlement-go/internal/common"
	"swap-settlement-go/internal/queue"

	"go.uber.org/zap"
)

func printQueue(ctx context.Context, q *queue.Queue, name string, limit int) {
	stats, err := q.Stats(ctx, name)
	if err != nil {
		zap.L().Error("Failed to read queue stats", zap.String("queue", name), zap.Error(err))
		return
	}
	fmt.Printf("\n┌─ %s\n", name)
	fmt.Printf("│  ready %d, delayed %d, processing %d, dead %d\n",
		stats.Ready, stats.Delayed, stats.Processing, stats.Dead)
	if stats.Dead == 0 {
		return
	}

	jobs, err := q.ListDead(ctx, name, limit)
	if err != nil {
		zap.L().Error("Failed to list dead jobs", zap.String("queue", name), zap.Error(err))
		return
	}
	common.PrintBoxSeparator(78)
	for i, job := range jobs {
		isLast := i == len(jobs)-1
		fmt.Printf("%s %s key=%s attempts=%d enqueued=%s\n",
			common.BoxPrefix(isLast), job.Id, job.Key, job.Attempts, job.EnqueuedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("%s    error: %s\n", common.BoxDetailPrefix(isLast), job.LastError)
		fmt.Printf("%s    payload: %s\n", common.BoxDetailPrefix(isLast), string(job.Payload))
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	queueFlag := flag.String("queue", "", "Limit to one queue (default: all)")
	limitFlag := flag.Int("limit", 20, "Dead jobs to show per queue")
	replayFlag := flag.String("replay", "", "Move the dead job with this id back to its queue (needs --queue)")
	flag.Parse()

	if *queueFlag != "" && !slices.Contains(queue.All, *queueFlag) {
		zap.L().Fatal("Unknown queue", zap.String("queue", *queueFlag), zap.Strings("known", queue.All))
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	client, err := common.NewRedisClient(cfg.Redis)
	if err != nil {
		zap.L().Fatal("Failed to create redis client", zap.Error(err))
	}
	defer client.Close()
	q := queue.New(client, cfg.Queue)

	if *replayFlag != "" {
		if *queueFlag == "" {
			zap.L().Fatal("--replay needs --queue")
		}
		if err := q.Replay(ctx, *queueFlag, *replayFlag); err != nil {
			zap.L().Fatal("Failed to replay job", zap.String("job_id", *replayFlag), zap.Error(err))
		}
		fmt.Printf("Job %s moved back to %s\n", *replayFlag, *queueFlag)
		return
	}

	names := queue.All
	if *queueFlag != "" {
		names = []string{*queueFlag}
	}

	common.PrintHeader("QUEUE REPORT", common.WideWidth)
	for _, name := range names {
		printQueue(ctx, q, name, *limitFlag)
	}
	common.PrintFooter(fmt.Sprintf("%d queues inspected", len(names)), common.WideWidth)
}
