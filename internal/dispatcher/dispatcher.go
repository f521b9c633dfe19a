package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"swap-settlement-go/internal/metrics"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/queue"

	"go.uber.org/zap"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event")
)

var routes = map[string]string{
	models.EventAddressGenerated:    queue.AssignWalletAddress,
	models.EventDepositConfirmation: queue.DepositConfirmation,
	models.EventDepositSuccessful:   queue.DepositSuccessful,
	models.EventSwapCompleted:       queue.SuccessfulSwap,
	models.EventSwapReversed:        queue.FailedSwap,
	models.EventSwapFailed:          queue.FailedSwap,
	models.EventWithdrawSuccessful:  queue.FinalizeSwap,
	models.EventWithdrawRejected:    queue.FinalizeSwap,
}

// Route maps an exchange event type to the queue that handles it
func Route(event string) (string, bool) {
	name, ok := routes[event]
	return name, ok
}

// Enqueuer is implemented by queue.Queue
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, job models.Job) (*queue.Envelope, error)
}

type Dispatcher struct {
	queue   Enqueuer
	metrics *metrics.Metrics
}

func New(q Enqueuer, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{queue: q, metrics: m}
}

// Dispatch decodes a webhook body into its job and enqueues it. Unknown and
// malformed events are reported with ErrUnknownEvent and ErrMalformedEvent
// and never reach a queue; any other error comes from the queue itself.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (*queue.Envelope, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.metrics.ObserveWebhook("", "malformed")
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	name, ok := Route(event.Event)
	if !ok {
		zap.L().Info("Ignoring unrouted webhook event", zap.String("event", event.Event))
		d.metrics.ObserveWebhook(event.Event, "unknown")
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Event)
	}

	job, err := decodeJob(event)
	if err != nil {
		zap.L().Warn("Rejecting malformed webhook event",
			zap.String("event", event.Event),
			zap.Error(err))
		d.metrics.ObserveWebhook(event.Event, "malformed")
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	envelope, err := d.queue.Enqueue(ctx, name, job)
	if err != nil {
		d.metrics.ObserveWebhook(event.Event, "enqueue_failed")
		return nil, fmt.Errorf("failed to enqueue %s: %w", event.Event, err)
	}

	zap.L().Info("Webhook event dispatched",
		zap.String("event", event.Event),
		zap.String("queue", name),
		zap.String("job_id", envelope.Id),
		zap.String("key", envelope.Key))
	d.metrics.ObserveWebhook(event.Event, "routed")
	return envelope, nil
}

func decodeJob(event models.WebhookEvent) (models.Job, error) {
	if len(event.Data) == 0 {
		return nil, errors.New("missing data")
	}

	var job models.Job
	switch event.Event {
	case models.EventAddressGenerated:
		var j models.AddressGeneratedJob
		if err := json.Unmarshal(event.Data, &j); err != nil {
			return nil, err
		}
		job = j

	case models.EventDepositConfirmation, models.EventDepositSuccessful:
		var j models.DepositJob
		if err := json.Unmarshal(event.Data, &j); err != nil {
			return nil, err
		}
		job = j

	case models.EventSwapCompleted, models.EventSwapReversed, models.EventSwapFailed:
		var j models.SwapTransactionJob
		if err := json.Unmarshal(event.Data, &j); err != nil {
			return nil, err
		}
		j.Event = event.Event
		job = j

	case models.EventWithdrawSuccessful, models.EventWithdrawRejected:
		var j models.WithdrawalJob
		if err := json.Unmarshal(event.Data, &j); err != nil {
			return nil, err
		}
		j.Event = event.Event
		job = j

	default:
		return nil, fmt.Errorf("no decoder for %s", event.Event)
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}
