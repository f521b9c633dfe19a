package pipeline

import (
	"errors"

	"swap-settlement-go/internal/gateway"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/store"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnknownUser         = errors.New("unknown user")
	ErrPrerequisitePending = errors.New("prerequisite not yet recorded")
	// ErrNeedsOperator marks a job whose effect at the exchange is unknown or
	// whose money cannot be booked. It is dead-lettered without retrying.
	ErrNeedsOperator = errors.New("operator action required")
)

// Outcome is what the runner does with a processed job
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeDuplicate
	OutcomeDrop
	OutcomeRetry
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDrop:
		return "drop"
	case OutcomeDeadLetter:
		return "dead_letter"
	default:
		return "retry"
	}
}

// Classify maps a stage error to a runner outcome. Terminal errors are
// dropped, transient and unknown ones are retried. Amounts the ledger cannot
// hold go straight to the dead list so that no deposit is lost.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, ErrNeedsOperator),
		errors.Is(err, store.ErrAmountPrecision):
		return OutcomeDeadLetter
	case errors.Is(err, store.ErrDuplicateEvent):
		return OutcomeDuplicate
	case errors.Is(err, ErrPrerequisitePending),
		errors.Is(err, gateway.ErrTransient):
		return OutcomeRetry
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, ErrUnknownUser),
		errors.Is(err, ErrValidation),
		errors.Is(err, models.ErrInvalidJob),
		errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, store.ErrStateConflict),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, gateway.ErrRejected):
		return OutcomeDrop
	default:
		return OutcomeRetry
	}
}
