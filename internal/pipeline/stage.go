package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"swap-settlement-go/internal/metrics"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
)

// Stage processes the jobs of one queue. Process must be safe to run more
// than once for the same payload.
type Stage interface {
	Queue() string
	Process(ctx context.Context, payload json.RawMessage) (*NextJob, error)
}

// NextJob is enqueued by the runner once Process has returned successfully
type NextJob struct {
	Queue string
	Job   models.Job
}

// Exchange is the subset of the gateway the stages call
type Exchange interface {
	FetchCurrencyWallet(ctx context.Context, subUserId, currency string) (*models.CurrencyWallet, error)
	CreatePaymentAddress(ctx context.Context, subUserId, currency, network string) (*models.PaymentAddress, error)
	RefreshSwapQuotation(ctx context.Context, subUserId, quotationId string, request models.SwapQuoteRequest) (*models.SwapQuotation, error)
	ConfirmSwapQuotation(ctx context.Context, subUserId, quotationId string) (*models.SwapTransaction, error)
	CreateWithdrawal(ctx context.Context, userId string, request models.WithdrawalRequest) (*models.Withdrawal, error)
	CreateBankWithdrawal(ctx context.Context, currency, amount string, bank models.BankAccountDetails, reference string) (*models.Withdrawal, error)
}

// Journal mirrors committed balance movements to an external ledger
type Journal interface {
	RecordMovement(ctx context.Context, movement store.BalanceMovement) error
}

type NopJournal struct{}

func (NopJournal) RecordMovement(context.Context, store.BalanceMovement) error { return nil }

// Deps is shared by every stage
type Deps struct {
	Store      store.LedgerStore
	Exchange   Exchange
	Notifier   notifier.Notifier
	Journal    Journal
	Metrics    *metrics.Metrics
	Settlement models.SettlementConfig
	Currencies []models.Currency
}

// Stages returns one stage per pipeline queue
func Stages(d *Deps) []Stage {
	if d.Journal == nil {
		d.Journal = NopJournal{}
	}
	if d.Notifier == nil {
		d.Notifier = notifier.LogNotifier{}
	}
	return []Stage{
		&WalletProvisioning{d},
		&AddressAssignment{d},
		&DepositConfirmation{d},
		&DepositSettlement{d},
		&SwapInitiation{d},
		&SwapSettlement{d},
		&SwapFailure{d},
		&SweepRequest{d},
		&WithdrawalFinalization{d},
		&PayoutRequest{d},
	}
}

// decode unmarshals and validates a job payload
func decode[T models.Job](payload json.RawMessage) (T, error) {
	var job T
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("%w: malformed payload: %v", ErrValidation, err)
	}
	if err := job.Validate(); err != nil {
		return job, err
	}
	return job, nil
}

// resolveUser maps an exchange sub-user id to the local user
func (d *Deps) resolveUser(ctx context.Context, subUserId string) (*models.User, error) {
	user, err := d.Store.GetUserBySubUserId(ctx, subUserId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: sub user %s", ErrUnknownUser, subUserId)
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return user, nil
}

// mirror records a committed movement in the journal. Failures never affect
// the pipeline; the local ledger is authoritative.
func (d *Deps) mirror(ctx context.Context, movement *store.BalanceMovement) {
	if movement == nil || d.Journal == nil {
		return
	}
	if err := d.Journal.RecordMovement(ctx, *movement); err != nil {
		d.Metrics.ObserveJournalError()
		zap.L().Warn("Failed to mirror balance movement",
			zap.String("reference", movement.Reference),
			zap.Error(err))
	}
}

func (d *Deps) notify(ctx context.Context, chatId, message string) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Send(ctx, chatId, message)
}

func ptr[T any](v T) *T { return &v }
