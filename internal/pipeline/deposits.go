package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
)

// depositParams resolves the user and wallet a deposit event belongs to
func (d *Deps) depositParams(ctx context.Context, job models.DepositJob) (*models.User, store.CreateDepositParams, error) {
	user, err := d.resolveUser(ctx, job.User.Id)
	if err != nil {
		return nil, store.CreateDepositParams{}, err
	}

	wallet, err := d.Store.GetWallet(ctx, user.Id, job.Currency)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.CreateDepositParams{}, fmt.Errorf("%w: %s wallet for user %s", ErrPrerequisitePending, job.Currency, user.Id)
		}
		return nil, store.CreateDepositParams{}, err
	}

	return user, store.CreateDepositParams{
		DepositId: job.Id,
		UserId:    user.Id,
		WalletId:  wallet.Id,
		Currency:  job.Currency,
		Amount:    job.Amount,
		TxId:      job.TxId,
		Network:   job.PaymentAddress.Network,
	}, nil
}

// DepositConfirmation records a deposit seen on chain but not yet credited
type DepositConfirmation struct{ *Deps }

func (s *DepositConfirmation) Queue() string { return queue.DepositConfirmation }

func (s *DepositConfirmation) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.DepositJob](payload)
	if err != nil {
		return nil, err
	}

	user, params, err := s.depositParams(ctx, job)
	if err != nil {
		return nil, err
	}

	if _, err := s.Store.CreatePendingDeposit(ctx, params); err != nil {
		return nil, err
	}

	zap.L().Info("Deposit pending confirmation",
		zap.String("deposit_id", job.Id),
		zap.String("user_id", user.Id),
		zap.String("amount", job.Amount.String()),
		zap.String("currency", job.Currency))

	s.notify(ctx, user.ChatId, notifier.PendingDeposit(job.Amount.String(), job.Currency, job.PaymentAddress.Network, job.TxId))
	return nil, nil
}

// DepositSettlement credits a confirmed deposit exactly once
type DepositSettlement struct{ *Deps }

func (s *DepositSettlement) Queue() string { return queue.DepositSuccessful }

func (s *DepositSettlement) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.DepositJob](payload)
	if err != nil {
		return nil, err
	}

	user, params, err := s.depositParams(ctx, job)
	if err != nil {
		return nil, err
	}

	deposit, err := s.Store.SettleDeposit(ctx, params)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Deposit credited",
		zap.String("deposit_id", deposit.DepositId),
		zap.String("user_id", user.Id),
		zap.String("amount", deposit.Amount.String()),
		zap.String("currency", deposit.Currency))

	s.mirror(ctx, &store.BalanceMovement{
		UserId:         user.Id,
		Currency:       params.Currency,
		EntryType:      models.EntryDepositCredit,
		Reference:      "deposit:" + job.Id,
		AvailableDelta: job.Amount,
	})
	s.notify(ctx, user.ChatId, notifier.DepositComplete(job.Amount.String(), job.Currency, job.PaymentAddress.Network, job.TxId))
	return nil, nil
}
