package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"swap-settlement-go/internal/gateway"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
)

// SweepRequest moves a settled swap's proceeds from the user's sub-account
// to the master account.
type SweepRequest struct{ *Deps }

func (s *SweepRequest) Queue() string { return queue.SweepRequest }

func (s *SweepRequest) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.SweepRequestJob](payload)
	if err != nil {
		return nil, err
	}

	swap, err := s.Store.GetSwapById(ctx, job.SwapId)
	if err != nil {
		return nil, err
	}

	switch {
	case swap.State == models.SweepProcessing && swap.SweepId == "":
		return nil, fmt.Errorf("%w: sweep for swap %s was attempted but never recorded", ErrNeedsOperator, swap.Id)
	case swap.State.Reached(models.SweepProcessing) || swap.State == models.SweepFailed:
		return nil, fmt.Errorf("%w: swap %s already %s", store.ErrDuplicateEvent, swap.Id, swap.State)
	case swap.State != models.SwapSettled:
		return nil, fmt.Errorf("%w: swap %s is %s, not settled", store.ErrStateConflict, swap.Id, swap.State)
	}

	amount := swap.ReceivedAmount
	if !amount.IsPositive() {
		amount = swap.ToAmount
	}

	// The attempt is recorded before the exchange is called so a retry can
	// never send the same funds twice.
	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SwapSettled,
		To:     models.SweepProcessing,
		Update: store.SwapUpdate{SweepStatus: ptr(models.StatusPending)},
	})
	if err != nil {
		return nil, err
	}

	withdrawal, err := s.Exchange.CreateWithdrawal(ctx, swap.SubUserId, models.WithdrawalRequest{
		Currency:        s.Settlement.PayoutCurrency,
		Amount:          amount.String(),
		FundUid:         s.Settlement.MasterAccountId,
		TransactionNote: "swap settlement",
		Narration:       "swap " + swap.Id,
		Reference:       swap.Id + "-sweep",
	})
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			return nil, s.rejectSweep(ctx, swap, err)
		}
		return nil, fmt.Errorf("%w: sweep for swap %s has unknown outcome: %v", ErrNeedsOperator, swap.Id, err)
	}

	_, err = s.Store.RecordSwapReferences(ctx, swap.Id, models.SweepProcessing, store.SwapReferences{SweepId: withdrawal.Id})
	if err != nil {
		return nil, fmt.Errorf("%w: sweep %s for swap %s could not be recorded: %v", ErrNeedsOperator, withdrawal.Id, swap.Id, err)
	}

	zap.L().Info("Sweep requested",
		zap.String("swap_id", swap.Id),
		zap.String("sweep_id", withdrawal.Id),
		zap.String("amount", amount.String()),
		zap.String("currency", s.Settlement.PayoutCurrency))
	return nil, nil
}

// rejectSweep fails a sweep the exchange refused outright. The proceeds stay
// in the sub-account for an operator to move.
func (s *SweepRequest) rejectSweep(ctx context.Context, swap *models.Swap, cause error) error {
	_, err := s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SweepProcessing,
		To:     models.SweepFailed,
		Update: store.SwapUpdate{SweepStatus: ptr(models.StatusFailed)},
	})
	if err != nil {
		return fmt.Errorf("%w: sweep for swap %s rejected (%v) and not recorded: %v", ErrNeedsOperator, swap.Id, cause, err)
	}
	zap.L().Error("Sweep rejected by exchange, funds remain locked pending operator action",
		zap.String("swap_id", swap.Id),
		zap.Error(cause))
	s.notify(ctx, swap.ChatId, notifier.SweepRejected(swap.FromAmount.String(), swap.FromCurrency))
	return nil
}

// WithdrawalFinalization handles withdraw.* events. Withdrawals made by the
// master account are bank payouts; any other account is a sweep.
type WithdrawalFinalization struct{ *Deps }

func (s *WithdrawalFinalization) Queue() string { return queue.FinalizeSwap }

func (s *WithdrawalFinalization) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.WithdrawalJob](payload)
	if err != nil {
		return nil, err
	}

	if job.User.Id == s.Settlement.MasterAccountId {
		return s.finalizePayout(ctx, job)
	}
	return s.settleSweep(ctx, job)
}

func (s *WithdrawalFinalization) settleSweep(ctx context.Context, job models.WithdrawalJob) (*NextJob, error) {
	swap, err := s.Store.GetSwapBySweepId(ctx, job.Id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: sweep %s", ErrPrerequisitePending, job.Id)
		}
		return nil, err
	}

	if job.Rejected() {
		_, err := s.Store.AdvanceSwap(ctx, store.SwapTransition{
			SwapId: swap.Id,
			From:   models.SweepProcessing,
			To:     models.SweepFailed,
			Update: store.SwapUpdate{SweepStatus: ptr(models.StatusFailed)},
		})
		if err != nil {
			return nil, err
		}
		zap.L().Error("Sweep rejected, funds remain locked pending operator action",
			zap.String("swap_id", swap.Id),
			zap.String("sweep_id", job.Id))
		s.notify(ctx, swap.ChatId, notifier.SweepRejected(swap.FromAmount.String(), swap.FromCurrency))
		return nil, nil
	}

	next := &NextJob{Queue: queue.PayoutRequest, Job: models.PayoutRequestJob{SwapId: swap.Id}}
	switch {
	case swap.State == models.SweepSettled:
		return next, nil
	case swap.State.Reached(models.SweepSettled):
		return nil, fmt.Errorf("%w: swap %s already %s", store.ErrDuplicateEvent, swap.Id, swap.State)
	}

	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SweepProcessing,
		To:     models.SweepSettled,
		Update: store.SwapUpdate{SweepStatus: ptr(models.StatusSuccess)},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Sweep settled",
		zap.String("swap_id", swap.Id),
		zap.String("sweep_id", job.Id))
	return next, nil
}

func (s *WithdrawalFinalization) finalizePayout(ctx context.Context, job models.WithdrawalJob) (*NextJob, error) {
	swap, err := s.Store.GetSwapByWithdrawId(ctx, job.Id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: payout %s", ErrPrerequisitePending, job.Id)
		}
		return nil, err
	}

	if job.Rejected() {
		zap.L().Error("Bank payout rejected, manual review required",
			zap.String("swap_id", swap.Id),
			zap.String("withdraw_id", job.Id))
		return nil, fmt.Errorf("%w: payout %s for swap %s rejected", ErrValidation, job.Id, swap.Id)
	}

	movement := releaseMovement(swap)
	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId:   swap.Id,
		From:     models.PayoutProcessing,
		To:       models.SwapFinalized,
		Update:   store.SwapUpdate{Status: ptr(models.StatusSuccess)},
		Movement: movement,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Swap finalized",
		zap.String("swap_id", swap.Id),
		zap.String("withdraw_id", job.Id),
		zap.String("payout", swap.WithdrawAmount.String()))

	s.mirror(ctx, movement)
	s.notify(ctx, swap.ChatId, notifier.PayoutOnItsWay(swap.WithdrawAmount.String()))
	return nil, nil
}

// PayoutRequest pays the swap proceeds, less the fixed fee, to the user's
// bank account from the master account.
type PayoutRequest struct{ *Deps }

func (s *PayoutRequest) Queue() string { return queue.PayoutRequest }

func (s *PayoutRequest) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.PayoutRequestJob](payload)
	if err != nil {
		return nil, err
	}

	swap, err := s.Store.GetSwapById(ctx, job.SwapId)
	if err != nil {
		return nil, err
	}

	switch {
	case swap.State == models.PayoutProcessing && swap.WithdrawId == "":
		return nil, fmt.Errorf("%w: payout for swap %s was attempted but never recorded", ErrNeedsOperator, swap.Id)
	case swap.State.Reached(models.PayoutProcessing):
		return nil, fmt.Errorf("%w: swap %s already %s", store.ErrDuplicateEvent, swap.Id, swap.State)
	case swap.State != models.SweepSettled:
		return nil, fmt.Errorf("%w: swap %s is %s, sweep not settled", store.ErrStateConflict, swap.Id, swap.State)
	}

	bank, err := s.Store.GetBankAccount(ctx, swap.UserId)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("No bank account for payout",
				zap.String("swap_id", swap.Id),
				zap.String("user_id", swap.UserId))
			s.notify(ctx, swap.ChatId, notifier.MissingBankAccount())
		}
		return nil, err
	}

	payout := swap.ToAmount.Sub(s.Settlement.FixedFee)
	if !payout.IsPositive() {
		return nil, fmt.Errorf("%w: swap %s proceeds %s do not cover fee %s",
			ErrValidation, swap.Id, swap.ToAmount.String(), s.Settlement.FixedFee.String())
	}

	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SweepSettled,
		To:     models.PayoutProcessing,
		Update: store.SwapUpdate{WithdrawAmount: &payout},
	})
	if err != nil {
		return nil, err
	}

	withdrawal, err := s.Exchange.CreateBankWithdrawal(ctx, s.Settlement.PayoutCurrency, payout.String(),
		models.BankAccountDetails{
			AccountNumber: bank.AccountNumber,
			AccountName:   bank.AccountName,
			BankCode:      bank.BankCode,
		}, swap.Id+"-payout")
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			zap.L().Error("Bank payout rejected by exchange, manual review required",
				zap.String("swap_id", swap.Id),
				zap.Error(err))
		}
		return nil, fmt.Errorf("%w: payout for swap %s failed: %v", ErrNeedsOperator, swap.Id, err)
	}

	_, err = s.Store.RecordSwapReferences(ctx, swap.Id, models.PayoutProcessing, store.SwapReferences{WithdrawId: withdrawal.Id})
	if err != nil {
		return nil, fmt.Errorf("%w: payout %s for swap %s could not be recorded: %v", ErrNeedsOperator, withdrawal.Id, swap.Id, err)
	}

	zap.L().Info("Payout requested",
		zap.String("swap_id", swap.Id),
		zap.String("withdraw_id", withdrawal.Id),
		zap.String("payout", payout.String()),
		zap.String("fee", s.Settlement.FixedFee.String()))
	return nil, nil
}
