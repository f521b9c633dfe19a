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

func reserveMovement(swap *models.Swap) *store.BalanceMovement {
	return &store.BalanceMovement{
		UserId:         swap.UserId,
		Currency:       swap.FromCurrency,
		EntryType:      models.EntrySwapReserve,
		Reference:      "swap:" + swap.Id + ":reserve",
		AvailableDelta: swap.FromAmount.Neg(),
		LockedDelta:    swap.FromAmount,
	}
}

func unlockMovement(swap *models.Swap) *store.BalanceMovement {
	return &store.BalanceMovement{
		UserId:         swap.UserId,
		Currency:       swap.FromCurrency,
		EntryType:      models.EntrySwapUnlock,
		Reference:      "swap:" + swap.Id + ":unlock",
		AvailableDelta: swap.FromAmount,
		LockedDelta:    swap.FromAmount.Neg(),
	}
}

func releaseMovement(swap *models.Swap) *store.BalanceMovement {
	return &store.BalanceMovement{
		UserId:      swap.UserId,
		Currency:    swap.FromCurrency,
		EntryType:   models.EntrySwapRelease,
		Reference:   "swap:" + swap.Id + ":release",
		LockedDelta: swap.FromAmount.Neg(),
	}
}

// SwapInitiation executes an approved swap at the exchange and reserves the
// user's funds.
type SwapInitiation struct{ *Deps }

func (s *SwapInitiation) Queue() string { return queue.PendingSwap }

func (s *SwapInitiation) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.SwapInitiationJob](payload)
	if err != nil {
		return nil, err
	}

	swap, err := s.Store.GetSwapById(ctx, job.SwapId)
	if err != nil {
		return nil, err
	}

	if swap.State != models.SwapAwaitingApproval {
		if swap.State.Reached(models.SwapProcessing) || swap.State.IsFailed() {
			return nil, fmt.Errorf("%w: swap %s already %s", store.ErrDuplicateEvent, swap.Id, swap.State)
		}
		return nil, fmt.Errorf("%w: swap %s is %s, not awaiting approval", ErrValidation, swap.Id, swap.State)
	}

	wallet, err := s.Store.GetWallet(ctx, swap.UserId, swap.FromCurrency)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.failSwap(ctx, swap, "no wallet")
			return nil, fmt.Errorf("%w: no %s wallet for swap %s", ErrValidation, swap.FromCurrency, swap.Id)
		}
		return nil, err
	}
	if !swap.FromAmount.IsPositive() || swap.FromAmount.GreaterThan(wallet.Balance) {
		s.failSwap(ctx, swap, "insufficient balance")
		s.notify(ctx, swap.ChatId, notifier.InsufficientBalance(swap.FromAmount.String(), swap.FromCurrency, wallet.Balance.String()))
		return nil, fmt.Errorf("%w: swap %s of %s exceeds available %s",
			ErrValidation, swap.Id, swap.FromAmount.String(), wallet.Balance.String())
	}

	request := models.SwapQuoteRequest{
		FromCurrency: swap.FromCurrency,
		ToCurrency:   swap.ToCurrency,
		FromAmount:   swap.FromAmount.String(),
	}
	if _, err := s.Exchange.RefreshSwapQuotation(ctx, swap.SubUserId, swap.QuotationId, request); err != nil {
		return nil, s.gatewayFailure(ctx, swap, err)
	}

	transaction, err := s.Exchange.ConfirmSwapQuotation(ctx, swap.SubUserId, swap.QuotationId)
	if err != nil {
		return nil, s.gatewayFailure(ctx, swap, err)
	}

	movement := reserveMovement(swap)
	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SwapAwaitingApproval,
		To:     models.SwapProcessing,
		Update: store.SwapUpdate{
			SwapTransactionId: ptr(transaction.Id),
			SwapStatus:        ptr(models.StatusPending),
		},
		Movement: movement,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) {
			// The exchange has already executed the swap; this needs an operator.
			zap.L().Error("Swap confirmed but funds could not be reserved",
				zap.String("swap_id", swap.Id),
				zap.String("swap_transaction_id", transaction.Id),
				zap.Error(err))
			s.failSwap(ctx, swap, "reservation failed")
		}
		return nil, err
	}

	zap.L().Info("Swap processing",
		zap.String("swap_id", swap.Id),
		zap.String("swap_transaction_id", transaction.Id),
		zap.String("from_amount", swap.FromAmount.String()),
		zap.String("from_currency", swap.FromCurrency))

	s.mirror(ctx, movement)
	s.notify(ctx, swap.ChatId, notifier.SwapApproved(swap.FromAmount.String(), swap.FromCurrency))
	return nil, nil
}

// gatewayFailure marks the swap failed when the exchange refuses it. No
// funds are reserved yet, so nothing needs unlocking. A refusal on a retry
// may mean an earlier attempt already confirmed the quotation, so the swap is
// left untouched for an operator.
func (s *SwapInitiation) gatewayFailure(ctx context.Context, swap *models.Swap, err error) error {
	if !errors.Is(err, gateway.ErrRejected) {
		return err
	}
	if jc := models.GetJobContext(ctx); jc != nil && jc.Attempt > 1 {
		zap.L().Error("Swap refused on retry, earlier attempt may have executed",
			zap.String("swap_id", swap.Id),
			zap.Int("attempt", jc.Attempt),
			zap.Error(err))
		return fmt.Errorf("%w: swap %s refused on attempt %d: %v", ErrNeedsOperator, swap.Id, jc.Attempt, err)
	}
	s.failSwap(ctx, swap, err.Error())
	s.notify(ctx, swap.ChatId, notifier.FailedSwap(swap.FromAmount.String(), swap.FromCurrency))
	return err
}

func (s *SwapInitiation) failSwap(ctx context.Context, swap *models.Swap, reason string) {
	_, err := s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SwapAwaitingApproval,
		To:     models.SwapFailed,
		Update: store.SwapUpdate{
			Status:     ptr(models.StatusFailed),
			SwapStatus: ptr(models.StatusFailed),
		},
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateEvent) {
		zap.L().Error("Failed to mark swap failed", zap.String("swap_id", swap.Id), zap.Error(err))
		return
	}
	zap.L().Warn("Swap failed before execution",
		zap.String("swap_id", swap.Id),
		zap.String("reason", reason))
}

// SwapSettlement records a completed exchange swap and requests the sweep
type SwapSettlement struct{ *Deps }

func (s *SwapSettlement) Queue() string { return queue.SuccessfulSwap }

func (s *SwapSettlement) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.SwapTransactionJob](payload)
	if err != nil {
		return nil, err
	}

	swap, err := s.Store.GetSwapBySwapTransactionId(ctx, job.Id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: swap transaction %s", ErrPrerequisitePending, job.Id)
		}
		return nil, err
	}

	next := &NextJob{Queue: queue.SweepRequest, Job: models.SweepRequestJob{SwapId: swap.Id}}
	switch {
	case swap.State == models.SwapSettled:
		// Settled but the sweep may never have been enqueued.
		return next, nil
	case swap.State.Reached(models.SwapSettled):
		return nil, fmt.Errorf("%w: swap %s already %s", store.ErrDuplicateEvent, swap.Id, swap.State)
	}

	received := job.ReceivedAmount
	if !received.IsPositive() {
		received = swap.ToAmount
	}

	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SwapProcessing,
		To:     models.SwapSettled,
		Update: store.SwapUpdate{
			SwapStatus:     ptr(models.StatusSuccess),
			ReceivedAmount: &received,
		},
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Swap settled",
		zap.String("swap_id", swap.Id),
		zap.String("swap_transaction_id", job.Id),
		zap.String("received_amount", received.String()))

	s.notify(ctx, swap.ChatId, notifier.SwapCompleted(swap.FromAmount.String(), swap.FromCurrency))
	return next, nil
}

// SwapFailure returns reserved funds when the exchange reverses or fails a swap
type SwapFailure struct{ *Deps }

func (s *SwapFailure) Queue() string { return queue.FailedSwap }

func (s *SwapFailure) Process(ctx context.Context, payload json.RawMessage) (*NextJob, error) {
	job, err := decode[models.SwapTransactionJob](payload)
	if err != nil {
		return nil, err
	}

	swap, err := s.Store.GetSwapBySwapTransactionId(ctx, job.Id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: swap transaction %s", ErrPrerequisitePending, job.Id)
		}
		return nil, err
	}

	switch {
	case swap.State == models.SwapFailed:
		return nil, fmt.Errorf("%w: swap %s already failed", store.ErrDuplicateEvent, swap.Id)
	case swap.State != models.SwapProcessing:
		zap.L().Error("Swap failure event for swap past execution, manual review required",
			zap.String("swap_id", swap.Id),
			zap.String("state", string(swap.State)),
			zap.String("event", job.Event))
		return nil, fmt.Errorf("%w: swap %s is %s", store.ErrStateConflict, swap.Id, swap.State)
	}

	movement := unlockMovement(swap)
	_, err = s.Store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SwapProcessing,
		To:     models.SwapFailed,
		Update: store.SwapUpdate{
			Status:     ptr(models.StatusFailed),
			SwapStatus: ptr(models.StatusFailed),
		},
		Movement: movement,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Swap failed, funds unlocked",
		zap.String("swap_id", swap.Id),
		zap.String("event", job.Event),
		zap.String("amount", swap.FromAmount.String()))

	s.mirror(ctx, movement)
	s.notify(ctx, swap.ChatId, notifier.FailedSwap(swap.FromAmount.String(), swap.FromCurrency))
	return nil, nil
}
