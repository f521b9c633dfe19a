package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// QuoteSwap prices a swap of fromAmount into the payout currency and records
// it for approval. Funds are not reserved until the swap executes.
func (s *LedgerService) QuoteSwap(ctx context.Context, userId, fromCurrency string, fromAmount decimal.Decimal) (*models.SwapQuoteSummary, error) {
	fromCurrency = strings.ToLower(strings.TrimSpace(fromCurrency))
	if userId == "" || fromCurrency == "" || !fromAmount.IsPositive() {
		return nil, fmt.Errorf("%w: user, currency and a positive amount are required", ErrInvalidRequest)
	}

	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	wallet, err := s.store.GetWallet(ctx, user.Id, fromCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s wallet: %w", fromCurrency, err)
	}
	if fromAmount.GreaterThan(wallet.Balance) {
		return nil, fmt.Errorf("%w: %s %s requested, %s available",
			store.ErrInsufficientBalance, fromAmount.String(), fromCurrency, wallet.Balance.String())
	}

	quotation, err := s.gateway.CreateSwapQuotation(ctx, user.SubUserId, models.SwapQuoteRequest{
		FromCurrency: fromCurrency,
		ToCurrency:   s.settlement.PayoutCurrency,
		FromAmount:   fromAmount.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to quote swap: %w", err)
	}

	payout := quotation.ToAmount.Sub(s.settlement.FixedFee)
	if !payout.IsPositive() {
		return nil, fmt.Errorf("%w: %s %s after a fee of %s",
			ErrFeeExceedsPayout, quotation.ToAmount.String(), s.settlement.PayoutCurrency, s.settlement.FixedFee.String())
	}

	swap, err := s.store.CreateSwap(ctx, store.CreateSwapParams{
		UserId:       user.Id,
		QuotationId:  quotation.Id,
		FromCurrency: fromCurrency,
		ToCurrency:   s.settlement.PayoutCurrency,
		FromAmount:   fromAmount,
		ToAmount:     quotation.ToAmount,
		QuotedPrice:  quotation.QuotedPrice,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// The exchange handed back a quotation that is already recorded.
		swap, err = s.store.GetSwapByQuotationId(ctx, quotation.Id)
		if err == nil && (swap.UserId != user.Id || swap.State != models.SwapQuoted) {
			err = fmt.Errorf("%w: quotation %s already used by swap %s", store.ErrAlreadyExists, quotation.Id, swap.Id)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record swap: %w", err)
	}

	return &models.SwapQuoteSummary{
		SwapId:       swap.Id,
		FromCurrency: swap.FromCurrency,
		FromAmount:   swap.FromAmount,
		ToCurrency:   swap.ToCurrency,
		ToAmount:     swap.ToAmount,
		QuotedPrice:  swap.QuotedPrice,
		Fee:          s.settlement.FixedFee,
		Payout:       payout,
	}, nil
}

// ApproveSwap moves a quoted swap to awaiting approval and queues its
// execution. Approving twice queues it again; the stage ignores the repeat.
func (s *LedgerService) ApproveSwap(ctx context.Context, userId, swapId string) (*models.Swap, error) {
	swap, err := s.store.GetSwapById(ctx, swapId)
	if err != nil {
		return nil, fmt.Errorf("failed to load swap: %w", err)
	}
	if swap.UserId != userId {
		return nil, fmt.Errorf("%w: swap %s", store.ErrNotFound, swapId)
	}

	advanced, err := s.store.AdvanceSwap(ctx, store.SwapTransition{
		SwapId: swap.Id,
		From:   models.SwapQuoted,
		To:     models.SwapAwaitingApproval,
	})
	switch {
	case err == nil:
		swap = advanced
	case errors.Is(err, store.ErrDuplicateEvent):
		if swap.State != models.SwapAwaitingApproval {
			return swap, nil
		}
	default:
		return nil, fmt.Errorf("failed to approve swap: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.PendingSwap, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		return nil, fmt.Errorf("failed to queue swap: %w", err)
	}

	zap.L().Info("Swap approved",
		zap.String("swap_id", swap.Id),
		zap.String("user_id", userId),
		zap.String("from_amount", swap.FromAmount.String()),
		zap.String("from_currency", swap.FromCurrency))
	return swap, nil
}
