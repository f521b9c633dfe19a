package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateSwap(ctx context.Context, params store.CreateSwapParams) (*models.Swap, error) {
	if !params.FromAmount.IsPositive() {
		return nil, fmt.Errorf("swap amount must be positive, got %s", params.FromAmount.String())
	}

	swapId := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertSwap,
		swapId, params.UserId, params.QuotationId,
		strings.ToLower(params.FromCurrency), strings.ToLower(params.ToCurrency),
		params.FromAmount.String(), params.ToAmount.String(), params.QuotedPrice.String(),
		string(models.SwapQuoted))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: swap for quotation %s", store.ErrAlreadyExists, params.QuotationId)
		}
		return nil, fmt.Errorf("failed to insert swap: %w", err)
	}

	zap.L().Info("Swap created",
		zap.String("swap_id", swapId),
		zap.String("quotation_id", params.QuotationId),
		zap.String("from_amount", params.FromAmount.String()),
		zap.String("from_currency", params.FromCurrency))

	return s.GetSwapById(ctx, swapId)
}

func (s *Service) GetSwapById(ctx context.Context, swapId string) (*models.Swap, error) {
	return s.getSwap(ctx, queryGetSwapById, "id", swapId)
}

func (s *Service) GetSwapByQuotationId(ctx context.Context, quotationId string) (*models.Swap, error) {
	return s.getSwap(ctx, queryGetSwapByQuotationId, "quotation", quotationId)
}

func (s *Service) GetSwapBySwapTransactionId(ctx context.Context, swapTransactionId string) (*models.Swap, error) {
	return s.getSwap(ctx, queryGetSwapBySwapTransactionId, "swap transaction", swapTransactionId)
}

func (s *Service) GetSwapBySweepId(ctx context.Context, sweepId string) (*models.Swap, error) {
	return s.getSwap(ctx, queryGetSwapBySweepId, "sweep", sweepId)
}

func (s *Service) GetSwapByWithdrawId(ctx context.Context, withdrawId string) (*models.Swap, error) {
	return s.getSwap(ctx, queryGetSwapByWithdrawId, "withdraw", withdrawId)
}

// AdvanceSwap applies a state transition as a compare-and-swap on the current
// state, together with the optional balance movement, in one transaction.
func (s *Service) AdvanceSwap(ctx context.Context, transition store.SwapTransition) (*models.Swap, error) {
	if !models.CanTransition(transition.From, transition.To) {
		return nil, fmt.Errorf("%w: %s -> %s is not a valid transition", store.ErrStateConflict, transition.From, transition.To)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	u := transition.Update
	result, err := tx.ExecContext(ctx, queryAdvanceSwap,
		string(transition.To),
		nullableString(u.SwapTransactionId),
		nullableString(u.SweepId),
		nullableString(u.WithdrawId),
		nullableDecimal(u.ReceivedAmount),
		nullableDecimal(u.WithdrawAmount),
		nullableString(u.Status),
		nullableString(u.SwapStatus),
		nullableString(u.SweepStatus),
		transition.SwapId,
		string(transition.From))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: external id already bound to another swap", store.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to advance swap: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var current string
		err := tx.QueryRowContext(ctx, queryGetSwapState, transition.SwapId).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: swap %s", store.ErrNotFound, transition.SwapId)
		} else if err != nil {
			return nil, fmt.Errorf("failed to load swap state: %w", err)
		}
		if models.SwapState(current).Reached(transition.To) {
			return nil, fmt.Errorf("%w: swap %s already %s", store.ErrDuplicateEvent, transition.SwapId, current)
		}
		return nil, fmt.Errorf("%w: swap %s is %s, expected %s", store.ErrStateConflict, transition.SwapId, current, transition.From)
	}

	if transition.Movement != nil {
		if _, err := applyMovementTx(ctx, tx, *transition.Movement); err != nil {
			return nil, fmt.Errorf("failed to move funds for swap %s: %w", transition.SwapId, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Swap advanced",
		zap.String("swap_id", transition.SwapId),
		zap.String("from", string(transition.From)),
		zap.String("to", string(transition.To)))

	return s.GetSwapById(ctx, transition.SwapId)
}

// RecordSwapReferences stores exchange ids on a swap that is still in state.
// It fails with ErrStateConflict once the swap has moved on.
func (s *Service) RecordSwapReferences(ctx context.Context, swapId string, state models.SwapState, refs store.SwapReferences) (*models.Swap, error) {
	result, err := s.db.ExecContext(ctx, queryRecordSwapReferences,
		nullableString(nonEmpty(refs.SweepId)),
		nullableString(nonEmpty(refs.WithdrawId)),
		swapId, string(state))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: external id already bound to another swap", store.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to record swap references: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		swap, err := s.GetSwapById(ctx, swapId)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: swap %s is %s, expected %s", store.ErrStateConflict, swapId, swap.State, state)
	}

	return s.GetSwapById(ctx, swapId)
}

func (s *Service) getSwap(ctx context.Context, query, kind, key string) (*models.Swap, error) {
	swap, err := scanSwap(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: swap for %s %s", store.ErrNotFound, kind, key)
		}
		return nil, fmt.Errorf("unable to query swap by %s: %w", kind, err)
	}
	return swap, nil
}

func scanSwap(row rowScanner) (*models.Swap, error) {
	var swap models.Swap
	var swapTxId, sweepId, withdrawId sql.NullString
	var fromAmount, toAmount, quotedPrice, receivedAmount, withdrawAmount, state string
	err := row.Scan(&swap.Id, &swap.UserId, &swap.QuotationId, &swapTxId, &sweepId, &withdrawId,
		&swap.FromCurrency, &swap.ToCurrency, &fromAmount, &toAmount, &quotedPrice,
		&receivedAmount, &withdrawAmount, &swap.Status, &swap.SwapStatus, &swap.SweepStatus,
		&state, &swap.Version, &swap.CreatedAt, &swap.UpdatedAt, &swap.SubUserId, &swap.ChatId)
	if err != nil {
		return nil, err
	}

	swap.SwapTransactionId = swapTxId.String
	swap.SweepId = sweepId.String
	swap.WithdrawId = withdrawId.String
	swap.State = models.SwapState(state)

	amounts := []struct {
		field string
		raw   string
		dst   *decimal.Decimal
	}{
		{"from_amount", fromAmount, &swap.FromAmount},
		{"to_amount", toAmount, &swap.ToAmount},
		{"quoted_price", quotedPrice, &swap.QuotedPrice},
		{"received_amount", receivedAmount, &swap.ReceivedAmount},
		{"withdraw_amount", withdrawAmount, &swap.WithdrawAmount},
	}
	for _, a := range amounts {
		if *a.dst, err = parseAmount(a.field, a.raw); err != nil {
			return nil, err
		}
	}
	return &swap, nil
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableDecimal(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}
