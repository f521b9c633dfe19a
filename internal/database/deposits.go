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
	"go.uber.org/zap"
)

func (s *Service) GetDeposit(ctx context.Context, depositId string) (*models.Deposit, error) {
	deposit, err := getDeposit(ctx, s.db, depositId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: deposit %s", store.ErrNotFound, depositId)
		}
		return nil, fmt.Errorf("unable to query deposit: %w", err)
	}
	return deposit, nil
}

// CreatePendingDeposit records a confirmation-stage deposit. Any existing
// record for the deposit id, whatever its status, makes this a duplicate.
func (s *Service) CreatePendingDeposit(ctx context.Context, params store.CreateDepositParams) (*models.Deposit, error) {
	result, err := s.db.ExecContext(ctx, queryInsertPendingDeposit,
		uuid.New().String(), params.DepositId, params.UserId, params.WalletId,
		strings.ToLower(params.Currency), params.Amount.String(), params.TxId, params.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to insert deposit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: deposit %s already recorded", store.ErrDuplicateEvent, params.DepositId)
	}

	return s.GetDeposit(ctx, params.DepositId)
}

// SettleDeposit marks the deposit successful and credits the wallet in one
// transaction. The deposit row is created if its confirmation never arrived.
func (s *Service) SettleDeposit(ctx context.Context, params store.CreateDepositParams) (*models.Deposit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var status string
	err = tx.QueryRowContext(ctx, queryGetDepositStatus, params.DepositId).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, queryInsertSettledDeposit,
			uuid.New().String(), params.DepositId, params.UserId, params.WalletId,
			strings.ToLower(params.Currency), params.Amount.String(), params.TxId, params.Network)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: deposit %s", store.ErrDuplicateEvent, params.DepositId)
			}
			return nil, fmt.Errorf("failed to insert deposit: %w", err)
		}
		zap.L().Info("Settling deposit without prior confirmation", zap.String("deposit_id", params.DepositId))
	case err != nil:
		return nil, fmt.Errorf("failed to check deposit status: %w", err)
	case status == models.StatusSuccessful:
		return nil, fmt.Errorf("%w: deposit %s already successful", store.ErrDuplicateEvent, params.DepositId)
	default:
		result, err := tx.ExecContext(ctx, queryMarkDepositSuccessful, params.DepositId)
		if err != nil {
			return nil, fmt.Errorf("failed to mark deposit successful: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, fmt.Errorf("%w: deposit %s already successful", store.ErrDuplicateEvent, params.DepositId)
		}
	}

	_, err = applyMovementTx(ctx, tx, store.BalanceMovement{
		UserId:         params.UserId,
		Currency:       params.Currency,
		EntryType:      models.EntryDepositCredit,
		Reference:      "deposit:" + params.DepositId,
		AvailableDelta: params.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit deposit %s: %w", params.DepositId, err)
	}

	deposit, err := getDeposit(ctx, tx, params.DepositId)
	if err != nil {
		return nil, fmt.Errorf("failed to reload deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Deposit settled",
		zap.String("deposit_id", params.DepositId),
		zap.String("user_id", params.UserId),
		zap.String("currency", params.Currency),
		zap.String("amount", params.Amount.String()))

	return deposit, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDeposit(ctx context.Context, q queryRower, depositId string) (*models.Deposit, error) {
	var deposit models.Deposit
	var amount string
	err := q.QueryRowContext(ctx, queryGetDeposit, depositId).Scan(
		&deposit.Id, &deposit.DepositId, &deposit.UserId, &deposit.WalletId, &deposit.Currency,
		&amount, &deposit.TxId, &deposit.Network, &deposit.Status, &deposit.CreatedAt, &deposit.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if deposit.Amount, err = parseAmount("amount", amount); err != nil {
		return nil, err
	}
	return &deposit, nil
}
