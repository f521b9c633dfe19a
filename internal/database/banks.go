package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateBankAccount(ctx context.Context, params store.CreateBankAccountParams) (*models.BankAccount, error) {
	accountId := uuid.New().String()
	_, err := s.db.ExecContext(ctx, queryInsertBankAccount,
		accountId, params.UserId, params.AccountNumber, params.AccountName, params.BankCode)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: bank account %s", store.ErrAlreadyExists, params.AccountNumber)
		}
		return nil, fmt.Errorf("failed to insert bank account: %w", err)
	}

	zap.L().Info("Bank account added",
		zap.String("user_id", params.UserId),
		zap.String("bank_code", params.BankCode))

	return &models.BankAccount{
		Id:            accountId,
		UserId:        params.UserId,
		AccountNumber: params.AccountNumber,
		AccountName:   params.AccountName,
		BankCode:      params.BankCode,
	}, nil
}

// GetBankAccount returns the user's first registered bank account.
func (s *Service) GetBankAccount(ctx context.Context, userId string) (*models.BankAccount, error) {
	var account models.BankAccount
	err := s.db.QueryRowContext(ctx, queryGetBankAccount, userId).Scan(
		&account.Id, &account.UserId, &account.AccountNumber, &account.AccountName, &account.BankCode, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: bank account for user %s", store.ErrNotFound, userId)
		}
		return nil, fmt.Errorf("unable to query bank account: %w", err)
	}
	return &account, nil
}
