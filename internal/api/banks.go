package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/namematch"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
)

// AddBankAccount resolves the account holder's name with the exchange and
// registers the account only when it matches the user's own name. A
// rejected match is reported in the result, not as an error.
func (s *LedgerService) AddBankAccount(ctx context.Context, userId, accountNumber, bankCode string) (*models.BankAccountResult, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	bankCode = strings.TrimSpace(bankCode)
	if userId == "" || accountNumber == "" || bankCode == "" {
		return nil, fmt.Errorf("%w: user, account number and bank code are required", ErrInvalidRequest)
	}

	user, err := s.store.GetUserById(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	details, err := s.gateway.ValidateBankAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return nil, fmt.Errorf("failed to validate bank account: %w", err)
	}

	match := namematch.Compare(user.FullName(), details.AccountName)
	result := &models.BankAccountResult{
		AccountName: details.AccountName,
		MatchLevel:  string(match.Level),
		MatchScore:  match.Score,
	}

	if !match.Accept(s.minScore) {
		zap.L().Warn("Bank account name does not match user",
			zap.String("user_id", user.Id),
			zap.String("account_name", details.AccountName),
			zap.Int("score", match.Score),
			zap.Int("min_score", s.minScore))
		result.Error = "account name does not match your name"
		return result, nil
	}

	_, err = s.store.CreateBankAccount(ctx, store.CreateBankAccountParams{
		UserId:        user.Id,
		AccountNumber: accountNumber,
		AccountName:   details.AccountName,
		BankCode:      bankCode,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			result.Error = "bank account already registered"
			return result, nil
		}
		return nil, fmt.Errorf("failed to save bank account: %w", err)
	}

	zap.L().Info("Bank account verified",
		zap.String("user_id", user.Id),
		zap.String("bank_code", bankCode),
		zap.String("match_level", string(match.Level)),
		zap.Int("score", match.Score))

	s.notifier.Send(ctx, user.ChatId, notifier.BankAccountAdded())
	result.Accepted = true
	return result, nil
}
