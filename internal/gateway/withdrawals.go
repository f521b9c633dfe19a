package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"swap-settlement-go/internal/models"

	"go.uber.org/zap"
)

const (
	payoutTransactionNote = "Stay safe"
	payoutNarration       = "We love you."
)

// CreateWithdrawal moves funds out of an exchange account; used to sweep a
// sub-user's swap proceeds to the master account.
func (s *Service) CreateWithdrawal(ctx context.Context, userId string, request models.WithdrawalRequest) (*models.Withdrawal, error) {
	zap.L().Info("Creating withdrawal via exchange API",
		zap.String("user_id", userId),
		zap.String("currency", request.Currency),
		zap.String("amount", request.Amount),
		zap.String("destination", request.FundUid),
		zap.String("reference", request.Reference))

	path := fmt.Sprintf("users/%s/withdraws", url.PathEscape(userId))

	var withdrawal models.Withdrawal
	if err := s.do(ctx, "Create withdrawal", http.MethodPost, path, request, &withdrawal); err != nil {
		return nil, err
	}
	if withdrawal.Id == "" {
		return nil, fmt.Errorf("create withdrawal returned no id for reference %s", request.Reference)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("status", withdrawal.Status),
		zap.String("reference", request.Reference))
	return &withdrawal, nil
}

// CreateBankWithdrawal pays fiat from the master account to a bank account
func (s *Service) CreateBankWithdrawal(ctx context.Context, currency, amount string, bank models.BankAccountDetails, reference string) (*models.Withdrawal, error) {
	request := models.WithdrawalRequest{
		Currency:        currency,
		Amount:          amount,
		FundUid:         bank.AccountNumber,
		FundUid2:        bank.BankCode,
		TransactionNote: payoutTransactionNote,
		Narration:       payoutNarration,
		Reference:       reference,
	}
	return s.CreateWithdrawal(ctx, "me", request)
}
