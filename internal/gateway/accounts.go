package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"swap-settlement-go/internal/models"

	"go.uber.org/zap"
)

// CreateSubAccount registers a sub-user under the platform account
func (s *Service) CreateSubAccount(ctx context.Context, email, firstName, lastName string) (*models.SubAccount, error) {
	request := map[string]string{
		"email":      email,
		"first_name": firstName,
		"last_name":  lastName,
	}

	var account models.SubAccount
	if err := s.do(ctx, "Create sub user", http.MethodPost, "users", request, &account); err != nil {
		return nil, err
	}
	if account.Id == "" {
		return nil, fmt.Errorf("create sub user returned no id for %s", email)
	}

	zap.L().Info("Sub account created",
		zap.String("sub_user_id", account.Id),
		zap.String("email", email))
	return &account, nil
}

// FetchCurrencyWallet returns the sub-user's exchange wallet for a currency
func (s *Service) FetchCurrencyWallet(ctx context.Context, subUserId, currency string) (*models.CurrencyWallet, error) {
	path := fmt.Sprintf("users/%s/wallets/%s", url.PathEscape(subUserId), url.PathEscape(strings.ToLower(currency)))

	var wallet models.CurrencyWallet
	if err := s.do(ctx, "Fetch currency", http.MethodGet, path, nil, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// CreatePaymentAddress requests a deposit address. The exchange usually
// answers before the address exists and delivers it by webhook later.
func (s *Service) CreatePaymentAddress(ctx context.Context, subUserId, currency, network string) (*models.PaymentAddress, error) {
	path := fmt.Sprintf("users/%s/wallets/%s/addresses", url.PathEscape(subUserId), url.PathEscape(strings.ToLower(currency)))
	if network != "" {
		path += "?network=" + url.QueryEscape(network)
	}

	var address models.PaymentAddress
	if err := s.do(ctx, "Create payment address", http.MethodPost, path, nil, &address); err != nil {
		return nil, err
	}

	zap.L().Info("Payment address requested",
		zap.String("sub_user_id", subUserId),
		zap.String("currency", currency),
		zap.String("network", network),
		zap.String("address_id", address.Id))
	return &address, nil
}

// ValidateBankAccount resolves the registered name of a bank account
func (s *Service) ValidateBankAccount(ctx context.Context, accountNumber, bankCode string) (*models.BankAccountDetails, error) {
	request := map[string]string{
		"fund_uid":  accountNumber,
		"fund_uid2": bankCode,
		"currency":  "ngn",
	}

	var details models.BankAccountDetails
	if err := s.do(ctx, "Validate bank account", http.MethodPost, "banks/verify_account", request, &details); err != nil {
		return nil, err
	}
	if details.AccountNumber == "" {
		details.AccountNumber = accountNumber
	}
	if details.BankCode == "" {
		details.BankCode = bankCode
	}
	return &details, nil
}
