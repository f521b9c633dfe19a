package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"swap-settlement-go/internal/models"

	"go.uber.org/zap"
)

func (s *Service) CreateSwapQuotation(ctx context.Context, subUserId string, request models.SwapQuoteRequest) (*models.SwapQuotation, error) {
	path := fmt.Sprintf("users/%s/swap_quotation", url.PathEscape(subUserId))

	var quotation models.SwapQuotation
	if err := s.do(ctx, "Create instant swap", http.MethodPost, path, request, &quotation); err != nil {
		return nil, err
	}

	zap.L().Info("Swap quotation created",
		zap.String("sub_user_id", subUserId),
		zap.String("quotation_id", quotation.Id),
		zap.String("from_amount", quotation.FromAmount.String()),
		zap.String("to_amount", quotation.ToAmount.String()))
	return &quotation, nil
}

// RefreshSwapQuotation re-prices an existing quotation before it is confirmed
func (s *Service) RefreshSwapQuotation(ctx context.Context, subUserId, quotationId string, request models.SwapQuoteRequest) (*models.SwapQuotation, error) {
	path := fmt.Sprintf("users/%s/swap_quotation/%s/refresh", url.PathEscape(subUserId), url.PathEscape(quotationId))

	var quotation models.SwapQuotation
	if err := s.do(ctx, "Refresh instant swap", http.MethodPost, path, request, &quotation); err != nil {
		return nil, err
	}
	return &quotation, nil
}

// ConfirmSwapQuotation executes the quotation and returns the swap transaction
func (s *Service) ConfirmSwapQuotation(ctx context.Context, subUserId, quotationId string) (*models.SwapTransaction, error) {
	path := fmt.Sprintf("users/%s/swap_quotation/%s/confirm", url.PathEscape(subUserId), url.PathEscape(quotationId))

	var transaction models.SwapTransaction
	if err := s.do(ctx, "Confirm instant swap", http.MethodPost, path, nil, &transaction); err != nil {
		return nil, err
	}
	if transaction.Id == "" {
		return nil, fmt.Errorf("confirm instant swap returned no transaction id for quotation %s", quotationId)
	}

	zap.L().Info("Swap quotation confirmed",
		zap.String("quotation_id", quotationId),
		zap.String("swap_transaction_id", transaction.Id),
		zap.String("status", transaction.Status))
	return &transaction, nil
}
