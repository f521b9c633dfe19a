/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"

	"swap-settlement-go/internal/models"

	"go.uber.org/zap"
)

// GetBalances returns every wallet the user holds with its deposit addresses
func (s *LedgerService) GetBalances(ctx context.Context, userId string) ([]models.WalletBalance, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	wallets, err := s.store.GetWallets(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get wallets",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get wallets: %w", err)
	}

	balances := make([]models.WalletBalance, 0, len(wallets))
	for _, w := range wallets {
		balance := models.WalletBalance{
			Currency:      w.Currency,
			Balance:       w.Balance,
			LockedBalance: w.LockedBalance,
		}
		for _, a := range w.Addresses {
			balance.Addresses = append(balance.Addresses, a.Address)
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// ReconcileBalances checks every wallet of the user against its ledger
// entries and returns the first mismatch.
func (s *LedgerService) ReconcileBalances(ctx context.Context, userId string) error {
	wallets, err := s.store.GetWallets(ctx, userId)
	if err != nil {
		return fmt.Errorf("failed to get wallets: %w", err)
	}
	for _, w := range wallets {
		if err := s.store.ReconcileWallet(ctx, w.Id); err != nil {
			return fmt.Errorf("wallet %s (%s): %w", w.Id, w.Currency, err)
		}
	}
	return nil
}
