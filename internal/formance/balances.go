package formance

import (
	"context"
	"fmt"
	"math/big"

	"swap-settlement-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// JournalBalance is what the journal holds for one user wallet
type JournalBalance struct {
	Balance       decimal.Decimal
	LockedBalance decimal.Decimal
}

// GetWalletBalance reads the mirrored available and locked balances of a
// user's wallet. Accounts never written to read as zero.
func (s *Service) GetWalletBalance(ctx context.Context, userId, currency string) (JournalBalance, error) {
	scale := s.scaleFor(currency)
	fAsset := formanceAsset(currency, scale)

	available, err := s.getAccountVolumes(ctx, "users:"+userId+":available")
	if err != nil {
		return JournalBalance{}, err
	}
	locked, err := s.getAccountVolumes(ctx, "users:"+userId+":locked")
	if err != nil {
		return JournalBalance{}, err
	}

	return JournalBalance{
		Balance:       bigIntToDecimal(volumeBalance(available, fAsset), scale),
		LockedBalance: bigIntToDecimal(volumeBalance(locked, fAsset), scale),
	}, nil
}

// CompareWallet reports whether the journal agrees with a local wallet
func (s *Service) CompareWallet(ctx context.Context, wallet models.Wallet) (bool, JournalBalance, error) {
	mirrored, err := s.GetWalletBalance(ctx, wallet.UserId, wallet.Currency)
	if err != nil {
		return false, JournalBalance{}, err
	}
	match := mirrored.Balance.Equal(wallet.Balance) && mirrored.LockedBalance.Equal(wallet.LockedBalance)
	if !match {
		zap.L().Warn("Journal differs from ledger",
			zap.String("wallet_id", wallet.Id),
			zap.String("ledger_balance", wallet.Balance.String()),
			zap.String("journal_balance", mirrored.Balance.String()),
			zap.String("ledger_locked", wallet.LockedBalance.String()),
			zap.String("journal_locked", mirrored.LockedBalance.String()))
	}
	return match, mirrored, nil
}

// getAccountVolumes fetches volumes for a single account via GetAccount (clean GET).
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, scale int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -scale)
}
