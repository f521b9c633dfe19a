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

// CreateWalletIfAbsent inserts the (user, currency) wallet unless it already
// exists. The boolean reports whether this call created it.
func (s *Service) CreateWalletIfAbsent(ctx context.Context, params store.CreateWalletParams) (*models.Wallet, bool, error) {
	currency := strings.ToLower(params.Currency)
	if params.Scale < 0 || params.Scale > models.MaxScale {
		return nil, false, fmt.Errorf("wallet scale must be between 0 and %d, got %d", models.MaxScale, params.Scale)
	}

	result, err := s.db.ExecContext(ctx, queryInsertWalletIfAbsent,
		uuid.New().String(), params.UserId, currency, params.ExternalWalletId, params.Scale)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert wallet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	wallet, err := s.GetWallet(ctx, params.UserId, currency)
	if err != nil {
		return nil, false, err
	}

	created := rowsAffected == 1
	if created {
		zap.L().Info("Wallet created",
			zap.String("user_id", params.UserId),
			zap.String("currency", currency),
			zap.String("wallet_id", wallet.Id))
	}
	return wallet, created, nil
}

// GetWallet returns the wallet with its deposit addresses.
func (s *Service) GetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, userId, strings.ToLower(currency)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %s for user %s", store.ErrNotFound, currency, userId)
		}
		return nil, fmt.Errorf("unable to query wallet: %w", err)
	}

	if wallet.Addresses, err = s.getWalletAddresses(ctx, wallet.Id); err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *Service) GetWallets(ctx context.Context, userId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUserWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, *wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}

	for i := range wallets {
		if wallets[i].Addresses, err = s.getWalletAddresses(ctx, wallets[i].Id); err != nil {
			return nil, err
		}
	}
	return wallets, nil
}

// AddWalletAddress appends a deposit address unless the wallet already has the
// same (network, address) pair, and clears the wallet's in-progress flag.
func (s *Service) AddWalletAddress(ctx context.Context, params store.AddWalletAddressParams) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	result, err := tx.ExecContext(ctx, queryInsertWalletAddress,
		uuid.New().String(), params.WalletId, strings.ToLower(params.Network), params.Address, params.DestinationTag)
	if err != nil {
		return false, fmt.Errorf("failed to insert wallet address: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, querySetWalletInProgress, false, params.WalletId); err != nil {
		return false, fmt.Errorf("failed to clear wallet in progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *Service) SetWalletInProgress(ctx context.Context, walletId string, inProgress bool) error {
	result, err := s.db.ExecContext(ctx, querySetWalletInProgress, inProgress, walletId)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: wallet %s", store.ErrNotFound, walletId)
	}
	return nil
}

func (s *Service) getWalletAddresses(ctx context.Context, walletId string) ([]models.WalletAddress, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWalletAddresses, walletId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet addresses: %w", err)
	}
	defer closeRows(rows)

	var addresses []models.WalletAddress
	for rows.Next() {
		var addr models.WalletAddress
		if err := rows.Scan(&addr.Id, &addr.WalletId, &addr.Network, &addr.Address, &addr.DestinationTag, &addr.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan wallet address row: %w", err)
		}
		addresses = append(addresses, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet address rows: %w", err)
	}
	return addresses, nil
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var wallet models.Wallet
	var balance, locked int64
	err := row.Scan(&wallet.Id, &wallet.UserId, &wallet.Currency, &wallet.ExternalWalletId,
		&balance, &locked, &wallet.Scale, &wallet.InProgress, &wallet.Version,
		&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wallet.Balance = fromUnits(balance, wallet.Scale)
	wallet.LockedBalance = fromUnits(locked, wallet.Scale)
	return &wallet, nil
}
