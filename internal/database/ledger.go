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

// ApplyMovement atomically applies a balance movement and records its ledger entry.
func (s *Service) ApplyMovement(ctx context.Context, movement store.BalanceMovement) (*models.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	entry, err := applyMovementTx(ctx, tx, movement)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// applyMovementTx applies the deltas as a single conditional increment. The
// wallet row is never read and written back, so concurrent movements cannot
// lose updates; the WHERE guard keeps both balances non-negative.
func applyMovementTx(ctx context.Context, tx *sql.Tx, movement store.BalanceMovement) (*models.LedgerEntry, error) {
	if movement.Reference == "" {
		return nil, fmt.Errorf("balance movement requires a reference")
	}

	zap.L().Info("Processing balance movement",
		zap.String("user_id", movement.UserId),
		zap.String("currency", movement.Currency),
		zap.String("type", movement.EntryType),
		zap.String("available_delta", movement.AvailableDelta.String()),
		zap.String("locked_delta", movement.LockedDelta.String()),
		zap.String("reference", movement.Reference))

	var existingId string
	err := tx.QueryRowContext(ctx, queryCheckLedgerReference, movement.Reference).Scan(&existingId)
	if err == nil {
		zap.L().Info("Duplicate ledger reference, skipping",
			zap.String("reference", movement.Reference),
			zap.String("existing_entry_id", existingId))
		return nil, fmt.Errorf("%w: ledger reference %s already applied", store.ErrDuplicateEvent, movement.Reference)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check ledger reference: %w", err)
	}

	var walletId string
	var scale int32
	err = tx.QueryRowContext(ctx, queryGetWalletScale, movement.UserId, strings.ToLower(movement.Currency)).Scan(&walletId, &scale)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %s for user %s", store.ErrNotFound, movement.Currency, movement.UserId)
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	availableUnits, err := toUnits(movement.AvailableDelta, scale)
	if err != nil {
		return nil, err
	}
	lockedUnits, err := toUnits(movement.LockedDelta, scale)
	if err != nil {
		return nil, err
	}

	var balanceAfter, lockedAfter int64
	err = tx.QueryRowContext(ctx, queryApplyWalletDelta,
		availableUnits, lockedUnits, walletId, availableUnits, lockedUnits).Scan(&balanceAfter, &lockedAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isCheckViolation(err) {
			return nil, fmt.Errorf("%w: wallet %s cannot apply available %s locked %s",
				store.ErrInsufficientBalance, walletId, movement.AvailableDelta.String(), movement.LockedDelta.String())
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entryId := uuid.New().String()
	_, err = tx.ExecContext(ctx, queryInsertLedgerEntry,
		entryId, walletId, movement.EntryType, movement.Reference,
		availableUnits, lockedUnits, balanceAfter, lockedAfter)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: ledger reference %s already applied", store.ErrDuplicateEvent, movement.Reference)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return &models.LedgerEntry{
		Id:             entryId,
		WalletId:       walletId,
		EntryType:      movement.EntryType,
		Reference:      movement.Reference,
		AvailableDelta: fromUnits(availableUnits, scale),
		LockedDelta:    fromUnits(lockedUnits, scale),
		BalanceAfter:   fromUnits(balanceAfter, scale),
		LockedAfter:    fromUnits(lockedAfter, scale),
	}, nil
}

// GetLedgerEntries returns paginated ledger history for a wallet, newest first
func (s *Service) GetLedgerEntries(ctx context.Context, walletId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting ledger entries",
		zap.String("wallet_id", walletId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetLedgerEntries, walletId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var available, locked, balanceAfter, lockedAfter int64
		var scale int32
		err := rows.Scan(&entry.Id, &entry.WalletId, &entry.EntryType, &entry.Reference,
			&available, &locked, &balanceAfter, &lockedAfter, &entry.CreatedAt, &scale)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.AvailableDelta = fromUnits(available, scale)
		entry.LockedDelta = fromUnits(locked, scale)
		entry.BalanceAfter = fromUnits(balanceAfter, scale)
		entry.LockedAfter = fromUnits(lockedAfter, scale)
		entries = append(entries, entry)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return entries, nil
}

// ReconcileWallet verifies that both balances equal the sum of their ledger deltas.
func (s *Service) ReconcileWallet(ctx context.Context, walletId string) error {
	var balance, locked, availableSum, lockedSum int64
	err := s.db.QueryRowContext(ctx, queryReconcileWallet, walletId).Scan(&balance, &locked, &availableSum, &lockedSum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: wallet %s", store.ErrNotFound, walletId)
		}
		return fmt.Errorf("failed to reconcile wallet: %w", err)
	}

	if balance != availableSum || locked != lockedSum {
		zap.L().Error("Wallet balance mismatch",
			zap.String("wallet_id", walletId),
			zap.Int64("balance_units", balance),
			zap.Int64("ledger_available_units", availableSum),
			zap.Int64("locked_units", locked),
			zap.Int64("ledger_locked_units", lockedSum))
		return fmt.Errorf("balance mismatch for wallet %s: balance %d vs ledger %d, locked %d vs ledger %d",
			walletId, balance, availableSum, locked, lockedSum)
	}

	zap.L().Debug("Wallet reconciled", zap.String("wallet_id", walletId))
	return nil
}
