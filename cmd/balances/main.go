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

package main

import (
	"context"
	"flag"
	"fmt"

	"swap-settlement-go/internal/common"
	"swap-settlement-go/internal/database"
	"swap-settlement-go/internal/formance"
	"swap-settlement-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	totalWallets      int
	usersWithBalances int
	mismatches        int
}

type checks struct {
	reconcile bool
	journal   *formance.Service
	history   int
}

func printWallet(ctx context.Context, wallet models.Wallet, isLast bool, dbService *database.Service, c checks) bool {
	prefix := common.BoxPrefix(isLast)
	status := ""
	ok := true

	if c.reconcile {
		if err := dbService.ReconcileWallet(ctx, wallet.Id); err != nil {
			status += " ledger:✗"
			ok = false
			zap.L().Error("Wallet does not reconcile", zap.String("wallet_id", wallet.Id), zap.Error(err))
		} else {
			status += " ledger:✓"
		}
	}
	if c.journal != nil {
		match, _, err := c.journal.CompareWallet(ctx, wallet)
		switch {
		case err != nil:
			status += " journal:?"
			zap.L().Warn("Failed to read journal balance", zap.String("wallet_id", wallet.Id), zap.Error(err))
		case match:
			status += " journal:✓"
		default:
			status += " journal:✗"
			ok = false
		}
	}

	fmt.Printf("%s %-8s: %20s  locked %20s (v%d, updated: %s)%s\n",
		prefix,
		wallet.Currency,
		wallet.Balance.StringFixed(wallet.Scale),
		wallet.LockedBalance.StringFixed(wallet.Scale),
		wallet.Version,
		wallet.UpdatedAt.Format("2006-01-02 15:04:05"),
		status)

	detail := common.BoxDetailPrefix(isLast)
	for _, a := range wallet.Addresses {
		fmt.Printf("%s    %s: %s\n", detail, a.Network, a.Address)
	}
	if c.history > 0 {
		printHistory(ctx, wallet, detail, dbService, c.history)
	}
	return ok
}

func printHistory(ctx context.Context, wallet models.Wallet, prefix string, dbService *database.Service, limit int) {
	entries, err := dbService.GetLedgerEntries(ctx, wallet.Id, limit, 0)
	if err != nil {
		zap.L().Error("Failed to load ledger history", zap.String("wallet_id", wallet.Id), zap.Error(err))
		return
	}
	for _, e := range entries {
		fmt.Printf("%s    %s %-16s %20s  locked %20s  -> %s / %s  %s\n",
			prefix,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.EntryType,
			e.AvailableDelta.StringFixed(wallet.Scale),
			e.LockedDelta.StringFixed(wallet.Scale),
			e.BalanceAfter.StringFixed(wallet.Scale),
			e.LockedAfter.StringFixed(wallet.Scale),
			e.Reference)
	}
}

func processUser(ctx context.Context, user models.User, dbService *database.Service, c checks, stats *balanceStats) error {
	wallets, err := dbService.GetWallets(ctx, user.Id)
	if err != nil {
		return fmt.Errorf("failed to get wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil
	}

	fmt.Printf("\n┌─ User: %s (%s)\n", user.FullName(), user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Wallets: %d\n", len(wallets))
	common.PrintBoxSeparator(78)

	funded := false
	for i, wallet := range wallets {
		if !printWallet(ctx, wallet, i == len(wallets)-1, dbService, c) {
			stats.mismatches++
		}
		if wallet.Balance.IsPositive() || wallet.LockedBalance.IsPositive() {
			funded = true
		}
	}

	stats.totalWallets += len(wallets)
	if funded {
		stats.usersWithBalances++
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Filter by user id (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Check each wallet against its ledger entries")
	journalFlag := flag.Bool("journal", false, "Compare each wallet with the Formance journal")
	historyFlag := flag.Int("history", 0, "Show the last N ledger entries of each wallet")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	c := checks{reconcile: *reconcileFlag, history: *historyFlag}
	if *journalFlag {
		if !cfg.Formance.Enabled() {
			logger.Fatal("--journal needs FORMANCE_STACK_URL")
		}
		currencies, err := common.LoadCurrencies(cfg.Settlement.CurrenciesFile)
		if err != nil {
			logger.Fatal("Failed to load currencies", zap.Error(err))
		}
		c.journal, err = formance.NewService(ctx, cfg.Formance, currencies)
		if err != nil {
			logger.Fatal("Failed to connect to journal", zap.Error(err))
		}
	}

	users, err := common.ResolveUsers(ctx, dbService, *userFlag)
	if err != nil {
		logger.Fatal("Failed to resolve users", zap.Error(err))
	}

	common.PrintHeader("USER BALANCE REPORT", common.WideWidth)

	stats := balanceStats{}
	for _, user := range users {
		stats.totalUsers++
		if err := processUser(ctx, user, dbService, c, &stats); err != nil {
			logger.Error("Failed to process user", zap.String("user_id", user.Id), zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d users with balances (%d wallets across %d users queried)",
		stats.usersWithBalances, stats.totalWallets, stats.totalUsers)
	if c.reconcile || c.journal != nil {
		summary += fmt.Sprintf(", %d mismatched", stats.mismatches)
	}
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("wallets", stats.totalWallets),
		zap.Int("mismatches", stats.mismatches))
}
