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

const (
	// User queries
	queryInsertUser = `
		INSERT INTO users (id, first_name, last_name, email, sub_user_id, chat_id)
		VALUES (?, ?, ?, ?, ?, ?)`

	querySelectUser = `
		SELECT id, first_name, last_name, email, sub_user_id, chat_id, created_at, updated_at
		FROM users`

	queryGetActiveUsers = querySelectUser + `
		WHERE active = 1
		ORDER BY created_at`

	queryGetUserById = querySelectUser + `
		WHERE id = ? AND active = 1`

	queryGetUserBySubUserId = querySelectUser + `
		WHERE sub_user_id = ? AND active = 1`

	// Wallet queries
	queryInsertWalletIfAbsent = `
		INSERT INTO wallets (id, user_id, currency, external_wallet_id, scale)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, currency) DO NOTHING`

	querySelectWallet = `
		SELECT id, user_id, currency, external_wallet_id, balance, locked_balance, scale,
		       in_progress, version, created_at, updated_at
		FROM wallets`

	queryGetWallet = querySelectWallet + `
		WHERE user_id = ? AND currency = ?`

	queryGetWalletById = querySelectWallet + `
		WHERE id = ?`

	queryGetUserWallets = querySelectWallet + `
		WHERE user_id = ?
		ORDER BY currency`

	queryGetWalletScale = `
		SELECT id, scale FROM wallets WHERE user_id = ? AND currency = ?`

	querySetWalletInProgress = `
		UPDATE wallets
		SET in_progress = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryApplyWalletDelta = `
		UPDATE wallets
		SET balance = balance + ?,
		    locked_balance = locked_balance + ?,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND balance + ? >= 0 AND locked_balance + ? >= 0
		RETURNING balance, locked_balance`

	// Address queries
	queryInsertWalletAddress = `
		INSERT INTO wallet_addresses (id, wallet_id, network, address, destination_tag)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(wallet_id, network, address) DO NOTHING`

	queryGetWalletAddresses = `
		SELECT id, wallet_id, network, address, destination_tag, created_at
		FROM wallet_addresses
		WHERE wallet_id = ?
		ORDER BY created_at, id`

	// Deposit queries
	queryInsertPendingDeposit = `
		INSERT INTO deposits (id, deposit_id, user_id, wallet_id, currency, amount, txid, network, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')
		ON CONFLICT(deposit_id) DO NOTHING`

	queryInsertSettledDeposit = `
		INSERT INTO deposits (id, deposit_id, user_id, wallet_id, currency, amount, txid, network, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'successful')`

	queryGetDepositStatus = `
		SELECT status FROM deposits WHERE deposit_id = ?`

	queryMarkDepositSuccessful = `
		UPDATE deposits
		SET status = 'successful', updated_at = CURRENT_TIMESTAMP
		WHERE deposit_id = ? AND status != 'successful'`

	queryGetDeposit = `
		SELECT id, deposit_id, user_id, wallet_id, currency, amount, txid, network, status, created_at, updated_at
		FROM deposits
		WHERE deposit_id = ?`

	// Swap queries
	queryInsertSwap = `
		INSERT INTO swaps (id, user_id, quotation_id, from_currency, to_currency, from_amount, to_amount, quoted_price, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectSwap = `
		SELECT s.id, s.user_id, s.quotation_id, s.swap_transaction_id, s.sweep_id, s.withdraw_id,
		       s.from_currency, s.to_currency, s.from_amount, s.to_amount, s.quoted_price,
		       s.received_amount, s.withdraw_amount, s.status, s.swap_status, s.sweep_status,
		       s.state, s.version, s.created_at, s.updated_at, u.sub_user_id, u.chat_id
		FROM swaps s
		JOIN users u ON u.id = s.user_id`

	queryGetSwapById                = querySelectSwap + ` WHERE s.id = ?`
	queryGetSwapByQuotationId       = querySelectSwap + ` WHERE s.quotation_id = ?`
	queryGetSwapBySwapTransactionId = querySelectSwap + ` WHERE s.swap_transaction_id = ?`
	queryGetSwapBySweepId           = querySelectSwap + ` WHERE s.sweep_id = ?`
	queryGetSwapByWithdrawId        = querySelectSwap + ` WHERE s.withdraw_id = ?`

	queryGetSwapState = `
		SELECT state FROM swaps WHERE id = ?`

	queryAdvanceSwap = `
		UPDATE swaps
		SET state = ?,
		    swap_transaction_id = COALESCE(?, swap_transaction_id),
		    sweep_id = COALESCE(?, sweep_id),
		    withdraw_id = COALESCE(?, withdraw_id),
		    received_amount = COALESCE(?, received_amount),
		    withdraw_amount = COALESCE(?, withdraw_amount),
		    status = COALESCE(?, status),
		    swap_status = COALESCE(?, swap_status),
		    sweep_status = COALESCE(?, sweep_status),
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?`

	queryRecordSwapReferences = `
		UPDATE swaps
		SET sweep_id = COALESCE(sweep_id, ?),
		    withdraw_id = COALESCE(withdraw_id, ?),
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = ?`

	// Bank account queries
	queryInsertBankAccount = `
		INSERT INTO bank_accounts (id, user_id, account_number, account_name, bank_code)
		VALUES (?, ?, ?, ?, ?)`

	queryGetBankAccount = `
		SELECT id, user_id, account_number, account_name, bank_code, created_at
		FROM bank_accounts
		WHERE user_id = ?
		ORDER BY created_at, rowid
		LIMIT 1`

	// Ledger queries
	queryCheckLedgerReference = `
		SELECT id FROM ledger_entries WHERE reference = ?`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, wallet_id, entry_type, reference, available_delta, locked_delta, balance_after, locked_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetLedgerEntries = `
		SELECT e.id, e.wallet_id, e.entry_type, e.reference, e.available_delta, e.locked_delta,
		       e.balance_after, e.locked_after, e.created_at, w.scale
		FROM ledger_entries e
		JOIN wallets w ON w.id = e.wallet_id
		WHERE e.wallet_id = ?
		ORDER BY e.created_at DESC, e.rowid DESC
		LIMIT ? OFFSET ?`

	queryReconcileWallet = `
		SELECT w.balance, w.locked_balance,
		       COALESCE(SUM(e.available_delta), 0), COALESCE(SUM(e.locked_delta), 0)
		FROM wallets w
		LEFT JOIN ledger_entries e ON e.wallet_id = w.id
		WHERE w.id = ?
		GROUP BY w.id`
)
