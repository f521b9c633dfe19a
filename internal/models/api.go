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

package models

import (
	"github.com/shopspring/decimal"
)

// WalletBalance is the user-facing view of a wallet
type WalletBalance struct {
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Addresses     []string        `json:"addresses,omitempty"`
}

// SwapQuoteSummary is what the user approves
type SwapQuoteSummary struct {
	SwapId       string          `json:"swap_id"`
	FromCurrency string          `json:"from_currency"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToCurrency   string          `json:"to_currency"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	QuotedPrice  decimal.Decimal `json:"quoted_price"`
	Fee          decimal.Decimal `json:"fee"`
	Payout       decimal.Decimal `json:"payout"`
}

// BankAccountResult reports the outcome of a bank account registration
type BankAccountResult struct {
	Accepted    bool   `json:"accepted"`
	AccountName string `json:"account_name,omitempty"`
	MatchLevel  string `json:"match_level"`
	MatchScore  int    `json:"match_score"`
	Error       string `json:"error,omitempty"`
}
