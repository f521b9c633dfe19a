package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record status values shared by deposits and the three swap status fields.
const (
	StatusPending    = "pending"
	StatusFailed     = "failed"
	StatusSuccess    = "success"
	StatusSuccessful = "successful" // deposits only
)

// User is read-only to the pipeline; it resolves sub-accounts to wallets and chats.
type User struct {
	Id        string    `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Email     string    `db:"email"`
	SubUserId string    `db:"sub_user_id"`
	ChatId    string    `db:"chat_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Wallet holds a user's available and reserved crypto for one currency.
type Wallet struct {
	Id               string          `db:"id"`
	UserId           string          `db:"user_id"`
	Currency         string          `db:"currency"`
	ExternalWalletId string          `db:"external_wallet_id"`
	Balance          decimal.Decimal `db:"balance"`
	LockedBalance    decimal.Decimal `db:"locked_balance"`
	Scale            int32           `db:"scale"`
	InProgress       bool            `db:"in_progress"`
	Version          int64           `db:"version"`
	Addresses        []WalletAddress
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Total is everything the user holds in this wallet, reserved or not.
func (w Wallet) Total() decimal.Decimal {
	return w.Balance.Add(w.LockedBalance)
}

// WalletAddress is a deposit address generated by the exchange for a wallet
type WalletAddress struct {
	Id             string    `db:"id"`
	WalletId       string    `db:"wallet_id"`
	Network        string    `db:"network"`
	Address        string    `db:"address"`
	DestinationTag string    `db:"destination_tag"`
	CreatedAt      time.Time `db:"created_at"`
}

// Deposit is one external crypto deposit, keyed by the exchange deposit id
type Deposit struct {
	Id        string          `db:"id"`
	DepositId string          `db:"deposit_id"`
	UserId    string          `db:"user_id"`
	WalletId  string          `db:"wallet_id"`
	Currency  string          `db:"currency"`
	Amount    decimal.Decimal `db:"amount"`
	TxId      string          `db:"txid"`
	Network   string          `db:"network"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Swap tracks one quotation from approval to bank payout.
type Swap struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	QuotationId       string          `db:"quotation_id"`
	SwapTransactionId string          `db:"swap_transaction_id"`
	SweepId           string          `db:"sweep_id"`
	WithdrawId        string          `db:"withdraw_id"`
	FromCurrency      string          `db:"from_currency"`
	ToCurrency        string          `db:"to_currency"`
	FromAmount        decimal.Decimal `db:"from_amount"`
	ToAmount          decimal.Decimal `db:"to_amount"`
	QuotedPrice       decimal.Decimal `db:"quoted_price"`
	ReceivedAmount    decimal.Decimal `db:"received_amount"`
	WithdrawAmount    decimal.Decimal `db:"withdraw_amount"`
	Status            string          `db:"status"`
	SwapStatus        string          `db:"swap_status"`
	SweepStatus       string          `db:"sweep_status"`
	State             SwapState       `db:"state"`
	Version           int64           `db:"version"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`

	// Populated from users on read.
	SubUserId string
	ChatId    string
}

// BankAccount is a verified payout destination
type BankAccount struct {
	Id            string    `db:"id"`
	UserId        string    `db:"user_id"`
	AccountNumber string    `db:"account_number"`
	AccountName   string    `db:"account_name"`
	BankCode      string    `db:"bank_code"`
	CreatedAt     time.Time `db:"created_at"`
}

// LedgerEntry records one balance movement; Reference is unique and doubles
// as the idempotency key of the movement.
type LedgerEntry struct {
	Id             string          `db:"id"`
	WalletId       string          `db:"wallet_id"`
	EntryType      string          `db:"entry_type"`
	Reference      string          `db:"reference"`
	AvailableDelta decimal.Decimal `db:"available_delta"`
	LockedDelta    decimal.Decimal `db:"locked_delta"`
	BalanceAfter   decimal.Decimal `db:"balance_after"`
	LockedAfter    decimal.Decimal `db:"locked_after"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Ledger entry types
const (
	EntryDepositCredit = "deposit_credit"
	EntrySwapReserve   = "swap_reserve"
	EntrySwapRelease   = "swap_release"
	EntrySwapUnlock    = "swap_unlock"
)
