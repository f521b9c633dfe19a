package store

import (
	"context"
	"errors"

	"swap-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicateEvent         = errors.New("duplicate event")
	ErrAlreadyExists          = errors.New("record already exists")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrStateConflict          = errors.New("swap state conflict")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrAmountPrecision        = errors.New("amount exceeds wallet precision")
)

// CreateUserParams contains the parameters for registering a user.
type CreateUserParams struct {
	FirstName string
	LastName  string
	Email     string
	SubUserId string
	ChatId    string
}

// CreateWalletParams contains the parameters for provisioning a wallet.
type CreateWalletParams struct {
	UserId           string
	Currency         string
	ExternalWalletId string
	Scale            int32
}

// AddWalletAddressParams contains a generated deposit address.
type AddWalletAddressParams struct {
	WalletId       string
	Network        string
	Address        string
	DestinationTag string
}

// CreateDepositParams describes an external deposit.
type CreateDepositParams struct {
	DepositId string
	UserId    string
	WalletId  string
	Currency  string
	Amount    decimal.Decimal
	TxId      string
	Network   string
}

// CreateSwapParams describes a freshly quoted swap.
type CreateSwapParams struct {
	UserId       string
	QuotationId  string
	FromCurrency string
	ToCurrency   string
	FromAmount   decimal.Decimal
	ToAmount     decimal.Decimal
	QuotedPrice  decimal.Decimal
}

// CreateBankAccountParams describes a verified bank account.
type CreateBankAccountParams struct {
	UserId        string
	AccountNumber string
	AccountName   string
	BankCode      string
}

// BalanceMovement is applied atomically to a wallet. Deltas are signed and
// the movement fails with ErrInsufficientBalance if either field would go
// negative. Reference must be unique across all movements.
type BalanceMovement struct {
	UserId         string
	Currency       string
	EntryType      string
	Reference      string
	AvailableDelta decimal.Decimal
	LockedDelta    decimal.Decimal
}

// SwapUpdate lists the fields a transition sets. Nil fields are left untouched.
type SwapUpdate struct {
	SwapTransactionId *string
	SweepId           *string
	WithdrawId        *string
	ReceivedAmount    *decimal.Decimal
	WithdrawAmount    *decimal.Decimal
	Status            *string
	SwapStatus        *string
	SweepStatus       *string
}

// SwapReferences are exchange ids learned after a swap entered its current
// state. Each id is written once; a later call never overwrites it.
type SwapReferences struct {
	SweepId    string
	WithdrawId string
}

// SwapTransition moves a swap from one state to the next as a compare-and-swap.
// If the swap is no longer in From, the call fails with ErrDuplicateEvent when
// it already reached To, and ErrStateConflict otherwise.
type SwapTransition struct {
	SwapId   string
	From     models.SwapState
	To       models.SwapState
	Update   SwapUpdate
	Movement *BalanceMovement
}

// LedgerStore defines the contract the settlement pipeline relies on.
type LedgerStore interface {
	// --- Users ---
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserBySubUserId(ctx context.Context, subUserId string) (*models.User, error)

	// --- Wallets ---
	CreateWalletIfAbsent(ctx context.Context, params CreateWalletParams) (*models.Wallet, bool, error)
	GetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error)
	GetWallets(ctx context.Context, userId string) ([]models.Wallet, error)
	AddWalletAddress(ctx context.Context, params AddWalletAddressParams) (bool, error)
	SetWalletInProgress(ctx context.Context, walletId string, inProgress bool) error

	// --- Deposits ---
	GetDeposit(ctx context.Context, depositId string) (*models.Deposit, error)
	CreatePendingDeposit(ctx context.Context, params CreateDepositParams) (*models.Deposit, error)
	SettleDeposit(ctx context.Context, params CreateDepositParams) (*models.Deposit, error)

	// --- Swaps ---
	CreateSwap(ctx context.Context, params CreateSwapParams) (*models.Swap, error)
	GetSwapById(ctx context.Context, swapId string) (*models.Swap, error)
	GetSwapByQuotationId(ctx context.Context, quotationId string) (*models.Swap, error)
	GetSwapBySwapTransactionId(ctx context.Context, swapTransactionId string) (*models.Swap, error)
	GetSwapBySweepId(ctx context.Context, sweepId string) (*models.Swap, error)
	GetSwapByWithdrawId(ctx context.Context, withdrawId string) (*models.Swap, error)
	AdvanceSwap(ctx context.Context, transition SwapTransition) (*models.Swap, error)
	RecordSwapReferences(ctx context.Context, swapId string, state models.SwapState, refs SwapReferences) (*models.Swap, error)

	// --- Bank accounts ---
	CreateBankAccount(ctx context.Context, params CreateBankAccountParams) (*models.BankAccount, error)
	GetBankAccount(ctx context.Context, userId string) (*models.BankAccount, error)

	// --- Ledger ---
	ApplyMovement(ctx context.Context, movement BalanceMovement) (*models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context, walletId string, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileWallet(ctx context.Context, walletId string) error

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
