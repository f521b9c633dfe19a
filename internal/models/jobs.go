package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidJob is returned by Validate for payloads that must never reach a worker.
var ErrInvalidJob = errors.New("invalid job payload")

// Webhook event types
const (
	EventAddressGenerated    = "wallet.address.generated"
	EventDepositConfirmation = "deposit.transaction.confirmation"
	EventDepositSuccessful   = "deposit.successful"
	EventSwapCompleted       = "swap_transaction.completed"
	EventSwapReversed        = "swap_transaction.reversed"
	EventSwapFailed          = "swap_transaction.failed"
	EventWithdrawSuccessful  = "withdraw.successful"
	EventWithdrawRejected    = "withdraw.rejected"
)

// WebhookEvent is the envelope posted by the exchange
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventUser identifies the exchange account an event belongs to
type EventUser struct {
	Id string `json:"id"`
}

// Job is implemented by every queue payload. PartitionKey names the entity
// the job mutates; jobs sharing a key are never processed concurrently.
type Job interface {
	Validate() error
	PartitionKey() string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, args...))
}

// WalletProvisioningJob is enqueued once a user has an exchange sub-account
type WalletProvisioningJob struct {
	UserId    string `json:"userId"`
	SubUserId string `json:"subUserId"`
	Email     string `json:"email"`
}

func (j WalletProvisioningJob) Validate() error {
	if j.UserId == "" || j.SubUserId == "" {
		return invalid("wallet provisioning requires userId and subUserId")
	}
	return nil
}

func (j WalletProvisioningJob) PartitionKey() string { return "user:" + j.UserId }

// AddressGeneratedJob carries wallet.address.generated data
type AddressGeneratedJob struct {
	Id             string    `json:"id"`
	Currency       string    `json:"currency"`
	Address        string    `json:"address"`
	Network        string    `json:"network"`
	DestinationTag string    `json:"destination_tag"`
	User           EventUser `json:"user"`
}

func (j AddressGeneratedJob) Validate() error {
	if j.User.Id == "" {
		return invalid("address event without user id")
	}
	if j.Currency == "" || j.Address == "" {
		return invalid("address event requires currency and address")
	}
	return nil
}

func (j AddressGeneratedJob) PartitionKey() string {
	return "wallet:" + j.User.Id + ":" + strings.ToLower(j.Currency)
}

// EventPaymentAddress is the address a deposit was received on
type EventPaymentAddress struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// DepositJob carries deposit.transaction.confirmation and deposit.successful data
type DepositJob struct {
	Id             string              `json:"id"`
	Currency       string              `json:"currency"`
	Amount         decimal.Decimal     `json:"amount"`
	TxId           string              `json:"txid"`
	Status         string              `json:"status"`
	User           EventUser           `json:"user"`
	PaymentAddress EventPaymentAddress `json:"payment_address"`
}

func (j DepositJob) Validate() error {
	if j.Id == "" {
		return invalid("deposit event without id")
	}
	if j.User.Id == "" || j.Currency == "" {
		return invalid("deposit %s requires user and currency", j.Id)
	}
	if !j.Amount.IsPositive() {
		return invalid("deposit %s has non-positive amount %s", j.Id, j.Amount)
	}
	return nil
}

func (j DepositJob) PartitionKey() string { return "deposit:" + j.Id }

// SwapInitiationJob is enqueued when a user approves a quoted swap
type SwapInitiationJob struct {
	SwapId string `json:"swapId"`
}

func (j SwapInitiationJob) Validate() error {
	if j.SwapId == "" {
		return invalid("swap initiation without swapId")
	}
	return nil
}

func (j SwapInitiationJob) PartitionKey() string { return "swap:" + j.SwapId }

// SwapTransactionJob carries swap_transaction.* data. Event is filled in by
// the dispatcher so failure handling can tell reversals from failures.
type SwapTransactionJob struct {
	Event          string          `json:"event,omitempty"`
	Id             string          `json:"id"`
	Status         string          `json:"status"`
	FromCurrency   string          `json:"from_currency"`
	ToCurrency     string          `json:"to_currency"`
	FromAmount     decimal.Decimal `json:"from_amount"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	User           EventUser       `json:"user"`
}

func (j SwapTransactionJob) Validate() error {
	if j.Id == "" {
		return invalid("swap transaction event without id")
	}
	if j.ReceivedAmount.IsNegative() {
		return invalid("swap transaction %s has negative received amount", j.Id)
	}
	return nil
}

func (j SwapTransactionJob) PartitionKey() string { return "swap-tx:" + j.Id }

// WithdrawalJob carries withdraw.* data
type WithdrawalJob struct {
	Event     string          `json:"event,omitempty"`
	Id        string          `json:"id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	User      EventUser       `json:"user"`
}

func (j WithdrawalJob) Validate() error {
	if j.Id == "" || j.User.Id == "" {
		return invalid("withdrawal event requires id and user")
	}
	return nil
}

func (j WithdrawalJob) PartitionKey() string { return "withdraw:" + j.Id }

// Rejected reports whether the exchange refused the withdrawal
func (j WithdrawalJob) Rejected() bool {
	return j.Event == EventWithdrawRejected
}

// SweepRequestJob asks for the converted fiat to be moved to the master account
type SweepRequestJob struct {
	SwapId string `json:"swapId"`
}

func (j SweepRequestJob) Validate() error {
	if j.SwapId == "" {
		return invalid("sweep request without swapId")
	}
	return nil
}

func (j SweepRequestJob) PartitionKey() string { return "swap:" + j.SwapId }

// PayoutRequestJob asks for the swept fiat to be paid to the user's bank
type PayoutRequestJob struct {
	SwapId string `json:"swapId"`
}

func (j PayoutRequestJob) Validate() error {
	if j.SwapId == "" {
		return invalid("payout request without swapId")
	}
	return nil
}

func (j PayoutRequestJob) PartitionKey() string { return "swap:" + j.SwapId }
