package models

import "github.com/shopspring/decimal"

// SubAccount is an exchange sub-user owned by the platform account
type SubAccount struct {
	Id        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CurrencyWallet is the exchange-side wallet of a sub-account
type CurrencyWallet struct {
	Id       string          `json:"id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// PaymentAddress is returned when an address is requested. The address itself
// usually arrives later through a wallet.address.generated event.
type PaymentAddress struct {
	Id             string `json:"id"`
	Currency       string `json:"currency"`
	Address        string `json:"address"`
	Network        string `json:"network"`
	DestinationTag string `json:"destination_tag"`
}

// SwapQuoteRequest asks for or refreshes an instant swap quotation
type SwapQuoteRequest struct {
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	FromAmount   string `json:"from_amount"`
}

// SwapQuotation is a priced, confirmable swap offer
type SwapQuotation struct {
	Id           string          `json:"id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	QuotedPrice  decimal.Decimal `json:"quoted_price"`
}

// SwapTransaction is created when a quotation is confirmed
type SwapTransaction struct {
	Id             string          `json:"id"`
	Status         string          `json:"status"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
}

// WithdrawalRequest moves funds out of an exchange account. FundUid is the
// destination account (or bank account number); FundUid2 is the bank code.
type WithdrawalRequest struct {
	Currency        string `json:"currency"`
	Amount          string `json:"amount"`
	FundUid         string `json:"fund_uid"`
	FundUid2        string `json:"fund_uid2,omitempty"`
	TransactionNote string `json:"transaction_note,omitempty"`
	Narration       string `json:"narration,omitempty"`
	Reference       string `json:"reference,omitempty"`
}

// Withdrawal is the exchange's acknowledgement of a withdrawal request
type Withdrawal struct {
	Id        string          `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}

// BankAccountDetails is the result of bank account name resolution
type BankAccountDetails struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}
