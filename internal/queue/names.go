package queue

// Queues fed by exchange webhooks
const (
	AssignWalletAddress = "assign-wallet-address-queue"
	DepositConfirmation = "deposit-confirmation-queue"
	DepositSuccessful   = "deposit-successful-queue"
	SuccessfulSwap      = "successful-swap-queue"
	FailedSwap          = "failed-swap-queue"
	FinalizeSwap        = "finalize-swap-queue"
)

// Queues fed by the services and by other stages
const (
	CreateWallet  = "create-wallet-queue"
	PendingSwap   = "pending-swap-queue"
	SweepRequest  = "sweep-request-queue"
	PayoutRequest = "payout-request-queue"
)

// All lists every queue the pipeline consumes.
var All = []string{
	CreateWallet,
	AssignWalletAddress,
	DepositConfirmation,
	DepositSuccessful,
	PendingSwap,
	SuccessfulSwap,
	FailedSwap,
	SweepRequest,
	FinalizeSwap,
	PayoutRequest,
}
