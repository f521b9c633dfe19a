package formance

import (
	"context"
	"fmt"
	"strings"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Account layout:
//
//	platform:deposits:<currency>   funds arriving from chain (overdraft allowed)
//	users:<user_id>:available      spendable balance
//	users:<user_id>:locked         reserved for an executing swap
//	platform:swaps:<currency>      crypto consumed by settled swaps

const numscriptDepositCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $currency
  string $reference
  string $job_id
}

send [$asset $amount] (
  source = @platform:deposits:$currency allowing unbounded overdraft
  destination = @users:$user_id:available
)

set_tx_meta("entry_type", "deposit_credit")
set_tx_meta("reference", $reference)
set_tx_meta("job_id", $job_id)
`

const numscriptSwapReserve = `vars {
  asset $asset
  number $amount
  account $user_id
  string $currency
  string $reference
  string $job_id
}

send [$asset $amount] (
  source = @users:$user_id:available
  destination = @users:$user_id:locked
)

set_tx_meta("entry_type", "swap_reserve")
set_tx_meta("reference", $reference)
set_tx_meta("job_id", $job_id)
`

const numscriptSwapUnlock = `vars {
  asset $asset
  number $amount
  account $user_id
  string $currency
  string $reference
  string $job_id
}

send [$asset $amount] (
  source = @users:$user_id:locked
  destination = @users:$user_id:available
)

set_tx_meta("entry_type", "swap_unlock")
set_tx_meta("reference", $reference)
set_tx_meta("job_id", $job_id)
`

const numscriptSwapRelease = `vars {
  asset $asset
  number $amount
  account $user_id
  string $currency
  string $reference
  string $job_id
}

send [$asset $amount] (
  source = @users:$user_id:locked
  destination = @platform:swaps:$currency
)

set_tx_meta("entry_type", "swap_release")
set_tx_meta("reference", $reference)
set_tx_meta("job_id", $job_id)
`

var numscripts = map[string]string{
	models.EntryDepositCredit: numscriptDepositCredit,
	models.EntrySwapReserve:   numscriptSwapReserve,
	models.EntrySwapUnlock:    numscriptSwapUnlock,
	models.EntrySwapRelease:   numscriptSwapRelease,
}

// RecordMovement posts one balance movement. The movement reference is the
// transaction reference, so a redelivered movement is a no-op.
func (s *Service) RecordMovement(ctx context.Context, movement store.BalanceMovement) error {
	postTx, err := buildTransaction(movement, s.scaleFor(movement.Currency), jobId(ctx))
	if err != nil {
		return err
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Movement already journaled", zap.String("reference", movement.Reference))
			return nil
		}
		return fmt.Errorf("failed to journal %s: %w", movement.Reference, err)
	}

	zap.L().Debug("Movement journaled in Formance",
		zap.String("reference", movement.Reference),
		zap.String("entry_type", movement.EntryType))
	return nil
}

func buildTransaction(movement store.BalanceMovement, scale int32, jobId string) (shared.V2PostTransaction, error) {
	script, ok := numscripts[movement.EntryType]
	if !ok {
		return shared.V2PostTransaction{}, fmt.Errorf("no journal script for entry type %q", movement.EntryType)
	}

	amount := movementAmount(movement)
	units := amount.Shift(scale)
	if !units.IsInteger() || !units.IsPositive() {
		return shared.V2PostTransaction{}, fmt.Errorf("cannot journal %s of %s at scale %d", movement.Reference, amount.String(), scale)
	}

	currency := strings.ToLower(movement.Currency)
	return shared.V2PostTransaction{
		Reference: strPtr(movement.Reference),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":     formanceAsset(currency, scale),
				"amount":    units.BigInt().String(),
				"user_id":   movement.UserId,
				"currency":  currency,
				"reference": movement.Reference,
				"job_id":    jobId,
			},
		},
	}, nil
}

// movementAmount is the size of the transfer, whichever side it moves
func movementAmount(movement store.BalanceMovement) decimal.Decimal {
	available := movement.AvailableDelta.Abs()
	locked := movement.LockedDelta.Abs()
	if locked.GreaterThan(available) {
		return locked
	}
	return available
}

func jobId(ctx context.Context) string {
	if jc := models.GetJobContext(ctx); jc != nil {
		return jc.JobId
	}
	return "none"
}
