package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"swap-settlement-go/internal/gateway"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestDepositSettlement_CreditsOnce(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)

	job := models.DepositJob{
		Id:       "dep-1",
		Currency: "trx",
		Amount:   decimal.NewFromInt(10),
		TxId:     "0xdep",
		User:     models.EventUser{Id: "sub-john"},
	}

	if _, err := process(t, &DepositConfirmation{env.deps}, job); err != nil {
		t.Fatalf("Failed to confirm deposit: %v", err)
	}
	env.assertBalances(t, "0", "0")

	if _, err := process(t, &DepositSettlement{env.deps}, job); err != nil {
		t.Fatalf("Failed to settle deposit: %v", err)
	}
	env.assertBalances(t, "10", "0")

	_, err := process(t, &DepositSettlement{env.deps}, job)
	if Classify(err) != OutcomeDuplicate {
		t.Fatalf("Expected duplicate on redelivery, got %v", err)
	}
	env.assertBalances(t, "10", "0")

	_, err = process(t, &DepositConfirmation{env.deps}, job)
	if Classify(err) != OutcomeDuplicate {
		t.Errorf("Expected late confirmation to be a duplicate, got %v", err)
	}

	if got := len(env.notifier.sent("chat-john")); got != 2 {
		t.Errorf("Expected 2 notifications, got %d", got)
	}
	if len(env.journal.references) != 1 || env.journal.references[0] != "deposit:dep-1" {
		t.Errorf("Expected one mirrored deposit credit, got %v", env.journal.references)
	}
}

func TestDepositSettlement_UnknownUserAndMissingWallet(t *testing.T) {
	env := setupTestEnv(t)

	job := models.DepositJob{
		Id:       "dep-1",
		Currency: "trx",
		Amount:   decimal.NewFromInt(10),
		User:     models.EventUser{Id: "sub-john"},
	}
	_, err := process(t, &DepositSettlement{env.deps}, job)
	if !errors.Is(err, ErrPrerequisitePending) {
		t.Errorf("Expected ErrPrerequisitePending without a wallet, got %v", err)
	}

	job.User.Id = "sub-nobody"
	_, err = process(t, &DepositSettlement{env.deps}, job)
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Expected ErrUnknownUser, got %v", err)
	}
	if Classify(err) != OutcomeDrop {
		t.Errorf("Expected unknown user to be dropped")
	}
}

func TestWalletProvisioning(t *testing.T) {
	env := setupTestEnv(t)
	env.exchange.addresses["usdt"] = "TUsdtAddress"
	ctx := context.Background()

	job := models.WalletProvisioningJob{UserId: env.user.Id, SubUserId: "sub-john"}
	if _, err := process(t, &WalletProvisioning{env.deps}, job); err != nil {
		t.Fatalf("Failed to provision wallets: %v", err)
	}

	trx, err := env.db.GetWallet(ctx, env.user.Id, "trx")
	if err != nil {
		t.Fatalf("Expected trx wallet: %v", err)
	}
	if !trx.InProgress || len(trx.Addresses) != 0 {
		t.Errorf("Expected trx wallet waiting for its address, got in_progress=%v addresses=%d", trx.InProgress, len(trx.Addresses))
	}

	usdt, err := env.db.GetWallet(ctx, env.user.Id, "usdt")
	if err != nil {
		t.Fatalf("Expected usdt wallet: %v", err)
	}
	if len(usdt.Addresses) != 1 || usdt.Addresses[0].Address != "TUsdtAddress" {
		t.Errorf("Expected immediate usdt address, got %+v", usdt.Addresses)
	}

	// Reprovisioning requests nothing new.
	if _, err := process(t, &WalletProvisioning{env.deps}, job); err != nil {
		t.Fatalf("Failed to reprovision wallets: %v", err)
	}
	if env.exchange.nextId != 2 {
		t.Errorf("Expected 2 address requests, got %d", env.exchange.nextId)
	}

	address := models.AddressGeneratedJob{
		Id:       "addr-evt",
		Currency: "trx",
		Address:  "TTrxAddress",
		Network:  "TRC20",
		User:     models.EventUser{Id: "sub-john"},
	}
	if _, err := process(t, &AddressAssignment{env.deps}, address); err != nil {
		t.Fatalf("Failed to assign address: %v", err)
	}
	_, err = process(t, &AddressAssignment{env.deps}, address)
	if Classify(err) != OutcomeDuplicate {
		t.Errorf("Expected duplicate address event, got %v", err)
	}

	trx, _ = env.db.GetWallet(ctx, env.user.Id, "trx")
	if len(trx.Addresses) != 1 || trx.Addresses[0].Network != "trc20" {
		t.Errorf("Expected one lower-cased trc20 address, got %+v", trx.Addresses)
	}
}

func TestSwapInitiation_ReservesFunds(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	swap := env.approvedSwap(t, "quote-1", "4")

	job := models.SwapInitiationJob{SwapId: swap.Id}
	if _, err := process(t, &SwapInitiation{env.deps}, job); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}
	env.assertBalances(t, "6", "4")

	_, err := process(t, &SwapInitiation{env.deps}, job)
	if Classify(err) != OutcomeDuplicate {
		t.Fatalf("Expected duplicate approval, got %v", err)
	}
	env.assertBalances(t, "6", "4")

	if env.exchange.confirms != 1 {
		t.Errorf("Expected one confirmation at the exchange, got %d", env.exchange.confirms)
	}
}

func TestSwapInitiation_InsufficientBalance(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)
	env.deposit(t, "dep-1", "3")
	swap := env.approvedSwap(t, "quote-1", "4")

	_, err := process(t, &SwapInitiation{env.deps}, models.SwapInitiationJob{SwapId: swap.Id})
	if Classify(err) != OutcomeDrop {
		t.Fatalf("Expected insufficient balance to be dropped, got %v", err)
	}
	if env.exchange.confirms != 0 {
		t.Errorf("Expected no confirmation at the exchange")
	}
	if state := env.swapState(t, swap.Id); state != models.SwapFailed {
		t.Errorf("Expected swap_failed, got %s", state)
	}
	env.assertBalances(t, "3", "0")

	sent := env.notifier.sent("chat-john")
	if len(sent) == 0 || !strings.Contains(sent[len(sent)-1], "available balance is 3") {
		t.Errorf("Expected insufficient balance notification, got %v", sent)
	}
}

func TestSwapInitiation_GatewayErrors(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	swap := env.approvedSwap(t, "quote-1", "4")
	job := models.SwapInitiationJob{SwapId: swap.Id}

	env.exchange.confirmErr = &gateway.Error{Operation: "confirm swap quotation", StatusCode: 503}
	_, err := process(t, &SwapInitiation{env.deps}, job)
	if Classify(err) != OutcomeRetry {
		t.Fatalf("Expected transient failure to be retried, got %v", err)
	}
	if state := env.swapState(t, swap.Id); state != models.SwapAwaitingApproval {
		t.Errorf("Expected swap still awaiting approval, got %s", state)
	}

	env.exchange.confirmErr = &gateway.Error{Operation: "confirm swap quotation", StatusCode: 422, Message: "quotation expired"}
	_, err = process(t, &SwapInitiation{env.deps}, job)
	if Classify(err) != OutcomeDrop {
		t.Fatalf("Expected rejection to be dropped, got %v", err)
	}
	if state := env.swapState(t, swap.Id); state != models.SwapFailed {
		t.Errorf("Expected swap_failed, got %s", state)
	}
	env.assertBalances(t, "10", "0")
}

func TestSwapInitiation_RefusalOnRetry(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	swap := env.approvedSwap(t, "quote-1", "4")

	env.exchange.confirmErr = &gateway.Error{Operation: "confirm swap quotation", StatusCode: 400, Message: "quotation already confirmed"}
	payload, _ := json.Marshal(models.SwapInitiationJob{SwapId: swap.Id})
	ctx := models.WithJobContext(context.Background(), &models.JobContext{JobId: "job-1", Attempt: 2})

	_, err := (&SwapInitiation{env.deps}).Process(ctx, payload)
	if Classify(err) != OutcomeDeadLetter {
		t.Fatalf("Expected refusal on retry to need an operator, got %v", err)
	}
	if state := env.swapState(t, swap.Id); state != models.SwapAwaitingApproval {
		t.Errorf("Expected swap to stay awaiting_approval, got %s", state)
	}
	if sent := env.notifier.sent("chat-john"); len(sent) != 1 {
		t.Errorf("Expected only the deposit notification, got %v", sent)
	}
}

func TestSwapFailure_UnlocksFunds(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	swap := env.approvedSwap(t, "quote-1", "4")

	if _, err := process(t, &SwapInitiation{env.deps}, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}

	reversed := models.SwapTransactionJob{Event: models.EventSwapReversed, Id: "tx-quote-1"}
	if _, err := process(t, &SwapFailure{env.deps}, reversed); err != nil {
		t.Fatalf("Failed to handle reversal: %v", err)
	}
	env.assertBalances(t, "10", "0")

	_, err := process(t, &SwapFailure{env.deps}, reversed)
	if Classify(err) != OutcomeDuplicate {
		t.Errorf("Expected duplicate reversal, got %v", err)
	}
	env.assertBalances(t, "10", "0")

	// A completion arriving after the failure cannot settle it.
	_, err = process(t, &SwapSettlement{env.deps}, models.SwapTransactionJob{Id: "tx-quote-1"})
	if Classify(err) != OutcomeDrop {
		t.Errorf("Expected completion after failure to be dropped, got %v", err)
	}
}

func TestSwapSettlement_BeforeInitiation(t *testing.T) {
	env := setupTestEnv(t)

	_, err := process(t, &SwapSettlement{env.deps}, models.SwapTransactionJob{Id: "tx-unknown"})
	if !errors.Is(err, ErrPrerequisitePending) {
		t.Errorf("Expected ErrPrerequisitePending, got %v", err)
	}
}

func TestSettlementFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")

	_, err := env.db.CreateBankAccount(ctx, store.CreateBankAccountParams{
		UserId:        env.user.Id,
		AccountNumber: "0123456789",
		AccountName:   "JOHN OKORO",
		BankCode:      "058",
	})
	if err != nil {
		t.Fatalf("Failed to create bank account: %v", err)
	}

	swap := env.approvedSwap(t, "quote-1", "4")

	if _, err := process(t, &SwapInitiation{env.deps}, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}
	env.assertBalances(t, "6", "4")

	completed := models.SwapTransactionJob{
		Event:          models.EventSwapCompleted,
		Id:             "tx-quote-1",
		ReceivedAmount: decimal.NewFromInt(1000),
	}
	next, err := process(t, &SwapSettlement{env.deps}, completed)
	if err != nil {
		t.Fatalf("Failed to settle swap: %v", err)
	}
	if next == nil || next.Queue != queue.SweepRequest {
		t.Fatalf("Expected sweep request, got %+v", next)
	}

	// A redelivered completion re-emits the sweep without settling twice.
	again, err := process(t, &SwapSettlement{env.deps}, completed)
	if err != nil || again == nil || again.Queue != queue.SweepRequest {
		t.Fatalf("Expected sweep request to be re-emitted, got %+v, %v", again, err)
	}

	if _, err := process(t, &SweepRequest{env.deps}, next.Job); err != nil {
		t.Fatalf("Failed to request sweep: %v", err)
	}
	if len(env.exchange.withdrawals) != 1 {
		t.Fatalf("Expected one sweep, got %d", len(env.exchange.withdrawals))
	}
	sweep := env.exchange.withdrawals[0]
	if sweep.FundUid != testMasterAccount || sweep.Amount != "1000" || sweep.Currency != "ngn" {
		t.Errorf("Unexpected sweep request %+v", sweep)
	}

	_, err = process(t, &SweepRequest{env.deps}, next.Job)
	if Classify(err) != OutcomeDuplicate {
		t.Errorf("Expected duplicate sweep request, got %v", err)
	}

	current, _ := env.db.GetSwapById(ctx, swap.Id)
	sweepDone := models.WithdrawalJob{
		Event: models.EventWithdrawSuccessful,
		Id:    current.SweepId,
		User:  models.EventUser{Id: "sub-john"},
	}
	next, err = process(t, &WithdrawalFinalization{env.deps}, sweepDone)
	if err != nil {
		t.Fatalf("Failed to settle sweep: %v", err)
	}
	if next == nil || next.Queue != queue.PayoutRequest {
		t.Fatalf("Expected payout request, got %+v", next)
	}

	if _, err := process(t, &PayoutRequest{env.deps}, next.Job); err != nil {
		t.Fatalf("Failed to request payout: %v", err)
	}
	if len(env.exchange.payouts) != 1 {
		t.Fatalf("Expected one payout, got %d", len(env.exchange.payouts))
	}
	payout := env.exchange.payouts[0]
	if payout.Amount != "800" {
		t.Errorf("Expected payout of 800 after fee, got %s", payout.Amount)
	}
	if payout.Bank.AccountNumber != "0123456789" || payout.Bank.BankCode != "058" {
		t.Errorf("Unexpected payout destination %+v", payout.Bank)
	}
	env.assertBalances(t, "6", "4")

	current, _ = env.db.GetSwapById(ctx, swap.Id)
	payoutDone := models.WithdrawalJob{
		Event: models.EventWithdrawSuccessful,
		Id:    current.WithdrawId,
		User:  models.EventUser{Id: testMasterAccount},
	}
	if _, err := process(t, &WithdrawalFinalization{env.deps}, payoutDone); err != nil {
		t.Fatalf("Failed to finalize payout: %v", err)
	}
	if state := env.swapState(t, swap.Id); state != models.SwapFinalized {
		t.Errorf("Expected finalized, got %s", state)
	}
	env.assertBalances(t, "6", "0")

	_, err = process(t, &WithdrawalFinalization{env.deps}, payoutDone)
	if Classify(err) != OutcomeDuplicate {
		t.Errorf("Expected duplicate finalization, got %v", err)
	}
	env.assertBalances(t, "6", "0")

	sent := env.notifier.sent("chat-john")
	if len(sent) == 0 || !strings.Contains(sent[len(sent)-1], "₦800") {
		t.Errorf("Expected payout notification for ₦800, got %v", sent)
	}

	want := []string{"deposit:dep-1", "swap:" + swap.Id + ":reserve", "swap:" + swap.Id + ":release"}
	if strings.Join(env.journal.references, ",") != strings.Join(want, ",") {
		t.Errorf("Expected mirrored movements %v, got %v", want, env.journal.references)
	}
}

func TestPayoutRequest_MissingBankAccount(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	swap := env.approvedSwap(t, "quote-1", "4")

	if _, err := process(t, &SwapInitiation{env.deps}, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}
	next, err := process(t, &SwapSettlement{env.deps}, models.SwapTransactionJob{Id: "tx-quote-1"})
	if err != nil {
		t.Fatalf("Failed to settle swap: %v", err)
	}
	if _, err := process(t, &SweepRequest{env.deps}, next.Job); err != nil {
		t.Fatalf("Failed to request sweep: %v", err)
	}
	current, _ := env.db.GetSwapById(ctx, swap.Id)
	next, err = process(t, &WithdrawalFinalization{env.deps}, models.WithdrawalJob{
		Id:   current.SweepId,
		User: models.EventUser{Id: "sub-john"},
	})
	if err != nil {
		t.Fatalf("Failed to settle sweep: %v", err)
	}

	_, err = process(t, &PayoutRequest{env.deps}, next.Job)
	if Classify(err) != OutcomeDrop {
		t.Fatalf("Expected missing bank account to be dropped, got %v", err)
	}
	if len(env.exchange.payouts) != 0 {
		t.Errorf("Expected no payout")
	}
	if state := env.swapState(t, swap.Id); state != models.SweepSettled {
		t.Errorf("Expected swap to stay sweep_settled, got %s", state)
	}

	sent := env.notifier.sent("chat-john")
	if len(sent) == 0 || !strings.Contains(sent[len(sent)-1], "bank account") {
		t.Errorf("Expected missing bank account notification, got %v", sent)
	}
}

func TestPayoutRequest_FeeExceedsProceeds(t *testing.T) {
	env := setupTestEnv(t)
	env.deps.Settlement.FixedFee = decimal.NewFromInt(1000)
	ctx := context.Background()
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	_, _ = env.db.CreateBankAccount(ctx, store.CreateBankAccountParams{
		UserId:        env.user.Id,
		AccountNumber: "0123456789",
		AccountName:   "JOHN OKORO",
		BankCode:      "058",
	})
	swap := env.approvedSwap(t, "quote-1", "4")

	if _, err := process(t, &SwapInitiation{env.deps}, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}
	next, _ := process(t, &SwapSettlement{env.deps}, models.SwapTransactionJob{Id: "tx-quote-1"})
	if _, err := process(t, &SweepRequest{env.deps}, next.Job); err != nil {
		t.Fatalf("Failed to request sweep: %v", err)
	}
	current, _ := env.db.GetSwapById(ctx, swap.Id)
	next, _ = process(t, &WithdrawalFinalization{env.deps}, models.WithdrawalJob{
		Id:   current.SweepId,
		User: models.EventUser{Id: "sub-john"},
	})

	_, err := process(t, &PayoutRequest{env.deps}, next.Job)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if len(env.exchange.payouts) != 0 {
		t.Errorf("Expected no payout")
	}
}

func TestWithdrawalFinalization_SweepRejected(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.seedWallet(t)
	env.deposit(t, "dep-1", "10")
	swap := env.approvedSwap(t, "quote-1", "4")

	if _, err := process(t, &SwapInitiation{env.deps}, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}
	next, _ := process(t, &SwapSettlement{env.deps}, models.SwapTransactionJob{Id: "tx-quote-1"})
	if _, err := process(t, &SweepRequest{env.deps}, next.Job); err != nil {
		t.Fatalf("Failed to request sweep: %v", err)
	}
	current, _ := env.db.GetSwapById(ctx, swap.Id)

	rejected := models.WithdrawalJob{
		Event: models.EventWithdrawRejected,
		Id:    current.SweepId,
		User:  models.EventUser{Id: "sub-john"},
	}
	next, err := process(t, &WithdrawalFinalization{env.deps}, rejected)
	if err != nil || next != nil {
		t.Fatalf("Expected rejected sweep to end the flow, got %+v, %v", next, err)
	}
	if state := env.swapState(t, swap.Id); state != models.SweepFailed {
		t.Errorf("Expected sweep_failed, got %s", state)
	}
	env.assertBalances(t, "6", "4")

	_, err = process(t, &WithdrawalFinalization{env.deps}, rejected)
	if Classify(err) != OutcomeDuplicate {
		t.Errorf("Expected duplicate rejection, got %v", err)
	}
}

func TestWithdrawalFinalization_UnknownWithdrawal(t *testing.T) {
	env := setupTestEnv(t)

	_, err := process(t, &WithdrawalFinalization{env.deps}, models.WithdrawalJob{
		Id:   "wd-unknown",
		User: models.EventUser{Id: testMasterAccount},
	})
	if !errors.Is(err, ErrPrerequisitePending) {
		t.Errorf("Expected ErrPrerequisitePending, got %v", err)
	}
}

func TestDepositSettlement_UnbookableAmountIsKept(t *testing.T) {
	env := setupTestEnv(t)
	env.seedWallet(t)

	job := models.DepositJob{
		Id:       "dep-1",
		Currency: "trx",
		Amount:   decimal.RequireFromString("0.0000001"),
		User:     models.EventUser{Id: "sub-john"},
	}
	_, err := process(t, &DepositSettlement{env.deps}, job)
	if Classify(err) != OutcomeDeadLetter {
		t.Fatalf("Expected unbookable deposit to be dead-lettered, got %v", err)
	}
	env.assertBalances(t, "0", "0")
}

// settledSwap drives a 4 trx swap to swap_settled and returns it.
func (e *testEnv) settledSwap(t *testing.T) *models.Swap {
	t.Helper()
	e.seedWallet(t)
	e.deposit(t, "dep-1", "10")
	swap := e.approvedSwap(t, "quote-1", "4")

	if _, err := process(t, &SwapInitiation{e.deps}, models.SwapInitiationJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to initiate swap: %v", err)
	}
	if _, err := process(t, &SwapSettlement{e.deps}, models.SwapTransactionJob{Id: "tx-quote-1"}); err != nil {
		t.Fatalf("Failed to settle swap: %v", err)
	}
	return swap
}

// sweptSwap drives a swap to sweep_settled with a bank account on file.
func (e *testEnv) sweptSwap(t *testing.T) *models.Swap {
	t.Helper()
	ctx := context.Background()
	swap := e.settledSwap(t)

	_, err := e.db.CreateBankAccount(ctx, store.CreateBankAccountParams{
		UserId:        e.user.Id,
		AccountNumber: "0123456789",
		AccountName:   "JOHN OKORO",
		BankCode:      "058",
	})
	if err != nil {
		t.Fatalf("Failed to create bank account: %v", err)
	}
	if _, err := process(t, &SweepRequest{e.deps}, models.SweepRequestJob{SwapId: swap.Id}); err != nil {
		t.Fatalf("Failed to request sweep: %v", err)
	}
	current, _ := e.db.GetSwapById(ctx, swap.Id)
	if _, err := process(t, &WithdrawalFinalization{e.deps}, models.WithdrawalJob{
		Id:   current.SweepId,
		User: models.EventUser{Id: "sub-john"},
	}); err != nil {
		t.Fatalf("Failed to settle sweep: %v", err)
	}
	return swap
}

func TestSweepRequest_StoreFailureNeverSendsTwice(t *testing.T) {
	t.Run("before the attempt is recorded", func(t *testing.T) {
		env := setupTestEnv(t)
		swap := env.settledSwap(t)
		flaky := &flakyStore{LedgerStore: env.db, failAdvance: errors.New("database is locked")}
		env.deps.Store = flaky
		job := models.SweepRequestJob{SwapId: swap.Id}

		_, err := process(t, &SweepRequest{env.deps}, job)
		if Classify(err) != OutcomeRetry {
			t.Fatalf("Expected retry, got %v", err)
		}
		if len(env.exchange.withdrawals) != 0 {
			t.Fatalf("Expected no sweep before the attempt is recorded")
		}

		if _, err := process(t, &SweepRequest{env.deps}, job); err != nil {
			t.Fatalf("Failed to request sweep on retry: %v", err)
		}
		if len(env.exchange.withdrawals) != 1 {
			t.Errorf("Expected one sweep, got %d", len(env.exchange.withdrawals))
		}
	})

	t.Run("after the exchange accepted it", func(t *testing.T) {
		env := setupTestEnv(t)
		swap := env.settledSwap(t)
		flaky := &flakyStore{LedgerStore: env.db, failRecord: errors.New("database is locked")}
		env.deps.Store = flaky
		job := models.SweepRequestJob{SwapId: swap.Id}

		_, err := process(t, &SweepRequest{env.deps}, job)
		if Classify(err) != OutcomeDeadLetter {
			t.Fatalf("Expected unrecorded sweep to be dead-lettered, got %v", err)
		}
		if !strings.Contains(err.Error(), "sweep-") {
			t.Errorf("Expected the exchange sweep id in the error, got %v", err)
		}

		_, err = process(t, &SweepRequest{env.deps}, job)
		if Classify(err) != OutcomeDeadLetter {
			t.Fatalf("Expected replay to need an operator, got %v", err)
		}
		if len(env.exchange.withdrawals) != 1 {
			t.Errorf("Expected exactly one sweep, got %d", len(env.exchange.withdrawals))
		}
		if state := env.swapState(t, swap.Id); state != models.SweepProcessing {
			t.Errorf("Expected sweep_processing, got %s", state)
		}
	})
}

func TestSweepRequest_GatewayErrors(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		env := setupTestEnv(t)
		swap := env.settledSwap(t)
		env.exchange.withdrawErr = &gateway.Error{Operation: "create withdrawal", StatusCode: 422, Message: "insufficient funds"}

		_, err := process(t, &SweepRequest{env.deps}, models.SweepRequestJob{SwapId: swap.Id})
		if err != nil {
			t.Fatalf("Expected rejection to be handled, got %v", err)
		}
		if state := env.swapState(t, swap.Id); state != models.SweepFailed {
			t.Errorf("Expected sweep_failed, got %s", state)
		}
		env.assertBalances(t, "6", "4")
	})

	t.Run("unknown outcome", func(t *testing.T) {
		env := setupTestEnv(t)
		swap := env.settledSwap(t)
		env.exchange.withdrawErr = &gateway.Error{Operation: "create withdrawal", StatusCode: 504}

		_, err := process(t, &SweepRequest{env.deps}, models.SweepRequestJob{SwapId: swap.Id})
		if Classify(err) != OutcomeDeadLetter {
			t.Fatalf("Expected timeout to be dead-lettered, got %v", err)
		}
		if state := env.swapState(t, swap.Id); state != models.SweepProcessing {
			t.Errorf("Expected sweep_processing, got %s", state)
		}
	})
}

func TestPayoutRequest_StoreFailureNeverPaysTwice(t *testing.T) {
	env := setupTestEnv(t)
	swap := env.sweptSwap(t)
	flaky := &flakyStore{LedgerStore: env.db, failRecord: errors.New("database is locked")}
	env.deps.Store = flaky
	job := models.PayoutRequestJob{SwapId: swap.Id}

	_, err := process(t, &PayoutRequest{env.deps}, job)
	if Classify(err) != OutcomeDeadLetter {
		t.Fatalf("Expected unrecorded payout to be dead-lettered, got %v", err)
	}

	_, err = process(t, &PayoutRequest{env.deps}, job)
	if Classify(err) != OutcomeDeadLetter {
		t.Fatalf("Expected replay to need an operator, got %v", err)
	}
	if len(env.exchange.payouts) != 1 {
		t.Errorf("Expected exactly one payout, got %d", len(env.exchange.payouts))
	}

	current, _ := env.db.GetSwapById(context.Background(), swap.Id)
	if current.State != models.PayoutProcessing || current.WithdrawId != "" {
		t.Errorf("Expected payout_processing without a withdraw id, got %s / %q", current.State, current.WithdrawId)
	}
	if !current.WithdrawAmount.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Expected attempted payout of 800 to be recorded, got %s", current.WithdrawAmount)
	}
}

func TestPayoutRequest_Rejected(t *testing.T) {
	env := setupTestEnv(t)
	swap := env.sweptSwap(t)
	env.exchange.payoutErr = &gateway.Error{Operation: "create bank withdrawal", StatusCode: 400, Message: "invalid account"}

	_, err := process(t, &PayoutRequest{env.deps}, models.PayoutRequestJob{SwapId: swap.Id})
	if Classify(err) != OutcomeDeadLetter {
		t.Fatalf("Expected rejected payout to be dead-lettered, got %v", err)
	}
	if state := env.swapState(t, swap.Id); state != models.PayoutProcessing {
		t.Errorf("Expected payout_processing, got %s", state)
	}
	env.assertBalances(t, "6", "4")
}
