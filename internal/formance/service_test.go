package formance

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		currency string
		scale    int32
		want     string
	}{
		{"trx", 6, "TRX/6"},
		{"BTC", 8, "BTC/8"},
		{"ngn", 2, "NGN/2"},
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.currency, tt.scale); got != tt.want {
			t.Errorf("formanceAsset(%q, %d) = %q, want %q", tt.currency, tt.scale, got, tt.want)
		}
	}
}

func TestScaleFor(t *testing.T) {
	s := &Service{scales: scaleIndex([]models.Currency{
		{Symbol: "TRX", Scale: 6},
		{Symbol: "btc", Scale: 8},
	})}

	if s.scaleFor("trx") != 6 {
		t.Error("expected trx scale 6")
	}
	if s.scaleFor("BTC") != 8 {
		t.Error("expected btc scale 8")
	}
	if s.scaleFor("doge") != defaultScale {
		t.Error("expected unknown currency to use the default scale")
	}
}

func TestBuildTransaction(t *testing.T) {
	movement := store.BalanceMovement{
		UserId:         "user-1",
		Currency:       "TRX",
		EntryType:      models.EntrySwapReserve,
		Reference:      "swap:abc:reserve",
		AvailableDelta: decimal.RequireFromString("-4.5"),
		LockedDelta:    decimal.RequireFromString("4.5"),
	}

	tx, err := buildTransaction(movement, 6, "job-1")
	if err != nil {
		t.Fatalf("buildTransaction failed: %v", err)
	}
	if tx.Reference == nil || *tx.Reference != "swap:abc:reserve" {
		t.Errorf("expected movement reference, got %v", tx.Reference)
	}
	vars := tx.Script.Vars
	if vars["amount"] != "4500000" {
		t.Errorf("expected 4500000 minor units, got %s", vars["amount"])
	}
	if vars["asset"] != "TRX/6" || vars["currency"] != "trx" {
		t.Errorf("unexpected asset vars %v", vars)
	}
	if vars["job_id"] != "job-1" {
		t.Errorf("expected job id, got %s", vars["job_id"])
	}
	if !strings.Contains(tx.Script.Plain, "@users:$user_id:locked") {
		t.Errorf("expected reserve script to credit the locked account")
	}
}

func TestBuildTransaction_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		movement store.BalanceMovement
	}{
		{"unknown entry type", store.BalanceMovement{
			EntryType: "fee", Reference: "r1", AvailableDelta: decimal.NewFromInt(1),
		}},
		{"below scale", store.BalanceMovement{
			EntryType: models.EntryDepositCredit, Reference: "r2", AvailableDelta: decimal.RequireFromString("0.0000001"),
		}},
		{"zero", store.BalanceMovement{
			EntryType: models.EntryDepositCredit, Reference: "r3",
		}},
	}
	for _, tt := range tests {
		if _, err := buildTransaction(tt.movement, 6, "job"); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestMovementAmount(t *testing.T) {
	release := store.BalanceMovement{LockedDelta: decimal.NewFromInt(-4)}
	if got := movementAmount(release); !got.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected 4, got %s", got)
	}
	deposit := store.BalanceMovement{AvailableDelta: decimal.NewFromInt(10)}
	if got := movementAmount(deposit); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10, got %s", got)
	}
}

func TestJobId(t *testing.T) {
	if got := jobId(context.Background()); got != "none" {
		t.Errorf("expected none, got %s", got)
	}
	ctx := models.WithJobContext(context.Background(), &models.JobContext{JobId: "job-7"})
	if got := jobId(ctx); got != "job-7" {
		t.Errorf("expected job-7, got %s", got)
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"TRX/6": {Input: big.NewInt(10_000_000), Output: big.NewInt(4_000_000)},
	}
	if got := bigIntToDecimal(volumeBalance(vols, "TRX/6"), 6); !got.Equal(decimal.NewFromInt(6)) {
		t.Errorf("expected 6, got %s", got)
	}
	if got := bigIntToDecimal(volumeBalance(vols, "BTC/8"), 8); !got.IsZero() {
		t.Errorf("expected 0, got %s", got)
	}
}

func TestIsConflictError(t *testing.T) {
	// nil error should not be a conflict
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}
