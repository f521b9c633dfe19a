package database

import (
	"context"
	"errors"
	"testing"

	"swap-settlement-go/internal/store"
)

func TestCreateUser_Duplicate(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	seedWallet(t, service)

	_, err := service.CreateUser(context.Background(), store.CreateUserParams{
		FirstName: "Other",
		Email:     "john.okoro@example.com",
		SubUserId: "sub-other",
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetUserBySubUserId(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	user, _ := seedWallet(t, service)
	ctx := context.Background()

	found, err := service.GetUserBySubUserId(ctx, "sub-john")
	if err != nil {
		t.Fatalf("GetUserBySubUserId failed: %v", err)
	}
	if found.Id != user.Id {
		t.Errorf("Expected user %s, got %s", user.Id, found.Id)
	}
	if found.FullName() != "John Okoro" {
		t.Errorf("Expected full name John Okoro, got %s", found.FullName())
	}

	_, err = service.GetUserBySubUserId(ctx, "sub-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreateWalletIfAbsent_Idempotent(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	user, wallet := seedWallet(t, service)

	again, created, err := service.CreateWalletIfAbsent(context.Background(), store.CreateWalletParams{
		UserId:   user.Id,
		Currency: "TRX",
		Scale:    6,
	})
	if err != nil {
		t.Fatalf("CreateWalletIfAbsent failed: %v", err)
	}
	if created {
		t.Errorf("Expected existing wallet to be reused")
	}
	if again.Id != wallet.Id {
		t.Errorf("Expected wallet %s, got %s", wallet.Id, again.Id)
	}
	if again.ExternalWalletId != "ext-trx" {
		t.Errorf("Expected external wallet id to be preserved, got %q", again.ExternalWalletId)
	}
}

func TestAddWalletAddress_DedupesByNetworkAndAddress(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	user, wallet := seedWallet(t, service)
	ctx := context.Background()

	if err := service.SetWalletInProgress(ctx, wallet.Id, true); err != nil {
		t.Fatalf("SetWalletInProgress failed: %v", err)
	}

	params := store.AddWalletAddressParams{WalletId: wallet.Id, Network: "trc20", Address: "TXYZ123"}
	added, err := service.AddWalletAddress(ctx, params)
	if err != nil {
		t.Fatalf("AddWalletAddress failed: %v", err)
	}
	if !added {
		t.Errorf("Expected first address to be added")
	}

	added, err = service.AddWalletAddress(ctx, params)
	if err != nil {
		t.Fatalf("AddWalletAddress failed: %v", err)
	}
	if added {
		t.Errorf("Expected duplicate address to be skipped")
	}

	// Same address on another network is a different deposit route.
	params.Network = "bep20"
	if added, err = service.AddWalletAddress(ctx, params); err != nil || !added {
		t.Errorf("Expected address on another network to be added, got added=%v err=%v", added, err)
	}

	reloaded, err := service.GetWallet(ctx, user.Id, "trx")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if len(reloaded.Addresses) != 2 {
		t.Errorf("Expected 2 addresses, got %d", len(reloaded.Addresses))
	}
	if reloaded.InProgress {
		t.Errorf("Expected in progress flag to be cleared")
	}
}

func TestGetWallets(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	user, _ := seedWallet(t, service)
	ctx := context.Background()

	if _, _, err := service.CreateWalletIfAbsent(ctx, store.CreateWalletParams{UserId: user.Id, Currency: "btc", Scale: 8}); err != nil {
		t.Fatalf("CreateWalletIfAbsent failed: %v", err)
	}

	wallets, err := service.GetWallets(ctx, user.Id)
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(wallets) != 2 {
		t.Fatalf("Expected 2 wallets, got %d", len(wallets))
	}
	if wallets[0].Currency != "btc" || wallets[1].Currency != "trx" {
		t.Errorf("Expected wallets ordered by currency, got %s, %s", wallets[0].Currency, wallets[1].Currency)
	}
}
