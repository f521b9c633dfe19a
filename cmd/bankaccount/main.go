package main

import (
	"context"
	"flag"
	"fmt"

	"swap-settlement-go/internal/common"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id (required)")
	accountFlag := flag.String("account", "", "Bank account number (required)")
	bankFlag := flag.String("bank", "", "Bank code (required)")
	flag.Parse()

	if *userFlag == "" || *accountFlag == "" || *bankFlag == "" {
		zap.L().Fatal("All flags are required: --user, --account and --bank")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	result, err := services.Ledger.AddBankAccount(ctx, *userFlag, *accountFlag, *bankFlag)
	if err != nil {
		zap.L().Fatal("Failed to add bank account", zap.Error(err))
	}

	common.PrintHeader("BANK ACCOUNT", common.DefaultWidth)
	fmt.Printf("Account name: %s\n", result.AccountName)
	fmt.Printf("Name match:   %s (%d)\n", result.MatchLevel, result.MatchScore)
	if result.Accepted {
		fmt.Println("Status:       ✓ registered")
	} else {
		fmt.Printf("Status:       ✗ %s\n", result.Error)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
