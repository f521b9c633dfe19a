package main

import (
	"context"
	"flag"
	"fmt"

	"swap-settlement-go/internal/common"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id (required)")
	currencyFlag := flag.String("currency", "", "Currency to sell, e.g. usdt (quote only)")
	amountFlag := flag.String("amount", "", "Amount to sell (quote only)")
	approveFlag := flag.String("approve", "", "Approve the swap with this id instead of quoting")
	flag.Parse()

	if *userFlag == "" {
		zap.L().Fatal("--user is required")
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

	if *approveFlag != "" {
		swap, err := services.Ledger.ApproveSwap(ctx, *userFlag, *approveFlag)
		if err != nil {
			zap.L().Fatal("Failed to approve swap", zap.Error(err))
		}
		fmt.Printf("Swap %s is %s\n", swap.Id, swap.State)
		return
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil || *currencyFlag == "" {
		zap.L().Fatal("Quoting needs --currency and a numeric --amount", zap.String("amount", *amountFlag))
	}

	summary, err := services.Ledger.QuoteSwap(ctx, *userFlag, *currencyFlag, amount)
	if err != nil {
		zap.L().Fatal("Failed to quote swap", zap.Error(err))
	}

	common.PrintHeader("SWAP QUOTE", common.DefaultWidth)
	fmt.Printf("Swap:    %s\n", summary.SwapId)
	fmt.Printf("Sell:    %s %s\n", summary.FromAmount, summary.FromCurrency)
	fmt.Printf("Price:   %s\n", summary.QuotedPrice)
	fmt.Printf("Receive: %s %s\n", summary.ToAmount, summary.ToCurrency)
	fmt.Printf("Fee:     %s %s\n", summary.Fee, summary.ToCurrency)
	fmt.Printf("Payout:  %s %s\n", summary.Payout, summary.ToCurrency)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Printf("Approve with: swap --user %s --approve %s\n\n", *userFlag, summary.SwapId)
}
