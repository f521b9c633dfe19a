/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"regexp"

	"swap-settlement-go/internal/api"
	"swap-settlement-go/internal/common"
	"swap-settlement-go/internal/store"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	firstFlag := flag.String("first", "", "User's first name (required)")
	lastFlag := flag.String("last", "", "User's last name, as it appears on their bank account")
	emailFlag := flag.String("email", "", "User's email address (required)")
	chatFlag := flag.String("chat", "", "Telegram chat id for notifications")
	flag.Parse()

	if err := validateName(*firstFlag); err != nil {
		zap.L().Fatal("Invalid first name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	if *chatFlag == "" {
		zap.L().Warn("No chat id given, the user will not receive notifications")
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

	user, err := services.Ledger.OnboardUser(ctx, api.OnboardRequest{
		FirstName: *firstFlag,
		LastName:  *lastFlag,
		Email:     *emailFlag,
		ChatId:    *chatFlag,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to onboard user", zap.Error(err))
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:          %s\n", user.Id)
	fmt.Printf("Name:        %s\n", user.FullName())
	fmt.Printf("Email:       %s\n", user.Email)
	fmt.Printf("Sub-account: %s\n", user.SubUserId)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Printf("Wallets for %d currencies are being provisioned by the pipeline.\n\n", len(services.Currencies))
}
