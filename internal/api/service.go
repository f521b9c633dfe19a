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

package api

import (
	"context"
	"errors"
	"fmt"

	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/namematch"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/queue"
	"swap-settlement-go/internal/store"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrFeeExceedsPayout = errors.New("fee exceeds swap proceeds")
)

// Gateway is the subset of the exchange the services call directly
type Gateway interface {
	CreateSubAccount(ctx context.Context, email, firstName, lastName string) (*models.SubAccount, error)
	CreateSwapQuotation(ctx context.Context, subUserId string, request models.SwapQuoteRequest) (*models.SwapQuotation, error)
	ValidateBankAccount(ctx context.Context, accountNumber, bankCode string) (*models.BankAccountDetails, error)
}

// Enqueuer is implemented by queue.Queue
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, job models.Job) (*queue.Envelope, error)
}

// LedgerService exposes the user-initiated operations that feed the pipeline
type LedgerService struct {
	store      store.LedgerStore
	gateway    Gateway
	queue      Enqueuer
	notifier   notifier.Notifier
	settlement models.SettlementConfig
	minScore   int
}

func NewLedgerService(
	ledger store.LedgerStore,
	gateway Gateway,
	q Enqueuer,
	n notifier.Notifier,
	settlement models.SettlementConfig,
	nameMatch models.NameMatchConfig,
) *LedgerService {
	if n == nil {
		n = notifier.LogNotifier{}
	}
	minScore := nameMatch.MinScore
	if minScore <= 0 {
		minScore = namematch.DefaultMinScore
	}
	return &LedgerService{
		store:      ledger,
		gateway:    gateway,
		queue:      q,
		notifier:   n,
		settlement: settlement,
		minScore:   minScore,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
