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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"swap-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	var errs []error
	duration := func(key string, defaultValue time.Duration) time.Duration {
		d, err := getEnvDuration(key, defaultValue)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	fixedFee, err := getEnvDecimal("FIXED_FEE", decimal.NewFromInt(200))
	if err != nil {
		errs = append(errs, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "settlement.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: duration("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
			PingTimeout:     duration("DB_PING_TIMEOUT", 5*time.Second),
			BusyTimeout:     duration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Redis: models.RedisConfig{
			URL:          getEnvString("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 20),
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Queue: models.QueueConfig{
			Prefix:          getEnvString("QUEUE_PREFIX", "settlement"),
			WorkerId:        getEnvString("WORKER_ID", hostname),
			Concurrency:     getEnvInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:     getEnvInt("JOB_MAX_ATTEMPTS", 5),
			BackoffBase:     duration("JOB_BACKOFF_BASE", 2*time.Second),
			BackoffMax:      duration("JOB_BACKOFF_MAX", 5*time.Minute),
			LockTTL:         duration("LOCK_TTL", time.Minute),
			PollTimeout:     duration("QUEUE_POLL_TIMEOUT", 2*time.Second),
			PromoteInterval: duration("QUEUE_PROMOTE_INTERVAL", time.Second),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
			ReadTimeout:     duration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    duration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: duration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Gateway: models.GatewayConfig{
			BaseURL: getEnvString("QUIDAX_BASE_URL", "https://www.quidax.com/api/v1"),
			APIKey:  os.Getenv("QUIDAX_API_KEY"),
			Timeout: duration("QUIDAX_TIMEOUT", 30*time.Second),
		},
		Settlement: models.SettlementConfig{
			MasterAccountId: getEnvString("MASTER_ACCOUNT_ID", "me"),
			PayoutCurrency:  strings.ToLower(getEnvString("PAYOUT_CURRENCY", "ngn")),
			FixedFee:        fixedFee,
			CurrenciesFile:  getEnvString("CURRENCIES_FILE", "currencies.yaml"),
		},
		Notifier: models.NotifierConfig{
			BotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIURL:     getEnvString("TELEGRAM_API_URL", "https://api.telegram.org"),
			BufferSize: getEnvInt("TELEGRAM_BUFFER_SIZE", 256),
			Timeout:    duration("TELEGRAM_TIMEOUT", 10*time.Second),
		},
		NameMatch: models.NameMatchConfig{
			MinScore: getEnvInt("NAME_MATCH_MIN_SCORE", 60),
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "swap-settlement"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with. Credentials are
// checked by the binaries that need them.
func Validate(cfg *models.Config) error {
	var errs []error
	if cfg.Database.Path == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if cfg.Queue.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", cfg.Queue.Concurrency))
	}
	if cfg.Queue.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1, got %d", cfg.Queue.MaxAttempts))
	}
	if cfg.Queue.BackoffBase <= 0 || cfg.Queue.BackoffMax < cfg.Queue.BackoffBase {
		errs = append(errs, fmt.Errorf("JOB_BACKOFF_BASE (%s) must be positive and not exceed JOB_BACKOFF_MAX (%s)",
			cfg.Queue.BackoffBase, cfg.Queue.BackoffMax))
	}
	if cfg.Queue.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be positive"))
	}
	if cfg.Settlement.FixedFee.IsNegative() {
		errs = append(errs, fmt.Errorf("FIXED_FEE must not be negative, got %s", cfg.Settlement.FixedFee))
	}
	if cfg.Settlement.PayoutCurrency == "" {
		errs = append(errs, errors.New("PAYOUT_CURRENCY must not be empty"))
	}
	if cfg.NameMatch.MinScore < 0 || cfg.NameMatch.MinScore > 100 {
		errs = append(errs, fmt.Errorf("NAME_MATCH_MIN_SCORE must be between 0 and 100, got %d", cfg.NameMatch.MinScore))
	}
	if cfg.Formance.Enabled() && (cfg.Formance.ClientID == "" || cfg.Formance.ClientSecret == "") {
		errs = append(errs, errors.New("FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET are required with FORMANCE_STACK_URL"))
	}
	return errors.Join(errs...)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
