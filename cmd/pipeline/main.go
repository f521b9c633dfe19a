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
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"swap-settlement-go/internal/common"
	"swap-settlement-go/internal/dispatcher"
	"swap-settlement-go/internal/pipeline"

	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := common.LoadConfig()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Server.WebhookSecret == "" {
		zap.L().Warn("WEBHOOK_SECRET not set, every webhook will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting swap settlement pipeline", zap.String("worker_id", cfg.Queue.WorkerId))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	stages := pipeline.Stages(services.PipelineDeps())
	runners := make([]*pipeline.Runner, 0, len(stages))
	for _, stage := range stages {
		runner := pipeline.NewRunner(services.Queue, stage, cfg.Queue, services.Metrics)
		if err := runner.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start stage runner", zap.String("queue", stage.Queue()), zap.Error(err))
		}
		runners = append(runners, runner)
	}

	checks := map[string]dispatcher.Pinger{
		"database": dispatcher.PingFunc(services.Ledger.HealthCheck),
		"redis":    services.Queue,
	}
	if services.Journal != nil {
		checks["journal"] = services.Journal
	}
	handler := dispatcher.NewHandler(
		dispatcher.New(services.Queue, services.Metrics),
		cfg.Server.WebhookSecret,
		checks,
		services.Metrics,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(services.Registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("Webhook server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	zap.L().Info("Pipeline running",
		zap.Int("stages", len(runners)),
		zap.Int("concurrency", cfg.Queue.Concurrency))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping pipeline...")
	case err := <-serverErr:
		zap.L().Error("Webhook server failed", zap.Error(err))
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Webhook server did not shut down cleanly", zap.Error(err))
	}

	// Stop accepting new jobs; in-flight jobs finish or are recovered on restart.
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, r := range runners {
			wg.Add(1)
			go func(r *pipeline.Runner) {
				defer wg.Done()
				r.Stop()
			}(r)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All stage runners stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
