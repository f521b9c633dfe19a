package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"swap-settlement-go/internal/api"
	"swap-settlement-go/internal/config"
	"swap-settlement-go/internal/database"
	"swap-settlement-go/internal/formance"
	"swap-settlement-go/internal/gateway"
	"swap-settlement-go/internal/metrics"
	"swap-settlement-go/internal/models"
	"swap-settlement-go/internal/notifier"
	"swap-settlement-go/internal/pipeline"
	"swap-settlement-go/internal/queue"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// init loads .env when present; the environment can also be set directly
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services holds everything a binary may need. Journal is nil when the
// Formance mirror is not configured.
type Services struct {
	Config     *models.Config
	DbService  *database.Service
	Redis      *redis.Client
	Queue      *queue.Queue
	Gateway    *gateway.Service
	Notifier   notifier.Notifier
	Journal    *formance.Service
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Currencies []models.Currency
	Ledger     *api.LedgerService

	telegram *notifier.Telegram
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// LoadConfig loads and validates the environment configuration
func LoadConfig() (*models.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// InitializeServices connects the database, queue, exchange, notifier and the
// optional journal mirror. Close releases them in reverse order.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	s := &Services{Config: cfg}

	currencies, err := LoadCurrencies(cfg.Settlement.CurrenciesFile)
	if err != nil {
		return nil, err
	}
	s.Currencies = currencies

	s.DbService, err = database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s.Redis, err = NewRedisClient(cfg.Redis)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Queue = queue.New(s.Redis, cfg.Queue)
	if err := s.Queue.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	s.Gateway, err = gateway.NewService(cfg.Gateway)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	if cfg.Notifier.BotToken != "" {
		s.telegram, err = notifier.NewTelegram(cfg.Notifier)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.telegram.Start(ctx)
		s.Notifier = s.telegram
	} else {
		zap.L().Warn("TELEGRAM_BOT_TOKEN not set, notifications will only be logged")
		s.Notifier = notifier.LogNotifier{}
	}

	if cfg.Formance.Enabled() {
		s.Journal, err = formance.NewService(ctx, cfg.Formance, currencies)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize journal mirror: %w", err)
		}
	}

	s.Registry = prometheus.NewRegistry()
	s.Metrics = metrics.New(s.Registry)

	s.Ledger = api.NewLedgerService(s.DbService, s.Gateway, s.Queue, s.Notifier, cfg.Settlement, cfg.NameMatch)
	if err := s.Ledger.HealthCheck(ctx); err != nil {
		s.Close()
		return nil, err
	}

	zap.L().Info("Services initialized",
		zap.Int("currencies", len(currencies)),
		zap.String("queue_prefix", cfg.Queue.Prefix),
		zap.Bool("journal_mirror", s.Journal != nil))
	return s, nil
}

// InitializeDatabaseOnly opens just the ledger database, for read-only tools
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

// PipelineDeps builds the dependencies shared by every stage
func (s *Services) PipelineDeps() *pipeline.Deps {
	deps := &pipeline.Deps{
		Store:      s.DbService,
		Exchange:   s.Gateway,
		Notifier:   s.Notifier,
		Metrics:    s.Metrics,
		Settlement: s.Config.Settlement,
		Currencies: s.Currencies,
	}
	if s.Journal != nil {
		deps.Journal = s.Journal
	}
	return deps
}

func (s *Services) Close() {
	if s.telegram != nil {
		s.telegram.Stop()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if s.DbService != nil {
		s.DbService.Close()
	}
}

// NewRedisClient parses REDIS_URL and applies the pool settings
func NewRedisClient(cfg models.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return redis.NewClient(opts), nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
