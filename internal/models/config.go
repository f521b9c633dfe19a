package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Server     ServerConfig
	Gateway    GatewayConfig
	Settlement SettlementConfig
	Notifier   NotifierConfig
	NameMatch  NameMatchConfig
	Formance   FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// RedisConfig holds the queue backend connection settings
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// QueueConfig holds worker and retry settings shared by every stage
type QueueConfig struct {
	Prefix          string
	WorkerId        string
	Concurrency     int
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	LockTTL         time.Duration
	PollTimeout     time.Duration
	PromoteInterval time.Duration
}

// ServerConfig holds the webhook/ops HTTP server settings
type ServerConfig struct {
	Addr            string
	WebhookSecret   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// GatewayConfig holds exchange API settings
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SettlementConfig holds the fiat leg parameters
type SettlementConfig struct {
	MasterAccountId string
	PayoutCurrency  string
	FixedFee        decimal.Decimal
	CurrenciesFile  string
}

// NotifierConfig holds Telegram settings. An empty BotToken logs messages instead.
type NotifierConfig struct {
	BotToken   string
	APIURL     string
	BufferSize int
	Timeout    time.Duration
}

// NameMatchConfig holds the bank account name gate
type NameMatchConfig struct {
	MinScore int
}

// FormanceConfig holds the optional journal mirror settings. The mirror is
// disabled when StackURL is empty.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

func (c FormanceConfig) Enabled() bool {
	return c.StackURL != ""
}
