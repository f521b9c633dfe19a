package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"swap-settlement-go/internal/gateway"
	"swap-settlement-go/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultTelegramAPI = "https://api.telegram.org"

type outbound struct {
	chatId  string
	message string
}

// Telegram sends messages through the Bot API from a single background
// worker so that pipeline stages never wait on chat delivery.
type Telegram struct {
	bot      *tgbotapi.BotAPI
	token    string
	outbox   chan outbound
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewTelegram checks the token with getMe before returning.
func NewTelegram(cfg models.NotifierConfig) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultTelegramAPI
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient, err := gateway.NewHTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create telegram http client: %w", err)
	}

	endpoint := strings.TrimRight(apiURL, "/") + "/bot%s/%s"
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to reach telegram bot api: %w", redact(err, cfg.BotToken))
	}

	zap.L().Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Telegram{
		bot:      bot,
		token:    cfg.BotToken,
		outbox:   make(chan outbound, bufferSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start launches the delivery worker
func (t *Telegram) Start(ctx context.Context) {
	go t.deliverLoop(ctx)
	zap.L().Info("Telegram notifier started", zap.Int("buffer", cap(t.outbox)))
}

// Stop drains queued messages and waits for the worker to exit
func (t *Telegram) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		<-t.doneChan
		zap.L().Info("Telegram notifier stopped")
	})
}

// Send queues the message. A full outbox drops it with a warning.
func (t *Telegram) Send(_ context.Context, chatId, message string) {
	if chatId == "" {
		zap.L().Warn("Skipping notification without chat id")
		return
	}

	select {
	case t.outbox <- outbound{chatId: chatId, message: message}:
	default:
		zap.L().Warn("Notification dropped, outbox full", zap.String("chat_id", chatId))
	}
}

func (t *Telegram) deliverLoop(ctx context.Context) {
	defer close(t.doneChan)

	for {
		select {
		case msg := <-t.outbox:
			t.deliver(msg)
		case <-t.stopChan:
			t.drain()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *Telegram) drain() {
	for {
		select {
		case msg := <-t.outbox:
			t.deliver(msg)
		default:
			return
		}
	}
}

func (t *Telegram) deliver(msg outbound) {
	if err := t.sendMessage(msg.chatId, msg.message); err != nil {
		zap.L().Error("Failed to send notification",
			zap.String("chat_id", msg.chatId),
			zap.Error(err))
	}
}

// sendMessage accepts numeric chat ids and @channel usernames.
func (t *Telegram) sendMessage(chatId, text string) error {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(chatId, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(chatId, text)
	}

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", redact(err, t.token))
	}
	return nil
}

// redact strips the request URL, which carries the bot token, from transport
// errors.
func redact(err error, token string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s telegram api: %w", urlErr.Op, urlErr.Err)
	}
	if token != "" && strings.Contains(err.Error(), token) {
		return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
	}
	return err
}
