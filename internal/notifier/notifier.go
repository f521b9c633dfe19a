package notifier

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers a message to a user's chat. Delivery is best effort:
// failures are logged by the implementation and never returned.
type Notifier interface {
	Send(ctx context.Context, chatId, message string)
}

// LogNotifier writes messages to the log; used when no bot token is configured
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, chatId, message string) {
	zap.L().Info("Notification", zap.String("chat_id", chatId), zap.String("message", message))
}
