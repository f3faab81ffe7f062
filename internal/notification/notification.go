package notification

import (
	"context"
	"log/slog"

	"github.com/menumarket/menumarket/internal/logging"
)

const (
	// KindMenuUnlocked confirms a purchase to the buyer.
	KindMenuUnlocked = "menu_unlocked"
	// KindCoinsTopUp confirms a coin top-up.
	KindCoinsTopUp = "coins_topup"
	// KindRollbackFailure pages an operator: coins were debited without a grant.
	KindRollbackFailure = "rollback_failure"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
// Operator alerts are logged at error level.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logging.Component(logger, "notification")}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if message.Kind == KindRollbackFailure {
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	)
	return nil
}
