package notify

import (
	"context"
	"log/slog"
)

// Log writes messages to the process log instead of an external channel.
// Used in development when Telegram credentials are absent.
type Log struct{}

// NewLog creates a log-only notifier.
func NewLog() *Log { return &Log{} }

func (*Log) Send(_ context.Context, message string) error {
	slog.Info("notification", "message", message)
	return nil
}
