package push

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// LogSender logs sends instead of delivering them.
type LogSender struct {
	logger *slog.Logger
	count  atomic.Int64
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message. It never fails.
func (s *LogSender) Send(_ context.Context, token string, msg Message) error {
	s.count.Add(1)
	s.logger.Info("Push send (log provider)",
		"token", redact(token), "title", msg.Title, "body", msg.Body)
	return nil
}

// Count returns how many messages have been logged.
func (s *LogSender) Count() int64 {
	return s.count.Load()
}

// redact keeps the first and last four characters of a device token.
func redact(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
