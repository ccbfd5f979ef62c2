package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopSender logs reports instead of delivering them. Used when no API key is configured.
type NoopSender struct{}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the report but does not deliver it.
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	slog.Info("noop_report_send", "to", req.To, "subject", req.Subject, "html_bytes", len(req.HTML))
	return SendResult{
		MessageID: fmt.Sprintf("noop-%d", time.Now().UnixNano()),
		SentAt:    time.Now(),
	}, nil
}
