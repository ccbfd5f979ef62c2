package email

import (
	"context"
	"time"
)

// SendRequest is a run report addressed to one or more recipients.
type SendRequest struct {
	To      []string
	From    string // falls back to the sender's default
	Subject string
	HTML    string
}

// SendResult contains the provider's acknowledgement.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers run reports.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
