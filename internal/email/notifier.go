package email

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when Send is called without an address.
var ErrNoRecipient = errors.New("no recipient address")

// Notifier delivers a single plain text message. Errors are transport
// failures and may be retried by the caller.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Message struct {
	To      string
	Subject string
	Body    string
}
