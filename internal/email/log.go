package email

import (
	"context"
	"sync"

	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
)

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, to, subject, body string) error {
	if to == "" {
		return apperrors.NewTransport(ErrNoRecipient)
	}
	n.log.Info("notification", "to", to, "subject", subject, "body", body)
	return nil
}

// RecordingNotifier keeps every delivered message in memory. Fail makes the
// next calls return an error instead.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	failWith error
	calls    int
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failWith != nil {
		return apperrors.NewTransport(n.failWith)
	}
	n.messages = append(n.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Fail makes every following Send return err; nil restores delivery.
func (n *RecordingNotifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failWith = err
}

func (n *RecordingNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// Calls counts Send invocations, failed ones included.
func (n *RecordingNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}
