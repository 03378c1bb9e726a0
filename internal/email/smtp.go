package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"gopkg.in/gomail.v2"

	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
	"github.com/jwalitptl/scheduling-core/pkg/logger"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// MaxFailures consecutive failures open the breaker for Timeout.
	MaxFailures uint32
	Timeout     time.Duration
}

// SendFunc hands a composed message to the mail server.
type SendFunc func(m *gomail.Message) error

type SMTPNotifier struct {
	from    string
	send    SendFunc
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, log *logger.Logger) *SMTPNotifier {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewSMTPNotifierWithSender(cfg, func(m *gomail.Message) error { return dialer.DialAndSend(m) }, log)
}

// NewSMTPNotifierWithSender replaces the network dial with send.
func NewSMTPNotifierWithSender(cfg SMTPConfig, send SendFunc, log *logger.Logger) *SMTPNotifier {
	if log == nil {
		log = logger.Nop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	n := &SMTPNotifier{from: cfg.From, send: send, log: log}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return n
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return apperrors.NewTransport(ErrNoRecipient)
	}
	if err := ctx.Err(); err != nil {
		return apperrors.NewTransport(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.send(m)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperrors.NewTransport(fmt.Errorf("smtp unavailable: %w", err))
		}
		return apperrors.NewTransport(fmt.Errorf("smtp send to %s: %w", to, err))
	}

	n.log.Debug("email sent", "to", to, "subject", subject)
	return nil
}

// State exposes the breaker state for health reporting.
func (n *SMTPNotifier) State() gobreaker.State {
	return n.breaker.State()
}
