package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	apperrors "github.com/jwalitptl/scheduling-core/pkg/errors"
)

func TestSMTPNotifier_ComposesMessage(t *testing.T) {
	var sent []*gomail.Message
	n := NewSMTPNotifierWithSender(SMTPConfig{From: "clinic@example.com"}, func(m *gomail.Message) error {
		sent = append(sent, m)
		return nil
	}, nil)

	require.NoError(t, n.Send(context.Background(), "patient@example.com", "Appointment Reminder", "see you"))
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"clinic@example.com"}, sent[0].GetHeader("From"))
	assert.Equal(t, []string{"patient@example.com"}, sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment Reminder"}, sent[0].GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "see you")
}

func TestSMTPNotifier_RejectsEmptyRecipient(t *testing.T) {
	calls := 0
	n := NewSMTPNotifierWithSender(SMTPConfig{}, func(*gomail.Message) error {
		calls++
		return nil
	}, nil)

	err := n.Send(context.Background(), "", "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrTransport))
	assert.Zero(t, calls)
}

func TestSMTPNotifier_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	n := NewSMTPNotifierWithSender(SMTPConfig{MaxFailures: 2, Timeout: time.Minute}, func(*gomail.Message) error {
		calls++
		return errors.New("connection refused")
	}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := n.Send(ctx, "a@example.com", "s", "b")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrTransport))
	}
	assert.Equal(t, gobreaker.StateOpen, n.State())

	err := n.Send(ctx, "a@example.com", "s", "b")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, calls, "an open breaker does not dial")
}

func TestRecordingNotifier(t *testing.T) {
	n := NewRecordingNotifier()
	ctx := context.Background()

	require.NoError(t, n.Send(ctx, "a@example.com", "s1", "b1"))
	n.Fail(errors.New("down"))
	assert.Error(t, n.Send(ctx, "b@example.com", "s2", "b2"))
	n.Fail(nil)
	require.NoError(t, n.Send(ctx, "c@example.com", "s3", "b3"))

	assert.Equal(t, 3, n.Calls())
	msgs := n.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a@example.com", msgs[0].To)
	assert.Equal(t, "c@example.com", msgs[1].To)
}

func TestTemplates(t *testing.T) {
	subject, body := AppointmentReminder("Gregory House", time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, "Appointment Reminder", subject)
	assert.Contains(t, body, "Gregory House")
	assert.Contains(t, body, "Tue, 03 Mar 2026 10:00 UTC")
	assert.Contains(t, body, "CareHealth Team")

	_, body = AppointmentReminder("", time.Now())
	assert.Contains(t, body, "your doctor")

	subject, body = LabResultForPatient("Alan Turing")
	assert.Equal(t, "Lab Results Available", subject)
	assert.Contains(t, body, "Dear Alan Turing")

	subject, body = LabResultForDoctor("Alan Turing", "order-7")
	assert.Equal(t, "New Lab Results Available for Review", subject)
	assert.Contains(t, body, "Order ID: order-7")

	tests := map[string]string{
		"dispensed":   "Your Prescription is Ready",
		"unavailable": "Prescription Unavailable",
		"sent":        "Prescription Sent to Pharmacy",
		"cancelled":   "Prescription Status Update",
	}
	for status, want := range tests {
		subject, body := PrescriptionStatus(status, "Main Street Pharmacy")
		assert.Equal(t, want, subject, status)
		assert.Contains(t, body, "Best regards")
	}
	_, body = PrescriptionStatus("dispensed", "Main Street Pharmacy")
	assert.Contains(t, body, "Main Street Pharmacy")
}
