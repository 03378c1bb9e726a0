package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeReminder           JobType = "reminder"
	JobTypeLabResult          JobType = "lab-result"
	JobTypePrescriptionStatus JobType = "prescription-status"
)

func (t JobType) Known() bool {
	switch t {
	case JobTypeReminder, JobTypeLabResult, JobTypePrescriptionStatus:
		return true
	}
	return false
}

// sendAtLayout keeps millisecond precision on the wire.
const sendAtLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrInvalidJob = errors.New("invalid job")

// Job is a notification queued for delivery at or after SendAt. It carries
// no delivery state; handlers re-read the subject before sending.
type Job struct {
	Type       JobType    `json:"type"`
	SubjectID  uuid.UUID  `json:"subjectId"`
	PatientID  *uuid.UUID `json:"patientId,omitempty"`
	DoctorID   *uuid.UUID `json:"doctorId,omitempty"`
	OrderID    *uuid.UUID `json:"orderId,omitempty"`
	PharmacyID *uuid.UUID `json:"pharmacyId,omitempty"`
	Status     string     `json:"status,omitempty"`
	SendAt     time.Time  `json:"sendAt"`
	Attempts   int        `json:"attempts"`
}

// Due reports whether the job may be delivered at now.
func (j *Job) Due(now time.Time) bool {
	return !j.SendAt.After(now)
}

func (j *Job) Validate() error {
	if j.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidJob)
	}
	if j.SubjectID == uuid.Nil {
		return fmt.Errorf("%w: missing subjectId", ErrInvalidJob)
	}
	if j.SendAt.IsZero() {
		return fmt.Errorf("%w: missing sendAt", ErrInvalidJob)
	}
	if j.Attempts < 0 {
		return fmt.Errorf("%w: negative attempts", ErrInvalidJob)
	}
	return nil
}

type jobAlias Job

type jobWire struct {
	*jobAlias
	SendAt json.RawMessage `json:"sendAt"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	alias := jobAlias(j)
	sendAt, err := json.Marshal(j.SendAt.UTC().Format(sendAtLayout))
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobWire{jobAlias: &alias, SendAt: sendAt})
}

// UnmarshalJSON accepts sendAt either as an ISO-8601 string or as epoch
// milliseconds.
func (j *Job) UnmarshalJSON(data []byte) error {
	wire := jobWire{jobAlias: (*jobAlias)(j)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	sendAt, err := parseSendAt(wire.SendAt)
	if err != nil {
		return err
	}
	j.SendAt = sendAt
	return nil
}

func parseSendAt(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: sendAt %q: %v", ErrInvalidJob, s, err)
		}
		return t.UTC(), nil
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(raw), 64)
		if ferr != nil {
			return time.Time{}, fmt.Errorf("%w: sendAt %s", ErrInvalidJob, raw)
		}
		ms = int64(f)
	}
	return time.UnixMilli(ms).UTC(), nil
}
