package model

import (
	"time"

	"github.com/google/uuid"
)

type LabResultStatus string

const (
	LabResultStatusPending   LabResultStatus = "pending"
	LabResultStatusUploaded  LabResultStatus = "uploaded"
	LabResultStatusValidated LabResultStatus = "validated"
)

type LabResult struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	OrderID    uuid.UUID       `db:"order_id" json:"order_id"`
	PatientID  uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorID   uuid.UUID       `db:"doctor_id" json:"doctor_id"`
	Status     LabResultStatus `db:"status" json:"status"`
	Notified   bool            `db:"notified" json:"notified"`
	NotifiedAt *time.Time      `db:"notified_at" json:"notified_at,omitempty"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
