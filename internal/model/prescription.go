package model

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusCreated     PrescriptionStatus = "created"
	PrescriptionStatusSent        PrescriptionStatus = "sent"
	PrescriptionStatusDispensed   PrescriptionStatus = "dispensed"
	PrescriptionStatusUnavailable PrescriptionStatus = "unavailable"
	PrescriptionStatusCancelled   PrescriptionStatus = "cancelled"
)

type Prescription struct {
	ID         uuid.UUID          `db:"id" json:"id"`
	PatientID  uuid.UUID          `db:"patient_id" json:"patient_id"`
	PharmacyID *uuid.UUID         `db:"pharmacy_id" json:"pharmacy_id,omitempty"`
	Status     PrescriptionStatus `db:"status" json:"status"`
	// NotifiedStatus is the last status the patient was told about.
	NotifiedStatus *PrescriptionStatus `db:"notified_status" json:"notified_status,omitempty"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}
