package email

import (
	"fmt"
	"time"
)

const signature = "\n\nBest regards,\nCareHealth Team"

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func AppointmentReminder(doctorName string, startAt time.Time) (subject, body string) {
	subject = "Appointment Reminder"
	body = fmt.Sprintf(
		"Dear Patient,\n\nThis is a reminder that you have an appointment scheduled with %s on %s.\n\nPlease arrive on time.",
		orDefault(doctorName, "your doctor"),
		startAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
	) + signature
	return subject, body
}

func LabResultForPatient(patientName string) (subject, body string) {
	subject = "Lab Results Available"
	body = fmt.Sprintf(
		"Dear %s,\n\nYour lab results have been uploaded and are now available for review.\n\nPlease log in to your account to view the results.",
		orDefault(patientName, "Patient"),
	) + signature
	return subject, body
}

func LabResultForDoctor(patientName, orderID string) (subject, body string) {
	subject = "New Lab Results Available for Review"
	body = fmt.Sprintf(
		"Dear Doctor,\n\nLab results have been uploaded for patient %s (Order ID: %s).\n\nPlease review the results at your earliest convenience.",
		orDefault(patientName, "Patient"), orderID,
	) + signature
	return subject, body
}

func PrescriptionStatus(status, pharmacyName string) (subject, body string) {
	pharmacyName = orDefault(pharmacyName, "the pharmacy")

	switch status {
	case "dispensed":
		subject = "Your Prescription is Ready"
		body = fmt.Sprintf("Dear Patient,\n\nYour prescription is now ready for pickup at %s.\n\nPlease bring a valid ID when collecting your medication.", pharmacyName)
	case "unavailable":
		subject = "Prescription Unavailable"
		body = fmt.Sprintf("Dear Patient,\n\nWe regret to inform you that your prescription is currently unavailable at %s.\n\nPlease contact your doctor or the pharmacy for further assistance.", pharmacyName)
	case "sent":
		subject = "Prescription Sent to Pharmacy"
		body = fmt.Sprintf("Dear Patient,\n\nYour prescription has been sent to %s.\n\nYou will be notified when it is ready for pickup.", pharmacyName)
	default:
		subject = "Prescription Status Update"
		body = fmt.Sprintf("Dear Patient,\n\nYour prescription status has been updated to: %s.", status)
	}
	return subject, body + signature
}
