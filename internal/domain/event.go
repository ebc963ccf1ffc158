package domain

import "fmt"

// Event is a domain event observed on a change stream that may mint a
// notification. The set of variants is closed: PrescriptionEvent,
// CertificateEvent, AppointmentEvent and ReferralEvent.
type Event interface {
	// Type is the notification type the event produces.
	Type() NotificationType
	// Key is the idempotency key. It is derived from stable fields only so
	// that re-delivery of the same logical event yields the same key.
	Key() string
	sealed()
}

// PrescriptionEvent is a new prescription item on a medical-history entry.
type PrescriptionEvent struct {
	EntryID    string `validate:"required"`
	Medication string `validate:"required"`
	Dosage     string
	ClinicID   string
}

func (PrescriptionEvent) Type() NotificationType { return TypePrescription }

func (e PrescriptionEvent) Key() string {
	return fmt.Sprintf("prescription-%s-%s", e.EntryID, e.Medication)
}

func (PrescriptionEvent) sealed() {}

// CertificateEvent is a new certificate item on a medical-history entry.
type CertificateEvent struct {
	EntryID         string `validate:"required"`
	CertificateType string `validate:"required"`
	ClinicID        string
}

func (CertificateEvent) Type() NotificationType { return TypeCertificate }

func (e CertificateEvent) Key() string {
	return fmt.Sprintf("certificate-%s-%s", e.EntryID, e.CertificateType)
}

func (CertificateEvent) sealed() {}

// AppointmentEvent is an appointment reaching a status, as seen by Audience.
type AppointmentEvent struct {
	AppointmentID string            `validate:"required"`
	Status        AppointmentStatus `validate:"required,oneof=pending confirmed cancelled completed"`
	ClinicID      string
	ScheduledAt   string
	Audience      Section `validate:"required,oneof=patient specialist"`
}

func (AppointmentEvent) Type() NotificationType { return TypeAppointment }

func (e AppointmentEvent) Key() string {
	return fmt.Sprintf("appointment-%s-%s", e.AppointmentID, e.Status)
}

func (AppointmentEvent) sealed() {}

// ReferralEvent is a referral issued to a patient.
type ReferralEvent struct {
	ReferralID string `validate:"required"`
	Specialty  string
	ClinicID   string
}

func (ReferralEvent) Type() NotificationType { return TypeReferral }

func (e ReferralEvent) Key() string {
	return fmt.Sprintf("referral-%s", e.ReferralID)
}

func (ReferralEvent) sealed() {}
