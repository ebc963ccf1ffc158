package domain

// Source documents watched by the notification engine. Their wider meaning
// belongs to the booking and history services; only the fields the engine
// reads are mapped here.

// MedicalHistoryEntry is one entry of a patient's consolidated medical history.
// PK: patient_id, SK: entry_id.
type MedicalHistoryEntry struct {
	PatientID     string             `json:"patientId" dynamodbav:"patient_id"`
	EntryID       string             `json:"entryId" dynamodbav:"entry_id"`
	SpecialistID  string             `json:"specialistId" dynamodbav:"specialist_id"`
	ClinicID      string             `json:"clinicId" dynamodbav:"clinic_id"`
	CreatedAt     string             `json:"createdAt" dynamodbav:"created_at"`
	Prescriptions []PrescriptionItem `json:"prescriptions,omitempty" dynamodbav:"prescriptions"`
	Certificates  []CertificateItem  `json:"certificates,omitempty" dynamodbav:"certificates"`
}

type PrescriptionItem struct {
	Medication   string `json:"medication" dynamodbav:"medication"`
	Dosage       string `json:"dosage" dynamodbav:"dosage"`
	Instructions string `json:"instructions" dynamodbav:"instructions"`
}

type CertificateItem struct {
	Type     string `json:"type" dynamodbav:"type"`
	IssuedAt string `json:"issuedAt" dynamodbav:"issued_at"`
	Notes    string `json:"notes" dynamodbav:"notes"`
}

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Appointment PK: appointment_id, GSIs on patient_id and specialist_id.
type Appointment struct {
	AppointmentID string            `json:"id" dynamodbav:"appointment_id"`
	PatientID     string            `json:"patientId" dynamodbav:"patient_id"`
	SpecialistID  string            `json:"specialistId" dynamodbav:"specialist_id"`
	ClinicID      string            `json:"clinicId" dynamodbav:"clinic_id"`
	Status        AppointmentStatus `json:"status" dynamodbav:"status"`
	ScheduledAt   string            `json:"scheduledAt" dynamodbav:"scheduled_at"`
	UpdatedAt     string            `json:"updatedAt,omitempty" dynamodbav:"updated_at"`
}

// Referral PK: referral_id, GSI on patient_id.
type Referral struct {
	ReferralID string `json:"id" dynamodbav:"referral_id"`
	PatientID  string `json:"patientId" dynamodbav:"patient_id"`
	ClinicID   string `json:"clinicId" dynamodbav:"clinic_id"`
	Specialty  string `json:"specialty" dynamodbav:"specialty"`
	Status     string `json:"status" dynamodbav:"status"`
	CreatedAt  string `json:"createdAt,omitempty" dynamodbav:"created_at"`
}

// Clinic PK: clinic_id.
type Clinic struct {
	ClinicID string `json:"id" dynamodbav:"clinic_id"`
	Name     string `json:"name" dynamodbav:"name"`
}
