package dynamo

// DynamoDB attribute and index names shared by the repositories.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldNotificationID  = "notification_id"
	fieldUserID          = "user_id"
	fieldTimestamp       = "timestamp"
	fieldRead            = "read"
	fieldExpiresAt       = "expires_at"
	fieldNotificationKey = "notification_key"
	fieldProcessedAt     = "processed_at"
	fieldPatientID       = "patient_id"
	fieldSpecialistID    = "specialist_id"
	fieldEntryID         = "entry_id"
	fieldAppointmentID   = "appointment_id"
	fieldReferralID      = "referral_id"
	fieldClinicID        = "clinic_id"

	indexUserTimestamp = "user_id-timestamp-index"
	indexPatient       = "patient_id-index"
	indexSpecialist    = "specialist_id-index"
)

// maxBatchWrite is the BatchWriteItem request limit.
const maxBatchWrite = 25
