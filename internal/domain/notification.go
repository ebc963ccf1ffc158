package domain

import "time"

// NotificationType is the kind of domain object a notification refers to.
type NotificationType string

const (
	TypeAppointment  NotificationType = "appointment"
	TypeReferral     NotificationType = "referral"
	TypePrescription NotificationType = "prescription"
	TypeCertificate  NotificationType = "certificate"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeAppointment, TypeReferral, TypePrescription, TypeCertificate:
		return true
	}
	return false
}

// Priority is informational only; it never changes ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is a user-facing feed record. Timestamp and ExpiresAt are epoch millis.
// PK: notification_id, GSI user_id-timestamp-index (user_id, timestamp).
type Notification struct {
	NotificationID  string            `json:"id" dynamodbav:"notification_id"`
	UserID          string            `json:"userId" dynamodbav:"user_id"`
	Type            NotificationType  `json:"type" dynamodbav:"type"`
	Title           string            `json:"title" dynamodbav:"title"`
	Message         string            `json:"message" dynamodbav:"message"`
	Timestamp       int64             `json:"timestamp" dynamodbav:"timestamp"`
	Read            bool              `json:"read" dynamodbav:"read"`
	RelatedID       string            `json:"relatedId,omitempty" dynamodbav:"related_id,omitempty"`
	Priority        Priority          `json:"priority" dynamodbav:"priority"`
	ExpiresAt       *int64            `json:"expiresAt,omitempty" dynamodbav:"expires_at,omitempty"`
	Route           string            `json:"route,omitempty" dynamodbav:"route,omitempty"`
	RouteParams     map[string]string `json:"routeParams,omitempty" dynamodbav:"route_params,omitempty"`
	NotificationKey string            `json:"-" dynamodbav:"notification_key,omitempty"`
}

// Expired reports whether the notification has an expiry that lies before now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && *n.ExpiresAt < now.UnixMilli()
}

// ProcessedEventKey records that a notification was minted for Key.
// PK: user_id, SK: notification_key. ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type ProcessedEventKey struct {
	UserID      string `json:"userId" dynamodbav:"user_id"`
	Key         string `json:"key" dynamodbav:"notification_key"`
	ProcessedAt int64  `json:"processedAt" dynamodbav:"processed_at"` // epoch millis
	ExpiresAt   int64  `json:"expiresAt" dynamodbav:"expires_at"`     // TTL (Unix seconds)
}

// Section is the part of the app the caller is currently in.
type Section string

const (
	SectionPatient    Section = "patient"
	SectionSpecialist Section = "specialist"
)

// SectionForRole maps a bearer role onto an app section. Anything that is not
// a specialist is treated as a patient.
func SectionForRole(role string) Section {
	if role == string(SectionSpecialist) {
		return SectionSpecialist
	}
	return SectionPatient
}
