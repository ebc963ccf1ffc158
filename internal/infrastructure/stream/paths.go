package stream

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-notify/internal/domain"
)

// Document paths. A change anywhere in a user's slice of a table is signalled
// on that user's path.

func NotificationsPath(userID string) string {
	return "notifications/" + userID
}

func MedicalHistoryPath(patientID string) string {
	return "medicalHistory/" + patientID
}

func AppointmentsPath(section domain.Section, userID string) string {
	return "appointments/" + string(section) + "/" + userID
}

func ReferralsPath(patientID string) string {
	return "referrals/" + patientID
}

// Image is one side of a DynamoDB stream record.
type Image = map[string]types.AttributeValue

// Source binds a stream-enabled table to the paths its records touch.
type Source struct {
	Table string
	Paths func(img Image) []string
}

func NotificationsSource(table string) Source {
	return Source{Table: table, Paths: func(img Image) []string {
		return pathIf(NotificationsPath, str(img, "user_id"))
	}}
}

func MedicalHistorySource(table string) Source {
	return Source{Table: table, Paths: func(img Image) []string {
		return pathIf(MedicalHistoryPath, str(img, "patient_id"))
	}}
}

func AppointmentsSource(table string) Source {
	return Source{Table: table, Paths: func(img Image) []string {
		var paths []string
		if id := str(img, "patient_id"); id != "" {
			paths = append(paths, AppointmentsPath(domain.SectionPatient, id))
		}
		if id := str(img, "specialist_id"); id != "" {
			paths = append(paths, AppointmentsPath(domain.SectionSpecialist, id))
		}
		return paths
	}}
}

func ReferralsSource(table string) Source {
	return Source{Table: table, Paths: func(img Image) []string {
		return pathIf(ReferralsPath, str(img, "patient_id"))
	}}
}

func pathIf(build func(string) string, id string) []string {
	if id == "" {
		return nil
	}
	return []string{build(id)}
}

func str(img Image, name string) string {
	if s, ok := img[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
