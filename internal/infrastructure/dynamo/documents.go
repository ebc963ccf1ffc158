package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-notify/internal/domain"
)

// Read-only access to the documents owned by the history and booking services.

// MedicalHistoryRepo reads consolidated medical-history entries.
// PK: patient_id, SK: entry_id
type MedicalHistoryRepo struct {
	client    API
	tableName string
}

func NewMedicalHistoryRepo(client API, tableName string) *MedicalHistoryRepo {
	return &MedicalHistoryRepo{client: client, tableName: tableName}
}

func (r *MedicalHistoryRepo) ListByPatient(ctx context.Context, patientID string) ([]domain.MedicalHistoryEntry, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("#pid = :pid"),
		ExpressionAttributeNames:  map[string]string{"#pid": fieldPatientID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pid": strValue(patientID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query medical history: %w", err)
	}
	var entries []domain.MedicalHistoryEntry
	if err := attributevalue.UnmarshalListOfMaps(items, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal medical history: %w", err)
	}
	return entries, nil
}

// AppointmentRepo reads appointments by participant.
type AppointmentRepo struct {
	client    API
	tableName string
}

func NewAppointmentRepo(client API, tableName string) *AppointmentRepo {
	return &AppointmentRepo{client: client, tableName: tableName}
}

// ListByParticipant lists appointments where userID takes part in the given section's role.
func (r *AppointmentRepo) ListByParticipant(ctx context.Context, section domain.Section, userID string) ([]domain.Appointment, error) {
	index, attr := indexPatient, fieldPatientID
	if section == domain.SectionSpecialist {
		index, attr = indexSpecialist, fieldSpecialistID
	}
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": strValue(userID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	var appointments []domain.Appointment
	if err := attributevalue.UnmarshalListOfMaps(items, &appointments); err != nil {
		return nil, fmt.Errorf("unmarshal appointments: %w", err)
	}
	return appointments, nil
}

// ReferralRepo reads a patient's referrals.
type ReferralRepo struct {
	client    API
	tableName string
}

func NewReferralRepo(client API, tableName string) *ReferralRepo {
	return &ReferralRepo{client: client, tableName: tableName}
}

func (r *ReferralRepo) ListByPatient(ctx context.Context, patientID string) ([]domain.Referral, error) {
	items, err := queryAll(ctx, r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexPatient),
		KeyConditionExpression:    aws.String("#pid = :pid"),
		ExpressionAttributeNames:  map[string]string{"#pid": fieldPatientID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pid": strValue(patientID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query referrals: %w", err)
	}
	var referrals []domain.Referral
	if err := attributevalue.UnmarshalListOfMaps(items, &referrals); err != nil {
		return nil, fmt.Errorf("unmarshal referrals: %w", err)
	}
	return referrals, nil
}

// ClinicRepo looks up clinic display names.
type ClinicRepo struct {
	client    API
	tableName string
}

func NewClinicRepo(client API, tableName string) *ClinicRepo {
	return &ClinicRepo{client: client, tableName: tableName}
}

// Name returns the clinic's display name, or ErrNotFound for unknown ids and
// clinics without a name.
func (r *ClinicRepo) Name(ctx context.Context, clinicID string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldClinicID, clinicID),
	})
	if err != nil {
		return "", fmt.Errorf("get clinic: %w", err)
	}
	if out.Item == nil {
		return "", fmt.Errorf("clinic %s: %w", clinicID, domain.ErrNotFound)
	}
	var c domain.Clinic
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return "", fmt.Errorf("unmarshal clinic: %w", err)
	}
	if c.Name == "" {
		return "", fmt.Errorf("clinic %s has no name: %w", clinicID, domain.ErrNotFound)
	}
	return c.Name, nil
}
