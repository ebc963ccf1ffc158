package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-notify/internal/config"
	"github.com/rs/zerolog/log"
)

// TableAdmin is the control-plane subset used by Bootstrap.
type TableAdmin interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Bootstrap creates the tables and GSIs if they don't already exist. Every
// watched table gets a NEW_AND_OLD_IMAGES stream so the poller can follow it.
// Tables that already exist are skipped.
func Bootstrap(ctx context.Context, client TableAdmin, tables config.DynamoTables) {
	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Notifications),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldNotificationID, types.ScalarAttributeTypeS),
			attr(fieldUserID, types.ScalarAttributeTypeS),
			attr(fieldTimestamp, types.ScalarAttributeTypeN),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldNotificationID), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexUserTimestamp, fieldUserID, fieldTimestamp),
		},
		StreamSpecification: streamSpec(),
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.ProcessedKeys),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldUserID, types.ScalarAttributeTypeS),
			attr(fieldNotificationKey, types.ScalarAttributeTypeS),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldUserID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(fieldNotificationKey), KeyType: types.KeyTypeRange},
		},
	})
	enableTTL(ctx, client, tables.ProcessedKeys, fieldExpiresAt)

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.MedicalHistory),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldPatientID, types.ScalarAttributeTypeS),
			attr(fieldEntryID, types.ScalarAttributeTypeS),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldPatientID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(fieldEntryID), KeyType: types.KeyTypeRange},
		},
		StreamSpecification: streamSpec(),
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Appointments),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldAppointmentID, types.ScalarAttributeTypeS),
			attr(fieldPatientID, types.ScalarAttributeTypeS),
			attr(fieldSpecialistID, types.ScalarAttributeTypeS),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldAppointmentID), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexPatient, fieldPatientID, ""),
			gsi(indexSpecialist, fieldSpecialistID, ""),
		},
		StreamSpecification: streamSpec(),
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Referrals),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldReferralID, types.ScalarAttributeTypeS),
			attr(fieldPatientID, types.ScalarAttributeTypeS),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldReferralID), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexPatient, fieldPatientID, ""),
		},
		StreamSpecification: streamSpec(),
	})

	createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName:   aws.String(tables.Clinics),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			attr(fieldClinicID, types.ScalarAttributeTypeS),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldClinicID), KeyType: types.KeyTypeHash},
		},
	})
}

func attr(name string, t types.ScalarAttributeType) types.AttributeDefinition {
	return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: t}
}

func streamSpec() *types.StreamSpecification {
	return &types.StreamSpecification{
		StreamEnabled:  aws.Bool(true),
		StreamViewType: types.StreamViewTypeNewAndOldImages,
	}
}

// gsi builds a GSI descriptor. If sortKey is empty, only a hash key is added.
func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client TableAdmin, input *dynamodb.CreateTableInput) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			log.Warn().Err(err).Str("table", *input.TableName).Msg("could not create table")
		}
		return
	}
	log.Info().Str("table", *input.TableName).Msg("created table")
}

func enableTTL(ctx context.Context, client TableAdmin, tableName, ttlAttr string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("table", tableName).Msg("could not enable TTL")
	}
}
