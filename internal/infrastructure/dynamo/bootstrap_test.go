package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/care-notify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	created []*dynamodb.CreateTableInput
	ttl     []*dynamodb.UpdateTimeToLiveInput
}

func (f *fakeAdmin) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, in)
	if *in.TableName == "clinics" {
		return nil, &types.ResourceInUseException{}
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeAdmin) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	f.ttl = append(f.ttl, in)
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func TestBootstrap(t *testing.T) {
	admin := &fakeAdmin{}
	Bootstrap(context.Background(), admin, config.DynamoTables{
		Notifications:  "notifications",
		ProcessedKeys:  "processed",
		MedicalHistory: "medical_history",
		Appointments:   "appointments",
		Referrals:      "referrals",
		Clinics:        "clinics",
	})

	require.Len(t, admin.created, 6)
	byName := map[string]*dynamodb.CreateTableInput{}
	for _, in := range admin.created {
		byName[*in.TableName] = in
	}

	notif := byName["notifications"]
	require.Len(t, notif.GlobalSecondaryIndexes, 1)
	assert.Equal(t, indexUserTimestamp, *notif.GlobalSecondaryIndexes[0].IndexName)
	assert.Equal(t, types.StreamViewTypeNewAndOldImages, notif.StreamSpecification.StreamViewType)

	assert.Nil(t, byName["processed"].StreamSpecification)
	assert.NotNil(t, byName["medical_history"].StreamSpecification)

	require.Len(t, admin.ttl, 1)
	assert.Equal(t, "processed", *admin.ttl[0].TableName)
	assert.Equal(t, fieldExpiresAt, *admin.ttl[0].TimeToLiveSpecification.AttributeName)
}
