package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
)

type describeFunc func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)

func (f describeFunc) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return f(in)
}

func TestTableCheck(t *testing.T) {
	active := describeFunc(func(in *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		assert.Equal(t, "notifications", *in.TableName)
		return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusActive}}, nil
	})
	creating := describeFunc(func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusCreating}}, nil
	})
	failing := describeFunc(func(*dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		return nil, errors.New("connection refused")
	})

	assert.NoError(t, NewTableCheck(active, "notifications").Check(context.Background()))
	assert.ErrorContains(t, NewTableCheck(creating, "notifications").Check(context.Background()), "not active")
	assert.ErrorContains(t, NewTableCheck(failing, "notifications").Check(context.Background()), "connection refused")
}
