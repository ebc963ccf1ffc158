package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type TableDescriber interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// TableCheck reports whether a table is reachable and ACTIVE.
type TableCheck struct {
	client TableDescriber
	table  string
}

func NewTableCheck(client TableDescriber, table string) *TableCheck {
	return &TableCheck{client: client, table: table}
}

func (c *TableCheck) Check(ctx context.Context) error {
	out, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.table)})
	if err != nil {
		return fmt.Errorf("describe %s: %w", c.table, err)
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("table %s is not active", c.table)
	}
	return nil
}
