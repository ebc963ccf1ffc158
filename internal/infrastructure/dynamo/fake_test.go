package dynamo

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeAPI records every request and replays canned responses.
type fakeAPI struct {
	puts        []*dynamodb.PutItemInput
	gets        []*dynamodb.GetItemInput
	queries     []dynamodb.QueryInput
	updates     []*dynamodb.UpdateItemInput
	deletes     []*dynamodb.DeleteItemInput
	batchWrites []*dynamodb.BatchWriteItemInput

	getItem         map[string]types.AttributeValue
	queryPages      []*dynamodb.QueryOutput
	updateErr       error
	deleteErr       error
	putErr          error
	unprocessedOnce int
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, *in)
	if len(f.queryPages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return out, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func (f *fakeAPI) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batchWrites = append(f.batchWrites, in)
	out := &dynamodb.BatchWriteItemOutput{}
	if f.unprocessedOnce > 0 {
		for table, reqs := range in.RequestItems {
			out.UnprocessedItems = map[string][]types.WriteRequest{table: reqs[:f.unprocessedOnce]}
		}
		f.unprocessedOnce = 0
	}
	return out, nil
}
