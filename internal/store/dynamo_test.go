package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "stockpulse-backend/pkg/errors"
)

// fakeDynamo records calls and plays back scripted responses.
type fakeDynamo struct {
	getItemFn    func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItemFn    func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItemFn func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	queryFn      func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	batchGetFn   func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)
	batchWriteFn func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)

	putCalls        []*dynamodb.PutItemInput
	queryCalls      []*dynamodb.QueryInput
	batchGetCalls   []*dynamodb.BatchGetItemInput
	batchWriteCalls []*dynamodb.BatchWriteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getItemFn(in)
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putCalls = append(f.putCalls, in)
	if f.putItemFn == nil {
		return &dynamodb.PutItemOutput{}, nil
	}
	return f.putItemFn(in)
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return f.updateItemFn(in)
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryCalls = append(f.queryCalls, in)
	return f.queryFn(in)
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.batchGetCalls = append(f.batchGetCalls, in)
	return f.batchGetFn(in)
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batchWriteCalls = append(f.batchWriteCalls, in)
	if f.batchWriteFn == nil {
		return &dynamodb.BatchWriteItemOutput{}, nil
	}
	return f.batchWriteFn(in)
}

func stringItem(pk, sk string) Item {
	return Item{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func TestDynamoStore_Get_Absent(t *testing.T) {
	fake := &fakeDynamo{
		getItemFn: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	item, err := s.Get(context.Background(), Key{PK: "CIRCUIT#svc", SK: "STATE"})
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDynamoStore_Get_StoreFailurePropagates(t *testing.T) {
	fake := &fakeDynamo{
		getItemFn: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return nil, fmt.Errorf("connection reset")
		},
	}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	_, err := s.Get(context.Background(), Key{PK: "p", SK: "s"})
	require.Error(t, err)
	assert.True(t, appErrors.IsUnavailable(err))
}

func TestDynamoStore_PutConditional_AppliesCondition(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	applied, err := s.PutConditional(context.Background(), stringItem("SENTIMENT#AAPL", "HASH#abc"))
	require.NoError(t, err)
	assert.True(t, applied)

	require.Len(t, fake.putCalls, 1)
	require.NotNil(t, fake.putCalls[0].ConditionExpression)
	assert.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *fake.putCalls[0].ConditionExpression)
}

func TestDynamoStore_PutConditional_LostRaceIsNotAnError(t *testing.T) {
	fake := &fakeDynamo{
		putItemFn: func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	applied, err := s.PutConditional(context.Background(), stringItem("SENTIMENT#AAPL", "HASH#abc"))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestDynamoStore_UpdateFields_Empty(t *testing.T) {
	// no updateItemFn configured: a network call would panic the fake
	s := NewDynamoStore(&fakeDynamo{}, "test-table", zap.NewNop())
	require.NoError(t, s.UpdateFields(context.Background(), Key{PK: "p", SK: "s"}, nil))
}

func TestDynamoStore_Query_FollowsPagination(t *testing.T) {
	page2Key := map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "p"}}
	fake := &fakeDynamo{}
	fake.queryFn = func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		if in.ExclusiveStartKey == nil {
			return &dynamodb.QueryOutput{
				Items:            []map[string]types.AttributeValue{stringItem("p", "HASH#a")},
				LastEvaluatedKey: page2Key,
			}, nil
		}
		return &dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{stringItem("p", "HASH#b")},
		}, nil
	}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	items, err := s.Query(context.Background(), "p", "HASH#")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Len(t, fake.queryCalls, 2)
}

func TestDynamoStore_BatchPut_EmptyMakesNoCall(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	require.NoError(t, s.BatchPut(context.Background(), nil))
	assert.Empty(t, fake.batchWriteCalls)
}

func TestDynamoStore_BatchPut_ChunksAt25(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	items := make([]Item, 60)
	for i := range items {
		items[i] = stringItem("SENTIMENT#AAPL", fmt.Sprintf("HASH#%03d", i))
	}

	require.NoError(t, s.BatchPut(context.Background(), items))
	require.Len(t, fake.batchWriteCalls, 3)
	assert.Len(t, fake.batchWriteCalls[0].RequestItems["test-table"], 25)
	assert.Len(t, fake.batchWriteCalls[1].RequestItems["test-table"], 25)
	assert.Len(t, fake.batchWriteCalls[2].RequestItems["test-table"], 10)
}

func TestDynamoStore_BatchPut_RedrivesUnprocessed(t *testing.T) {
	fake := &fakeDynamo{}
	call := 0
	fake.batchWriteFn = func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
		call++
		if call == 1 {
			// leave one item unprocessed on the first call
			return &dynamodb.BatchWriteItemOutput{
				UnprocessedItems: map[string][]types.WriteRequest{
					"test-table": {in.RequestItems["test-table"][0]},
				},
			}, nil
		}
		return &dynamodb.BatchWriteItemOutput{}, nil
	}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	require.NoError(t, s.BatchPut(context.Background(), []Item{stringItem("p", "a"), stringItem("p", "b")}))
	assert.Equal(t, 2, call)
	assert.Len(t, fake.batchWriteCalls[1].RequestItems["test-table"], 1)
}

func TestDynamoStore_BatchGet_EmptyMakesNoCall(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	items, err := s.BatchGet(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, items)
	assert.Empty(t, fake.batchGetCalls)
}

func TestDynamoStore_BatchGet_ChunksAt100(t *testing.T) {
	fake := &fakeDynamo{
		batchGetFn: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			return &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{
					"test-table": {stringItem("p", "s")},
				},
			}, nil
		},
	}
	s := NewDynamoStore(fake, "test-table", zap.NewNop())

	keys := make([]Key, 150)
	for i := range keys {
		keys[i] = Key{PK: "p", SK: fmt.Sprintf("HASH#%03d", i)}
	}

	items, err := s.BatchGet(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.Len(t, fake.batchGetCalls, 2)
	assert.Len(t, fake.batchGetCalls[0].RequestItems["test-table"].Keys, 100)
	assert.Len(t, fake.batchGetCalls[1].RequestItems["test-table"].Keys, 50)
}
