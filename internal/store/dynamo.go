package store

import (
	"context"
	"errors"
	"time"

	appErrors "stockpulse-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	// DynamoDB imposes these per-request limits
	batchWriteSize = 25
	batchReadSize  = 100

	// unprocessed-item re-drives within a single batch call
	maxRedrives = 3
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements Store against one DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	logger    *zap.Logger
}

// NewDynamoStore creates a store over the given table.
func NewDynamoStore(client DynamoAPI, tableName string, logger *zap.Logger) *DynamoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger.Named("dynamo_store"),
	}
}

// Get returns the item at key, or nil if absent.
func (s *DynamoStore) Get(ctx context.Context, key Key) (Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       keyAttributes(key),
	})
	if err != nil {
		return nil, s.fail("GetItem", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	return Item(result.Item), nil
}

// Put writes the item unconditionally.
func (s *DynamoStore) Put(ctx context.Context, item Item) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return s.fail("PutItem", err)
	}
	return nil
}

// PutConditional writes the item only if its key does not already exist.
// A failed precondition is the (false, nil) path, not an error.
func (s *DynamoStore) PutConditional(ctx context.Context, item Item) (bool, error) {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, s.fail("conditional PutItem", err)
	}
	return true, nil
}

// UpdateFields sets exactly the given attributes on the item at key.
func (s *DynamoStore) UpdateFields(ctx context.Context, key Key, fields map[string]types.AttributeValue) error {
	if len(fields) == 0 {
		return nil
	}

	var update expression.UpdateBuilder
	for name, value := range fields {
		update = update.Set(expression.Name(name), expression.Value(value))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return appErrors.Wrap(err, "failed to build update expression")
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       keyAttributes(key),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return s.fail("UpdateItem", err)
	}
	return nil
}

// Query returns all items under pk whose sort key begins with skPrefix,
// following pagination until the partition is exhausted.
func (s *DynamoStore) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(pk))
	if skPrefix != "" {
		keyCondition = keyCondition.And(expression.Key("SK").BeginsWith(skPrefix))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build key condition")
	}

	var items []Item
	var exclusiveStartKey map[string]types.AttributeValue

	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         exclusiveStartKey,
		})
		if err != nil {
			return nil, s.fail("Query", err)
		}

		for _, item := range result.Items {
			items = append(items, Item(item))
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		exclusiveStartKey = result.LastEvaluatedKey
	}

	return items, nil
}

// BatchPut writes the items in chunks of 25, re-driving unprocessed items.
func (s *DynamoStore) BatchPut(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	for start := 0; start < len(items); start += batchWriteSize {
		end := min(start+batchWriteSize, len(items))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := s.batchWriteChunk(ctx, requests); err != nil {
			return err
		}
	}

	return nil
}

func (s *DynamoStore) batchWriteChunk(ctx context.Context, requests []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
	}

	for redrive := 0; ; redrive++ {
		output, err := s.client.BatchWriteItem(ctx, input)
		if err != nil {
			return s.fail("BatchWriteItem", err)
		}

		unprocessed := output.UnprocessedItems[s.tableName]
		if len(unprocessed) == 0 {
			return nil
		}

		if redrive >= maxRedrives {
			s.logger.Error("unprocessed items remain after batch write",
				zap.Int("unprocessed", len(unprocessed)))
			return appErrors.NewUnavailable("batch write left unprocessed items", nil)
		}

		time.Sleep(time.Duration(1<<redrive) * 100 * time.Millisecond)
		input.RequestItems = map[string][]types.WriteRequest{s.tableName: unprocessed}
	}
}

// BatchGet fetches the items at keys in chunks of 100, re-driving unprocessed
// keys. Absent keys are omitted from the result.
func (s *DynamoStore) BatchGet(ctx context.Context, keys []Key) ([]Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var items []Item
	for start := 0; start < len(keys); start += batchReadSize {
		end := min(start+batchReadSize, len(keys))

		chunk := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			chunk = append(chunk, keyAttributes(key))
		}

		chunkItems, err := s.batchGetChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		items = append(items, chunkItems...)
	}

	return items, nil
}

func (s *DynamoStore) batchGetChunk(ctx context.Context, keys []map[string]types.AttributeValue) ([]Item, error) {
	input := &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			s.tableName: {Keys: keys},
		},
	}

	var items []Item
	for redrive := 0; ; redrive++ {
		output, err := s.client.BatchGetItem(ctx, input)
		if err != nil {
			return nil, s.fail("BatchGetItem", err)
		}

		for _, item := range output.Responses[s.tableName] {
			items = append(items, Item(item))
		}

		unprocessed, ok := output.UnprocessedKeys[s.tableName]
		if !ok || len(unprocessed.Keys) == 0 {
			return items, nil
		}

		if redrive >= maxRedrives {
			s.logger.Warn("unprocessed keys remain after batch get",
				zap.Int("unprocessed", len(unprocessed.Keys)))
			return items, nil
		}

		time.Sleep(time.Duration(1<<redrive) * 100 * time.Millisecond)
		input.RequestItems = map[string]types.KeysAndAttributes{
			s.tableName: {Keys: unprocessed.Keys},
		}
	}
}

// fail logs the failed call with its service error code and maps it to an
// unavailable error for callers.
func (s *DynamoStore) fail(operation string, err error) error {
	var apiErr smithy.APIError
	code := ""
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	s.logger.Error("DynamoDB operation failed",
		zap.String("operation", operation),
		zap.String("code", code),
		zap.Error(err))
	return appErrors.NewUnavailable("DynamoDB "+operation+" failed", err)
}

func keyAttributes(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: key.PK},
		"SK": &types.AttributeValueMemberS{Value: key.SK},
	}
}
