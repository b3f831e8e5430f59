package settings

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the subset of the DynamoDB API used by DynamoStore.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps one item per setting.
//
// Table schema:
//   - Partition key: module (string)
//   - Sort key: key (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vramcache-settings \
//	  --attribute-definitions AttributeName=module,AttributeType=S AttributeName=key,AttributeType=S \
//	  --key-schema AttributeName=module,KeyType=HASH AttributeName=key,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DynamoStore struct {
	client DDBClient
	table  string
}

// NewDynamoStore creates a DynamoStore on an existing client.
func NewDynamoStore(client DDBClient, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// DialDynamo loads the default AWS configuration and opens table.
func DialDynamo(ctx context.Context, table string) (*DynamoStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: load aws config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table), nil
}

func itemKey(module, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"module": &types.AttributeValueMemberS{Value: module},
		"key":    &types.AttributeValueMemberS{Value: key},
	}
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, module, key string) (string, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(module, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("settings: get %s/%s: %w", module, key, err)
	}
	if len(resp.Item) == 0 {
		return "", ErrNotFound
	}
	v, ok := resp.Item["value"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("settings: %s/%s: invalid value attribute", module, key)
	}
	return v.Value, nil
}

// Set implements Store.
func (s *DynamoStore) Set(ctx context.Context, module, key, value string) error {
	item := itemKey(module, key)
	item["value"] = &types.AttributeValueMemberS{Value: value}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("settings: put %s/%s: %w", module, key, err)
	}
	return nil
}

// Close implements Store.
func (s *DynamoStore) Close() error { return nil }
