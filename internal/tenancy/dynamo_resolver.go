package tenancy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoResolver reads center configurations from a DynamoDB table keyed by tenantKey.
type DynamoResolver struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoResolver(client dynamoAPI, tableName string) *DynamoResolver {
	if client == nil {
		panic("tenancy: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("tenancy: table name cannot be empty")
	}
	return &DynamoResolver{client: client, tableName: tableName}
}

func (r *DynamoResolver) Resolve(ctx context.Context, tenantKey string) (SubaccountConfig, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"tenantKey": &types.AttributeValueMemberS{Value: tenantKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return SubaccountConfig{}, fmt.Errorf("tenancy: fetch config: %w", err)
	}
	if out.Item == nil {
		return SubaccountConfig{}, &TenantNotFoundError{Key: tenantKey}
	}
	var cfg SubaccountConfig
	if err := attributevalue.UnmarshalMap(out.Item, &cfg); err != nil {
		return SubaccountConfig{}, fmt.Errorf("tenancy: decode config: %w", err)
	}
	return cfg, nil
}

// Save writes a center configuration.
func (r *DynamoResolver) Save(ctx context.Context, cfg SubaccountConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(cfg)
	if err != nil {
		return fmt.Errorf("tenancy: marshal config: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("tenancy: persist config: %w", err)
	}
	return nil
}
