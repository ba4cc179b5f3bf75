// Package dynamostore keeps records of every schema in one DynamoDB table,
// partitioned by record type and keyed by id.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/BimaHajer/APIAutome/internal/records"
)

const (
	partitionKey = "record_type"
	sortKey      = "id"
)

// DynamoClient is the subset of *dynamodb.Client methods used by Store.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store implements records.Store on DynamoDB.
type Store struct {
	client    DynamoClient
	tableName string
}

// New creates a Store writing to tableName.
func New(client DynamoClient, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

func key(schema *records.Schema, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKey: &types.AttributeValueMemberS{Value: schema.Table},
		sortKey:      &types.AttributeValueMemberS{Value: id},
	}
}

func (s *Store) List(ctx context.Context, schema *records.Schema) ([]records.Record, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": partitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: schema.Table},
		},
	})

	var out []records.Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query records: %w", err)
		}
		for _, item := range page.Items {
			rec, err := decode(schema, item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	records.SortRecords(out)
	return out, nil
}

func (s *Store) Get(ctx context.Context, schema *records.Schema, id string) (records.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(schema, id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if out.Item == nil {
		return nil, records.ErrNotFound
	}
	return decode(schema, out.Item)
}

func (s *Store) Insert(ctx context.Context, schema *records.Schema, rec records.Record) error {
	return s.put(ctx, schema, rec, "attribute_not_exists(#sk)")
}

func (s *Store) Update(ctx context.Context, schema *records.Schema, rec records.Record) error {
	return s.put(ctx, schema, rec, "attribute_exists(#sk)")
}

func (s *Store) put(ctx context.Context, schema *records.Schema, rec records.Record, condition string) error {
	item, err := attributevalue.MarshalMap(map[string]interface{}(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	item[partitionKey] = &types.AttributeValueMemberS{Value: schema.Table}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: map[string]string{"#sk": sortKey},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if condition == "attribute_exists(#sk)" {
			return records.ErrNotFound
		}
		return fmt.Errorf("record %s already exists", rec.ID())
	}
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, schema *records.Schema, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      key(schema, id),
		ConditionExpression:      aws.String("attribute_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#sk": sortKey},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return records.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func decode(schema *records.Schema, item map[string]types.AttributeValue) (records.Record, error) {
	rec := records.Record{}
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	delete(rec, partitionKey)
	return schema.Normalize(rec), nil
}
