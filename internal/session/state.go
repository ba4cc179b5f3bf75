package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/BimaHajer/APIAutome/internal/model"
)

// DynamoClient is the subset of *dynamodb.Client methods used by DynamoStateStore.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStateStore keeps authorization states in DynamoDB.
// The table is keyed by session_id and uses expires_at as its TTL attribute.
type DynamoStateStore struct {
	client    DynamoClient
	tableName string
	now       func() time.Time
}

// NewDynamoStateStore creates a new DynamoStateStore.
func NewDynamoStateStore(client DynamoClient, tableName string) *DynamoStateStore {
	return &DynamoStateStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// Issue writes the state, overwriting the session's previous one.
func (s *DynamoStateStore) Issue(ctx context.Context, st model.AuthorizationState) error {
	item, err := attributevalue.MarshalMap(st)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization state: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to store authorization state: %w", err)
	}
	return nil
}

// Consume deletes the state and returns the deleted item.
// DynamoDB TTL deletion is lazy, so expiry is checked here as well.
func (s *DynamoStateStore) Consume(ctx context.Context, sessionID string) (*model.AuthorizationState, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}
	if len(out.Attributes) == 0 {
		return nil, ErrStateNotFound
	}

	var st model.AuthorizationState
	if err := attributevalue.UnmarshalMap(out.Attributes, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization state: %w", err)
	}

	if st.ExpiresAt < s.now().Unix() {
		return nil, ErrStateNotFound
	}
	return &st, nil
}

// Discard removes the session's state.
func (s *DynamoStateStore) Discard(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to discard authorization state: %w", err)
	}
	return nil
}
