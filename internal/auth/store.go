package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/BimaHajer/APIAutome/internal/crypto"
	"github.com/BimaHajer/APIAutome/internal/model"
)

// ErrCredentialNotFound is returned when no credential is stored for a session.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore persists one credential per session id.
type CredentialStore interface {
	Get(ctx context.Context, sessionID string) (*model.Credential, error)
	Save(ctx context.Context, sessionID string, cred *model.Credential) error
	Delete(ctx context.Context, sessionID string) error
}

// DynamoClient is the subset of *dynamodb.Client methods used by TokenStore.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// TokenStore keeps credentials encrypted in DynamoDB.
// When no DynamoDB client is given it falls back to an in-memory map.
type TokenStore struct {
	dynamoClient DynamoClient
	tableName    string
	encryptor    crypto.Encryptor

	// In-memory fallback
	items map[string]model.StoredCredential
	mu    sync.RWMutex
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(dynamoClient DynamoClient, tableName string, encryptor crypto.Encryptor) *TokenStore {
	return &TokenStore{
		dynamoClient: dynamoClient,
		tableName:    tableName,
		encryptor:    encryptor,
		items:        make(map[string]model.StoredCredential),
	}
}

// Save encrypts the credential and stores it under the session id.
func (s *TokenStore) Save(ctx context.Context, sessionID string, cred *model.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	blob, err := s.encryptor.Encrypt(ctx, string(raw))
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	stored := model.StoredCredential{
		SessionID: sessionID,
		Blob:      blob,
		UpdatedAt: time.Now(),
	}

	if s.dynamoClient == nil {
		s.mu.Lock()
		s.items[sessionID] = stored
		s.mu.Unlock()
		return nil
	}

	item, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal stored credential: %w", err)
	}

	_, err = s.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save credential to DynamoDB: %w", err)
	}
	return nil
}

// Get loads and decrypts the session's credential.
func (s *TokenStore) Get(ctx context.Context, sessionID string) (*model.Credential, error) {
	var stored model.StoredCredential

	if s.dynamoClient == nil {
		s.mu.RLock()
		item, ok := s.items[sessionID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrCredentialNotFound
		}
		stored = item
	} else {
		out, err := s.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"session_id": &types.AttributeValueMemberS{Value: sessionID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
		}
		if out.Item == nil {
			return nil, ErrCredentialNotFound
		}
		if err := attributevalue.UnmarshalMap(out.Item, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored credential: %w", err)
		}
	}

	raw, err := s.encryptor.Decrypt(ctx, stored.Blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}

	var cred model.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	return &cred, nil
}

// Delete removes the session's credential. Deleting a missing credential is not an error.
func (s *TokenStore) Delete(ctx context.Context, sessionID string) error {
	if s.dynamoClient == nil {
		s.mu.Lock()
		delete(s.items, sessionID)
		s.mu.Unlock()
		return nil
	}

	_, err := s.dynamoClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete credential from DynamoDB: %w", err)
	}
	return nil
}
