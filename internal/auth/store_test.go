package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/BimaHajer/APIAutome/internal/crypto"
	"github.com/BimaHajer/APIAutome/internal/model"
)

type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func sessionKey(item map[string]types.AttributeValue) string {
	if v, ok := item["session_id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[sessionKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[sessionKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, sessionKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func testCredential() *model.Credential {
	return &model.Credential{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		Scopes:       DefaultScopes,
	}
}

func TestTokenStore_MemoryFallback(t *testing.T) {
	s := NewTokenStore(nil, "test-tokens-table", crypto.NewMockEncryptor())
	ctx := context.Background()

	if err := s.Save(ctx, "sess1", testCredential()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// MockEncryptor prefixes with "mock:"
	if blob := s.items["sess1"].Blob; !strings.HasPrefix(blob, "mock:") {
		t.Errorf("Expected encrypted blob, got %q", blob)
	}

	got, err := s.Get(ctx, "sess1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RefreshToken != "refresh-456" || len(got.Scopes) != 2 {
		t.Errorf("Unexpected credential: %+v", got)
	}

	if err := s.Delete(ctx, "sess1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "sess1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Expected ErrCredentialNotFound, got %v", err)
	}
}

func TestTokenStore_DynamoDB(t *testing.T) {
	db := newFakeDynamo()
	s := NewTokenStore(db, "UserTokens", crypto.NewMockEncryptor())
	ctx := context.Background()

	want := testCredential()
	if err := s.Save(ctx, "sess1", want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	item, ok := db.items["sess1"]
	if !ok {
		t.Fatal("Expected item to be written to DynamoDB")
	}
	blob, _ := item["blob"].(*types.AttributeValueMemberS)
	if blob == nil || !strings.HasPrefix(blob.Value, "mock:") {
		t.Errorf("Expected blob attribute with encrypted credential, got %#v", item["blob"])
	}

	got, err := s.Get(ctx, "sess1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccessToken != want.AccessToken || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("Got %+v, want %+v", got, want)
	}

	if _, err := s.Get(ctx, "other"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Expected ErrCredentialNotFound, got %v", err)
	}

	s.Delete(ctx, "sess1")
	if len(db.items) != 0 {
		t.Errorf("Expected item to be deleted, %d left", len(db.items))
	}
}
