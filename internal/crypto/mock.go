package crypto

import (
	"context"
	"encoding/base64"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor stands in for KMS in dev mode and tests. It only encodes,
// so stored credentials stay readable on disk.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (MockEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	return mockPrefix + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (MockEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, mockPrefix)
	if !ok {
		return "", ErrMalformedCiphertext
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	return string(b), nil
}
