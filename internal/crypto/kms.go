// Package crypto encrypts stored Drive credentials.
package crypto

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// ErrMalformedCiphertext is returned when a stored value was not produced by
// the Encryptor reading it.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encryptor seals credential blobs before they are persisted.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// KMSClient is the subset of *kms.Client used by KMSEncryptor.
type KMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// kmsPrefix versions the stored format: "kms1:" followed by the base64 blob.
const kmsPrefix = "kms1:"

// KMSEncryptor encrypts with a KMS key. Every ciphertext is bound to the
// credential encryption context, so KMS refuses to decrypt blobs sealed for
// another purpose.
type KMSEncryptor struct {
	client  KMSClient
	keyID   string
	context map[string]string
}

// NewKMSEncryptor returns an Encryptor using keyID, which may be a key id,
// ARN or alias.
func NewKMSEncryptor(client KMSClient, keyID string) *KMSEncryptor {
	return &KMSEncryptor{
		client:  client,
		keyID:   keyID,
		context: map[string]string{"purpose": "drive-credential"},
	}
}

func (e *KMSEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	out, err := e.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(e.keyID),
		Plaintext:         []byte(plaintext),
		EncryptionContext: e.context,
	})
	if err != nil {
		return "", fmt.Errorf("kms encrypt: %w", err)
	}
	return kmsPrefix + base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

func (e *KMSEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, kmsPrefix)
	if !ok {
		return "", ErrMalformedCiphertext
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	out, err := e.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		KeyId:             aws.String(e.keyID),
		EncryptionContext: e.context,
	})
	if err != nil {
		return "", fmt.Errorf("kms decrypt: %w", err)
	}
	return string(out.Plaintext), nil
}
