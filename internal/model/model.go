package model

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the OAuth2 token set held for one session.
type Credential struct {
	AccessToken  string    `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" dynamodbav:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty" dynamodbav:"token_type"`
	Expiry       time.Time `json:"expiry" dynamodbav:"expiry"`
	Scopes       []string  `json:"scopes,omitempty" dynamodbav:"scopes"`
}

// Token converts the credential into an oauth2.Token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// ValidAt reports whether the access token is present and unexpired at now.
func (c *Credential) ValidAt(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return now.Before(c.Expiry)
}

// StoredCredential is the persisted form of a Credential.
// Blob holds the encrypted JSON encoding of the credential.
type StoredCredential struct {
	SessionID string    `json:"session_id" dynamodbav:"session_id"`
	Blob      string    `json:"blob" dynamodbav:"blob"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// AuthorizationState is the one-time anti-CSRF state issued with a consent URL.
type AuthorizationState struct {
	SessionID    string `json:"session_id" dynamodbav:"session_id"`
	State        string `json:"state" dynamodbav:"state"`
	CodeVerifier string `json:"code_verifier" dynamodbav:"code_verifier"`
	CreatedAt    int64  `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt    int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// Owner is an owner entry of a remote file.
type Owner struct {
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName,omitempty"`
}

// RemoteFile is the normalized view of a Drive file returned by the API.
type RemoteFile struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	MIMEType    string  `json:"mimeType,omitempty"`
	CreatedTime string  `json:"createdTime,omitempty"`
	Description string  `json:"description,omitempty"`
	Owners      []Owner `json:"owners"`
	Shared      bool    `json:"shared"`
	UserEmail   string  `json:"user_email"`
	IsOwner     bool    `json:"is_owner"`
}

// Permission is a sharing grant on a remote file.
type Permission struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Role         string `json:"role"`
	Type         string `json:"type,omitempty"`
}
