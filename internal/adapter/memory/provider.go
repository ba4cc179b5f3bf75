package memory

import (
	"context"
	"strings"

	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/model"
)

// DemoTokenPrefix marks access tokens minted for demo sessions. The rest of
// the token is the demo user's email.
const DemoTokenPrefix = "demo:"

// Provider implements adapter.Provider backed by a shared in-memory Drive.
type Provider struct {
	drive        *Drive
	defaultEmail string
}

// NewProvider creates a Provider. Credentials that are not demo tokens act as defaultEmail.
func NewProvider(drive *Drive, defaultEmail string) *Provider {
	return &Provider{drive: drive, defaultEmail: defaultEmail}
}

// GetAdapter returns the drive view of the user the credential belongs to.
func (p *Provider) GetAdapter(ctx context.Context, cred *model.Credential) (adapter.DriveAPI, error) {
	email := p.defaultEmail
	if cred != nil && strings.HasPrefix(cred.AccessToken, DemoTokenPrefix) {
		email = strings.TrimPrefix(cred.AccessToken, DemoTokenPrefix)
	}
	return p.drive.As(email), nil
}
