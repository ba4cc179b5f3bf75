package googledrive

import (
	"context"
	"fmt"

	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/model"
	"golang.org/x/oauth2"
)

// Provider implements adapter.Provider for Google Drive.
type Provider struct {
	baseURL string
}

// NewProvider creates a new Google Drive provider. baseURL is empty in
// production and points at a fake server in tests.
func NewProvider(baseURL string) *Provider {
	return &Provider{baseURL: baseURL}
}

// GetAdapter returns a DriveAdapter authorized with cred. The credential is
// used as is; refreshing it is the caller's job.
func (p *Provider) GetAdapter(ctx context.Context, cred *model.Credential) (adapter.DriveAPI, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(cred.Token()))

	storage, err := NewDriveAdapter(ctx, client, p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}
	return storage, nil
}
