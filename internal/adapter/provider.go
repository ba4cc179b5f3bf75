package adapter

import (
	"context"

	"github.com/BimaHajer/APIAutome/internal/model"
)

// Provider defines how to get a DriveAPI bound to a session's credential.
type Provider interface {
	// GetAdapter returns a DriveAPI authorized with cred.
	GetAdapter(ctx context.Context, cred *model.Credential) (DriveAPI, error)
}
