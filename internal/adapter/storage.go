package adapter

import (
	"context"
	"io"

	"github.com/BimaHajer/APIAutome/internal/model"
)

// GoogleDocMIMEType is the MIME type of a native Google Docs document.
const GoogleDocMIMEType = "application/vnd.google-apps.document"

// NewFile describes a file to create.
// MIMEType is the Drive type of the file; ContentType is the media type of
// the uploaded content. They differ when Drive should convert the upload.
type NewFile struct {
	Name        string
	MIMEType    string
	ContentType string
	Description string
	Parents     []string
}

// FileUpdate is a metadata patch. Nil fields are left unchanged.
type FileUpdate struct {
	Name        *string
	Description *string
}

// DriveAPI is the subset of a remote drive used by the file service.
// An implementation is bound to one set of credentials.
type DriveAPI interface {
	// ListFiles returns at most pageSize files matching query.
	ListFiles(ctx context.Context, query string, pageSize int) ([]model.RemoteFile, error)

	// GetFile returns a file's metadata, including its owners.
	GetFile(ctx context.Context, fileID string) (*model.RemoteFile, error)

	// CreateFile creates a file. media may be nil for an empty file.
	CreateFile(ctx context.Context, meta NewFile, media io.Reader) (*model.RemoteFile, error)

	// UpdateFile patches a file's metadata.
	UpdateFile(ctx context.Context, fileID string, patch FileUpdate) (*model.RemoteFile, error)

	// DeleteFile deletes a file by its ID.
	DeleteFile(ctx context.Context, fileID string) error

	// Download returns the full content of a file.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// ListPermissions lists the sharing grants of a file.
	ListPermissions(ctx context.Context, fileID string) ([]model.Permission, error)

	// CreatePermission grants perm on a file, optionally emailing the grantee.
	CreatePermission(ctx context.Context, fileID string, perm model.Permission, notify bool) (*model.Permission, error)

	// DeletePermission revokes a grant by its permission ID.
	DeletePermission(ctx context.Context, fileID, permissionID string) error

	// CurrentUserEmail returns the email address of the authenticated user.
	CurrentUserEmail(ctx context.Context) (string, error)
}
