package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/model"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	listFields       = "files(id, name, mimeType, createdTime, owners, shared)"
	fileFields       = "id, name, mimeType, createdTime, description, owners, shared"
	permissionFields = "id, emailAddress, role, type"
)

// DriveAdapter implements adapter.DriveAPI for Google Drive.
type DriveAdapter struct {
	service  *drive.Service
	userinfo *oauth2api.Service
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client with specific user credentials.
// baseURL replaces the Google API host when non-empty.
func NewDriveAdapter(ctx context.Context, client *http.Client, baseURL string) (*DriveAdapter, error) {
	driveOpts := []option.ClientOption{option.WithHTTPClient(client)}
	userinfoOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if baseURL != "" {
		base := strings.TrimSuffix(baseURL, "/")
		driveOpts = append(driveOpts, option.WithEndpoint(base+"/drive/v3/"))
		userinfoOpts = append(userinfoOpts, option.WithEndpoint(base+"/"))
	}

	srv, err := drive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	info, err := oauth2api.NewService(ctx, userinfoOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve userinfo client: %w", err)
	}
	return &DriveAdapter{service: srv, userinfo: info}, nil
}

// NewServiceAccountAdapter creates a DriveAdapter acting as the service
// account described by credentialsFile.
func NewServiceAccountAdapter(ctx context.Context, credentialsFile string) (*DriveAdapter, error) {
	srv, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create service account Drive client: %w", err)
	}
	return &DriveAdapter{service: srv}, nil
}

// ListFiles lists files matching query, one page only.
func (d *DriveAdapter) ListFiles(ctx context.Context, query string, pageSize int) ([]model.RemoteFile, error) {
	r, err := d.service.Files.List().
		Q(query).
		PageSize(int64(pageSize)).
		Fields(googleapi.Field(listFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("unable to list files", err)
	}

	files := make([]model.RemoteFile, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, toRemoteFile(f))
	}
	return files, nil
}

// GetFile retrieves a file's metadata by its ID.
func (d *DriveAdapter) GetFile(ctx context.Context, fileID string) (*model.RemoteFile, error) {
	f, err := d.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("unable to get file metadata", err)
	}
	rf := toRemoteFile(f)
	return &rf, nil
}

// CreateFile creates a new file, uploading media when given.
func (d *DriveAdapter) CreateFile(ctx context.Context, meta adapter.NewFile, media io.Reader) (*model.RemoteFile, error) {
	f := &drive.File{
		Name:        meta.Name,
		MimeType:    meta.MIMEType,
		Description: meta.Description,
		Parents:     meta.Parents,
	}
	call := d.service.Files.Create(f).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx)
	if media != nil {
		var opts []googleapi.MediaOption
		if meta.ContentType != "" {
			opts = append(opts, googleapi.ContentType(meta.ContentType))
		}
		call = call.Media(media, opts...)
	}

	res, err := call.Do()
	if err != nil {
		return nil, mapError("unable to create file", err)
	}
	rf := toRemoteFile(res)
	return &rf, nil
}

// UpdateFile patches name and description.
func (d *DriveAdapter) UpdateFile(ctx context.Context, fileID string, patch adapter.FileUpdate) (*model.RemoteFile, error) {
	f := &drive.File{}
	if patch.Name != nil {
		f.Name = *patch.Name
	}
	if patch.Description != nil {
		f.Description = *patch.Description
		f.ForceSendFields = append(f.ForceSendFields, "Description")
	}

	res, err := d.service.Files.Update(fileID, f).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("unable to update file", err)
	}
	rf := toRemoteFile(res)
	return &rf, nil
}

// DeleteFile deletes a file by its ID.
func (d *DriveAdapter) DeleteFile(ctx context.Context, fileID string) error {
	if err := d.service.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return mapError("unable to delete file", err)
	}
	return nil
}

// Download reads the whole file content into memory.
func (d *DriveAdapter) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, mapError("unable to download file", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read file content: %w", err)
	}
	return content, nil
}

// ListPermissions lists the permissions of a file.
func (d *DriveAdapter) ListPermissions(ctx context.Context, fileID string) ([]model.Permission, error) {
	r, err := d.service.Permissions.List(fileID).
		SupportsAllDrives(true).
		Fields(googleapi.Field("permissions(" + permissionFields + ")")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("unable to list permissions", err)
	}

	perms := make([]model.Permission, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermission(p))
	}
	return perms, nil
}

// CreatePermission grants a user role on a file.
func (d *DriveAdapter) CreatePermission(ctx context.Context, fileID string, perm model.Permission, notify bool) (*model.Permission, error) {
	permType := perm.Type
	if permType == "" {
		permType = "user"
	}

	res, err := d.service.Permissions.Create(fileID, &drive.Permission{
		Type:         permType,
		Role:         perm.Role,
		EmailAddress: perm.EmailAddress,
	}).
		SendNotificationEmail(notify).
		SupportsAllDrives(true).
		Fields(permissionFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(fmt.Sprintf("unable to share with %s", perm.EmailAddress), err)
	}
	p := toPermission(res)
	return &p, nil
}

// DeletePermission revokes a permission.
func (d *DriveAdapter) DeletePermission(ctx context.Context, fileID, permissionID string) error {
	err := d.service.Permissions.Delete(fileID, permissionID).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return mapError("unable to delete permission", err)
	}
	return nil
}

// CurrentUserEmail asks the userinfo endpoint for the signed-in user's email.
func (d *DriveAdapter) CurrentUserEmail(ctx context.Context) (string, error) {
	if d.userinfo == nil {
		return "", errors.New("userinfo is not available for this client")
	}
	info, err := d.userinfo.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", mapError("unable to fetch user info", err)
	}
	return info.Email, nil
}

func toRemoteFile(f *drive.File) model.RemoteFile {
	owners := make([]model.Owner, 0, len(f.Owners))
	for _, o := range f.Owners {
		owners = append(owners, model.Owner{EmailAddress: o.EmailAddress, DisplayName: o.DisplayName})
	}
	return model.RemoteFile{
		ID:          f.Id,
		Name:        f.Name,
		MIMEType:    f.MimeType,
		CreatedTime: f.CreatedTime,
		Description: f.Description,
		Owners:      owners,
		Shared:      f.Shared,
	}
}

func toPermission(p *drive.Permission) model.Permission {
	return model.Permission{
		ID:           p.Id,
		EmailAddress: p.EmailAddress,
		Role:         p.Role,
		Type:         p.Type,
	}
}

// mapError converts googleapi status codes into adapter sentinel errors.
func mapError(msg string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", msg, adapter.ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", msg, adapter.ErrForbidden)
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%s: %w", msg, adapter.ErrPreconditionFailed)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", msg, adapter.ErrUnauthenticated)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", msg, adapter.ErrRateLimited)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
