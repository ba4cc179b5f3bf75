// Package files implements the Drive operations exposed over HTTP: listing,
// inspecting, creating, updating, deleting, downloading and uploading remote
// files, with the ownership rule enforced before every mutation.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	// ListPageSize is the number of files returned by a listing. Only the first page is fetched.
	ListPageSize = 10

	defaultFileName     = "Untitled"
	defaultDownloadName = "downloaded_file"
	defaultShareRole    = "reader"
	createShareRole     = "writer"
)

// ErrInvalidInput is returned when a request is missing a required value.
var ErrInvalidInput = errors.New("invalid input")

// SharePolicy decides what happens after a share grant fails during create.
type SharePolicy string

const (
	// SharePolicyStop aborts on the first failed grant; later grants are not attempted.
	SharePolicyStop SharePolicy = "stop"

	// SharePolicyContinue attempts every grant and reports failures per email.
	SharePolicyContinue SharePolicy = "continue"
)

// ParseSharePolicy parses a policy name. An empty name selects SharePolicyStop.
func ParseSharePolicy(s string) (SharePolicy, error) {
	switch SharePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SharePolicyStop:
		return SharePolicyStop, nil
	case SharePolicyContinue:
		return SharePolicyContinue, nil
	}
	return "", fmt.Errorf("unknown share policy %q", s)
}

// ShareError reports a failed grant on a file that was already created.
type ShareError struct {
	FileID string
	Email  string
	Err    error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("file %s created but sharing with %s failed: %v", e.FileID, e.Email, e.Err)
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// Service is the remote file facade. It holds no per-user state; every call
// receives the DriveAPI bound to the caller's credential.
type Service struct {
	logger  *logrus.Logger
	policy  SharePolicy
	tempDir string
}

// NewService creates a Service. tempDir is where upload content is staged;
// empty means the OS default.
func NewService(logger *logrus.Logger, policy SharePolicy, tempDir string) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if policy == "" {
		policy = SharePolicyStop
	}
	return &Service{logger: logger, policy: policy, tempDir: tempDir}
}

// ResolveEmail returns the signed-in user's email, or "" when it cannot be
// determined. An unknown email owns nothing.
func (s *Service) ResolveEmail(ctx context.Context, api adapter.DriveAPI) string {
	email, err := api.CurrentUserEmail(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to resolve user email")
		return ""
	}
	return email
}

// ListResult is the response of ListFiles.
type ListResult struct {
	Files     []model.RemoteFile `json:"files"`
	UserEmail string             `json:"user_email"`
}

// ListFiles returns one page of files owned by or writable for email.
func (s *Service) ListFiles(ctx context.Context, api adapter.DriveAPI, email string) (*ListResult, error) {
	query := fmt.Sprintf("'me' in owners or '%s' in writers", escapeQuery(email))

	found, err := api.ListFiles(ctx, query, ListPageSize)
	if err != nil {
		return nil, err
	}

	for i := range found {
		annotate(&found[i], email)
	}
	return &ListResult{Files: found, UserEmail: email}, nil
}

// GetFile returns a file with its ownership annotation.
func (s *Service) GetFile(ctx context.Context, api adapter.DriveAPI, email, fileID string) (*model.RemoteFile, error) {
	f, err := api.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	annotate(f, email)
	return f, nil
}

// CreateInput describes a file to create and who to share it with.
// ContentType is the media type of Content as sent by the client.
type CreateInput struct {
	Name        string
	MIMEType    string
	ContentType string
	Content     io.Reader
	ShareWith   []string
}

// ShareFailure is one failed grant under SharePolicyContinue.
type ShareFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// CreateResult is the response of CreateFile.
type CreateResult struct {
	Message      string         `json:"message"`
	FileID       string         `json:"file_id"`
	SharedWith   []string       `json:"shared_with"`
	OwnerEmail   string         `json:"owner_email"`
	FailedShares []ShareFailure `json:"failed_shares,omitempty"`
}

// CreateFile creates a file, then grants writer access to each ShareWith
// entry. The file is never rolled back. Under SharePolicyStop a failed grant
// returns the partial result together with a *ShareError.
func (s *Service) CreateFile(ctx context.Context, api adapter.DriveAPI, email string, in CreateInput) (*CreateResult, error) {
	meta := adapter.NewFile{
		Name:     in.Name,
		MIMEType: in.MIMEType,
	}
	if meta.Name == "" {
		meta.Name = defaultFileName
	}
	// Only an empty file becomes a Google Doc by default. Uploaded content
	// keeps its own type so Drive stores it unconverted.
	if in.Content != nil {
		meta.ContentType = in.ContentType
		if meta.MIMEType == "" {
			meta.MIMEType = in.ContentType
		}
	} else if meta.MIMEType == "" {
		meta.MIMEType = adapter.GoogleDocMIMEType
	}

	var created *model.RemoteFile
	var err error
	if in.Content != nil {
		err = s.withStagedContent(in.Content, func(r io.Reader) error {
			created, err = api.CreateFile(ctx, meta, r)
			return err
		})
	} else {
		created, err = api.CreateFile(ctx, meta, nil)
	}
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{"file_id": created.ID, "owner": email})
	result := &CreateResult{
		Message:    "File created successfully",
		FileID:     created.ID,
		SharedWith: []string{},
		OwnerEmail: email,
	}

	for _, target := range in.ShareWith {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}

		_, err := api.CreatePermission(ctx, created.ID, model.Permission{
			EmailAddress: target,
			Role:         createShareRole,
			Type:         "user",
		}, true)
		if err != nil {
			log.WithError(err).WithField("share_with", target).Warn("share grant failed")
			if s.policy == SharePolicyStop {
				return result, &ShareError{FileID: created.ID, Email: target, Err: err}
			}
			result.FailedShares = append(result.FailedShares, ShareFailure{Email: target, Error: err.Error()})
			continue
		}
		result.SharedWith = append(result.SharedWith, target)
	}

	log.Info("file created")
	return result, nil
}

// UpdateForm is a file with its current permissions, shown before an update.
type UpdateForm struct {
	model.RemoteFile
	Permissions []model.Permission `json:"permissions"`
}

// UpdateForm returns the file and its permissions. Only the owner may see it.
func (s *Service) UpdateForm(ctx context.Context, api adapter.DriveAPI, email, fileID string) (*UpdateForm, error) {
	f, err := s.requireOwner(ctx, api, email, fileID)
	if err != nil {
		return nil, err
	}

	perms, err := api.ListPermissions(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return &UpdateForm{RemoteFile: *f, Permissions: perms}, nil
}

// ShareUpdate grants role to email. Role defaults to reader.
type ShareUpdate struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UpdateInput is the body of an update request.
type UpdateInput struct {
	Name              *string       `json:"name"`
	Description       *string       `json:"description"`
	ShareUpdates      []ShareUpdate `json:"share_updates"`
	RemovePermissions []string      `json:"remove_permissions"`
}

// UpdateResult is the response of UpdateFile.
type UpdateResult struct {
	Message    string            `json:"message"`
	File       *model.RemoteFile `json:"file"`
	OwnerEmail string            `json:"owner_email"`
}

// UpdateFile applies grants, then removals, then the metadata patch. The first
// failing step aborts the rest; steps already applied stay applied.
func (s *Service) UpdateFile(ctx context.Context, api adapter.DriveAPI, email, fileID string, in UpdateInput) (*UpdateResult, error) {
	for _, u := range in.ShareUpdates {
		if strings.TrimSpace(u.Email) == "" {
			return nil, fmt.Errorf("%w: share_updates entry without email", ErrInvalidInput)
		}
	}

	if _, err := s.requireOwner(ctx, api, email, fileID); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{"file_id": fileID, "owner": email})

	for _, u := range in.ShareUpdates {
		role := u.Role
		if role == "" {
			role = defaultShareRole
		}
		_, err := api.CreatePermission(ctx, fileID, model.Permission{
			EmailAddress: strings.TrimSpace(u.Email),
			Role:         role,
			Type:         "user",
		}, true)
		if err != nil {
			return nil, err
		}
	}

	for _, target := range in.RemovePermissions {
		if err := s.removeGrantsFor(ctx, api, fileID, target); err != nil {
			return nil, err
		}
	}

	updated, err := api.UpdateFile(ctx, fileID, adapter.FileUpdate{
		Name:        in.Name,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}
	annotate(updated, email)

	log.Info("file updated")
	return &UpdateResult{
		Message:    "File updated successfully",
		File:       updated,
		OwnerEmail: email,
	}, nil
}

func (s *Service) removeGrantsFor(ctx context.Context, api adapter.DriveAPI, fileID, target string) error {
	perms, err := api.ListPermissions(ctx, fileID)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p.Role == "owner" || !strings.EqualFold(p.EmailAddress, target) {
			continue
		}
		if err := api.DeletePermission(ctx, fileID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteResult is the response of DeleteFile.
type DeleteResult struct {
	Message    string `json:"message"`
	OwnerEmail string `json:"owner_email"`
}

// DeleteFile deletes a file owned by email.
func (s *Service) DeleteFile(ctx context.Context, api adapter.DriveAPI, email, fileID string) (*DeleteResult, error) {
	if _, err := s.requireOwner(ctx, api, email, fileID); err != nil {
		return nil, err
	}
	if err := api.DeleteFile(ctx, fileID); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"file_id": fileID, "owner": email}).Info("file deleted")
	return &DeleteResult{Message: "File deleted successfully", OwnerEmail: email}, nil
}

// Download is a fully buffered file.
type Download struct {
	Name               string
	Content            []byte
	ContentDisposition string
}

// DownloadFile reads a file fully into memory.
func (s *Service) DownloadFile(ctx context.Context, api adapter.DriveAPI, fileID string) (*Download, error) {
	f, err := api.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	name := f.Name
	if name == "" {
		name = defaultDownloadName
	}

	content, err := api.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}

	return &Download{
		Name:               name,
		Content:            content,
		ContentDisposition: ContentDisposition(name),
	}, nil
}

// UploadInput is a file pushed by the service account.
type UploadInput struct {
	Name     string
	MIMEType string
	Content  io.Reader
	Parents  []string
}

// UploadFile stages the content in a temporary file and creates it remotely.
func (s *Service) UploadFile(ctx context.Context, api adapter.DriveAPI, in UploadInput) (*model.RemoteFile, error) {
	if in.Name == "" || in.Content == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}

	var created *model.RemoteFile
	err := s.withStagedContent(in.Content, func(r io.Reader) error {
		var err error
		created, err = api.CreateFile(ctx, adapter.NewFile{
			Name:        in.Name,
			MIMEType:    in.MIMEType,
			ContentType: in.MIMEType,
			Parents:     in.Parents,
		}, r)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"file_id": created.ID, "name": in.Name}).Info("file uploaded")
	return created, nil
}

// ContentDisposition formats an attachment header for name.
func ContentDisposition(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return fmt.Sprintf(`attachment; filename="%s"`, escaped)
}

// withStagedContent copies content to a temporary file and hands it to fn.
// The temporary file is removed afterwards whatever fn returns.
func (s *Service) withStagedContent(content io.Reader, fn func(io.Reader) error) error {
	tmp, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).WithField("path", tmp.Name()).Warn("failed to remove temp file")
		}
	}()

	if _, err := io.Copy(tmp, content); err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind staged upload: %w", err)
	}
	return fn(tmp)
}

// requireOwner fetches the file's current owners and fails with
// adapter.ErrForbidden unless email is one of them.
func (s *Service) requireOwner(ctx context.Context, api adapter.DriveAPI, email, fileID string) (*model.RemoteFile, error) {
	f, err := api.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	annotate(f, email)
	if !f.IsOwner {
		s.logger.WithFields(logrus.Fields{"file_id": fileID, "user": email}).Warn("ownership check failed")
		return nil, fmt.Errorf("%s does not own file %s: %w", email, fileID, adapter.ErrForbidden)
	}
	return f, nil
}

func annotate(f *model.RemoteFile, email string) {
	f.UserEmail = email
	f.IsOwner = isOwner(f.Owners, email)
}

func isOwner(owners []model.Owner, email string) bool {
	if email == "" {
		return false
	}
	for _, o := range owners {
		if strings.EqualFold(o.EmailAddress, email) {
			return true
		}
	}
	return false
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string.
func escapeQuery(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
