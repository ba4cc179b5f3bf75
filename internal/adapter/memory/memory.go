// Package memory is an in-process stand-in for Google Drive. It keeps files and
// permissions in maps and enforces the same visibility and ownership rules, so
// dev mode and tests can run without network access.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/model"
	"github.com/google/uuid"
)

// Call records one mutating request made against the Drive.
type Call struct {
	Method string
	FileID string
	Email  string
}

type entry struct {
	file    model.RemoteFile
	parents []string
	content []byte
	perms   []model.Permission
}

// Drive holds the shared state seen by every user.
type Drive struct {
	mu        sync.RWMutex
	files     map[string]*entry
	order     []string
	calls     []Call
	failShare map[string]error
	now       func() time.Time
}

// NewDrive creates an empty Drive.
func NewDrive() *Drive {
	return &Drive{
		files:     make(map[string]*entry),
		failShare: make(map[string]error),
		now:       time.Now,
	}
}

// As returns a view of the drive authenticated as email.
func (d *Drive) As(email string) *Adapter {
	return &Adapter{drive: d, email: email}
}

// Calls returns the mutating calls made so far.
func (d *Drive) Calls() []Call {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Call(nil), d.calls...)
}

// FailShareWith makes every grant to email fail with err.
func (d *Drive) FailShareWith(email string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failShare[strings.ToLower(email)] = err
}

// Content returns the stored bytes of a file.
func (d *Drive) Content(fileID string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.files[fileID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), e.content...), true
}

func (d *Drive) record(method, fileID, email string) {
	d.calls = append(d.calls, Call{Method: method, FileID: fileID, Email: email})
}

// role returns the strongest role email holds on e, or "".
func (e *entry) role(email string) string {
	for _, o := range e.file.Owners {
		if strings.EqualFold(o.EmailAddress, email) {
			return "owner"
		}
	}
	best := ""
	for _, p := range e.perms {
		if !strings.EqualFold(p.EmailAddress, email) {
			continue
		}
		switch p.Role {
		case "owner", "organizer":
			return "owner"
		case "writer", "fileOrganizer":
			best = "writer"
		default:
			if best == "" {
				best = "reader"
			}
		}
	}
	return best
}

// Adapter implements adapter.DriveAPI for one user of a Drive.
type Adapter struct {
	drive *Drive
	email string
}

func (a *Adapter) lookup(fileID string) (*entry, error) {
	e, ok := a.drive.files[fileID]
	if !ok || e.role(a.email) == "" {
		return nil, fmt.Errorf("file %s: %w", fileID, adapter.ErrNotFound)
	}
	return e, nil
}

func (a *Adapter) ListFiles(ctx context.Context, query string, pageSize int) ([]model.RemoteFile, error) {
	match, err := parseQuery(query, a.email)
	if err != nil {
		return nil, err
	}

	a.drive.mu.RLock()
	defer a.drive.mu.RUnlock()

	files := []model.RemoteFile{}
	for _, id := range a.drive.order {
		e, ok := a.drive.files[id]
		if !ok || !match(e) {
			continue
		}
		files = append(files, e.file)
		if pageSize > 0 && len(files) == pageSize {
			break
		}
	}
	return files, nil
}

func (a *Adapter) GetFile(ctx context.Context, fileID string) (*model.RemoteFile, error) {
	a.drive.mu.RLock()
	defer a.drive.mu.RUnlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return nil, err
	}
	f := e.file
	return &f, nil
}

func (a *Adapter) CreateFile(ctx context.Context, meta adapter.NewFile, media io.Reader) (*model.RemoteFile, error) {
	var content []byte
	if media != nil {
		b, err := io.ReadAll(media)
		if err != nil {
			return nil, fmt.Errorf("unable to read upload: %w", err)
		}
		content = b
	}

	a.drive.mu.Lock()
	defer a.drive.mu.Unlock()

	id := uuid.New().String()
	e := &entry{
		file: model.RemoteFile{
			ID:          id,
			Name:        meta.Name,
			MIMEType:    meta.MIMEType,
			CreatedTime: a.drive.now().UTC().Format(time.RFC3339),
			Description: meta.Description,
			Owners:      []model.Owner{{EmailAddress: a.email}},
		},
		parents: meta.Parents,
		content: content,
	}
	a.drive.files[id] = e
	a.drive.order = append(a.drive.order, id)
	a.drive.record("files.create", id, a.email)

	f := e.file
	return &f, nil
}

func (a *Adapter) UpdateFile(ctx context.Context, fileID string, patch adapter.FileUpdate) (*model.RemoteFile, error) {
	a.drive.mu.Lock()
	defer a.drive.mu.Unlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return nil, err
	}
	if r := e.role(a.email); r != "owner" && r != "writer" {
		return nil, fmt.Errorf("update %s: %w", fileID, adapter.ErrForbidden)
	}

	if patch.Name != nil {
		e.file.Name = *patch.Name
	}
	if patch.Description != nil {
		e.file.Description = *patch.Description
	}
	a.drive.record("files.update", fileID, a.email)

	f := e.file
	return &f, nil
}

func (a *Adapter) DeleteFile(ctx context.Context, fileID string) error {
	a.drive.mu.Lock()
	defer a.drive.mu.Unlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return err
	}
	if e.role(a.email) != "owner" {
		return fmt.Errorf("delete %s: %w", fileID, adapter.ErrForbidden)
	}

	delete(a.drive.files, fileID)
	for i, id := range a.drive.order {
		if id == fileID {
			a.drive.order = append(a.drive.order[:i], a.drive.order[i+1:]...)
			break
		}
	}
	a.drive.record("files.delete", fileID, a.email)
	return nil
}

func (a *Adapter) Download(ctx context.Context, fileID string) ([]byte, error) {
	a.drive.mu.RLock()
	defer a.drive.mu.RUnlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(e.content), nil
}

func (a *Adapter) ListPermissions(ctx context.Context, fileID string) ([]model.Permission, error) {
	a.drive.mu.RLock()
	defer a.drive.mu.RUnlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return nil, err
	}

	perms := make([]model.Permission, 0, len(e.file.Owners)+len(e.perms))
	for _, o := range e.file.Owners {
		perms = append(perms, model.Permission{
			ID:           "owner-" + o.EmailAddress,
			EmailAddress: o.EmailAddress,
			Role:         "owner",
			Type:         "user",
		})
	}
	return append(perms, e.perms...), nil
}

func (a *Adapter) CreatePermission(ctx context.Context, fileID string, perm model.Permission, notify bool) (*model.Permission, error) {
	a.drive.mu.Lock()
	defer a.drive.mu.Unlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return nil, err
	}
	if r := e.role(a.email); r != "owner" && r != "writer" {
		return nil, fmt.Errorf("share %s: %w", fileID, adapter.ErrForbidden)
	}

	a.drive.record("permissions.create", fileID, perm.EmailAddress)
	if failErr, ok := a.drive.failShare[strings.ToLower(perm.EmailAddress)]; ok {
		return nil, fmt.Errorf("unable to share with %s: %w", perm.EmailAddress, failErr)
	}

	if perm.Type == "" {
		perm.Type = "user"
	}
	perm.ID = uuid.New().String()
	e.perms = append(e.perms, perm)
	e.file.Shared = true

	p := perm
	return &p, nil
}

func (a *Adapter) DeletePermission(ctx context.Context, fileID, permissionID string) error {
	a.drive.mu.Lock()
	defer a.drive.mu.Unlock()

	e, err := a.lookup(fileID)
	if err != nil {
		return err
	}
	if r := e.role(a.email); r != "owner" && r != "writer" {
		return fmt.Errorf("unshare %s: %w", fileID, adapter.ErrForbidden)
	}

	for i, p := range e.perms {
		if p.ID == permissionID {
			e.perms = append(e.perms[:i], e.perms[i+1:]...)
			e.file.Shared = len(e.perms) > 0
			a.drive.record("permissions.delete", fileID, p.EmailAddress)
			return nil
		}
	}
	return fmt.Errorf("permission %s: %w", permissionID, adapter.ErrNotFound)
}

func (a *Adapter) CurrentUserEmail(ctx context.Context) (string, error) {
	return a.email, nil
}

// parseQuery understands disjunctions of "'<email>' in owners|writers|readers"
// clauses, where 'me' stands for the current user.
func parseQuery(query, me string) (func(*entry) bool, error) {
	if strings.TrimSpace(query) == "" {
		return func(e *entry) bool { return e.role(me) != "" }, nil
	}

	type clause struct{ email, field string }
	var clauses []clause
	for _, part := range strings.Split(query, " or ") {
		part = strings.TrimSpace(part)
		quoted, field, ok := strings.Cut(part, " in ")
		if !ok || len(quoted) < 2 || quoted[0] != '\'' || quoted[len(quoted)-1] != '\'' {
			return nil, fmt.Errorf("unsupported query clause %q", part)
		}
		email := quoted[1 : len(quoted)-1]
		if email == "me" {
			email = me
		}
		field = strings.TrimSpace(field)
		switch field {
		case "owners", "writers", "readers":
		default:
			return nil, fmt.Errorf("unsupported query field %q", field)
		}
		clauses = append(clauses, clause{email: email, field: field})
	}

	return func(e *entry) bool {
		for _, c := range clauses {
			switch r := e.role(c.email); c.field {
			case "owners":
				if r == "owner" {
					return true
				}
			case "writers":
				if r == "writer" || r == "owner" {
					return true
				}
			case "readers":
				if r != "" {
					return true
				}
			}
		}
		return false
	}, nil
}
