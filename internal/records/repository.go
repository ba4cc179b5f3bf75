package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Store persists records of any schema.
type Store interface {
	List(ctx context.Context, schema *Schema) ([]Record, error)
	Get(ctx context.Context, schema *Schema, id string) (Record, error)
	Insert(ctx context.Context, schema *Schema, rec Record) error
	Update(ctx context.Context, schema *Schema, rec Record) error
	Delete(ctx context.Context, schema *Schema, id string) error
}

// Renderer turns markdown field values into HTML.
type Renderer interface {
	RenderString(source string) (string, error)
}

// Repository validates payloads for one schema and persists them in a Store.
type Repository struct {
	schema   *Schema
	store    Store
	renderer Renderer
	logger   *logrus.Logger
	now      func() time.Time
}

// NewRepository creates a Repository. renderer may be nil when the schema has
// no markdown fields.
func NewRepository(schema *Schema, store Store, renderer Renderer, logger *logrus.Logger) *Repository {
	if logger == nil {
		logger = logrus.New()
	}
	return &Repository{
		schema:   schema,
		store:    store,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create validates payload, assigns an id and timestamps, and stores the record.
func (r *Repository) Create(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	rec, err := r.schema.Validate(payload, nil, false)
	if err != nil {
		return nil, err
	}

	now := r.timestamp()
	rec[KeyID] = uuid.New().String()
	rec[KeyCreatedAt] = now
	rec[KeyUpdatedAt] = now

	if err := r.store.Insert(ctx, r.schema, rec); err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", r.schema.Name, err)
	}

	r.logger.WithFields(logrus.Fields{"record": r.schema.Name, "id": rec.ID()}).Info("record created")
	return r.Represent(rec)
}

// List returns every record.
func (r *Repository) List(ctx context.Context) ([]map[string]interface{}, error) {
	recs, err := r.store.List(ctx, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.schema.Name, err)
	}

	out := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		rep, err := r.Represent(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// Get returns one record.
func (r *Repository) Get(ctx context.Context, id string) (map[string]interface{}, error) {
	rec, err := r.store.Get(ctx, r.schema, id)
	if err != nil {
		return nil, err
	}
	return r.Represent(rec)
}

// Update merges payload into the stored record. A full update (partial false)
// requires every required field to be present.
func (r *Repository) Update(ctx context.Context, id string, payload map[string]interface{}, partial bool) (map[string]interface{}, error) {
	existing, err := r.store.Get(ctx, r.schema, id)
	if err != nil {
		return nil, err
	}

	rec, err := r.schema.Validate(payload, existing, partial)
	if err != nil {
		return nil, err
	}
	rec[KeyUpdatedAt] = r.timestamp()

	if err := r.store.Update(ctx, r.schema, rec); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.schema.Name, err)
	}

	r.logger.WithFields(logrus.Fields{"record": r.schema.Name, "id": id, "partial": partial}).Info("record updated")
	return r.Represent(rec)
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, r.schema, id); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"record": r.schema.Name, "id": id}).Info("record deleted")
	return nil
}

// Represent builds the response body of a record: every schema field (nil
// when unset), RFC 3339 timestamps and the HTML rendering of markdown fields.
func (r *Repository) Represent(rec Record) (map[string]interface{}, error) {
	out := map[string]interface{}{
		KeyID: rec.ID(),
	}
	for _, key := range []string{KeyCreatedAt, KeyUpdatedAt} {
		if t, ok := rec[key].(time.Time); ok {
			out[key] = t.UTC().Format(time.RFC3339Nano)
		} else {
			out[key] = rec[key]
		}
	}

	for _, f := range r.schema.Fields {
		v := rec[f.Name]
		out[f.Name] = v

		if !f.Markdown {
			continue
		}
		src, _ := v.(string)
		html := ""
		if src != "" && r.renderer != nil {
			rendered, err := r.renderer.RenderString(src)
			if err != nil {
				return nil, fmt.Errorf("failed to render %s: %w", f.Name, err)
			}
			html = rendered
		}
		out[f.Name+HTMLSuffix] = html
	}
	return out, nil
}
