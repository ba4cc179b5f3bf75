// Package records implements schema-validated CRUD over local records.
// A Schema is plain data; one Repository serves every record type.
package records

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the type of a record field.
type Kind string

const (
	KindString Kind = "string"
	KindText   Kind = "text"
	KindEmail  Kind = "email"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
)

// Read-only keys present on every record.
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// HTMLSuffix is appended to a markdown field's name to hold its rendering.
const HTMLSuffix = "_html"

// Field describes one writable attribute. Only Nullable fields accept an
// explicit null, which clears the stored value.
type Field struct {
	Name      string
	Kind      Kind
	Required  bool
	Nullable  bool
	MaxLength int
	Min       *int64
	Default   interface{}
	Markdown  bool
}

// Schema describes a record type and where it is stored.
type Schema struct {
	Name   string
	Table  string
	Fields []Field
}

// Record is one stored row. Values are string, int64, bool, time.Time or nil.
type Record map[string]interface{}

// ID returns the record id.
func (r Record) ID() string {
	id, _ := r[KeyID].(string)
	return id
}

// Field returns the field definition named name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ValidationError carries messages per field.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Validate checks payload against the schema and merges it into base, which
// is nil on create. With partial set, absent required fields are allowed.
// Unknown and read-only keys in payload are ignored.
func (s *Schema) Validate(payload map[string]interface{}, base Record, partial bool) (Record, error) {
	out := Record{}
	for k, v := range base {
		out[k] = v
	}

	verr := &ValidationError{}
	for _, f := range s.Fields {
		raw, present := payload[f.Name]
		if !present {
			if base == nil && f.Default != nil {
				out[f.Name] = f.Default
				continue
			}
			if f.Required && !partial {
				verr.add(f.Name, "This field is required.")
			}
			continue
		}

		if raw == nil {
			if f.Required || !f.Nullable {
				verr.add(f.Name, "This field may not be null.")
				continue
			}
			delete(out, f.Name)
			continue
		}

		v, msg := f.coerce(raw)
		if msg != "" {
			verr.add(f.Name, msg)
			continue
		}
		if msg := f.check(v); msg != "" {
			verr.add(f.Name, msg)
			continue
		}
		out[f.Name] = v
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

// coerce converts a decoded JSON value to the field's Go type.
func (f Field) coerce(raw interface{}) (interface{}, string) {
	switch f.Kind {
	case KindString, KindText, KindEmail:
		switch v := raw.(type) {
		case string:
			return v, ""
		case json.Number:
			return v.String(), ""
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), ""
		case int64:
			return strconv.FormatInt(v, 10), ""
		}
		return nil, "Not a valid string."

	case KindInt:
		switch n := raw.(type) {
		case int64:
			return n, ""
		case int:
			return int64(n), ""
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) || n >= 1<<63 || n < -(1<<63) {
				return nil, "A valid integer is required."
			}
			return int64(n), ""
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, "A valid integer is required."
			}
			return i, ""
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, "A valid integer is required."
			}
			return i, ""
		}
		return nil, "A valid integer is required."

	case KindBool:
		switch b := raw.(type) {
		case bool:
			return b, ""
		case int64:
			if b == 0 || b == 1 {
				return b == 1, ""
			}
		case float64:
			if b == 0 || b == 1 {
				return b == 1, ""
			}
		case json.Number:
			switch b.String() {
			case "1":
				return true, ""
			case "0":
				return false, ""
			}
		case string:
			switch strings.ToLower(b) {
			case "true", "1", "yes", "on":
				return true, ""
			case "false", "0", "no", "off":
				return false, ""
			}
		}
		return nil, "Must be a valid boolean."
	}
	return nil, fmt.Sprintf("Unsupported field kind %q.", f.Kind)
}

// check applies the field's constraints to a coerced value.
func (f Field) check(v interface{}) string {
	switch val := v.(type) {
	case string:
		if f.Required && strings.TrimSpace(val) == "" {
			return "This field may not be blank."
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(val) > f.MaxLength {
			return fmt.Sprintf("Ensure this field has no more than %d characters.", f.MaxLength)
		}
		if f.Kind == KindEmail && val != "" && !validEmail(val) {
			return "Enter a valid email address."
		}
	case int64:
		if f.Min != nil && val < *f.Min {
			return fmt.Sprintf("Ensure this value is greater than or equal to %d.", *f.Min)
		}
	}
	return ""
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Normalize converts values loaded from a store back to their Go types.
// Stores that go through JSON-like encodings return float64 numbers and
// string timestamps.
func (s *Schema) Normalize(r Record) Record {
	for _, key := range []string{KeyCreatedAt, KeyUpdatedAt} {
		if str, ok := r[key].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
				r[key] = t
			}
		}
	}
	for _, f := range s.Fields {
		v, ok := r[f.Name]
		if !ok || v == nil {
			continue
		}
		if c, msg := f.coerce(v); msg == "" {
			r[f.Name] = c
		}
	}
	return r
}

// Int64 returns a pointer to n, for Field.Min.
func Int64(n int64) *int64 {
	return &n
}
