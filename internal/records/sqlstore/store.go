// Package sqlstore keeps records in SQL tables, one table per schema. MySQL is
// used in production and SQLite for local runs and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BimaHajer/APIAutome/internal/records"
	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// timeLayout sorts lexically and is accepted by both MySQL and SQLite.
const timeLayout = "2006-01-02 15:04:05.000000"

// Open opens and pings a database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Report matched rather than changed rows so an update of an existing
		// row never looks like a missing one.
		cfg.ClientFoundRows = true
		dsn = cfg.FormatDSN()
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	if driver == DriverSQLite {
		// An in-memory SQLite database exists per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Store implements records.Store on database/sql.
type Store struct {
	db *sql.DB
}

// New creates a Store. The schema must already be migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func columns(schema *records.Schema) []string {
	cols := []string{records.KeyID, records.KeyCreatedAt, records.KeyUpdatedAt}
	for _, f := range schema.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func (s *Store) List(ctx context.Context, schema *records.Schema) ([]records.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at, id",
		strings.Join(columns(schema), ", "), schema.Table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", schema.Table, err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		rec, err := scan(schema, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", schema.Table, err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, schema *records.Schema, id string) (records.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?",
		strings.Join(columns(schema), ", "), schema.Table)

	rec, err := scan(schema, s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	return rec, err
}

func (s *Store) Insert(ctx context.Context, schema *records.Schema, rec records.Record) error {
	cols := columns(schema)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.Table, strings.Join(cols, ", "), placeholders)

	args := make([]interface{}, 0, len(cols))
	for _, c := range cols {
		args = append(args, toArg(rec[c]))
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", schema.Table, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, schema *records.Schema, rec records.Record) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{toArg(rec[records.KeyUpdatedAt])}
	for _, f := range schema.Fields {
		sets = append(sets, f.Name+" = ?")
		args = append(args, toArg(rec[f.Name]))
	}
	args = append(args, rec.ID())

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", schema.Table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", schema.Table, err)
	}
	return expectOneRow(res)
}

func (s *Store) Delete(ctx context.Context, schema *records.Schema, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", schema.Table), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", schema.Table, err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return records.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(schema *records.Schema, row scanner) (records.Record, error) {
	cols := columns(schema)
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan %s: %w", schema.Table, err)
	}

	rec := records.Record{}
	for i, c := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if v == nil {
			continue
		}
		rec[c] = v
	}

	for _, key := range []string{records.KeyCreatedAt, records.KeyUpdatedAt} {
		if str, ok := rec[key].(string); ok {
			t, err := time.ParseInLocation(timeLayout, str, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("parse %s %q: %w", key, str, err)
			}
			rec[key] = t
		}
	}
	return schema.Normalize(rec), nil
}

// toArg converts a record value to a driver argument.
func toArg(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(timeLayout)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
