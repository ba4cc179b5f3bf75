package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory maps.
type MemoryStore struct {
	tables map[string]map[string]Record
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string]Record)}
}

func copyRecord(r Record) Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func (m *MemoryStore) List(ctx context.Context, schema *Schema) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.tables[schema.Table]))
	for _, r := range m.tables[schema.Table] {
		out = append(out, copyRecord(r))
	}
	SortRecords(out)
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, schema *Schema, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.tables[schema.Table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(r), nil
}

func (m *MemoryStore) Insert(ctx context.Context, schema *Schema, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[schema.Table]
	if !ok {
		t = make(map[string]Record)
		m.tables[schema.Table] = t
	}
	t[rec.ID()] = copyRecord(rec)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, schema *Schema, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tables[schema.Table]
	if _, ok := t[rec.ID()]; !ok {
		return ErrNotFound
	}
	t[rec.ID()] = copyRecord(rec)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, schema *Schema, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.tables[schema.Table]
	if _, ok := t[id]; !ok {
		return ErrNotFound
	}
	delete(t, id)
	return nil
}

// SortRecords orders records by creation time, then id.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, _ := recs[i][KeyCreatedAt].(time.Time)
		tj, _ := recs[j][KeyCreatedAt].(time.Time)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return recs[i].ID() < recs[j].ID()
	})
}
