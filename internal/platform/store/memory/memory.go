// Package memory is an in-process entity store. It backs development
// deployments (STORE_URL=memory://) and every test above the store layer.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/platform/store"
)

type row struct {
	seq    int64
	fields store.Record
}

// Store holds records per kind in maps guarded by a single RWMutex.
type Store struct {
	mu    sync.RWMutex
	seq   int64
	kinds map[store.Kind]map[uuid.UUID]*row
}

// New returns an empty store.
func New() *Store {
	return &Store{kinds: make(map[store.Kind]map[uuid.UUID]*row)}
}

func (s *Store) table(kind store.Kind) map[uuid.UUID]*row {
	t, ok := s.kinds[kind]
	if !ok {
		t = make(map[uuid.UUID]*row)
		s.kinds[kind] = t
	}
	return t
}

func checkKind(op string, kind store.Kind) error {
	if !kind.Valid() {
		return &store.RemoteError{Op: op, Kind: kind, Status: 400, Err: fmt.Errorf("unknown entity kind %q", kind)}
	}
	return nil
}

// Query returns every record of kind matching all filters, in insertion order.
func (s *Store) Query(ctx context.Context, kind store.Kind, columns []string, filters ...store.Filter) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Remote("query", kind, err)
	}
	if err := checkKind("query", kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*row, 0, len(s.kinds[kind]))
	for _, r := range s.kinds[kind] {
		if store.Match(r.fields, filters) {
			rows = append(rows, r)
		}
	}
	sortRows(rows)
	idCol := kind.IDColumn()
	out := make([]store.Record, len(rows))
	for i, r := range rows {
		out[i] = r.fields.Project(idCol, columns)
	}
	return out, nil
}

// Get returns a single record or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind store.Kind, id uuid.UUID, columns []string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Remote("get", kind, err)
	}
	if err := checkKind("get", kind); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.kinds[kind][id]
	if !ok {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, store.ErrNotFound)
	}
	return r.fields.Project(kind.IDColumn(), columns), nil
}

// Create inserts a record. A non-nil id in the kind's id column is honoured.
func (s *Store) Create(ctx context.Context, kind store.Kind, fields store.Fields) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, store.Remote("create", kind, err)
	}
	if err := checkKind("create", kind); err != nil {
		return uuid.Nil, err
	}
	writable, id := store.WritableFields(kind, fields)
	if id == uuid.Nil {
		id = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(kind)
	if _, exists := t[id]; exists {
		return uuid.Nil, &store.RemoteError{Op: "create", Kind: kind, Status: 409, Err: fmt.Errorf("record %s already exists", id)}
	}
	now := store.Now()
	rec := store.Record{kind.IDColumn(): id, store.ColCreatedOn: now, store.ColModifiedOn: now}
	for k, v := range writable {
		if v != nil {
			rec[k] = v
		}
	}
	s.seq++
	t[id] = &row{seq: s.seq, fields: rec}
	return id, nil
}

// Update overwrites the supplied columns. A nil value clears a column.
func (s *Store) Update(ctx context.Context, kind store.Kind, id uuid.UUID, fields store.Fields) error {
	if err := ctx.Err(); err != nil {
		return store.Remote("update", kind, err)
	}
	if err := checkKind("update", kind); err != nil {
		return err
	}
	writable, _ := store.WritableFields(kind, fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.kinds[kind][id]
	if !ok {
		return fmt.Errorf("update %s %s: %w", kind, id, store.ErrNotFound)
	}
	for k, v := range writable {
		if v == nil {
			delete(r.fields, k)
			continue
		}
		r.fields[k] = v
	}
	r.fields[store.ColModifiedOn] = store.Now()
	return nil
}

// Delete removes a record. Dependents are left in place.
func (s *Store) Delete(ctx context.Context, kind store.Kind, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return store.Remote("delete", kind, err)
	}
	if err := checkKind("delete", kind); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.kinds[kind]
	if _, ok := t[id]; !ok {
		return fmt.Errorf("delete %s %s: %w", kind, id, store.ErrNotFound)
	}
	delete(t, id)
	return nil
}

// Len reports the number of records held for kind.
func (s *Store) Len(kind store.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.kinds[kind])
}

func sortRows(rows []*row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
}
