// Package sqlitestore persists entity records to a local SQLite file, one
// JSON row per record. It serves single-site deployments where no PostgreSQL
// server is available (STORE_URL=sqlite:///path/to/edc.db).
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/edc/edc/internal/platform/store"
)

const schema = `CREATE TABLE IF NOT EXISTS entity_record (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	fields      TEXT NOT NULL,
	created_on  TEXT NOT NULL,
	modified_on TEXT NOT NULL,
	UNIQUE (kind, id)
)`

// Store implements store.Client over database/sql.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "edc.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entity_record table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Query(ctx context.Context, kind store.Kind, columns []string, filters ...store.Filter) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields, created_on, modified_on FROM entity_record WHERE kind = ? ORDER BY seq`, string(kind))
	if err != nil {
		return nil, store.Remote("query", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, store.Remote("query", kind, err)
		}
		if store.Match(rec, filters) {
			out = append(out, rec.Project(kind.IDColumn(), columns))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, store.Remote("query", kind, err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, kind store.Kind, id uuid.UUID, columns []string) (store.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, created_on, modified_on FROM entity_record WHERE kind = ? AND id = ?`, string(kind), id.String())
	rec, err := scanRecord(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Remote("get", kind, err)
	}
	return rec.Project(kind.IDColumn(), columns), nil
}

func (s *Store) Create(ctx context.Context, kind store.Kind, fields store.Fields) (uuid.UUID, error) {
	if !kind.Valid() {
		return uuid.Nil, &store.RemoteError{Op: "create", Kind: kind, Status: http.StatusBadRequest, Err: fmt.Errorf("unknown entity kind %q", kind)}
	}
	writable, id := store.WritableFields(kind, fields)
	if id == uuid.Nil {
		id = uuid.New()
	}
	for k, v := range writable {
		if v == nil {
			delete(writable, k)
		}
	}
	payload, err := store.MarshalFields(writable)
	if err != nil {
		return uuid.Nil, store.Remote("create", kind, err)
	}
	now := formatTime(store.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entity_record (kind, id, fields, created_on, modified_on) VALUES (?, ?, ?, ?, ?)`,
		string(kind), id.String(), string(payload), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return uuid.Nil, &store.RemoteError{Op: "create", Kind: kind, Status: http.StatusConflict, Err: err}
		}
		return uuid.Nil, store.Remote("create", kind, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, kind store.Kind, id uuid.UUID, fields store.Fields) (retErr error) {
	writable, _ := store.WritableFields(kind, fields)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Remote("update", kind, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT fields FROM entity_record WHERE kind = ? AND id = ?`, string(kind), id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Remote("update", kind, err)
	}
	current, err := store.UnmarshalRecord([]byte(raw))
	if err != nil {
		return store.Remote("update", kind, err)
	}
	for k, v := range writable {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	payload, err := store.MarshalFields(current)
	if err != nil {
		return store.Remote("update", kind, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entity_record SET fields = ?, modified_on = ? WHERE kind = ? AND id = ?`,
		string(payload), formatTime(store.Now()), string(kind), id.String()); err != nil {
		return store.Remote("update", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Remote("update", kind, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, kind store.Kind, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entity_record WHERE kind = ? AND id = ?`, string(kind), id.String())
	if err != nil {
		return store.Remote("delete", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Remote("delete", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(kind store.Kind, row scanner) (store.Record, error) {
	var idStr, raw, created, modified string
	if err := row.Scan(&idStr, &raw, &created, &modified); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", idStr, err)
	}
	rec, err := store.UnmarshalRecord([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", id, err)
	}
	rec[kind.IDColumn()] = id
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec[store.ColCreatedOn] = t
	}
	if t, err := time.Parse(time.RFC3339Nano, modified); err == nil {
		rec[store.ColModifiedOn] = t
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
