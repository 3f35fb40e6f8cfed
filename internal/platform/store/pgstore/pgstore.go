// Package pgstore keeps entity records in a single PostgreSQL table with a
// JSONB payload per row. Tenant scoping follows the search_path set by
// db.TenantMiddleware.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edc/edc/internal/platform/db"
	"github.com/edc/edc/internal/platform/store"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store implements store.Client on top of a pgx pool.
type Store struct{ pool *pgxpool.Pool }

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const recordCols = `id, fields, created_on, modified_on`

var columnPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func (s *Store) Query(ctx context.Context, kind store.Kind, columns []string, filters ...store.Filter) ([]store.Record, error) {
	where, args, err := buildWhere(kind, filters)
	if err != nil {
		return nil, &store.RemoteError{Op: "query", Kind: kind, Status: http.StatusBadRequest, Err: err}
	}
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM entity_record WHERE `+where+` ORDER BY created_on, seq`, args...)
	if err != nil {
		return nil, store.Remote("query", kind, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, store.Remote("query", kind, err)
		}
		out = append(out, rec.Project(kind.IDColumn(), columns))
	}
	if err := rows.Err(); err != nil {
		return nil, store.Remote("query", kind, err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, kind store.Kind, id uuid.UUID, columns []string) (store.Record, error) {
	row := s.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM entity_record WHERE kind = $1 AND id = $2`, string(kind), id)
	rec, err := scanRecord(kind, row)
	if errors.Is(err, pgx.ErrNoRows) {
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
	now := store.Now()
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO entity_record (kind, id, fields, created_on, modified_on)
		VALUES ($1, $2, $3, $4, $4)`, string(kind), id, payload, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, &store.RemoteError{Op: "create", Kind: kind, Status: http.StatusConflict, Err: err}
		}
		return uuid.Nil, store.Remote("create", kind, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, kind store.Kind, id uuid.UUID, fields store.Fields) error {
	writable, _ := store.WritableFields(kind, fields)
	set := store.Fields{}
	cleared := []string{}
	for k, v := range writable {
		if v == nil {
			cleared = append(cleared, k)
			continue
		}
		set[k] = v
	}
	payload, err := store.MarshalFields(set)
	if err != nil {
		return store.Remote("update", kind, err)
	}
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE entity_record
		SET fields = (fields || $3::jsonb) - $4::text[], modified_on = $5
		WHERE kind = $1 AND id = $2`, string(kind), id, payload, cleared, store.Now())
	if err != nil {
		return store.Remote("update", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, kind store.Kind, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM entity_record WHERE kind = $1 AND id = $2`, string(kind), id)
	if err != nil {
		return store.Remote("delete", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// Ping checks the pool; the health endpoint uses it.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecord(kind store.Kind, row pgx.Row) (store.Record, error) {
	var (
		id                  uuid.UUID
		raw                 []byte
		createdOn, modified time.Time
	)
	if err := row.Scan(&id, &raw, &createdOn, &modified); err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", id, err)
	}
	rec, err := store.DecodeRecord(obj)
	if err != nil {
		return nil, err
	}
	rec[kind.IDColumn()] = id
	rec[store.ColCreatedOn] = createdOn.UTC()
	rec[store.ColModifiedOn] = modified.UTC()
	return rec, nil
}

// buildWhere translates equality filters into a WHERE clause over the JSONB
// payload. Tagged values are compared on the scalar they carry.
func buildWhere(kind store.Kind, filters []store.Filter) (string, []any, error) {
	conds := []string{"kind = $1"}
	args := []any{string(kind)}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, f := range filters {
		if !columnPattern.MatchString(f.Column) {
			return "", nil, fmt.Errorf("invalid filter column %q", f.Column)
		}
		v := store.Normalize(f.Value)

		if f.Column == kind.IDColumn() {
			id, ok := v.(uuid.UUID)
			if !ok {
				return "", nil, fmt.Errorf("filter on %s needs an identifier, got %T", f.Column, f.Value)
			}
			conds = append(conds, "id = "+next(id))
			continue
		}
		if f.Column == store.ColCreatedOn || f.Column == store.ColModifiedOn {
			t, ok := v.(time.Time)
			if !ok {
				return "", nil, fmt.Errorf("filter on %s needs a time, got %T", f.Column, f.Value)
			}
			col := "created_on"
			if f.Column == store.ColModifiedOn {
				col = "modified_on"
			}
			conds = append(conds, col+" = "+next(t))
			continue
		}

		path := "fields->'" + f.Column + "'"
		switch x := v.(type) {
		case nil:
			conds = append(conds, "("+path+" IS NULL OR "+path+" = 'null'::jsonb)")
		case uuid.UUID:
			// reference columns keep the bare path so the partial indexes apply
			if strings.HasSuffix(f.Column, "Ref") {
				conds = append(conds, fmt.Sprintf("%s->'@ref'->>'id' = %s", path, next(x.String())))
				continue
			}
			conds = append(conds, fmt.Sprintf("COALESCE(%s->'@ref'->>'id', %s->>'@guid', fields->>'%s') = %s",
				path, path, f.Column, next(x.String())))
		case int64:
			conds = append(conds, fmt.Sprintf("COALESCE(%s->>'@option', fields->>'%s') = %s",
				path, f.Column, next(strconv.FormatInt(x, 10))))
		case time.Time:
			conds = append(conds, fmt.Sprintf("%s->>'@datetime' = %s",
				path, next(x.UTC().Format(time.RFC3339Nano))))
		case string:
			conds = append(conds, fmt.Sprintf("fields->>'%s' = %s", f.Column, next(x)))
		case bool:
			conds = append(conds, fmt.Sprintf("fields->>'%s' = %s", f.Column, next(strconv.FormatBool(x))))
		case float64:
			conds = append(conds, fmt.Sprintf("(fields->>'%s')::numeric = %s", f.Column, next(x)))
		default:
			return "", nil, fmt.Errorf("unsupported filter value %T on %s", f.Value, f.Column)
		}
	}
	return strings.Join(conds, " AND "), args, nil
}
