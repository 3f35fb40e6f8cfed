// Package domain holds what the EDC entity packages share: validation
// errors, the mapping from failures to HTTP answers, and the read helpers
// every store-backed repository goes through.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edc/edc/internal/platform/store"
)

// ValidationError reports a field the caller has to fix before a write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// ErrorKind implements the classification store.Classify looks for.
func (e *ValidationError) ErrorKind() store.ErrorKind { return store.ErrorKindValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Required fails when value is empty or blank.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return Invalid(field, "is required")
	}
	return nil
}

// statusCoder is implemented by errors that carry their own HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Status returns the HTTP status an API should answer err with.
func Status(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return store.HTTPStatus(store.Classify(err))
}

// HTTPError converts a service failure into an echo error. Not found answers
// carry notFound as message so that store internals stay out of responses.
func HTTPError(err error, notFound string) *echo.HTTPError {
	status := Status(err)
	switch status {
	case http.StatusNotFound:
		return echo.NewHTTPError(status, notFound)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return echo.NewHTTPError(status, fmt.Sprintf("store %s: %v", store.Classify(err), err))
	}
	return echo.NewHTTPError(status, err.Error())
}

// Codec ties an entity kind to its readable columns and record mapper.
type Codec[T any] struct {
	Kind    store.Kind
	Columns []string
	ToModel func(store.Record) T
}

func (c Codec[T]) queryColumns() []string {
	cols := make([]string, 0, len(c.Columns)+1)
	cols = append(cols, c.Columns...)
	for _, col := range c.Columns {
		if col == store.ColCreatedOn {
			return cols
		}
	}
	return append(cols, store.ColCreatedOn)
}

// List queries every record of the codec's kind matching filters, ordered by
// creation time with the id as tie-break.
func List[T any](ctx context.Context, client store.Client, codec Codec[T], filters ...store.Filter) ([]T, error) {
	if client == nil {
		return nil, store.ErrNotConnected
	}
	recs, err := client.Query(ctx, codec.Kind, codec.queryColumns(), filters...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", codec.Kind, err)
	}
	SortRecords(codec.Kind, recs)
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		out = append(out, codec.ToModel(r))
	}
	return out, nil
}

// Get reads one record. An empty answer is reported as store.ErrNotFound.
func Get[T any](ctx context.Context, client store.Client, codec Codec[T], id uuid.UUID) (T, error) {
	var zero T
	if client == nil {
		return zero, store.ErrNotConnected
	}
	rec, err := client.Get(ctx, codec.Kind, id, codec.Columns)
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", codec.Kind, id, err)
	}
	if len(rec) == 0 {
		return zero, fmt.Errorf("get %s %s: %w", codec.Kind, id, store.ErrNotFound)
	}
	return codec.ToModel(rec), nil
}

// SortRecords orders records by createdOn ascending, then by id.
func SortRecords(kind store.Kind, recs []store.Record) {
	idCol := kind.IDColumn()
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Time(store.ColCreatedOn), recs[j].Time(store.ColCreatedOn)
		if !a.Equal(b) {
			if a.IsZero() || b.IsZero() {
				return b.IsZero()
			}
			return a.Before(b)
		}
		return recs[i].ID(idCol).String() < recs[j].ID(idCol).String()
	})
}
