package store

import (
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
)

// String returns the column as a string, or "" when absent.
func (r Record) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// StringPtr returns the column as a string pointer, nil when absent.
func (r Record) StringPtr(col string) *string {
	s, ok := r[col].(string)
	if !ok {
		return nil
	}
	return &s
}

// Time returns the column as a time, or the zero time when absent.
func (r Record) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	}
	return time.Time{}
}

// TimePtr returns the column as a time pointer, nil when absent.
func (r Record) TimePtr(col string) *time.Time {
	t := r.Time(col)
	if t.IsZero() {
		return nil
	}
	return &t
}

// Option unwraps an option-value column to its integer code, 0 when absent.
func (r Record) Option(col string) int {
	switch v := r[col].(type) {
	case OptionValue:
		return v.Value
	case *OptionValue:
		if v != nil {
			return v.Value
		}
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Ref unwraps a reference column to the referenced id, uuid.Nil when absent.
func (r Record) Ref(col string) uuid.UUID {
	switch v := r[col].(type) {
	case Reference:
		return v.ID
	case *Reference:
		if v != nil {
			return v.ID
		}
	case uuid.UUID:
		return v
	}
	return uuid.Nil
}

// RefPtr is Ref with nil for an absent reference.
func (r Record) RefPtr(col string) *uuid.UUID {
	id := r.Ref(col)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// ID returns an identifier column, uuid.Nil when absent.
func (r Record) ID(col string) uuid.UUID {
	switch v := r[col].(type) {
	case uuid.UUID:
		return v
	case string:
		id, err := uuid.Parse(v)
		if err == nil {
			return id
		}
	}
	return uuid.Nil
}

// Project returns a copy of r restricted to columns plus idCol. An empty
// column list copies everything.
func (r Record) Project(idCol string, columns []string) Record {
	if len(columns) == 0 {
		out := make(Record, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	out := make(Record, len(columns)+1)
	if v, ok := r[idCol]; ok {
		out[idCol] = v
	}
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Match reports whether r satisfies every filter.
func Match(r Record, filters []Filter) bool {
	for _, f := range filters {
		if !equalValues(r[f.Column], f.Value) {
			return false
		}
	}
	return true
}

// SortByCreated orders records by createdOn ascending. Records without a
// timestamp keep their relative order at the end.
func SortByCreated(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Time(ColCreatedOn), records[j].Time(ColCreatedOn)
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.Before(b)
	})
}

func equalValues(stored, want any) bool {
	a, b := Normalize(stored), Normalize(want)
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	if !isComparable(a) || !isComparable(b) {
		return false
	}
	return a == b
}

// isComparable reports whether == on v cannot panic. Lists and objects never
// match a filter.
func isComparable(v any) bool {
	return v == nil || reflect.TypeOf(v).Comparable()
}

// Normalize reduces wrapped values to the plain scalar they carry: references
// to their id, option values and integers to int64, uuid strings to uuid.UUID.
func Normalize(v any) any {
	switch x := v.(type) {
	case Reference:
		return x.ID
	case *Reference:
		if x == nil {
			return nil
		}
		return x.ID
	case OptionValue:
		return int64(x.Value)
	case *OptionValue:
		if x == nil {
			return nil
		}
		return int64(x.Value)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		if x == math.Trunc(x) {
			return int64(x)
		}
		return x
	case string:
		if id, err := uuid.Parse(x); err == nil && len(x) == 36 {
			return id
		}
		return x
	case *string:
		if x == nil {
			return nil
		}
		return Normalize(*x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return *x
	}
	return v
}
