// Package store defines the contract for the remote entity store the EDC
// service reads from and writes to, together with the value shapes that
// travel through it: plain records, option-value fields and reference fields.
//
// Concrete backends live in sub-packages (memory, pgstore, sqlitestore,
// webapi). Everything above this package talks to a Client only.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names an entity kind in the store.
type Kind string

const (
	KindTrial   Kind = "trial"
	KindSubject Kind = "subject"
	KindVisit   Kind = "visit"
	KindCRF     Kind = "crf"
	KindCRFItem Kind = "crfItem"
	KindUser    Kind = "user"
)

// Store-assigned audit columns. Backends stamp them on every write and ignore
// them in write payloads.
const (
	ColCreatedOn  = "createdOn"
	ColModifiedOn = "modifiedOn"
)

var idColumns = map[Kind]string{
	KindTrial:   "id",
	KindSubject: "subjectId",
	KindVisit:   "visitId",
	KindCRF:     "id",
	KindCRFItem: "id",
	KindUser:    "userId",
}

// Kinds lists every kind the store knows about.
func Kinds() []Kind {
	return []Kind{KindTrial, KindSubject, KindVisit, KindCRF, KindCRFItem, KindUser}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := idColumns[k]
	return ok
}

// IDColumn returns the name of the identifier column for the kind.
func (k Kind) IDColumn() string {
	if col, ok := idColumns[k]; ok {
		return col
	}
	return "id"
}

// ParseKind converts a wire name to a Kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}

// Record is a row returned by the store, keyed by column name.
type Record map[string]any

// Fields is a write payload keyed by column name. A nil value clears the
// column.
type Fields map[string]any

// Filter is an equality condition on a single column. Reference columns
// match on the referenced id.
type Filter struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// OptionValue is an enumerated integer code in its wrapped wire form.
type OptionValue struct {
	Value int `json:"value"`
}

// Option wraps an integer code for transmission.
func Option(v int) OptionValue { return OptionValue{Value: v} }

// Reference is a foreign-key-like pointer to another entity.
type Reference struct {
	Kind Kind      `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// Ref builds a reference. A nil id yields a nil value so that the column is
// cleared instead of pointing at the empty identifier.
func Ref(kind Kind, id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return Reference{Kind: kind, ID: id}
}

// Client is the query/CRUD surface of the entity store.
//
// Query and Get return only the requested columns plus the kind's id column;
// an empty column list means every column. Create returns the identifier the
// store assigned, or echoes the one carried in the payload's id column.
// Update overwrites the supplied fields only. Delete does not cascade.
type Client interface {
	Query(ctx context.Context, kind Kind, columns []string, filters ...Filter) ([]Record, error)
	Get(ctx context.Context, kind Kind, id uuid.UUID, columns []string) (Record, error)
	Create(ctx context.Context, kind Kind, fields Fields) (uuid.UUID, error)
	Update(ctx context.Context, kind Kind, id uuid.UUID, fields Fields) error
	Delete(ctx context.Context, kind Kind, id uuid.UUID) error
}

// Connector hands out a Client for one page session or request.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Client, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Client, error) { return f(ctx) }

// Static returns a Connector that always hands out c.
func Static(c Client) Connector {
	return ConnectorFunc(func(context.Context) (Client, error) {
		if c == nil {
			return nil, ErrNotConnected
		}
		return c, nil
	})
}

// Now is the clock used by backends to stamp audit columns.
var Now = func() time.Time { return time.Now().UTC() }
