// Package integrity keeps the Trial → Subject → Visit → CRF → CRFItem chain
// consistent on top of a store that enforces no foreign keys itself.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/platform/store"
)

// Policy decides what happens to children when their parent is deleted.
type Policy string

const (
	// PolicyAllow deletes the parent and leaves children in place.
	PolicyAllow Policy = "allow"
	// PolicyRestrict refuses to delete a parent that still has children.
	PolicyRestrict Policy = "restrict"
	// PolicyCascade deletes every descendant before the parent.
	PolicyCascade Policy = "cascade"
)

// ParsePolicy validates a configured policy name. Empty means allow.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyAllow, nil
	case PolicyAllow, PolicyRestrict, PolicyCascade:
		return p, nil
	}
	return "", fmt.Errorf("unknown delete policy %q", s)
}

var (
	ErrParentNotFound = errors.New("referenced parent does not exist")
	ErrHasDependents  = errors.New("record still has dependent records")
)

// Relation is a child kind pointing at its parent through a reference column.
type Relation struct {
	Child  store.Kind
	Column string
	Parent store.Kind
}

var relations = []Relation{
	{Child: store.KindSubject, Column: "trialRef", Parent: store.KindTrial},
	{Child: store.KindVisit, Column: "subjectRef", Parent: store.KindSubject},
	{Child: store.KindCRF, Column: "visitRef", Parent: store.KindVisit},
	{Child: store.KindCRFItem, Column: "crfRef", Parent: store.KindCRF},
}

// Relations returns the parent/child links between entity kinds.
func Relations() []Relation {
	out := make([]Relation, len(relations))
	copy(out, relations)
	return out
}

// ParentOf returns the relation binding child to its parent kind.
func ParentOf(child store.Kind) (Relation, bool) {
	for _, r := range relations {
		if r.Child == child {
			return r, true
		}
	}
	return Relation{}, false
}

// ChildrenOf returns the relations whose parent is kind.
func ChildrenOf(parent store.Kind) []Relation {
	var out []Relation
	for _, r := range relations {
		if r.Parent == parent {
			out = append(out, r)
		}
	}
	return out
}

// Violation is returned when a write would break the entity chain.
type Violation struct {
	Kind    store.Kind
	ID      uuid.UUID
	Related store.Kind
	Count   int
	Err     error
}

func (v *Violation) Error() string {
	if errors.Is(v.Err, ErrHasDependents) {
		return fmt.Sprintf("%s %s: %v (%d %s)", v.Kind, v.ID, v.Err, v.Count, v.Related)
	}
	return fmt.Sprintf("%s: %s %s: %v", v.Kind, v.Related, v.ID, v.Err)
}

func (v *Violation) Unwrap() error { return v.Err }

// StatusCode is the HTTP status handlers answer with.
func (v *Violation) StatusCode() int {
	if errors.Is(v.Err, ErrHasDependents) {
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

// ErrorKind classifies the violation for page state.
func (v *Violation) ErrorKind() store.ErrorKind {
	if errors.Is(v.Err, ErrHasDependents) {
		return store.ErrorKindConflict
	}
	return store.ErrorKindValidation
}

// Options configures a Checker.
type Options struct {
	CheckParents bool
	Policy       Policy
}

// Checker runs integrity rules against one store client. A nil Checker
// accepts everything.
type Checker struct {
	client store.Client
	opts   Options
	logger zerolog.Logger
}

func New(client store.Client, opts Options, logger zerolog.Logger) *Checker {
	if opts.Policy == "" {
		opts.Policy = PolicyAllow
	}
	return &Checker{client: client, opts: opts, logger: logger.With().Str("component", "integrity").Logger()}
}

// Policy returns the delete policy in force.
func (c *Checker) Policy() Policy {
	if c == nil {
		return PolicyAllow
	}
	return c.opts.Policy
}

// RequireParent verifies that parentID names an existing parent of child.
// The empty id means unassigned and is not checked here.
func (c *Checker) RequireParent(ctx context.Context, child store.Kind, parentID uuid.UUID) error {
	if c == nil || !c.opts.CheckParents || parentID == uuid.Nil {
		return nil
	}
	rel, ok := ParentOf(child)
	if !ok {
		return nil
	}
	if c.client == nil {
		return store.ErrNotConnected
	}
	_, err := c.client.Get(ctx, rel.Parent, parentID, []string{rel.Parent.IDColumn()})
	if errors.Is(err, store.ErrNotFound) || store.Classify(err) == store.ErrorKindNotFound {
		return &Violation{Kind: child, ID: parentID, Related: rel.Parent, Err: ErrParentNotFound}
	}
	if err != nil {
		return fmt.Errorf("check %s parent: %w", child, err)
	}
	return nil
}

// Dependent is a direct child record.
type Dependent struct {
	Kind store.Kind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

// Dependents lists the direct children of the record.
func (c *Checker) Dependents(ctx context.Context, kind store.Kind, id uuid.UUID) ([]Dependent, error) {
	if c == nil || c.client == nil {
		return nil, store.ErrNotConnected
	}
	var out []Dependent
	for _, rel := range ChildrenOf(kind) {
		idCol := rel.Child.IDColumn()
		recs, err := c.client.Query(ctx, rel.Child, []string{idCol}, store.Eq(rel.Column, id))
		if err != nil {
			return nil, fmt.Errorf("list %s of %s %s: %w", rel.Child, kind, id, err)
		}
		for _, r := range recs {
			out = append(out, Dependent{Kind: rel.Child, ID: r.ID(idCol)})
		}
	}
	return out, nil
}

// BeforeDelete applies the delete policy ahead of removing the record
// itself. Under cascade every descendant is gone when it returns nil.
func (c *Checker) BeforeDelete(ctx context.Context, kind store.Kind, id uuid.UUID) error {
	if c == nil || c.opts.Policy == PolicyAllow {
		return nil
	}
	deps, err := c.Dependents(ctx, kind, id)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		return nil
	}
	if c.opts.Policy == PolicyRestrict {
		return &Violation{Kind: kind, ID: id, Related: deps[0].Kind, Count: len(deps), Err: ErrHasDependents}
	}

	for _, d := range deps {
		if err := c.BeforeDelete(ctx, d.Kind, d.ID); err != nil {
			return err
		}
		if err := c.client.Delete(ctx, d.Kind, d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("cascade delete %s %s: %w", d.Kind, d.ID, err)
		}
	}
	c.logger.Info().Str("kind", string(kind)).Str("id", id.String()).Int("children", len(deps)).Msg("cascaded delete")
	return nil
}
