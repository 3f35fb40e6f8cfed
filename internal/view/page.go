// Package view holds the server side of the EDC pages: per-page state
// machines over the domain services, the sessions that keep them between
// requests, and the HTTP endpoints that drive them.
package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edc/edc/internal/domain/integrity"
	"github.com/edc/edc/internal/platform/store"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadDraft     = errors.New("draft does not decode")
	ErrUnknownPage  = errors.New("unknown page")
)

// Page names.
const (
	PageTrials   = "trials"
	PageSubjects = "subjects"
	PageVisits   = "visits"
	PageCRFs     = "crfs"
	PageCRForm   = "crform"
)

// Navigation targets reported in an Outcome.
const (
	CRFListPath   = "/crfs"
	CRFEditorPath = "/crform/edit"
)

// Event types.
const (
	EventOpenCreate    = "open_create"
	EventOpenEdit      = "open_edit"
	EventSelect        = "select"
	EventCancel        = "cancel"
	EventSave          = "save"
	EventConfirmDelete = "confirm_delete"
	EventCancelDelete  = "cancel_delete"
	EventDelete        = "delete"
	EventVerify        = "verify"
	EventRefresh       = "refresh"
	EventDismiss       = "dismiss"
)

// TargetItems addresses the CRF editor's item list instead of the form.
const TargetItems = "items"

type Event struct {
	Type   string          `json:"type"`
	Target string          `json:"target,omitempty"`
	ID     uuid.UUID       `json:"id,omitempty"`
	Draft  json.RawMessage `json:"draft,omitempty"`
}

// Mutating reports whether ev writes to the store.
func (ev Event) Mutating() bool {
	switch ev.Type {
	case EventSave, EventDelete:
		return true
	}
	return false
}

// Failure is a store error kept in page state for the user to see.
type Failure struct {
	Op      string          `json:"op"`
	Kind    store.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

func newFailure(op string, err error) Failure {
	return Failure{Op: op, Kind: store.Classify(err), Message: err.Error()}
}

// Outcome is what an event produced besides the new state.
type Outcome struct {
	Navigate string   `json:"navigate,omitempty"`
	Failure  *Failure `json:"failure,omitempty"`
}

type PageView struct {
	Page     string         `json:"page"`
	Status   Status         `json:"status"`
	Failures []Failure      `json:"failures"`
	Data     map[string]any `json:"data"`
}

// Page is one activated screen.
type Page interface {
	Name() string
	// Activate connects and runs the page's loads. It may run once.
	Activate(ctx context.Context) error
	Handle(ctx context.Context, ev Event) (Outcome, error)
	View() PageView
}

// Deps are what every page needs to reach the store.
type Deps struct {
	Connector store.Connector
	Integrity integrity.Options
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d Deps) connect(ctx context.Context) (store.Client, *integrity.Checker, error) {
	if d.Connector == nil {
		return nil, nil, store.ErrNotConnected
	}
	client, err := d.Connector.Connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return client, integrity.New(client, d.Integrity, d.Logger), nil
}

// Load is one named read run during activation. Then runs only after Run
// succeeded, for reads filtered by what Run fetched.
type Load struct {
	Name string
	Run  func(ctx context.Context) error
	Then *Load
}

// maxParallelLoads bounds concurrent reads per activation.
const maxParallelLoads = 4

// runLoads runs independent loads concurrently. A failed load is logged and
// returned as a Failure; it never stops the others.
func runLoads(ctx context.Context, logger zerolog.Logger, loads []Load) []Failure {
	var (
		mu       sync.Mutex
		failures []Failure
	)
	var g errgroup.Group
	g.SetLimit(maxParallelLoads)
	for _, l := range loads {
		g.Go(func() error {
			for step := &l; step != nil; step = step.Then {
				if err := step.Run(ctx); err != nil {
					logger.Error().Err(err).Str("load", step.Name).Msg("page load failed")
					mu.Lock()
					failures = append(failures, newFailure("load "+step.Name, err))
					mu.Unlock()
					break
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(failures, func(i, j int) bool { return failures[i].Op < failures[j].Op })
	return failures
}

// Store is the slice of a domain service a list page writes through.
type Store[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, v T) error
	Update(ctx context.Context, v T) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// applyListEvent runs one dialog or delete event against st. Store failures
// come back as a Failure together with the state to keep; malformed or
// out-of-order events come back as an error with st unchanged.
func applyListEvent[T Entity[T]](ctx context.Context, st ListState[T], repo Store[T], ev Event, newDraft func() (T, error)) (ListState[T], *Failure, error) {
	switch ev.Type {
	case EventOpenCreate:
		d, err := newDraft()
		if err != nil {
			return st, nil, err
		}
		next, err := st.OpenCreate(d)
		return next, nil, err
	case EventOpenEdit:
		next, err := st.OpenEdit(ev.ID)
		return next, nil, err
	case EventCancel:
		return st.CloseDialog(), nil, nil
	case EventSave:
		return saveDraft(ctx, st, repo, ev.Draft)
	case EventConfirmDelete:
		next, err := st.ConfirmDelete(ev.ID)
		return next, nil, err
	case EventCancelDelete:
		return st.CancelDelete(), nil, nil
	case EventDelete:
		if st.Confirm == uuid.Nil {
			return st, nil, fmt.Errorf("%w: delete without confirmation", ErrInvalidTransition)
		}
		if err := repo.Delete(ctx, st.Confirm); err != nil {
			f := newFailure("delete", err)
			return st, &f, nil
		}
		next, err := st.Deleted()
		return next, nil, err
	}
	return st, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}

// saveDraft binds raw onto a copy of the draft and writes it. On failure the
// dialog stays open with the bound draft and the list is untouched.
func saveDraft[T Entity[T]](ctx context.Context, st ListState[T], repo Store[T], raw json.RawMessage) (ListState[T], *Failure, error) {
	if st.Dialog == DialogClosed {
		return st, nil, fmt.Errorf("%w: save with no open dialog", ErrInvalidTransition)
	}
	bound := st
	if len(raw) > 0 {
		d := st.Draft.Clone()
		if err := json.Unmarshal(raw, d); err != nil {
			return st, nil, fmt.Errorf("%w: %v", ErrBadDraft, err)
		}
		var err error
		if bound, err = st.Bind(d); err != nil {
			return st, nil, err
		}
	}

	saved := bound.Draft.Clone()
	var err error
	if bound.Dialog == DialogCreate {
		err = repo.Create(ctx, saved)
	} else {
		err = repo.Update(ctx, saved)
	}
	if err != nil {
		f := newFailure("save", err)
		return bound, &f, nil
	}
	next, err := bound.Saved(saved)
	return next, nil, err
}

// maxFailures caps the failures a page keeps.
const maxFailures = 20

func appendFailure(list []Failure, f Failure) []Failure {
	list = append(list, f)
	if len(list) > maxFailures {
		list = list[len(list)-maxFailures:]
	}
	return list
}

// ListPage is a list screen with create/edit dialogs and delete
// confirmation. With an editor path set, create and edit navigate to the
// editor instead of opening a dialog.
type ListPage[T Entity[T]] struct {
	name     string
	deps     Deps
	logger   zerolog.Logger
	newDraft func() T
	editor   string
	bind     func(client store.Client, chk *integrity.Checker) (Store[T], []Load)
	extra    func() map[string]any

	mu       sync.Mutex
	status   Status
	repo     Store[T]
	list     ListState[T]
	failures []Failure
}

func newListPage[T Entity[T]](deps Deps, name string, newDraft func() T, bind func(store.Client, *integrity.Checker) (Store[T], []Load)) *ListPage[T] {
	return &ListPage[T]{
		name:     name,
		deps:     deps,
		logger:   deps.Logger.With().Str("page", name).Logger(),
		newDraft: newDraft,
		bind:     bind,
	}
}

func (p *ListPage[T]) Name() string { return p.name }

func (p *ListPage[T]) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Uninitialized {
		return fmt.Errorf("%w: %s page already activated", ErrInvalidTransition, p.name)
	}
	p.status = Loading
	p.load(ctx)
	p.status = Ready
	return nil
}

func (p *ListPage[T]) load(ctx context.Context) {
	p.failures = nil
	client, chk, err := p.deps.connect(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("page connect failed")
		p.failures = appendFailure(p.failures, newFailure("connect", err))
		return
	}
	repo, refs := p.bind(client, chk)
	p.repo = repo

	var (
		items  []T
		listed bool
	)
	loads := append(refs, Load{Name: p.name, Run: func(ctx context.Context) error {
		out, err := repo.List(ctx)
		if err != nil {
			return err
		}
		items, listed = out, true
		return nil
	}})
	p.failures = runLoads(ctx, p.logger, loads)
	if listed {
		p.list = p.list.Loaded(items)
	}
}

func (p *ListPage[T]) Handle(ctx context.Context, ev Event) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Ready {
		return Outcome{}, fmt.Errorf("%w: %s page is %s", ErrInvalidTransition, p.name, p.status)
	}

	switch ev.Type {
	case EventRefresh:
		if p.list.busy() {
			return Outcome{}, fmt.Errorf("%w: refresh while %s", ErrInvalidTransition, p.list.describe())
		}
		p.load(ctx)
		return Outcome{}, nil
	case EventDismiss:
		p.failures = nil
		return Outcome{}, nil
	case EventSelect, EventOpenEdit:
		if p.editor != "" {
			if p.list.index(ev.ID) < 0 {
				return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownItem, ev.ID)
			}
			return Outcome{Navigate: p.editor + "/" + ev.ID.String()}, nil
		}
		ev.Type = EventOpenEdit
	case EventOpenCreate:
		if p.editor != "" {
			return Outcome{Navigate: p.editor}, nil
		}
	}

	if p.repo == nil && ev.Mutating() {
		f := newFailure(ev.Type, store.ErrNotConnected)
		p.failures = appendFailure(p.failures, f)
		return Outcome{Failure: &f}, nil
	}
	next, f, err := applyListEvent(ctx, p.list, p.repo, ev, func() (T, error) { return p.newDraft(), nil })
	if err != nil {
		return Outcome{}, err
	}
	p.list = next
	if f != nil {
		p.logger.Error().Str("op", f.Op).Str("kind", string(f.Kind)).Str("error", f.Message).Msg("page action failed")
		p.failures = appendFailure(p.failures, *f)
		return Outcome{Failure: f}, nil
	}
	return Outcome{}, nil
}

func (p *ListPage[T]) View() PageView {
	p.mu.Lock()
	defer p.mu.Unlock()
	data := map[string]any{"list": p.list.view()}
	if p.extra != nil {
		for k, v := range p.extra() {
			data[k] = v
		}
	}
	failures := append([]Failure{}, p.failures...)
	return PageView{Page: p.name, Status: p.status, Failures: failures, Data: data}
}

// Items returns a copy of the current list.
func (p *ListPage[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.list.Items...)
}

// State returns the current list state.
func (p *ListPage[T]) State() ListState[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list
}

func (p *ListPage[T]) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *ListPage[T]) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Failure(nil), p.failures...)
}
