package view

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownItem       = errors.New("item not in list")
)

// Status is the page lifecycle: Uninitialized, then Loading once on
// activation, then Ready whatever the loads returned.
type Status int

const (
	Uninitialized Status = iota
	Loading
	Ready
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return "uninitialized"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type DialogMode int

const (
	DialogClosed DialogMode = iota
	DialogCreate
	DialogEdit
)

func (m DialogMode) String() string {
	switch m {
	case DialogCreate:
		return "create"
	case DialogEdit:
		return "edit"
	}
	return "closed"
}

func (m DialogMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Entity is a list row that can be keyed and deep-copied into a draft.
type Entity[T any] interface {
	Key() uuid.UUID
	Clone() T
}

// ListState is the list, dialog and delete-confirmation state of one list.
// Every transition returns a new value and leaves the receiver untouched, so
// a failed store call can simply keep the previous state.
type ListState[T Entity[T]] struct {
	Items  []T
	Dialog DialogMode
	// Draft is nil while the dialog is closed.
	Draft T
	// Confirm is the id awaiting delete confirmation, uuid.Nil when none.
	Confirm uuid.UUID
}

func NewListState[T Entity[T]](items []T) ListState[T] {
	return ListState[T]{Items: slices.Clone(items)}
}

func (s ListState[T]) index(id uuid.UUID) int {
	return slices.IndexFunc(s.Items, func(it T) bool { return it.Key() == id })
}

func (s ListState[T]) busy() bool {
	return s.Dialog != DialogClosed || s.Confirm != uuid.Nil
}

// Loaded replaces the items with a fresh load and resets every sub-state.
func (s ListState[T]) Loaded(items []T) ListState[T] {
	return NewListState(items)
}

func (s ListState[T]) OpenCreate(draft T) (ListState[T], error) {
	if s.busy() {
		return s, fmt.Errorf("%w: open create while %s", ErrInvalidTransition, s.describe())
	}
	s.Dialog, s.Draft = DialogCreate, draft
	return s, nil
}

// OpenEdit copies the selected item into the draft. The draft never aliases
// the row, so edits stay invisible in the list until they are saved.
func (s ListState[T]) OpenEdit(id uuid.UUID) (ListState[T], error) {
	if s.busy() {
		return s, fmt.Errorf("%w: open edit while %s", ErrInvalidTransition, s.describe())
	}
	i := s.index(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	s.Dialog, s.Draft = DialogEdit, s.Items[i].Clone()
	return s, nil
}

// Bind replaces the draft with d. The draft's identity cannot change.
func (s ListState[T]) Bind(d T) (ListState[T], error) {
	if s.Dialog == DialogClosed {
		return s, fmt.Errorf("%w: no open dialog", ErrInvalidTransition)
	}
	if d.Key() != s.Draft.Key() {
		return s, fmt.Errorf("%w: draft id changed from %s to %s", ErrInvalidTransition, s.Draft.Key(), d.Key())
	}
	s.Draft = d
	return s, nil
}

func (s ListState[T]) CloseDialog() ListState[T] {
	var zero T
	s.Dialog, s.Draft = DialogClosed, zero
	return s
}

// Saved patches the list with the stored entity: appended after a create,
// replaced in place after an edit. The dialog closes.
func (s ListState[T]) Saved(saved T) (ListState[T], error) {
	items := slices.Clone(s.Items)
	switch s.Dialog {
	case DialogCreate:
		items = append(items, saved)
	case DialogEdit:
		i := s.index(saved.Key())
		if i < 0 {
			// removed by a concurrent reload; keep the saved row visible
			items = append(items, saved)
		} else {
			items[i] = saved
		}
	default:
		return s, fmt.Errorf("%w: save with no open dialog", ErrInvalidTransition)
	}
	s.Items = items
	return s.CloseDialog(), nil
}

func (s ListState[T]) ConfirmDelete(id uuid.UUID) (ListState[T], error) {
	if s.busy() {
		return s, fmt.Errorf("%w: confirm delete while %s", ErrInvalidTransition, s.describe())
	}
	if s.index(id) < 0 {
		return s, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	s.Confirm = id
	return s, nil
}

func (s ListState[T]) CancelDelete() ListState[T] {
	s.Confirm = uuid.Nil
	return s
}

// Deleted drops the confirmed item and closes the confirmation.
func (s ListState[T]) Deleted() (ListState[T], error) {
	if s.Confirm == uuid.Nil {
		return s, fmt.Errorf("%w: delete without confirmation", ErrInvalidTransition)
	}
	id := s.Confirm
	s.Items = slices.DeleteFunc(slices.Clone(s.Items), func(it T) bool { return it.Key() == id })
	s.Confirm = uuid.Nil
	return s, nil
}

func (s ListState[T]) describe() string {
	if s.Confirm != uuid.Nil {
		return "confirming delete"
	}
	return "dialog " + s.Dialog.String()
}

// listView is the JSON shape of a ListState.
type listView[T any] struct {
	Items   []T        `json:"items"`
	Dialog  DialogMode `json:"dialog"`
	Draft   T          `json:"draft,omitempty"`
	Confirm *uuid.UUID `json:"confirm_delete,omitempty"`
}

func (s ListState[T]) view() listView[T] {
	v := listView[T]{Items: s.Items, Dialog: s.Dialog, Draft: s.Draft}
	if v.Items == nil {
		v.Items = []T{}
	}
	if s.Confirm != uuid.Nil {
		id := s.Confirm
		v.Confirm = &id
	}
	return v
}
