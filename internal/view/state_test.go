package view

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain/trial"
)

func trials(names ...string) []*trial.Trial {
	out := make([]*trial.Trial, len(names))
	for i, n := range names {
		out[i] = &trial.Trial{ID: uuid.New(), Name: n}
	}
	return out
}

func TestListState_CreateFlow(t *testing.T) {
	st := NewListState(trials("A"))

	opened, err := st.OpenCreate(trial.NewDraft())
	if err != nil {
		t.Fatalf("open create: %v", err)
	}
	if st.Dialog != DialogClosed {
		t.Error("transition must not modify the receiver")
	}
	if opened.Dialog != DialogCreate || opened.Draft == nil || opened.Draft.Name != "" {
		t.Errorf("unexpected state %+v", opened)
	}
	if _, err := opened.OpenCreate(trial.NewDraft()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second open must fail, got %v", err)
	}

	saved := &trial.Trial{ID: uuid.New(), Name: "B"}
	next, err := opened.Saved(saved)
	if err != nil {
		t.Fatalf("saved: %v", err)
	}
	if len(next.Items) != 2 || next.Items[1] != saved || next.Dialog != DialogClosed || next.Draft != nil {
		t.Errorf("unexpected state after save %+v", next)
	}
	if len(opened.Items) != 1 {
		t.Error("saving must not grow the previous state's list")
	}
}

func TestListState_EditDoesNotAlias(t *testing.T) {
	items := trials("A", "B")
	st := NewListState(items)

	edit, err := st.OpenEdit(items[1].ID)
	if err != nil {
		t.Fatalf("open edit: %v", err)
	}
	edit.Draft.Name = "changed"
	if items[1].Name != "B" || edit.Items[1].Name != "B" {
		t.Error("editing the draft must not touch the list")
	}

	next, err := edit.Saved(edit.Draft)
	if err != nil {
		t.Fatalf("saved: %v", err)
	}
	if next.Items[1].Name != "changed" || len(next.Items) != 2 {
		t.Errorf("expected in-place replace, got %+v", next.Items)
	}
	if st.Items[1].Name != "B" {
		t.Error("earlier state must keep the old row")
	}

	if _, err := st.OpenEdit(uuid.New()); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestListState_Bind(t *testing.T) {
	st, _ := NewListState(trials("A")).OpenCreate(trial.NewDraft())
	if _, err := st.Bind(&trial.Trial{ID: uuid.New()}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("changing the draft id must fail, got %v", err)
	}
	bound, err := st.Bind(&trial.Trial{Name: "X"})
	if err != nil || bound.Draft.Name != "X" {
		t.Errorf("unexpected bind %+v, %v", bound.Draft, err)
	}
	if _, err := NewListState[*trial.Trial](nil).Bind(&trial.Trial{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("bind with closed dialog must fail, got %v", err)
	}
}

func TestListState_DeleteFlow(t *testing.T) {
	items := trials("A", "B", "C")
	st := NewListState(items)

	if _, err := st.Deleted(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("delete without confirm must fail, got %v", err)
	}
	confirming, err := st.ConfirmDelete(items[1].ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := confirming.OpenCreate(trial.NewDraft()); !errors.Is(err, ErrInvalidTransition) {
		t.Error("dialogs stay closed while a delete is being confirmed")
	}
	if back := confirming.CancelDelete(); back.Confirm != uuid.Nil || len(back.Items) != 3 {
		t.Errorf("cancel must keep items, got %+v", back)
	}

	done, err := confirming.Deleted()
	if err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(done.Items) != 2 || done.Items[0] != items[0] || done.Items[1] != items[2] || done.Confirm != uuid.Nil {
		t.Errorf("unexpected state after delete %+v", done)
	}
	if len(confirming.Items) != 3 || confirming.Items[1] != items[1] {
		t.Error("delete must not modify the earlier state's list")
	}
}

func TestListState_SavedWithoutDialog(t *testing.T) {
	if _, err := NewListState(trials("A")).Saved(&trial.Trial{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStatusText(t *testing.T) {
	for s, want := range map[Status]string{Uninitialized: "uninitialized", Loading: "loading", Ready: "ready"} {
		if b, _ := s.MarshalText(); string(b) != want {
			t.Errorf("%d -> %s, want %s", s, b, want)
		}
	}
	if DialogEdit.String() != "edit" || DialogClosed.String() != "closed" {
		t.Error("unexpected dialog labels")
	}
}
