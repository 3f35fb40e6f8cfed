package integrity

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/platform/store"
	"github.com/edc/edc/internal/platform/store/memory"
)

type chain struct {
	trial, subject, visit, crf, item uuid.UUID
}

func seed(t *testing.T, s *memory.Store) chain {
	t.Helper()
	ctx := context.Background()
	var c chain
	var err error
	if c.trial, err = s.Create(ctx, store.KindTrial, store.Fields{"name": "Oncology Phase II"}); err != nil {
		t.Fatalf("seed trial: %v", err)
	}
	if c.subject, err = s.Create(ctx, store.KindSubject, store.Fields{"subjectCode": "SUBJ-001", "trialRef": store.Ref(store.KindTrial, c.trial)}); err != nil {
		t.Fatalf("seed subject: %v", err)
	}
	if c.visit, err = s.Create(ctx, store.KindVisit, store.Fields{"visitId": uuid.New(), "subjectRef": store.Ref(store.KindSubject, c.subject)}); err != nil {
		t.Fatalf("seed visit: %v", err)
	}
	if c.crf, err = s.Create(ctx, store.KindCRF, store.Fields{"title": "Vitals", "visitRef": store.Ref(store.KindVisit, c.visit)}); err != nil {
		t.Fatalf("seed crf: %v", err)
	}
	if c.item, err = s.Create(ctx, store.KindCRFItem, store.Fields{"fieldName": "bp", "crfRef": store.Ref(store.KindCRF, c.crf)}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return c
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyAllow, false},
		{"allow", PolicyAllow, false},
		{"restrict", PolicyRestrict, false},
		{"cascade", PolicyCascade, false},
		{"orphan", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParsePolicy(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelations(t *testing.T) {
	rel, ok := ParentOf(store.KindCRFItem)
	if !ok || rel.Parent != store.KindCRF || rel.Column != "crfRef" {
		t.Errorf("unexpected crfItem relation %+v", rel)
	}
	if _, ok := ParentOf(store.KindTrial); ok {
		t.Error("trial has no parent")
	}
	if got := ChildrenOf(store.KindVisit); len(got) != 1 || got[0].Child != store.KindCRF {
		t.Errorf("unexpected visit children %+v", got)
	}
	if len(ChildrenOf(store.KindCRFItem)) != 0 {
		t.Error("crf items have no children")
	}
}

func TestRequireParent(t *testing.T) {
	s := memory.New()
	c := seed(t, s)
	ctx := context.Background()
	chk := New(s, Options{CheckParents: true}, zerolog.Nop())

	if err := chk.RequireParent(ctx, store.KindSubject, c.trial); err != nil {
		t.Errorf("existing trial: %v", err)
	}
	if err := chk.RequireParent(ctx, store.KindVisit, uuid.Nil); err != nil {
		t.Errorf("unassigned parent must pass: %v", err)
	}

	err := chk.RequireParent(ctx, store.KindCRFItem, uuid.New())
	if !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound, got %v", err)
	}
	var v *Violation
	if !errors.As(err, &v) || v.StatusCode() != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 violation, got %v", err)
	}
	if store.Classify(err) != store.ErrorKindValidation {
		t.Errorf("expected validation kind, got %s", store.Classify(err))
	}

	off := New(s, Options{CheckParents: false}, zerolog.Nop())
	if err := off.RequireParent(ctx, store.KindCRFItem, uuid.New()); err != nil {
		t.Errorf("disabled checks must pass: %v", err)
	}
	var nilChecker *Checker
	if err := nilChecker.RequireParent(ctx, store.KindCRFItem, uuid.New()); err != nil {
		t.Errorf("nil checker must pass: %v", err)
	}
}

func TestDependents(t *testing.T) {
	s := memory.New()
	c := seed(t, s)
	chk := New(s, Options{}, zerolog.Nop())

	deps, err := chk.Dependents(context.Background(), store.KindTrial, c.trial)
	if err != nil {
		t.Fatalf("dependents: %v", err)
	}
	if len(deps) != 1 || deps[0].Kind != store.KindSubject || deps[0].ID != c.subject {
		t.Errorf("unexpected dependents %+v", deps)
	}
	deps, _ = chk.Dependents(context.Background(), store.KindCRFItem, c.item)
	if len(deps) != 0 {
		t.Errorf("items have no dependents, got %+v", deps)
	}
}

func TestBeforeDelete_Allow(t *testing.T) {
	s := memory.New()
	c := seed(t, s)
	ctx := context.Background()
	chk := New(s, Options{Policy: PolicyAllow}, zerolog.Nop())

	if err := chk.BeforeDelete(ctx, store.KindTrial, c.trial); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if err := s.Delete(ctx, store.KindTrial, c.trial); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, store.KindSubject, c.subject, nil); err != nil {
		t.Errorf("subject must survive its trial under allow: %v", err)
	}
}

func TestBeforeDelete_Restrict(t *testing.T) {
	s := memory.New()
	c := seed(t, s)
	chk := New(s, Options{Policy: PolicyRestrict}, zerolog.Nop())

	err := chk.BeforeDelete(context.Background(), store.KindCRF, c.crf)
	if !errors.Is(err, ErrHasDependents) {
		t.Fatalf("expected ErrHasDependents, got %v", err)
	}
	var v *Violation
	if !errors.As(err, &v) || v.StatusCode() != http.StatusConflict || v.Count != 1 {
		t.Errorf("unexpected violation %+v", v)
	}
	if store.Classify(err) != store.ErrorKindConflict {
		t.Errorf("expected conflict kind, got %s", store.Classify(err))
	}
	if err := chk.BeforeDelete(context.Background(), store.KindCRFItem, c.item); err != nil {
		t.Errorf("leaf delete must pass: %v", err)
	}
}

func TestBeforeDelete_Cascade(t *testing.T) {
	s := memory.New()
	c := seed(t, s)
	ctx := context.Background()
	chk := New(s, Options{Policy: PolicyCascade}, zerolog.Nop())

	if err := chk.BeforeDelete(ctx, store.KindTrial, c.trial); err != nil {
		t.Fatalf("cascade: %v", err)
	}
	for kind, id := range map[store.Kind]uuid.UUID{
		store.KindSubject: c.subject,
		store.KindVisit:   c.visit,
		store.KindCRF:     c.crf,
		store.KindCRFItem: c.item,
	} {
		if _, err := s.Get(ctx, kind, id, nil); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("%s should be gone, got %v", kind, err)
		}
	}
	if _, err := s.Get(ctx, store.KindTrial, c.trial, nil); err != nil {
		t.Errorf("the trial itself is deleted by the caller: %v", err)
	}
}
