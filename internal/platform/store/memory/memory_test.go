package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/platform/store"
)

func TestStore_CreateGet(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, err := s.Create(ctx, store.KindTrial, store.Fields{"name": "Oncology Phase II", "sponsor": "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected assigned id")
	}
	rec, err := s.Get(ctx, store.KindTrial, id, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.String("name") != "Oncology Phase II" {
		t.Errorf("expected name, got %v", rec["name"])
	}
	if rec.ID("id") != id {
		t.Error("expected id column")
	}
	if rec.Time(store.ColCreatedOn).IsZero() {
		t.Error("expected createdOn stamp")
	}
}

func TestStore_CreateHonoursSuppliedID(t *testing.T) {
	s := New()
	id := uuid.New()
	got, err := s.Create(context.Background(), store.KindVisit, store.Fields{"visitId": id, "visitNumber": "V1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}
	if _, err := s.Create(context.Background(), store.KindVisit, store.Fields{"visitId": id}); store.Classify(err) != store.ErrorKindConflict {
		t.Errorf("expected conflict on duplicate id, got %v", err)
	}
}

func TestStore_UpdatePreservesCreatedOn(t *testing.T) {
	s := New()
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := store.Now
	store.Now = func() time.Time { return clock }
	defer func() { store.Now = orig }()

	id, _ := s.Create(ctx, store.KindCRF, store.Fields{"title": "Vitals"})
	clock = clock.Add(time.Hour)
	err := s.Update(ctx, store.KindCRF, id, store.Fields{
		"title":             "Vitals v2",
		store.ColCreatedOn: time.Time{},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, _ := s.Get(ctx, store.KindCRF, id, nil)
	if rec.String("title") != "Vitals v2" {
		t.Errorf("expected updated title, got %v", rec["title"])
	}
	if !rec.Time(store.ColCreatedOn).Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("createdOn changed: %v", rec[store.ColCreatedOn])
	}
	if !rec.Time(store.ColModifiedOn).Equal(clock) {
		t.Errorf("expected modifiedOn bump, got %v", rec[store.ColModifiedOn])
	}
}

func TestStore_UpdateNilClears(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.Create(ctx, store.KindTrial, store.Fields{"name": "T", "sponsor": "Acme"})
	if err := s.Update(ctx, store.KindTrial, id, store.Fields{"sponsor": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rec, _ := s.Get(ctx, store.KindTrial, id, nil)
	if _, ok := rec["sponsor"]; ok {
		t.Error("expected sponsor to be cleared")
	}
}

func TestStore_QueryFilterAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	crfA, crfB := uuid.New(), uuid.New()
	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		parent := crfB
		if i%2 == 0 {
			parent = crfA
		}
		id, _ := s.Create(ctx, store.KindCRFItem, store.Fields{
			"fieldName": "f",
			"crfRef":    store.Reference{Kind: store.KindCRF, ID: parent},
		})
		if parent == crfA {
			want = append(want, id)
		}
	}
	recs, err := s.Query(ctx, store.KindCRFItem, []string{"fieldName"}, store.Eq("crfRef", crfA))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d, got %d", len(want), len(recs))
	}
	for i, r := range recs {
		if r.ID("id") != want[i] {
			t.Errorf("position %d: expected %s, got %v", i, want[i], r["id"])
		}
		if _, ok := r["crfRef"]; ok {
			t.Error("unrequested column returned")
		}
	}
}

func TestStore_QueryListValue(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Create(ctx, store.KindTrial, store.Fields{"name": "T", "sponsor": []any{1}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	recs, err := s.Query(ctx, store.KindTrial, nil, store.Eq("sponsor", []any{1}))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no match on a list column, got %d", len(recs))
	}
}

func TestStore_Delete(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.Create(ctx, store.KindSubject, store.Fields{"subjectCode": "SUBJ-001"})
	if err := s.Delete(ctx, store.KindSubject, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, store.KindSubject, id, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, store.KindSubject, id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStore_UnknownKind(t *testing.T) {
	s := New()
	_, err := s.Query(context.Background(), store.Kind("patient"), nil)
	if store.Classify(err) != store.ErrorKindRemoteFailure {
		t.Errorf("expected remote failure, got %v", err)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Create(ctx, store.KindTrial, store.Fields{"name": "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.Len(store.KindTrial) != 0 {
		t.Error("nothing should be written")
	}
}
