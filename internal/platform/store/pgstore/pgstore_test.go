package pgstore

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/platform/store"
)

func TestBuildWhere_KindOnly(t *testing.T) {
	where, args, err := buildWhere(store.KindTrial, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if where != "kind = $1" {
		t.Errorf("unexpected clause %q", where)
	}
	if len(args) != 1 || args[0] != "trial" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestBuildWhere_Reference(t *testing.T) {
	crfID := uuid.New()
	where, args, err := buildWhere(store.KindCRFItem, []store.Filter{store.Eq("crfRef", crfID)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(where, "fields->'crfRef'->'@ref'->>'id'") {
		t.Errorf("expected reference path, got %q", where)
	}
	if !strings.HasSuffix(where, "= $2") {
		t.Errorf("expected second placeholder, got %q", where)
	}
	if args[1] != crfID.String() {
		t.Errorf("expected id arg, got %v", args[1])
	}
}

func TestBuildWhere_OptionAndString(t *testing.T) {
	where, args, err := buildWhere(store.KindSubject, []store.Filter{
		store.Eq("status", store.Option(3)),
		store.Eq("subjectCode", "SUBJ-001"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(where, "COALESCE(fields->'status'->>'@option', fields->>'status') = $2") {
		t.Errorf("unexpected option clause %q", where)
	}
	if !strings.Contains(where, "fields->>'subjectCode' = $3") {
		t.Errorf("unexpected string clause %q", where)
	}
	if args[1] != "3" || args[2] != "SUBJ-001" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestBuildWhere_IDColumn(t *testing.T) {
	id := uuid.New()
	where, args, err := buildWhere(store.KindVisit, []store.Filter{store.Eq("visitId", id)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(where, "id = $2") {
		t.Errorf("unexpected clause %q", where)
	}
	if args[1] != id {
		t.Errorf("expected uuid arg, got %v", args[1])
	}
	if _, _, err := buildWhere(store.KindVisit, []store.Filter{store.Eq("visitId", "V-1")}); err == nil {
		t.Error("expected error for non-identifier value")
	}
}

func TestBuildWhere_Time(t *testing.T) {
	when := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	where, args, err := buildWhere(store.KindVisit, []store.Filter{store.Eq("visitDate", when)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(where, "->>'@datetime'") {
		t.Errorf("unexpected clause %q", where)
	}
	if args[1] != "2024-02-03T04:05:06Z" {
		t.Errorf("unexpected arg %v", args[1])
	}
}

func TestBuildWhere_RejectsInjection(t *testing.T) {
	_, _, err := buildWhere(store.KindTrial, []store.Filter{store.Eq("name' OR '1'='1", "x")})
	if err == nil {
		t.Fatal("expected error for invalid column name")
	}
}

func TestBuildWhere_UnsupportedValue(t *testing.T) {
	_, _, err := buildWhere(store.KindTrial, []store.Filter{store.Eq("name", []string{"a"})})
	if err == nil {
		t.Fatal("expected error for slice value")
	}
}
