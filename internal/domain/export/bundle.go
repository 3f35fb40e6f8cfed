// Package export snapshots a trial and every subject, visit, CRF and item
// reachable from it, encodes the snapshot as JSON or CSV, and stores it in a
// blob store for later download.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/domain/crf"
	"github.com/edc/edc/internal/domain/subject"
	"github.com/edc/edc/internal/domain/trial"
	"github.com/edc/edc/internal/domain/visit"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", domain.Invalid("format", fmt.Sprintf("must be json or csv, got %q", s))
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Bundle is a point-in-time copy of one trial's data. Children appear in
// parent order, each group in store list order.
type Bundle struct {
	ExportedAt time.Time          `json:"exported_at"`
	Trial      *trial.Trial       `json:"trial"`
	Subjects   []*subject.Subject `json:"subjects"`
	Visits     []*visit.Visit     `json:"visits"`
	CRFs       []*crf.CRF         `json:"crfs"`
	Items      []*crf.Item        `json:"items"`
}

// Sources are the repositories a bundle is read from.
type Sources struct {
	Trials   trial.Repository
	Subjects subject.Repository
	Visits   visit.Repository
	CRFs     crf.Repository
	Items    crf.ItemRepository
}

// fanOut is the cap on concurrent child queries per level.
const fanOut = 8

// children runs list for every parent concurrently and concatenates the
// results in parent order.
func children[P, C any](ctx context.Context, parents []P, list func(context.Context, P) ([]C, error)) ([]C, error) {
	groups := make([][]C, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, p := range parents {
		g.Go(func() error {
			out, err := list(gctx, p)
			if err != nil {
				return err
			}
			groups[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []C
	for _, grp := range groups {
		all = append(all, grp...)
	}
	return all, nil
}

// Collect walks the trial's tree level by level. Each level depends on the
// ids of the one above, so levels run in sequence while siblings within a
// level are fetched concurrently.
func Collect(ctx context.Context, src Sources, trialID uuid.UUID) (*Bundle, error) {
	t, err := src.Trials.GetByID(ctx, trialID)
	if err != nil {
		return nil, fmt.Errorf("export trial %s: %w", trialID, err)
	}
	b := &Bundle{ExportedAt: time.Now().UTC(), Trial: t}

	if b.Subjects, err = src.Subjects.ListByTrial(ctx, trialID); err != nil {
		return nil, fmt.Errorf("export subjects: %w", err)
	}
	b.Visits, err = children(ctx, b.Subjects, func(ctx context.Context, s *subject.Subject) ([]*visit.Visit, error) {
		return src.Visits.ListBySubject(ctx, s.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("export visits: %w", err)
	}
	b.CRFs, err = children(ctx, b.Visits, func(ctx context.Context, v *visit.Visit) ([]*crf.CRF, error) {
		return src.CRFs.ListByVisit(ctx, v.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("export crfs: %w", err)
	}
	b.Items, err = children(ctx, b.CRFs, func(ctx context.Context, f *crf.CRF) ([]*crf.Item, error) {
		return src.Items.ListByCRF(ctx, f.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("export crf items: %w", err)
	}
	return b, nil
}

// Count is the number of entities in the bundle, the trial included.
func (b *Bundle) Count() int {
	return 1 + len(b.Subjects) + len(b.Visits) + len(b.CRFs) + len(b.Items)
}

func (b *Bundle) Encode(w io.Writer, f Format) error {
	switch f {
	case FormatCSV:
		return b.writeCSV(w)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
}

// CSVHeader is the flat row layout shared by every entity kind.
var CSVHeader = []string{"kind", "id", "parent_id", "label", "status", "date", "value", "units"}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parentID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func (b *Bundle) writeCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	rows := [][]string{CSVHeader}

	t := b.Trial
	rows = append(rows, []string{"trial", t.ID.String(), "", t.Name, "", formatDate(t.StartDate), deref(t.Sponsor), ""})
	for _, s := range b.Subjects {
		rows = append(rows, []string{"subject", s.ID.String(), parentID(s.TrialID), s.Code, s.Status.String(), formatDate(s.EnrollmentDate), "", ""})
	}
	for _, v := range b.Visits {
		rows = append(rows, []string{"visit", v.ID.String(), parentID(v.SubjectID), deref(v.Number), v.Status.String(), formatDate(&v.Date), "", ""})
	}
	for _, f := range b.CRFs {
		status := ""
		if f.VerifiedByID != uuid.Nil {
			status = "Verified"
		}
		rows = append(rows, []string{"crf", f.ID.String(), parentID(f.VisitID), f.Title, status, formatDate(f.CompletedDate), strconv.Itoa(f.FormType), ""})
	}
	for _, it := range b.Items {
		rows = append(rows, []string{"crfItem", it.ID.String(), parentID(it.CRFID), it.FieldName, it.Status.String(), "", deref(it.FieldValue), deref(it.Units)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}
