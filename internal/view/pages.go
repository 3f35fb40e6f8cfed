package view

import (
	"context"

	"github.com/edc/edc/internal/domain/crf"
	"github.com/edc/edc/internal/domain/integrity"
	"github.com/edc/edc/internal/domain/subject"
	"github.com/edc/edc/internal/domain/trial"
	"github.com/edc/edc/internal/domain/visit"
	"github.com/edc/edc/internal/platform/store"
)

func NewTrialsPage(deps Deps) *ListPage[*trial.Trial] {
	return newListPage(deps, PageTrials, trial.NewDraft,
		func(client store.Client, chk *integrity.Checker) (Store[*trial.Trial], []Load) {
			return trial.NewService(trial.NewStoreRepo(client), chk), nil
		})
}

// SubjectsPage lists every subject with the name of its trial; the trials
// also feed the trial picker of the dialog.
type SubjectsPage struct {
	*ListPage[*subject.Subject]
	trials []*trial.Trial
}

func NewSubjectsPage(deps Deps) *SubjectsPage {
	p := &SubjectsPage{}
	p.ListPage = newListPage(deps, PageSubjects, subject.NewDraft,
		func(client store.Client, chk *integrity.Checker) (Store[*subject.Subject], []Load) {
			trials := trial.NewService(trial.NewStoreRepo(client), chk)
			return subject.NewService(subject.NewStoreRepo(client), chk), []Load{{
				Name: PageTrials,
				Run: func(ctx context.Context) error {
					out, err := trials.List(ctx)
					if err != nil {
						return err
					}
					p.trials = out
					return nil
				},
			}}
		})
	p.extra = func() map[string]any {
		names := make(map[string]string, len(p.list.Items))
		for _, s := range p.list.Items {
			names[s.ID.String()] = trial.NameOf(p.trials, s.TrialID)
		}
		return map[string]any{"trials": nonNil(p.trials), "trial_names": names}
	}
	return p
}

// TrialName is the display name of the subject's trial.
func (p *SubjectsPage) TrialName(s *subject.Subject) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return trial.NameOf(p.trials, s.TrialID)
}

// VisitsPage lists all visits, unfiltered, with the code of each visit's
// subject.
type VisitsPage struct {
	*ListPage[*visit.Visit]
	subjects []*subject.Subject
}

func NewVisitsPage(deps Deps) *VisitsPage {
	p := &VisitsPage{}
	draft := func() *visit.Visit { return visit.NewDraft(deps.now()) }
	p.ListPage = newListPage(deps, PageVisits, draft,
		func(client store.Client, chk *integrity.Checker) (Store[*visit.Visit], []Load) {
			subjects := subject.NewService(subject.NewStoreRepo(client), chk)
			return visit.NewService(visit.NewStoreRepo(client), chk), []Load{{
				Name: PageSubjects,
				Run: func(ctx context.Context) error {
					out, err := subjects.List(ctx)
					if err != nil {
						return err
					}
					p.subjects = out
					return nil
				},
			}}
		})
	p.extra = func() map[string]any {
		codes := make(map[string]string, len(p.list.Items))
		for _, v := range p.list.Items {
			codes[v.ID.String()] = subject.CodeOf(p.subjects, v.SubjectID)
		}
		return map[string]any{"subjects": nonNil(p.subjects), "subject_codes": codes}
	}
	return p
}

func (p *VisitsPage) SubjectCode(v *visit.Visit) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return subject.CodeOf(p.subjects, v.SubjectID)
}

// NewCRFsPage lists forms. Creating or selecting a form navigates to the
// CRF editor; deletion is confirmed in place.
func NewCRFsPage(deps Deps) *ListPage[*crf.CRF] {
	p := newListPage(deps, PageCRFs, crf.NewDraft,
		func(client store.Client, chk *integrity.Checker) (Store[*crf.CRF], []Load) {
			forms := crf.NewService(crf.NewStoreRepo(client), crf.NewItemStoreRepo(client), chk)
			return forms, nil
		})
	p.editor = CRFEditorPath
	return p
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
