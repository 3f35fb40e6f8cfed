package view

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/domain/crf"
	"github.com/edc/edc/internal/domain/user"
	"github.com/edc/edc/internal/domain/visit"
	"github.com/edc/edc/internal/platform/store"
)

// itemStore adapts the CRF service's item calls to one form's item list.
type itemStore struct {
	svc   *crf.Service
	crfID uuid.UUID
}

func (s itemStore) List(ctx context.Context) ([]*crf.Item, error) {
	return s.svc.ListItems(ctx, s.crfID)
}

func (s itemStore) Create(ctx context.Context, i *crf.Item) error {
	return s.svc.CreateItem(ctx, i)
}

// Update keeps the item on its form; the form reference is only written on
// create.
func (s itemStore) Update(ctx context.Context, i *crf.Item) error {
	i.CRFID = s.crfID
	return s.svc.UpdateItem(ctx, i)
}

func (s itemStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.svc.DeleteItem(ctx, id)
}

// CRFormPage edits one CRF and its items. Without an id it opens in create
// mode with an empty form; items can be added once the form is stored.
type CRFormPage struct {
	deps   Deps
	logger zerolog.Logger
	id     uuid.UUID

	mu       sync.Mutex
	status   Status
	svc      *crf.Service
	visits   []*visit.Visit
	users    []*user.User
	stored   *crf.CRF
	form     *crf.CRF
	items    ListState[*crf.Item]
	failures []Failure
}

func NewCRFormPage(deps Deps, id uuid.UUID) *CRFormPage {
	return &CRFormPage{
		deps:   deps,
		id:     id,
		logger: deps.Logger.With().Str("page", PageCRForm).Str("crf_id", id.String()).Logger(),
	}
}

func (p *CRFormPage) Name() string { return PageCRForm }

func (p *CRFormPage) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Uninitialized {
		return fmt.Errorf("%w: crform page already activated", ErrInvalidTransition)
	}
	p.status = Loading
	p.load(ctx)
	p.status = Ready
	return nil
}

func (p *CRFormPage) load(ctx context.Context) {
	p.failures = nil
	if p.id == uuid.Nil {
		p.form = crf.NewDraft()
	}

	client, chk, err := p.deps.connect(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("page connect failed")
		p.failures = appendFailure(p.failures, newFailure("connect", err))
		return
	}
	p.svc = crf.NewService(crf.NewStoreRepo(client), crf.NewItemStoreRepo(client), chk)
	visits := visit.NewService(visit.NewStoreRepo(client), chk)
	users := user.NewStoreRepo(client)

	loads := []Load{
		{Name: PageVisits, Run: func(ctx context.Context) error {
			out, err := visits.List(ctx)
			if err == nil {
				p.visits = out
			}
			return err
		}},
		{Name: "users", Run: func(ctx context.Context) error {
			out, err := users.List(ctx)
			if err == nil {
				p.users = out
			}
			return err
		}},
	}
	if p.id != uuid.Nil {
		// The item query is filtered by the form's id, so the form loads first.
		loads = append(loads, Load{
			Name: "crf",
			Run: func(ctx context.Context) error {
				f, err := p.svc.Get(ctx, p.id)
				if err == nil {
					p.stored, p.form = f, f.Clone()
				}
				return err
			},
			Then: &Load{Name: TargetItems, Run: func(ctx context.Context) error {
				out, err := itemStore{svc: p.svc, crfID: p.stored.ID}.List(ctx)
				if err == nil {
					p.items = p.items.Loaded(out)
				}
				return err
			}},
		})
	}
	p.failures = runLoads(ctx, p.logger, loads)
}

func (p *CRFormPage) Handle(ctx context.Context, ev Event) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Ready {
		return Outcome{}, fmt.Errorf("%w: crform page is %s", ErrInvalidTransition, p.status)
	}

	switch ev.Type {
	case EventRefresh:
		if p.items.busy() {
			return Outcome{}, fmt.Errorf("%w: refresh while %s", ErrInvalidTransition, p.items.describe())
		}
		p.load(ctx)
		return Outcome{}, nil
	case EventDismiss:
		p.failures = nil
		return Outcome{}, nil
	}
	if ev.Mutating() && p.svc == nil {
		return p.failed(newFailure(ev.Type, store.ErrNotConnected)), nil
	}
	if ev.Target == TargetItems {
		return p.handleItem(ctx, ev)
	}

	switch ev.Type {
	case EventCancel:
		if p.stored != nil {
			p.form = p.stored.Clone()
		}
		return Outcome{Navigate: CRFListPath}, nil
	case EventSave:
		return p.save(ctx, ev.Draft)
	case EventVerify:
		return p.verify(ctx, ev.ID)
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}

func (p *CRFormPage) failed(f Failure) Outcome {
	p.logger.Error().Str("op", f.Op).Str("kind", string(f.Kind)).Str("error", f.Message).Msg("page action failed")
	p.failures = appendFailure(p.failures, f)
	return Outcome{Failure: &f}
}

// save creates or updates the form and reports the list page as the next
// stop. On failure the edited form stays in place.
func (p *CRFormPage) save(ctx context.Context, raw json.RawMessage) (Outcome, error) {
	if p.form == nil {
		return Outcome{}, fmt.Errorf("%w: form not loaded", ErrInvalidTransition)
	}
	next := p.form.Clone()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, next); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrBadDraft, err)
		}
		if next.ID != p.form.ID {
			return Outcome{}, fmt.Errorf("%w: draft id changed", ErrInvalidTransition)
		}
	}
	p.form = next

	saved := next.Clone()
	var err error
	if p.stored == nil {
		err = p.svc.Create(ctx, saved)
	} else {
		// Visit and verifier are not written on update.
		saved.VisitID, saved.VerifiedByID = p.stored.VisitID, p.stored.VerifiedByID
		err = p.svc.Update(ctx, saved)
	}
	if err != nil {
		return p.failed(newFailure("save", err)), nil
	}
	p.stored, p.form, p.id = saved, saved.Clone(), saved.ID
	return Outcome{Navigate: CRFListPath}, nil
}

func (p *CRFormPage) verify(ctx context.Context, userID uuid.UUID) (Outcome, error) {
	if p.stored == nil {
		return Outcome{}, fmt.Errorf("%w: verify before the form is stored", ErrInvalidTransition)
	}
	f, err := p.svc.Verify(ctx, p.stored.ID, userID)
	if err != nil {
		return p.failed(newFailure("verify", err)), nil
	}
	p.stored = f
	p.form.VerifiedByID = f.VerifiedByID
	return Outcome{}, nil
}

func (p *CRFormPage) handleItem(ctx context.Context, ev Event) (Outcome, error) {
	newDraft := func() (*crf.Item, error) {
		if p.stored == nil {
			return nil, fmt.Errorf("%w: save the form before adding items", ErrInvalidTransition)
		}
		return crf.NewItemDraft(p.stored.ID), nil
	}
	var repo Store[*crf.Item]
	if p.stored != nil {
		repo = itemStore{svc: p.svc, crfID: p.stored.ID}
	}
	if repo == nil && ev.Mutating() {
		return Outcome{}, fmt.Errorf("%w: form not stored", ErrInvalidTransition)
	}

	next, f, err := applyListEvent(ctx, p.items, repo, ev, newDraft)
	if err != nil {
		return Outcome{}, err
	}
	p.items = next
	if f != nil {
		f.Op = "item " + f.Op
		return p.failed(*f), nil
	}
	return Outcome{}, nil
}

func (p *CRFormPage) View() PageView {
	p.mu.Lock()
	defer p.mu.Unlock()
	mode := "edit"
	if p.id == uuid.Nil {
		mode = "create"
	}
	data := map[string]any{
		"mode":   mode,
		"form":   p.form,
		"items":  p.items.view(),
		"visits": nonNil(p.visits),
		"users":  nonNil(p.users),
	}
	return PageView{Page: PageCRForm, Status: p.status, Failures: append([]Failure{}, p.failures...), Data: data}
}

// Form returns a copy of the form being edited, nil when it failed to load.
func (p *CRFormPage) Form() *crf.CRF {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.form == nil {
		return nil
	}
	return p.form.Clone()
}

func (p *CRFormPage) Items() ListState[*crf.Item] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items
}

func (p *CRFormPage) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Failure(nil), p.failures...)
}

func (p *CRFormPage) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
