package crf

import (
	"context"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/domain/integrity"
	"github.com/edc/edc/internal/platform/store"
)

type Service struct {
	forms     Repository
	items     ItemRepository
	integrity *integrity.Checker
}

func NewService(forms Repository, items ItemRepository, chk *integrity.Checker) *Service {
	return &Service{forms: forms, items: items, integrity: chk}
}

// -- CRF --

func (s *Service) Create(ctx context.Context, c *CRF) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.integrity.RequireParent(ctx, store.KindCRF, c.VisitID); err != nil {
		return err
	}
	return s.forms.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CRF, error) {
	return s.forms.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*CRF, error) {
	return s.forms.List(ctx)
}

func (s *Service) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*CRF, error) {
	return s.forms.ListByVisit(ctx, visitID)
}

// Update overwrites title, form type and completion date. The visit binding
// is fixed at creation.
func (s *Service) Update(ctx context.Context, c *CRF) error {
	if c.ID == uuid.Nil {
		return domain.Invalid("id", "is required")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return s.forms.Update(ctx, c)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.integrity.BeforeDelete(ctx, store.KindCRF, id); err != nil {
		return err
	}
	return s.forms.Delete(ctx, id)
}

// Verify records userID as the form's verifier.
func (s *Service) Verify(ctx context.Context, id, userID uuid.UUID) (*CRF, error) {
	if userID == uuid.Nil {
		return nil, domain.Invalid("user_id", "is required")
	}
	if _, err := s.forms.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.forms.SetVerifiedBy(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.forms.GetByID(ctx, id)
}

// -- Items --

// CreateItem requires the parent CRF id; an item without it would never be
// returned by ListItems.
func (s *Service) CreateItem(ctx context.Context, i *Item) error {
	if err := i.Validate(); err != nil {
		return err
	}
	if i.CRFID == uuid.Nil {
		return domain.Invalid("crf_id", "is required")
	}
	if err := s.integrity.RequireParent(ctx, store.KindCRFItem, i.CRFID); err != nil {
		return err
	}
	return s.items.Create(ctx, i)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.items.GetByID(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, crfID uuid.UUID) ([]*Item, error) {
	return s.items.ListByCRF(ctx, crfID)
}

func (s *Service) UpdateItem(ctx context.Context, i *Item) error {
	if i.ID == uuid.Nil {
		return domain.Invalid("id", "is required")
	}
	if err := i.Validate(); err != nil {
		return err
	}
	return s.items.Update(ctx, i)
}

func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return s.items.Delete(ctx, id)
}
