package visit

import (
	"context"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/domain/integrity"
	"github.com/edc/edc/internal/platform/store"
)

type Service struct {
	repo      Repository
	integrity *integrity.Checker
}

func NewService(repo Repository, chk *integrity.Checker) *Service {
	return &Service{repo: repo, integrity: chk}
}

func (s *Service) Create(ctx context.Context, v *Visit) error {
	if err := s.check(ctx, v); err != nil {
		return err
	}
	return s.repo.Create(ctx, v)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Visit, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*Visit, error) {
	return s.repo.ListBySubject(ctx, subjectID)
}

func (s *Service) Update(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		return domain.Invalid("visit_id", "is required")
	}
	if err := s.check(ctx, v); err != nil {
		return err
	}
	return s.repo.Update(ctx, v)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.integrity.BeforeDelete(ctx, store.KindVisit, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// check skips the parent lookup for unassigned visits.
func (s *Service) check(ctx context.Context, v *Visit) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return s.integrity.RequireParent(ctx, store.KindVisit, v.SubjectID)
}
