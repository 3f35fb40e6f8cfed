package subject

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

func (s *Service) Create(ctx context.Context, sub *Subject) error {
	if err := s.check(ctx, sub); err != nil {
		return err
	}
	return s.repo.Create(ctx, sub)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Subject, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Subject, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByTrial(ctx context.Context, trialID uuid.UUID) ([]*Subject, error) {
	return s.repo.ListByTrial(ctx, trialID)
}

func (s *Service) Update(ctx context.Context, sub *Subject) error {
	if sub.ID == uuid.Nil {
		return domain.Invalid("subject_id", "is required")
	}
	if err := s.check(ctx, sub); err != nil {
		return err
	}
	return s.repo.Update(ctx, sub)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.integrity.BeforeDelete(ctx, store.KindSubject, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) check(ctx context.Context, sub *Subject) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.integrity.RequireParent(ctx, store.KindSubject, sub.TrialID)
}
