package trial

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

// NewService wires a trial service. chk may be nil.
func NewService(repo Repository, chk *integrity.Checker) *Service {
	return &Service{repo: repo, integrity: chk}
}

func (s *Service) Create(ctx context.Context, t *Trial) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Trial, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Trial, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, t *Trial) error {
	if t.ID == uuid.Nil {
		return domain.Invalid("id", "is required")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, t)
}

// Delete applies the configured delete policy to the trial's subjects first.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.integrity.BeforeDelete(ctx, store.KindTrial, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
