package subject

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Subject) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subject, error)
	Update(ctx context.Context, s *Subject) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Subject, error)
	ListByTrial(ctx context.Context, trialID uuid.UUID) ([]*Subject, error)
}
