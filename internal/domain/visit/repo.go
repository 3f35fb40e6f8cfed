package visit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create passes v.ID through to the store when set and stores back the
	// identifier the store reports.
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Visit, error)
	ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*Visit, error)
}
