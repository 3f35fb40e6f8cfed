package trial

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores t and sets t.ID to the identifier the store assigned.
	Create(ctx context.Context, t *Trial) error
	GetByID(ctx context.Context, id uuid.UUID) (*Trial, error)
	Update(ctx context.Context, t *Trial) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Trial, error)
}
