package crf

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *CRF) error
	GetByID(ctx context.Context, id uuid.UUID) (*CRF, error)
	Update(ctx context.Context, c *CRF) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*CRF, error)
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*CRF, error)
	// SetVerifiedBy writes only the verifier reference.
	SetVerifiedBy(ctx context.Context, id, userID uuid.UUID) error
}

type ItemRepository interface {
	Create(ctx context.Context, i *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, i *Item) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCRF(ctx context.Context, crfID uuid.UUID) ([]*Item, error)
}
