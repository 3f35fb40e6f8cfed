package visit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/store"
)

type storeRepo struct {
	client store.Client
}

func NewStoreRepo(client store.Client) Repository {
	return &storeRepo{client: client}
}

func (r *storeRepo) conn() (store.Client, error) {
	if r.client == nil {
		return nil, store.ErrNotConnected
	}
	return r.client, nil
}

func (r *storeRepo) Create(ctx context.Context, v *Visit) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	id, err := c.Create(ctx, store.KindVisit, CreatePayload(v))
	if err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	v.ID = id
	return nil
}

func (r *storeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return domain.Get(ctx, r.client, codec, id)
}

func (r *storeRepo) Update(ctx context.Context, v *Visit) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Update(ctx, store.KindVisit, v.ID, ToPayload(v)); err != nil {
		return fmt.Errorf("update visit %s: %w", v.ID, err)
	}
	return nil
}

func (r *storeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, store.KindVisit, id); err != nil {
		return fmt.Errorf("delete visit %s: %w", id, err)
	}
	return nil
}

func (r *storeRepo) List(ctx context.Context) ([]*Visit, error) {
	return domain.List(ctx, r.client, codec)
}

func (r *storeRepo) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]*Visit, error) {
	return domain.List(ctx, r.client, codec, store.Eq(ColSubjectRef, subjectID))
}
