package subject

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

func (r *storeRepo) Create(ctx context.Context, s *Subject) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	id, err := c.Create(ctx, store.KindSubject, ToPayload(s))
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	s.ID = id
	return nil
}

func (r *storeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Subject, error) {
	return domain.Get(ctx, r.client, codec, id)
}

func (r *storeRepo) Update(ctx context.Context, s *Subject) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Update(ctx, store.KindSubject, s.ID, ToPayload(s)); err != nil {
		return fmt.Errorf("update subject %s: %w", s.ID, err)
	}
	return nil
}

func (r *storeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, store.KindSubject, id); err != nil {
		return fmt.Errorf("delete subject %s: %w", id, err)
	}
	return nil
}

func (r *storeRepo) List(ctx context.Context) ([]*Subject, error) {
	return domain.List(ctx, r.client, codec)
}

func (r *storeRepo) ListByTrial(ctx context.Context, trialID uuid.UUID) ([]*Subject, error) {
	return domain.List(ctx, r.client, codec, store.Eq(ColTrialRef, trialID))
}
