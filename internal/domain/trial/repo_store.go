package trial

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

// NewStoreRepo returns a Repository over the entity store. A nil client
// fails every call with store.ErrNotConnected.
func NewStoreRepo(client store.Client) Repository {
	return &storeRepo{client: client}
}

func (r *storeRepo) conn() (store.Client, error) {
	if r.client == nil {
		return nil, store.ErrNotConnected
	}
	return r.client, nil
}

func (r *storeRepo) Create(ctx context.Context, t *Trial) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	id, err := c.Create(ctx, store.KindTrial, ToPayload(t))
	if err != nil {
		return fmt.Errorf("create trial: %w", err)
	}
	t.ID = id
	return nil
}

func (r *storeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Trial, error) {
	return domain.Get(ctx, r.client, codec, id)
}

func (r *storeRepo) Update(ctx context.Context, t *Trial) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Update(ctx, store.KindTrial, t.ID, ToPayload(t)); err != nil {
		return fmt.Errorf("update trial %s: %w", t.ID, err)
	}
	return nil
}

func (r *storeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, store.KindTrial, id); err != nil {
		return fmt.Errorf("delete trial %s: %w", id, err)
	}
	return nil
}

func (r *storeRepo) List(ctx context.Context) ([]*Trial, error) {
	return domain.List(ctx, r.client, codec)
}
