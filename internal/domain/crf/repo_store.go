package crf

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

func (r *storeRepo) Create(ctx context.Context, c *CRF) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	id, err := cl.Create(ctx, store.KindCRF, CreatePayload(c))
	if err != nil {
		return fmt.Errorf("create crf: %w", err)
	}
	c.ID = id
	return nil
}

func (r *storeRepo) GetByID(ctx context.Context, id uuid.UUID) (*CRF, error) {
	return domain.Get(ctx, r.client, codec, id)
}

func (r *storeRepo) Update(ctx context.Context, c *CRF) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	if err := cl.Update(ctx, store.KindCRF, c.ID, ToPayload(c)); err != nil {
		return fmt.Errorf("update crf %s: %w", c.ID, err)
	}
	return nil
}

func (r *storeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	if err := cl.Delete(ctx, store.KindCRF, id); err != nil {
		return fmt.Errorf("delete crf %s: %w", id, err)
	}
	return nil
}

func (r *storeRepo) List(ctx context.Context) ([]*CRF, error) {
	return domain.List(ctx, r.client, codec)
}

func (r *storeRepo) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*CRF, error) {
	return domain.List(ctx, r.client, codec, store.Eq(ColVisitRef, visitID))
}

func (r *storeRepo) SetVerifiedBy(ctx context.Context, id, userID uuid.UUID) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	fields := store.Fields{ColVerifiedByRef: store.Ref(store.KindUser, userID)}
	if err := cl.Update(ctx, store.KindCRF, id, fields); err != nil {
		return fmt.Errorf("verify crf %s: %w", id, err)
	}
	return nil
}

type itemStoreRepo struct {
	client store.Client
}

func NewItemStoreRepo(client store.Client) ItemRepository {
	return &itemStoreRepo{client: client}
}

func (r *itemStoreRepo) conn() (store.Client, error) {
	if r.client == nil {
		return nil, store.ErrNotConnected
	}
	return r.client, nil
}

func (r *itemStoreRepo) Create(ctx context.Context, i *Item) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	id, err := cl.Create(ctx, store.KindCRFItem, ItemCreatePayload(i))
	if err != nil {
		return fmt.Errorf("create crf item: %w", err)
	}
	i.ID = id
	return nil
}

func (r *itemStoreRepo) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return domain.Get(ctx, r.client, itemCodec, id)
}

func (r *itemStoreRepo) Update(ctx context.Context, i *Item) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	if err := cl.Update(ctx, store.KindCRFItem, i.ID, ItemToPayload(i)); err != nil {
		return fmt.Errorf("update crf item %s: %w", i.ID, err)
	}
	return nil
}

func (r *itemStoreRepo) Delete(ctx context.Context, id uuid.UUID) error {
	cl, err := r.conn()
	if err != nil {
		return err
	}
	if err := cl.Delete(ctx, store.KindCRFItem, id); err != nil {
		return fmt.Errorf("delete crf item %s: %w", id, err)
	}
	return nil
}

func (r *itemStoreRepo) ListByCRF(ctx context.Context, crfID uuid.UUID) ([]*Item, error) {
	return domain.List(ctx, r.client, itemCodec, store.Eq(ItemColCRFRef, crfID))
}
