package mock

import (
	"context"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

type (
	GetDelegate         func(context.Context, types.Key) (*types.Fragment, error)
	GetByPrefixDelegate func(context.Context, types.Prefix) ([]*types.Fragment, error)
	PutDelegate         func(context.Context, *types.Fragment, time.Duration) error
)

type Storage struct {
	GetFn         GetDelegate
	GetByPrefixFn GetByPrefixDelegate
	PutFn         PutDelegate
}

func (m *Storage) Get(ctx context.Context, key types.Key) (*types.Fragment, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}

	return nil, nil //nolint:nilnil // valid case
}

func (m *Storage) GetByPrefix(ctx context.Context, prefix types.Prefix) ([]*types.Fragment, error) {
	if m.GetByPrefixFn != nil {
		return m.GetByPrefixFn(ctx, prefix)
	}

	return nil, nil
}

func (m *Storage) Put(ctx context.Context, fragment *types.Fragment, ttl time.Duration) error {
	if m.PutFn != nil {
		return m.PutFn(ctx, fragment, ttl)
	}

	return nil
}
