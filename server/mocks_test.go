package server

import (
	"context"

	"github.com/sig-0/dutyrates/engine"
	"github.com/sig-0/dutyrates/storage/types"
	"github.com/sig-0/dutyrates/volatility"
)

type (
	resolveDelegate      func(context.Context, types.RateQuery) (*types.RateRecord, error)
	resolveBatchDelegate func(context.Context, []types.RateQuery) []engine.BatchResult
	classifyDelegate     func(types.RateQuery) (volatility.Tier, error)
)

type mockEngine struct {
	resolveFn      resolveDelegate
	resolveBatchFn resolveBatchDelegate
	reclassifyFn   resolveDelegate
	classifyFn     classifyDelegate
}

func (m *mockEngine) Resolve(ctx context.Context, q types.RateQuery) (*types.RateRecord, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, q)
	}

	return nil, nil
}

func (m *mockEngine) ResolveBatch(ctx context.Context, queries []types.RateQuery) []engine.BatchResult {
	if m.resolveBatchFn != nil {
		return m.resolveBatchFn(ctx, queries)
	}

	return nil
}

func (m *mockEngine) Reclassify(ctx context.Context, q types.RateQuery) (*types.RateRecord, error) {
	if m.reclassifyFn != nil {
		return m.reclassifyFn(ctx, q)
	}

	return nil, nil
}

func (m *mockEngine) Classify(q types.RateQuery) (volatility.Tier, error) {
	if m.classifyFn != nil {
		return m.classifyFn(q)
	}

	return volatility.StableTier(), nil
}
