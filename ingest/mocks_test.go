package ingest

import (
	"context"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

type (
	nameDelegate     func() string
	intervalDelegate func() time.Duration
	fetchDelegate    func(context.Context) ([]*types.Fragment, error)
)

type mockFeed struct {
	nameFn     nameDelegate
	intervalFn intervalDelegate
	fetchFn    fetchDelegate
}

func (m *mockFeed) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}

	return ""
}

func (m *mockFeed) Interval() time.Duration {
	if m.intervalFn != nil {
		return m.intervalFn()
	}

	return 0
}

func (m *mockFeed) Fetch(ctx context.Context) ([]*types.Fragment, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}

	return nil, nil
}

// scheduleRow builds a raw schedule row, as a feed would yield it
func scheduleRow(code, origin, destination string, base types.Rate) *types.Fragment {
	return &types.Fragment{
		Key: types.Key{
			Code:        code,
			Origin:      types.Country(origin),
			Destination: types.Country(destination),
		},
		BaseRate:         base,
		PreferentialRate: types.Unknown(),
	}
}
