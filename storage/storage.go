package storage

import (
	"context"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

// Storage is an abstraction over persisted rate fragments
type Storage interface {
	// Get fetches the fragment stored under the exact key, or nil if there is none
	Get(context.Context, types.Key) (*types.Fragment, error)

	// GetByPrefix fetches every fragment whose code starts with the given prefix
	GetByPrefix(context.Context, types.Prefix) ([]*types.Fragment, error)

	// Put saves the fragment under its key. A zero TTL means the fragment never expires
	Put(context.Context, *types.Fragment, time.Duration) error
}
