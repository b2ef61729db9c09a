// Package cache implements the two-speed rate cache on top of a fragment store.
// Stable fragments never expire and are written once; overlays carry a TTL,
// and staleness is recomputed from the clock on every read
package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sig-0/dutyrates/storage"
	"github.com/sig-0/dutyrates/storage/types"
)

const defaultWriteTimeout = 10 * time.Second

// Entry is a fragment read from the cache, with its freshly computed staleness
type Entry struct {
	Fragment *types.Fragment
	Stale    bool
}

// Cache wraps a fragment store with freshness and best-effort write semantics
type Cache struct {
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time

	writeTimeout time.Duration
}

// New creates a new cache over the given store
func New(storage storage.Storage, opts ...Option) *Cache {
	c := &Cache{
		storage:      storage,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Now returns the cache clock's current time, in UTC
func (c *Cache) Now() time.Time {
	return c.now().UTC()
}

// Get fetches a single entry. Read failures are logged and reported as a miss
func (c *Cache) Get(ctx context.Context, key types.Key) (*Entry, bool) {
	fragment, err := c.storage.Get(ctx, key)
	if err != nil {
		c.logger.Warn(
			"cache read failed, treating as miss",
			"code", key.Code,
			"origin", key.Origin,
			"destination", key.Destination,
			"class", key.Class,
			"err", fmt.Errorf("%w: %w", types.ErrPersistence, err),
		)

		return nil, false
	}

	if fragment == nil {
		return nil, false
	}

	return c.entry(fragment), true
}

// GetByPrefix fetches every entry under the prefix, in ascending code order.
// Read failures are logged and reported as no entries
func (c *Cache) GetByPrefix(ctx context.Context, prefix types.Prefix) []*Entry {
	fragments, err := c.storage.GetByPrefix(ctx, prefix)
	if err != nil {
		c.logger.Warn(
			"cache prefix read failed, treating as miss",
			"prefix", prefix.CodePrefix,
			"origin", prefix.Origin,
			"destination", prefix.Destination,
			"class", prefix.Class,
			"err", fmt.Errorf("%w: %w", types.ErrPersistence, err),
		)

		return nil
	}

	entries := make([]*Entry, 0, len(fragments))

	for _, fragment := range fragments {
		if fragment == nil {
			continue
		}

		entries = append(entries, c.entry(fragment))
	}

	return entries
}

// PutStable writes a stable fragment if no entry exists for its key yet.
// Existing stable entries are only replaced through Reclassify.
// It reports whether the fragment was written
func (c *Cache) PutStable(ctx context.Context, f *types.Fragment) bool {
	key := stableKey(f)

	existing, err := c.storage.Get(ctx, key)
	if err != nil {
		c.logger.Warn(
			"unable to check for existing stable entry, skipping write",
			"code", key.Code,
			"err", fmt.Errorf("%w: %w", types.ErrPersistence, err),
		)

		return false
	}

	if existing != nil {
		c.logger.Debug(
			"stable entry already present, keeping it",
			"code", key.Code,
			"origin", key.Origin,
			"destination", key.Destination,
		)

		return false
	}

	return c.write(ctx, withKey(f, key), 0)
}

// Reclassify overwrites the stable entry for the fragment's key
func (c *Cache) Reclassify(ctx context.Context, f *types.Fragment) bool {
	return c.write(ctx, withKey(f, stableKey(f)), 0)
}

// PutOverlay writes (or refreshes in place) an overlay fragment with the given TTL
func (c *Cache) PutOverlay(ctx context.Context, f *types.Fragment, ttl time.Duration) bool {
	key := f.Key
	key.Class = types.FieldClassOverlay

	return c.write(ctx, withKey(f, key), ttl)
}

// write persists the fragment with a bounded timeout. Failures are logged and swallowed
func (c *Cache) write(ctx context.Context, f *types.Fragment, ttl time.Duration) bool {
	writeCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancelFn()

	if err := c.storage.Put(writeCtx, f, ttl); err != nil {
		c.logger.Error(
			"unable to write cache entry",
			"code", f.Key.Code,
			"origin", f.Key.Origin,
			"destination", f.Key.Destination,
			"class", f.Key.Class,
			"err", fmt.Errorf("%w: %w", types.ErrPersistence, err),
		)

		return false
	}

	c.logger.Debug(
		"wrote cache entry",
		"code", f.Key.Code,
		"origin", f.Key.Origin,
		"destination", f.Key.Destination,
		"class", f.Key.Class,
		"ttl", ttl,
	)

	return true
}

// entry recomputes staleness for a fragment read from the store
func (c *Cache) entry(f *types.Fragment) *Entry {
	stale := false

	if expiresAt := f.ExpiresAt(); expiresAt != nil {
		stale = c.Now().After(*expiresAt)
	}

	return &Entry{
		Fragment: f,
		Stale:    stale,
	}
}

func stableKey(f *types.Fragment) types.Key {
	key := f.Key
	key.Class = types.FieldClassStable

	return key
}

func withKey(f *types.Fragment, key types.Key) *types.Fragment {
	cp := f.Clone()
	cp.Key = key

	return cp
}
