// Package redis provides a shared fragment store backed by Redis.
// Overlay fragments carry a native expiry (ttl plus a retention window),
// so expired overlays remain readable as stale fallbacks for a while
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sig-0/dutyrates/storage/types"
)

const (
	defaultNamespace = "dutyrates"
	defaultRetention = 7 * 24 * time.Hour
	scanBatch        = 256
)

type Storage struct {
	client    redis.UniversalClient
	namespace string
	retention time.Duration
}

type Option func(*Storage)

// WithNamespace sets the key namespace
func WithNamespace(namespace string) Option {
	return func(s *Storage) {
		s.namespace = namespace
	}
}

// WithRetention sets how long an expired overlay is kept past its TTL
func WithRetention(retention time.Duration) Option {
	return func(s *Storage) {
		s.retention = retention
	}
}

func NewStorage(client redis.UniversalClient, opts ...Option) *Storage {
	s := &Storage{
		client:    client,
		namespace: defaultNamespace,
		retention: defaultRetention,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Storage) Get(ctx context.Context, key types.Key) (*types.Fragment, error) {
	raw, err := s.client.Get(ctx, s.fragmentKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil //nolint:nilnil // valid case
		}

		return nil, fmt.Errorf("unable to fetch fragment: %w", err)
	}

	var fragment types.Fragment
	if err := json.Unmarshal(raw, &fragment); err != nil {
		return nil, fmt.Errorf("unable to decode fragment: %w", err)
	}

	return &fragment, nil
}

func (s *Storage) GetByPrefix(ctx context.Context, prefix types.Prefix) ([]*types.Fragment, error) {
	var (
		pattern = s.prefixPattern(prefix)
		keys    = make([]string, 0)
		cursor  uint64
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("unable to scan fragments: %w", err)
		}

		keys = append(keys, batch...)

		if next == 0 {
			break
		}

		cursor = next
	}

	if len(keys) == 0 {
		return []*types.Fragment{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("unable to fetch fragments: %w", err)
	}

	out := make([]*types.Fragment, 0, len(values))

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}

		var fragment types.Fragment
		if err := json.Unmarshal([]byte(raw), &fragment); err != nil {
			return nil, fmt.Errorf("unable to decode fragment: %w", err)
		}

		out = append(out, &fragment)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Code < out[j].Key.Code
	})

	return out, nil
}

func (s *Storage) Put(ctx context.Context, f *types.Fragment, ttl time.Duration) error {
	stored := f.Clone()
	stored.TTL = ttl
	stored.VerifiedAt = f.VerifiedAt.UTC()

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("unable to encode fragment: %w", err)
	}

	if err := s.client.Set(ctx, s.fragmentKey(f.Key), raw, s.expiration(ttl)).Err(); err != nil {
		return fmt.Errorf("unable to save fragment: %w", err)
	}

	return nil
}

// expiration returns the native key expiry for the given fragment TTL (0 means none)
func (s *Storage) expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}

	return ttl + s.retention
}

func (s *Storage) fragmentKey(key types.Key) string {
	return strings.Join([]string{
		s.namespace,
		key.Class.String(),
		key.Origin.String(),
		key.Destination.String(),
		key.Code,
	}, ":")
}

func (s *Storage) prefixPattern(prefix types.Prefix) string {
	return strings.Join([]string{
		s.namespace,
		prefix.Class.String(),
		prefix.Origin.String(),
		prefix.Destination.String(),
		escapeGlob(prefix.CodePrefix) + "*",
	}, ":")
}

// escapeGlob escapes the glob metacharacters understood by SCAN MATCH
func escapeGlob(s string) string {
	var b strings.Builder

	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}
