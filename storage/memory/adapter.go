package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

type key struct {
	code, origin, destination, class string
}

func toKey(k types.Key) key {
	return key{
		code:        k.Code,
		origin:      k.Origin.String(),
		destination: k.Destination.String(),
		class:       k.Class.String(),
	}
}

type Storage struct {
	data map[key]*types.Fragment

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		data: make(map[key]*types.Fragment),
	}
}

func (s *Storage) Get(_ context.Context, k types.Key) (*types.Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.data[toKey(k)]
	if !ok {
		return nil, nil //nolint:nilnil // valid case
	}

	return elem.Clone(), nil
}

func (s *Storage) GetByPrefix(_ context.Context, p types.Prefix) ([]*types.Fragment, error) {
	var (
		origin      = p.Origin.String()
		destination = p.Destination.String()
		class       = p.Class.String()
	)

	s.mu.RLock()

	out := make([]*types.Fragment, 0)

	for k, v := range s.data {
		if k.origin != origin || k.destination != destination || k.class != class {
			continue
		}

		if !strings.HasPrefix(k.code, p.CodePrefix) {
			continue
		}

		out = append(out, v.Clone())
	}

	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Code < out[j].Key.Code
	})

	return out, nil
}

func (s *Storage) Put(_ context.Context, f *types.Fragment, ttl time.Duration) error {
	elem := f.Clone()
	elem.TTL = ttl
	elem.VerifiedAt = elem.VerifiedAt.UTC()

	s.mu.Lock()
	s.data[toKey(f.Key)] = elem // key is unique, later writes supersede
	s.mu.Unlock()

	return nil
}

// Len returns the number of stored fragments
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
