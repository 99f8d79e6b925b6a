// Package memory provides an in-memory rewards.Store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/rewards-engine/rewards"
)

// =============================================================================
// MEMORY STORE - Sharded in-memory implementation (default backend, tests)
// =============================================================================

const shardCount = 32

// Store keeps customers in shards so that writers for unrelated customers
// don't contend on one lock. Records are copied on the way in and out.
type Store struct {
	shards [shardCount]shard
}

type shard struct {
	mu        sync.RWMutex
	customers map[rewards.CustomerID]rewards.Customer
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].customers = make(map[rewards.CustomerID]rewards.Customer)
	}
	return s
}

func (s *Store) shard(id rewards.CustomerID) *shard {
	i := int64(id) % shardCount
	if i < 0 {
		i = -i
	}
	return &s.shards[i]
}

func (s *Store) Exists(_ context.Context, id rewards.CustomerID) (bool, error) {
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.customers[id]
	return ok, nil
}

// Save upserts the customer.
func (s *Store) Save(_ context.Context, customer rewards.Customer) (*rewards.Customer, error) {
	sh := s.shard(customer.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.customers[customer.ID] = customer.Clone()
	out := customer.Clone()
	return &out, nil
}

func (s *Store) Find(_ context.Context, id rewards.CustomerID) (*rewards.Customer, error) {
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	c, ok := sh.customers[id]
	if !ok {
		return nil, nil
	}
	out := c.Clone()
	return &out, nil
}

func (s *Store) List(_ context.Context) ([]rewards.Customer, error) {
	var out []rewards.Customer
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, c := range sh.customers {
			out = append(out, c.Clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ rewards.Store = (*Store)(nil)
