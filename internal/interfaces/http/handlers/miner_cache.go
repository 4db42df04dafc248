package handlers

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/cfpminer/internal/domain/fragment"
)

// DefaultMinerCacheSize bounds the number of restored miners kept in memory.
const DefaultMinerCacheSize = 16

// MinerLoader restores the miner stored under a snapshot ID.
type MinerLoader func(ctx context.Context, id string) (*fragment.Miner, error)

// MinerCache keeps recently restored miners so that consecutive queries on
// one snapshot do not re-read and re-index it.  Concurrent misses for the same
// ID share a single load.
type MinerCache struct {
	load   MinerLoader
	miners *lru.Cache[string, *fragment.Miner]
	group  singleflight.Group
}

// NewMinerCache creates a cache holding at most size miners.
func NewMinerCache(load MinerLoader, size int) (*MinerCache, error) {
	if size <= 0 {
		size = DefaultMinerCacheSize
	}
	miners, err := lru.New[string, *fragment.Miner](size)
	if err != nil {
		return nil, err
	}
	return &MinerCache{load: load, miners: miners}, nil
}

// Get returns the cached miner for id, loading it on a miss.
func (c *MinerCache) Get(ctx context.Context, id string) (*fragment.Miner, error) {
	if m, ok := c.miners.Get(id); ok {
		return m, nil
	}
	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		if m, ok := c.miners.Get(id); ok {
			return m, nil
		}
		m, err := c.load(ctx, id)
		if err != nil {
			return nil, err
		}
		c.miners.Add(id, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fragment.Miner), nil
}

// Evict drops id from the cache.
func (c *MinerCache) Evict(id string) {
	c.miners.Remove(id)
}

// Len returns the number of cached miners.
func (c *MinerCache) Len() int {
	return c.miners.Len()
}
