package regressor

import (
	"context"
	"fmt"
	"sync"

	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Loader reads regressor tables from backing storage.
type Loader interface {
	LoadJointRegressor(ctx context.Context, key Key) (*JointRegressor, error)
	LoadMeasurementRegressor(ctx context.Context, gender smpl.Gender) (*MeasurementRegressor, error)
}

// Cache lazily loads regressors through a Loader and keeps them for its
// lifetime. Entries are never invalidated. Failed loads are not cached.
// A Cache is safe for concurrent use; each key is loaded at most once.
type Cache struct {
	loader       Loader
	joints       map[Key]*JointRegressor
	measurements map[smpl.Gender]*MeasurementRegressor
	mu           sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a cache backed by loader.
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:       loader,
		joints:       make(map[Key]*JointRegressor),
		measurements: make(map[smpl.Gender]*MeasurementRegressor),
	}
}

// Get returns the joint regressor for key, loading it on first use.
func (c *Cache) Get(ctx context.Context, key Key) (*JointRegressor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.joints[key]; ok {
		c.hits++
		return r, nil
	}
	c.misses++

	r, err := c.loader.LoadJointRegressor(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading joint regressor %s: %w", key, err)
	}
	c.joints[key] = r
	return r, nil
}

// Measurements returns the measurement regressor for gender, loading it on
// first use.
func (c *Cache) Measurements(ctx context.Context, gender smpl.Gender) (*MeasurementRegressor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.measurements[gender]; ok {
		c.hits++
		return r, nil
	}
	c.misses++

	r, err := c.loader.LoadMeasurementRegressor(ctx, gender)
	if err != nil {
		return nil, fmt.Errorf("loading measurement regressor %s: %w", gender, err)
	}
	c.measurements[gender] = r
	return r, nil
}

// Len returns the number of cached regressors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.joints) + len(c.measurements)
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
