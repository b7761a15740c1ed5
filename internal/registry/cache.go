package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/easycrawl/catalog-service/internal/metrics"
)

const (
	defaultLoadTimeout = 30 * time.Second
	refreshKey         = "refresh"
)

// Cache serves the current registry snapshot. Refresh builds a new snapshot
// off to the side and swaps it in with a single atomic store.
type Cache struct {
	store   Store
	logger  zerolog.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Int64
	sf      singleflight.Group

	// loads numbers every store read in start order; applied is the newest swapped in
	loads   atomic.Int64
	mu      sync.Mutex
	applied int64

	// LoadTimeout bounds a single reload. Defaults to 30s.
	LoadTimeout time.Duration
}

// NewCache creates a cache serving an empty snapshot until the first Refresh.
func NewCache(store Store, logger zerolog.Logger) *Cache {
	c := &Cache{
		store:       store,
		logger:      logger.With().Str("component", "registry_cache").Logger(),
		LoadTimeout: defaultLoadTimeout,
	}
	c.current.Store(Empty())
	return c
}

// Snapshot returns the active snapshot. Callers should hold on to it for the
// duration of one unit of work so that all extraction sees the same registry.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Refresh reloads enabled entries and swaps in a new snapshot. Concurrent
// callers share one load. On failure the previous snapshot stays active.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.refresh(ctx, false)
}

// Reload is Refresh for callers that just wrote to the store. It never joins
// a load already in flight, since that load may have read before the write.
func (c *Cache) Reload(ctx context.Context) (*Snapshot, error) {
	return c.refresh(ctx, true)
}

func (c *Cache) refresh(ctx context.Context, fresh bool) (*Snapshot, error) {
	if fresh {
		c.sf.Forget(refreshKey)
	}
	v, err, shared := c.sf.Do(refreshKey, func() (interface{}, error) {
		return c.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Msg("Registry refresh shared with concurrent caller")
	}
	return v.(*Snapshot), nil
}

func (c *Cache) load(ctx context.Context) (*Snapshot, error) {
	seq := c.loads.Add(1)

	// a dedicated load context so one caller's cancellation does not fail the others
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.LoadTimeout)
	defer cancel()

	start := time.Now()
	entries, err := c.store.LoadEnabled(loadCtx)
	if err != nil {
		metrics.RecordRegistryRefresh(err, nil)
		return nil, fmt.Errorf("load registry entries: %w", err)
	}

	snap := NewSnapshot(entries, c.logger)

	c.mu.Lock()
	if seq < c.applied {
		// a load started after this one has already been swapped in
		current := c.current.Load()
		c.mu.Unlock()
		c.logger.Debug().Int64("version", current.version).Msg("Discarded superseded registry load")
		return current, nil
	}
	c.applied = seq
	snap.version = c.version.Add(1)
	c.current.Store(snap)
	c.mu.Unlock()

	counts := snap.Counts()
	metrics.RecordRegistryRefresh(nil, counts)
	c.logger.Info().
		Int64("version", snap.version).
		Int("brands", counts[string(TypeBrand)]).
		Int("not_brands", counts[string(TypeNotBrand)]).
		Int("common_words", counts[string(TypeCommonWord)]).
		Int("colors", counts[string(TypeColor)]).
		Int("storage_patterns", counts[string(TypeStoragePattern)]).
		Int("dropped_patterns", len(snap.Dropped())).
		Dur("duration", time.Since(start)).
		Msg("Registry refreshed")
	return snap, nil
}
