package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"presupuestos/internal/budget"
	"presupuestos/internal/cache"
	"presupuestos/internal/core"
)

const (
	DefaultCacheSize = 128
	DefaultCacheTTL  = 30 * time.Second
)

// Aggregator serves reports from a consistent storage snapshot. Results are
// cached per query until the TTL expires or Invalidate is called.
type Aggregator struct {
	store budget.SnapshotReader
	cache cache.Cache[core.Report]
	group singleflight.Group
	// gen increments on Invalidate so in-flight reads of an older
	// snapshot are neither shared nor cached.
	gen atomic.Uint64
}

// New returns an aggregator caching up to size reports for ttl. A zero ttl
// disables caching.
func New(store budget.SnapshotReader, size int, ttl time.Duration) *Aggregator {
	a := &Aggregator{store: store}
	if ttl > 0 {
		a.cache = cache.NewLRUCache[core.Report](size, ttl)
	}
	return a
}

// Cache exposes the underlying cache so a cache.Manager can sweep it.
func (a *Aggregator) Cache() cache.Cache[core.Report] { return a.cache }

func cacheKey(q core.ReportQuery) string {
	return fmt.Sprintf("%d|%s|%s|%d|%t|%d", q.Year, q.Store, q.View, q.Month, q.Consolidate, q.Limit)
}

// Report runs q. Concurrent identical queries share one snapshot read.
func (a *Aggregator) Report(ctx context.Context, q core.ReportQuery) (core.Report, error) {
	if q.View != core.Annual && !q.Month.Valid() {
		return core.Report{}, core.Invalid(core.ErrInvalidMonth)
	}
	key := cacheKey(q)
	if a.cache != nil {
		if rep, ok := a.cache.Get(key); ok {
			return rep, nil
		}
	}

	gen := a.gen.Load()
	v, err, shared := a.group.Do(fmt.Sprintf("%d#%s", gen, key), func() (any, error) {
		snap, err := a.store.Snapshot(ctx, q.Year)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		rep := Build(snap, q)
		if a.cache != nil && a.gen.Load() == gen {
			a.cache.Set(key, rep)
			// An Invalidate that raced the Set may have purged before it.
			if a.gen.Load() != gen {
				a.cache.Delete(key)
			}
		}
		return rep, nil
	})
	if err != nil {
		return core.Report{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Report computation shared", "key", key)
	}
	return v.(core.Report), nil
}

// Invalidate drops every cached report. Call after a posting or an import.
func (a *Aggregator) Invalidate() {
	a.gen.Add(1)
	if a.cache != nil {
		a.cache.Purge()
	}
}
