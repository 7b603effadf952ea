// Package resultcache stores index extraction results keyed by their
// normalized request hash. The cache is strictly an optimization: every
// store failure is absorbed here and surfaces as a miss or a no-op,
// never as an error to the caller.
package resultcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/croplens/indexcache/internal/cache/keys"
	"github.com/croplens/indexcache/internal/core/model"
	"github.com/croplens/indexcache/internal/core/observability"
)

// DefaultTTL is the logical lifetime of an entry. Older entries are
// reported as misses even while the physical record persists.
const DefaultTTL = 30 * 24 * time.Hour

const keyPrefix = "res:"

// Store is the document-store surface the cache needs. Set is always a
// full overwrite of the document at key.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string, limit int) ([]string, error)
}

// Entry is the persisted record. Coordinates and CloudCoverage are
// debug copies for inspection and cleanup, not part of the identity.
type Entry struct {
	Hash          string          `json:"hash"`
	TileURL       string          `json:"tileUrl"`
	MinValue      float64         `json:"minValue"`
	MaxValue      float64         `json:"maxValue"`
	MeanValue     float64         `json:"meanValue"`
	Date          string          `json:"date"`
	Index         model.IndexType `json:"indexType"`
	ImageDate     string          `json:"imageDate"`
	CachedAt      time.Time       `json:"cachedAt"`
	Coordinates   model.Polygon   `json:"coordinates"`
	CloudCoverage float64         `json:"cloudCoverage"`
}

func (e Entry) Result() model.IndexResult {
	return model.IndexResult{
		TileURL:   e.TileURL,
		MinValue:  e.MinValue,
		MaxValue:  e.MaxValue,
		MeanValue: e.MeanValue,
		Date:      e.Date,
		Index:     e.Index,
	}
}

type Stats struct {
	TotalEntries int        `json:"totalEntries"`
	OldestEntry  *time.Time `json:"oldestEntry,omitempty"`
	NewestEntry  *time.Time `json:"newestEntry,omitempty"`
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithL1Size(n int) Option {
	return func(c *Cache) { c.l1Size = n }
}

type Cache struct {
	store  Store
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
	l1Size int
	l1     *lru.Cache[string, Entry]
}

func New(store Store, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:  store,
		logger: logger,
		ttl:    DefaultTTL,
		now:    time.Now,
		l1Size: 512,
	}
	for _, f := range opts {
		f(c)
	}
	if c.l1Size > 0 {
		c.l1, _ = lru.New[string, Entry](c.l1Size)
	}
	return c
}

// Get looks up a result by hash. It fails open: store errors, decode
// errors and expired entries all report a miss so the caller simply
// recomputes.
func (c *Cache) Get(ctx context.Context, hash string) (Entry, bool) {
	if c.l1 != nil {
		if e, ok := c.l1.Get(hash); ok {
			if c.expired(e) {
				c.l1.Remove(hash)
			} else {
				observability.IncCacheHit()
				return e, true
			}
		}
	}

	raw, found, err := c.store.Get(ctx, keyPrefix+hash)
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", "hash", hash, "err", err)
		observability.IncCacheError("read")
		return Entry{}, false
	}
	if !found {
		observability.IncCacheMiss()
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", "hash", hash, "err", err)
		observability.IncCacheError("read")
		return Entry{}, false
	}

	if c.expired(e) {
		observability.IncCacheStale()
		return Entry{}, false
	}

	if c.l1 != nil {
		c.l1.Add(hash, e)
	}
	observability.IncCacheHit()
	return e, true
}

// Put stores a freshly computed result, fully replacing any record at
// the same hash. Write failures are logged and swallowed: the caller
// already has its result in hand, a lost write only costs a future
// recomputation.
func (c *Cache) Put(ctx context.Context, hash string, key keys.Request, result model.IndexResult, resolvedImageDate time.Time) {
	e := Entry{
		Hash:          hash,
		TileURL:       result.TileURL,
		MinValue:      result.MinValue,
		MaxValue:      result.MaxValue,
		MeanValue:     result.MeanValue,
		Date:          result.Date,
		Index:         result.Index,
		ImageDate:     resolvedImageDate.UTC().Format("2006-01-02"),
		CachedAt:      c.now().UTC(),
		Coordinates:   key.Polygon,
		CloudCoverage: key.MaxCloud,
	}

	if c.l1 != nil {
		c.l1.Add(hash, e)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("cache entry encode failed", "hash", hash, "err", err)
		observability.IncCacheError("write")
		return
	}

	// Physical retention runs past the logical TTL; expiry is decided by
	// the age check in Get, removal by the invalidation/cleanup path.
	if err := c.store.Set(ctx, keyPrefix+hash, raw, 2*c.ttl); err != nil {
		c.logger.Warn("cache write failed", "hash", hash, "err", err)
		observability.IncCacheError("write")
	}
}

// Delete removes entries, used by the invalidation consumer. Unlike Get
// and Put this surfaces errors: the consumer decides whether to retry.
func (c *Cache) Delete(ctx context.Context, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	ks := make([]string, len(hashes))
	for i, h := range hashes {
		ks[i] = keyPrefix + h
		if c.l1 != nil {
			c.l1.Remove(h)
		}
	}
	return c.store.Del(ctx, ks...)
}

// Stats reports best-effort aggregates. The scan is bounded, so counts
// may undershoot on very large keyspaces.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	const scanLimit = 10_000
	const sampleLimit = 256

	ks, err := c.store.Scan(ctx, keyPrefix+"*", scanLimit)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{TotalEntries: len(ks)}
	for i, k := range ks {
		if i >= sampleLimit {
			break
		}
		raw, found, err := c.store.Get(ctx, k)
		if err != nil || !found {
			continue
		}
		var e Entry
		if json.Unmarshal(raw, &e) != nil || e.CachedAt.IsZero() {
			continue
		}
		at := e.CachedAt
		if st.OldestEntry == nil || at.Before(*st.OldestEntry) {
			st.OldestEntry = &at
		}
		if st.NewestEntry == nil || at.After(*st.NewestEntry) {
			st.NewestEntry = &at
		}
	}
	return st, nil
}

// expired reports whether the entry's age exceeds the TTL. Entries
// without a CachedAt are never expired here; cleanup owns them.
func (c *Cache) expired(e Entry) bool {
	if e.CachedAt.IsZero() {
		return false
	}
	return c.now().Sub(e.CachedAt) > c.ttl
}
