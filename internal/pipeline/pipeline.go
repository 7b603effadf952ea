// Package pipeline orchestrates one extraction request: normalize the
// cache key, consult the result cache, run the producer on a miss and
// store what it computed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/croplens/indexcache/internal/cache/keys"
	"github.com/croplens/indexcache/internal/cache/resultcache"
	"github.com/croplens/indexcache/internal/core/model"
	"github.com/croplens/indexcache/internal/core/observability"
	"github.com/croplens/indexcache/internal/geo"
)

// Producer is the expensive computation the cache exists to avoid.
// Its failures are the only ones that propagate to the caller.
type Producer interface {
	Extract(ctx context.Context, req model.IndexRequest) (model.IndexResult, time.Time, error)
}

// RegionIndexer registers a result's footprint for region-scoped
// invalidation. Optional; failures are logged, never surfaced.
type RegionIndexer interface {
	Add(ctx context.Context, p model.Polygon, hash string) error
}

type Response struct {
	Result    model.IndexResult `json:"result"`
	ImageDate string            `json:"imageDate"`
	Hash      string            `json:"hash"`
	Cached    bool              `json:"cached"`
	AreaSqM   float64           `json:"areaSqm"`
	AreaHa    string            `json:"areaHa"`
	AreaSqKm  string            `json:"areaSqKm"`
}

type Engine struct {
	logger    *slog.Logger
	cache     *resultcache.Cache
	regions   RegionIndexer
	producer  Producer
	opTimeout time.Duration
}

func New(logger *slog.Logger, cache *resultcache.Cache, regions RegionIndexer, producer Producer, opTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	return &Engine{
		logger:    logger,
		cache:     cache,
		regions:   regions,
		producer:  producer,
		opTimeout: opTimeout,
	}
}

// Run serves one request. Concurrent identical misses each run the
// producer and each issue a Put; the later write wins, which only costs
// duplicate work, never correctness.
func (e *Engine) Run(ctx context.Context, req model.IndexRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, fmt.Errorf("invalid request: %w", err)
	}

	key := keys.Request{
		Polygon:   req.Polygon,
		Index:     req.Index,
		MaxCloud:  req.MaxCloud,
		ImageDate: req.ImageDate,
	}
	hash := keys.Hash(key)

	// area is computed from the caller's vertex order, never from the
	// sorted copy inside the hashing path
	area := geo.Area(req.Polygon)

	getCtx, cancel := context.WithTimeout(ctx, e.opTimeout)
	entry, ok := e.cache.Get(getCtx, hash)
	cancel()
	if ok {
		e.logger.Debug("cache hit", "hash", hash, "index", req.Index)
		return e.response(entry.Result(), entry.ImageDate, hash, true, area), nil
	}

	start := time.Now()
	result, resolved, err := e.producer.Extract(ctx, req)
	observability.ObserveProducerLatency(string(req.Index), time.Since(start).Seconds())
	if err != nil {
		return Response{}, fmt.Errorf("extract %s: %w", req.Index, err)
	}

	// the write outlives an abandoned caller; the computed result is
	// valid regardless of who is still waiting for it
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opTimeout)
	defer cancel()
	e.cache.Put(putCtx, hash, key, result, resolved)

	if e.regions != nil {
		if err := e.regions.Add(putCtx, req.Polygon, hash); err != nil {
			e.logger.Warn("region index update failed", "hash", hash, "err", err)
		}
	}

	return e.response(result, resolved.UTC().Format("2006-01-02"), hash, false, area), nil
}

// Stats exposes the cache's best-effort aggregates.
func (e *Engine) Stats(ctx context.Context) (resultcache.Stats, error) {
	return e.cache.Stats(ctx)
}

func (e *Engine) response(res model.IndexResult, imageDate, hash string, cached bool, areaSqM float64) Response {
	return Response{
		Result:    res,
		ImageDate: imageDate,
		Hash:      hash,
		Cached:    cached,
		AreaSqM:   areaSqM,
		AreaHa:    geo.FormatHectares(areaSqM),
		AreaSqKm:  geo.FormatSquareKilometers(areaSqM),
	}
}
