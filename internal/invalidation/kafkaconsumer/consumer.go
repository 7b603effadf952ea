// Package kafkaconsumer applies imagery reprocessing events to the
// result cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/croplens/indexcache/internal/core/model"
	"github.com/croplens/indexcache/internal/core/observability"
	"github.com/croplens/indexcache/internal/invalidation"
)

// ResultDeleter removes cached results by hash.
type ResultDeleter interface {
	Delete(ctx context.Context, hashes ...string) error
}

// RegionIndex resolves which hashes a region touches.
type RegionIndex interface {
	CellsForPolygon(p model.Polygon) ([]string, error)
	Hashes(ctx context.Context, cells []string) ([]string, error)
	Drop(ctx context.Context, cells []string) error
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	cache   ResultDeleter
	regions RegionIndex

	dedupe *versionDedupe

	mu         sync.Mutex
	ready      bool
	partitions []int32
}

func New(cfg Config, logger *slog.Logger, cache ResultDeleter, regions RegionIndex) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		cache:   cache,
		regions: regions,
		dedupe:  newVersionDedupe(cfg.DedupeSize),
	}
}

// Readiness reports whether the consumer holds partition claims.
func (c *Consumer) Readiness() (bool, []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready, append([]int32(nil), c.partitions...)
}

// Start consumes reprocessing events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil || c.regions == nil {
		return errors.New("kafkaconsumer: missing dependencies (cache/regions)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{
		process: c.ProcessOne,
		onSetup: func(parts []int32) {
			c.mu.Lock()
			c.ready = true
			c.partitions = parts
			c.mu.Unlock()
		},
	}

	c.logger.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.mu.Lock()
				c.ready = false
				c.mu.Unlock()
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single reprocessing event. Malformed or stale
// events are counted and skipped; store failures are returned so the
// message is retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("decode_error")
		c.logger.Warn("invalidation event decode failed",
			"topic", msg.Topic, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation("invalid")
		c.logger.Warn("invalidation event rejected", "err", err)
		return nil
	}
	if !c.dedupe.shouldApply(ev.RegionKey(), ev.Seq) {
		observability.IncInvalidation("duplicate")
		return nil
	}

	cells, err := c.regions.CellsForPolygon(ev.Footprint())
	if err != nil {
		observability.IncInvalidation("invalid")
		c.logger.Warn("invalidation footprint unusable", "err", err)
		return nil
	}

	hashes, err := c.regions.Hashes(ctx, cells)
	if err != nil {
		observability.IncInvalidation("error")
		return fmt.Errorf("resolve hashes for %d cells: %w", len(cells), err)
	}

	if len(hashes) > 0 {
		if err := c.cache.Delete(ctx, hashes...); err != nil {
			observability.IncInvalidation("error")
			return fmt.Errorf("delete %d cached results: %w", len(hashes), err)
		}
	}
	if err := c.regions.Drop(ctx, cells); err != nil {
		observability.IncInvalidation("error")
		return fmt.Errorf("drop %d index cells: %w", len(cells), err)
	}

	observability.IncInvalidation("applied")
	c.logger.Info("invalidation applied",
		"op", ev.Op, "region", ev.RegionKey(), "cells", len(cells), "results", len(hashes))
	return nil
}

// versionDedupe drops events whose sequence is not newer than the last
// one seen for the region.
type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{lru: c}
}

func (d *versionDedupe) shouldApply(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok {
		if v <= last {
			return false
		}
	}
	d.lru.Add(key, v)
	return true
}
