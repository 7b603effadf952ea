// Package regionindex maintains a reverse index from H3 cells to cached
// result hashes, so imagery reprocessing events can invalidate every
// entry whose footprint touches a region.
package regionindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/croplens/indexcache/internal/core/model"
)

// DefaultResolution trades index fan-out against invalidation
// precision; res 7 cells are ~5 km across, comfortably larger than a
// typical field polygon.
const DefaultResolution = 7

const keyPrefix = "ridx:"

// retention matches the cache's physical retention so index entries do
// not outlive the documents they point at by much.
const retention = 60 * 24 * time.Hour

type Store interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type Index struct {
	store Store
	res   int
}

func New(store Store, res int) *Index {
	if res < 0 || res > 15 {
		res = DefaultResolution
	}
	return &Index{store: store, res: res}
}

// CellsForPolygon returns the covering cells of a footprint at the index
// resolution. Small polygons that fill no cell fall back to their
// vertex cells.
func (ix *Index) CellsForPolygon(p model.Polygon) ([]string, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(p))
	}

	loop := make(h3.GeoLoop, 0, len(p))
	for _, pt := range p {
		loop = append(loop, h3.LatLng{Lat: pt.Lat, Lng: pt.Lng})
	}

	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, ix.res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	seen := make(map[string]struct{}, len(cells)+len(p))
	out := make([]string, 0, len(cells)+len(p))
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, c := range cells {
		add(c.String())
	}
	// vertex cells cover the boundary and the empty-polyfill case
	for _, pt := range loop {
		c, err := h3.LatLngToCell(pt, ix.res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for vertex: %w", err)
		}
		add(c.String())
	}
	sort.Strings(out)
	return out, nil
}

// Add registers hash under every covering cell of the footprint.
func (ix *Index) Add(ctx context.Context, p model.Polygon, hash string) error {
	cells, err := ix.CellsForPolygon(p)
	if err != nil {
		return err
	}
	for _, cell := range cells {
		if err := ix.addToCell(ctx, cell, hash); err != nil {
			return err
		}
	}
	return nil
}

// Hashes returns the union of hashes registered under the given cells.
func (ix *Index) Hashes(ctx context.Context, cells []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, cell := range cells {
		ids, err := ix.idsForCell(ctx, cell)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Drop removes the per-cell lists, typically right after their hashes
// were invalidated.
func (ix *Index) Drop(ctx context.Context, cells []string) error {
	if len(cells) == 0 {
		return nil
	}
	ks := make([]string, len(cells))
	for i, c := range cells {
		ks[i] = keyPrefix + c
	}
	if err := ix.store.Del(ctx, ks...); err != nil {
		return fmt.Errorf("regionindex del %d cells: %w", len(ks), err)
	}
	return nil
}

func (ix *Index) idsForCell(ctx context.Context, cell string) ([]string, error) {
	raw, found, err := ix.store.Get(ctx, keyPrefix+cell)
	if err != nil {
		return nil, fmt.Errorf("regionindex get %q: %w", cell, err)
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("regionindex decode %q: %w", cell, err)
	}
	return ids, nil
}

func (ix *Index) addToCell(ctx context.Context, cell, hash string) error {
	ids, err := ix.idsForCell(ctx, cell)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == hash {
			return nil
		}
	}
	ids = append(ids, hash)

	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("regionindex encode %q: %w", cell, err)
	}
	if err := ix.store.Set(ctx, keyPrefix+cell, payload, retention); err != nil {
		return fmt.Errorf("regionindex set %q: %w", cell, err)
	}
	return nil
}
