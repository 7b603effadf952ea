// Package invalidation defines imagery reprocessing events. When the
// provider reprocesses a tile, cached extractions over that region are
// no longer trustworthy and must be removed ahead of their TTL.
package invalidation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"` // "reprocess" or "purge"
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
	// Seq is monotonically increasing per region; stale replays are dropped.
	Seq         uint64        `json:"seq"`
	BBox        *BBox         `json:"bbox,omitempty"`
	Coordinates model.Polygon `json:"coordinates,omitempty"`
}

type BBox struct {
	LatMin float64 `json:"latMin"`
	LngMin float64 `json:"lngMin"`
	LatMax float64 `json:"latMax"`
	LngMax float64 `json:"lngMax"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "reprocess", "purge":
	default:
		return fmt.Errorf("op must be reprocess|purge")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	hasBBox := e.BBox != nil
	hasPoly := len(e.Coordinates) > 0
	if hasBBox == hasPoly {
		return fmt.Errorf("exactly one of bbox or coordinates is required")
	}
	if hasBBox {
		bb := *e.BBox
		if !(bb.LatMin >= -90 && bb.LatMax <= 90 && bb.LatMax > bb.LatMin) {
			return fmt.Errorf("bbox latitude range invalid")
		}
		if !(bb.LngMin >= -180 && bb.LngMax <= 180 && bb.LngMax > bb.LngMin) {
			return fmt.Errorf("bbox longitude range invalid")
		}
		return nil
	}
	if len(e.Coordinates) < 3 {
		return fmt.Errorf("coordinates need at least 3 vertices")
	}
	return e.Coordinates.Validate()
}

// Footprint returns the affected region as a polygon, turning a bbox
// into its corner ring.
func (e Event) Footprint() model.Polygon {
	if e.BBox != nil {
		bb := *e.BBox
		return model.Polygon{
			{Lat: bb.LatMin, Lng: bb.LngMin},
			{Lat: bb.LatMin, Lng: bb.LngMax},
			{Lat: bb.LatMax, Lng: bb.LngMax},
			{Lat: bb.LatMax, Lng: bb.LngMin},
		}
	}
	return e.Coordinates
}

// RegionKey identifies the region for sequence dedupe.
func (e Event) RegionKey() string {
	var b strings.Builder
	if e.BBox != nil {
		fmt.Fprintf(&b, "bbox:%.5f,%.5f,%.5f,%.5f", e.BBox.LatMin, e.BBox.LngMin, e.BBox.LatMax, e.BBox.LngMax)
	} else {
		b.WriteString("poly:")
		for _, pt := range e.Coordinates {
			fmt.Fprintf(&b, "%.5f,%.5f;", pt.Lat, pt.Lng)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
