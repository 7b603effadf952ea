// Package keys normalizes extraction requests into content-addressable
// cache identities.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

// CoordPrecision is the number of coordinate decimals kept when
// normalizing, roughly one meter on the ground. Near-duplicate draws of
// the same field boundary collapse onto the same key at this precision.
const CoordPrecision = 5

// LatestToken stands in for an unresolved "most recent" image date.
const LatestToken = "latest"

// Request is the identity-bearing part of an extraction request.
// A zero ImageDate means the latest available scene.
type Request struct {
	Polygon   model.Polygon
	Index     model.IndexType
	MaxCloud  float64
	ImageDate time.Time
}

// Hash returns the SHA-256 hex digest of the canonical encoding. This is
// the cache's sole collision-avoidance and reuse mechanism.
func Hash(r Request) string {
	sum := sha256.Sum256([]byte(Canonical(r)))
	return hex.EncodeToString(sum[:])
}

// Canonical serializes a request into a stable textual encoding: rounded
// and sorted coordinates, then index, cloud threshold and image date in
// fixed field order.
//
// The sorted vertex list exists only here. It deliberately discards
// adjacency to make the key invariant to start point and winding; it
// must never be fed back into area computation or rendering.
func Canonical(r Request) string {
	pts := make([]model.LatLng, len(r.Polygon))
	for i, pt := range r.Polygon {
		pts[i] = model.LatLng{
			Lat: roundCoord(pt.Lat),
			Lng: roundCoord(pt.Lng),
		}
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Lat != pts[j].Lat {
			return pts[i].Lat < pts[j].Lat
		}
		return pts[i].Lng < pts[j].Lng
	})

	var b strings.Builder
	b.WriteString("coords=")
	for i, pt := range pts {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%.*f,%.*f", CoordPrecision, pt.Lat, CoordPrecision, pt.Lng)
	}
	b.WriteString("|index=")
	b.WriteString(string(r.Index))
	b.WriteString("|cloud=")
	b.WriteString(strconv.FormatFloat(r.MaxCloud, 'f', -1, 64))
	b.WriteString("|date=")
	b.WriteString(imageDateToken(r.ImageDate))
	return b.String()
}

func imageDateToken(t time.Time) string {
	if t.IsZero() {
		return LatestToken
	}
	return t.UTC().Format("2006-01-02")
}

func roundCoord(v float64) float64 {
	const scale = 1e5 // 10^CoordPrecision
	r := math.Round(v*scale) / scale
	if r == 0 {
		// collapse -0 so equator/meridian crossings encode one way
		return 0
	}
	return r
}
