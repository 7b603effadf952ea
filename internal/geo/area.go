// Package geo computes polygon areas on the Earth's surface.
package geo

import (
	"fmt"
	"math"

	"github.com/croplens/indexcache/internal/core/model"
)

// EarthRadiusMeters is the WGS84 equatorial radius.
const EarthRadiusMeters = 6378137.0

// Area returns the area of a polygon in square meters, treating the
// vertices as lying on a sphere. Exact for small regions, bounded error
// for large ones. Fewer than 3 vertices is a degenerate polygon and
// yields 0, not an error.
func Area(p model.Polygon) float64 {
	if len(p) < 3 {
		return 0
	}

	sum := 0.0
	for i := range p {
		a := p[i]
		b := p[(i+1)%len(p)]
		dLng := radians(b.Lng - a.Lng)
		sum += dLng * (2 + math.Sin(radians(a.Lat)) + math.Sin(radians(b.Lat)))
	}

	return math.Abs(sum * EarthRadiusMeters * EarthRadiusMeters / 2)
}

func SquareKilometers(sqm float64) float64 { return sqm / 1_000_000 }

func Hectares(sqm float64) float64 { return sqm / 10_000 }

// FormatSquareKilometers renders an area for display, two decimals.
func FormatSquareKilometers(sqm float64) string {
	return fmt.Sprintf("%.2f km²", SquareKilometers(sqm))
}

func FormatHectares(sqm float64) string {
	return fmt.Sprintf("%.2f ha", Hectares(sqm))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
