package index

import (
	"fmt"
	"math"

	"github.com/croplens/indexcache/internal/core/model"
)

// Compute derives a single-band index raster from a scene. Unknown index
// types fail with model.ErrUnsupportedIndex; there is no default.
func Compute(idx model.IndexType, s *Scene) (*Raster, error) {
	switch idx {
	case model.NDVI:
		return normalizedDifference(s, BandNIR, BandRed)
	case model.NDRE:
		return normalizedDifference(s, BandNIR, BandRedEdge)
	case model.EVI:
		return evi(s)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedIndex, idx)
	}
}

// (a - b) / (a + b), the shared shape of NDVI and NDRE.
func normalizedDifference(s *Scene, a, b Band) (*Raster, error) {
	ra, err := s.band(a)
	if err != nil {
		return nil, err
	}
	rb, err := s.band(b)
	if err != nil {
		return nil, err
	}
	return combine(ra, rb, nil, func(va, vb, _ float64) float64 {
		return (va - vb) / (va + vb)
	})
}

// EVI = 2.5 * (NIR - Red) / (NIR + 6*Red - 7.5*Blue + 1)
func evi(s *Scene) (*Raster, error) {
	nir, err := s.band(BandNIR)
	if err != nil {
		return nil, err
	}
	red, err := s.band(BandRed)
	if err != nil {
		return nil, err
	}
	blue, err := s.band(BandBlue)
	if err != nil {
		return nil, err
	}
	return combine(nir, red, blue, func(vn, vr, vb float64) float64 {
		return 2.5 * (vn - vr) / (vn + 6*vr - 7.5*vb + 1)
	})
}

// combine applies f pixelwise. c may be nil for two-band formulas.
// A masked pixel in any input masks the output pixel, and so does a
// non-finite formula result (a zero denominator yields ±Inf).
func combine(a, b, c *Raster, f func(va, vb, vc float64) float64) (*Raster, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("band size mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	if c != nil && (c.Width != a.Width || c.Height != a.Height) {
		return nil, fmt.Errorf("band size mismatch: %dx%d vs %dx%d", a.Width, a.Height, c.Width, c.Height)
	}

	out := NewRaster(a.Width, a.Height)
	for i := range a.Pixels {
		va, vb := a.Pixels[i], b.Pixels[i]
		vc := 0.0
		if c != nil {
			vc = c.Pixels[i]
		}
		if math.IsNaN(va) || math.IsNaN(vb) || (c != nil && math.IsNaN(vc)) {
			out.Pixels[i] = math.NaN()
			continue
		}
		v := f(va, vb, vc)
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		out.Pixels[i] = v
	}
	return out, nil
}
