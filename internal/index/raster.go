// Package index computes vegetation indices from multi-band satellite scenes.
package index

import "math"

// Raster is a single-band grid of samples. NaN marks masked pixels.
type Raster struct {
	Width  int
	Height int
	Pixels []float64
}

func NewRaster(width, height int) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Pixels: make([]float64, width*height),
	}
}

func (r *Raster) At(x, y int) float64 {
	return r.Pixels[y*r.Width+x]
}

func (r *Raster) Set(x, y int, v float64) {
	r.Pixels[y*r.Width+x] = v
}

// Stats returns min/max/mean over unmasked pixels. ok is false when
// every pixel is masked. Non-finite samples are skipped; the summary
// must stay JSON-encodable.
func (r *Raster) Stats() (min, max, mean float64, ok bool) {
	min = math.Inf(1)
	max = math.Inf(-1)
	sum := 0.0
	n := 0
	for _, v := range r.Pixels {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0, 0, false
	}
	return min, max, sum / float64(n), true
}
