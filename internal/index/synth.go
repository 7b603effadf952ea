package index

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/croplens/indexcache/internal/core/model"
)

// SyntheticSource fabricates deterministic scenes so the pipeline can run
// and be tested without an imagery backend. The same polygon and date
// always produce the same scene.
type SyntheticSource struct {
	// Size is the raster edge length in pixels; defaults to 16.
	Size int
}

func (s *SyntheticSource) Scenes(_ context.Context, p model.Polygon, from, to time.Time) ([]*Scene, error) {
	size := s.Size
	if size <= 0 {
		size = 16
	}

	var out []*Scene
	const maxScenes = 32
	for d := dateOnly(to); !d.Before(dateOnly(from)) && len(out) < maxScenes; d = d.AddDate(0, 0, -1) {
		out = append(out, s.scene(p, d, size))
	}
	return out, nil
}

func (s *SyntheticSource) scene(p model.Polygon, date time.Time, size int) *Scene {
	seed := sceneSeed(p, date)
	rng := seed

	sc := &Scene{
		ID:       fmt.Sprintf("SYN_%s_%08x", date.Format("20060102"), uint32(seed)),
		Date:     date,
		CloudPct: float64(seed % 101),
		Bands: map[Band]*Raster{
			BandBlue:    NewRaster(size, size),
			BandRed:     NewRaster(size, size),
			BandRedEdge: NewRaster(size, size),
			BandNIR:     NewRaster(size, size),
		},
		QA: NewRaster(size, size),
	}

	for i := 0; i < size*size; i++ {
		rng = next(rng)
		sc.Bands[BandBlue].Pixels[i] = 0.02 + unit(rng)*0.08
		rng = next(rng)
		sc.Bands[BandRed].Pixels[i] = 0.05 + unit(rng)*0.20
		rng = next(rng)
		sc.Bands[BandRedEdge].Pixels[i] = 0.15 + unit(rng)*0.25
		rng = next(rng)
		sc.Bands[BandNIR].Pixels[i] = 0.40 + unit(rng)*0.45

		// cloudier scenes get proportionally more flagged pixels
		rng = next(rng)
		if unit(rng)*100 < sc.CloudPct {
			bit := qaOpaqueCloudBit
			if rng&1 == 1 {
				bit = qaCirrusBit
			}
			sc.QA.Pixels[i] = float64(int(1) << bit)
		}
	}
	return sc
}

// sceneSeed digests the footprint and acquisition date so repeated
// requests see identical imagery.
func sceneSeed(p model.Polygon, date time.Time) uint64 {
	d := xxhash.New()
	for _, pt := range p {
		fmt.Fprintf(d, "%.5f,%.5f;", pt.Lat, pt.Lng)
	}
	fmt.Fprintf(d, "@%s", date.Format("2006-01-02"))
	return d.Sum64()
}

// splitmix64 step
func next(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func unit(x uint64) float64 {
	return float64(x>>11) / float64(1<<53)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
