package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

// Spectral bands by their Sentinel-2 names.
type Band string

const (
	BandBlue    Band = "B2"
	BandRed     Band = "B4"
	BandRedEdge Band = "B5"
	BandNIR     Band = "B8"
)

// QA60 bitmask bits for cloud flags.
const (
	qaOpaqueCloudBit = 10
	qaCirrusBit      = 11
)

// ErrNoScene means no acquisition survived the date and cloud filters.
// It propagates to the caller as a producer failure.
var ErrNoScene = errors.New("no scene matches the requested filters")

// Scene is one satellite acquisition over the requested footprint.
type Scene struct {
	ID       string
	Date     time.Time
	CloudPct float64
	Bands    map[Band]*Raster
	QA       *Raster
}

func (s *Scene) band(b Band) (*Raster, error) {
	r, ok := s.Bands[b]
	if r == nil || !ok {
		return nil, fmt.Errorf("scene %s: missing band %s", s.ID, b)
	}
	return r, nil
}

// maskClouds blanks pixels whose QA word has the cirrus or opaque
// cloud bit set. Scenes without a QA band are left untouched.
func (s *Scene) maskClouds() {
	if s.QA == nil {
		return
	}
	const flags = 1<<qaOpaqueCloudBit | 1<<qaCirrusBit
	for i, qv := range s.QA.Pixels {
		if int(qv)&flags == 0 {
			continue
		}
		for _, r := range s.Bands {
			if r != nil && i < len(r.Pixels) {
				r.Pixels[i] = math.NaN()
			}
		}
	}
}

// SceneSource lists candidate acquisitions covering a polygon,
// most commonly a remote imagery catalog.
type SceneSource interface {
	Scenes(ctx context.Context, p model.Polygon, from, to time.Time) ([]*Scene, error)
}

// SelectScene picks the acquisition to extract from: inside [from,to],
// cloud percentage strictly below maxCloud, newest first. The winner is
// returned cloud-masked; its Date is the resolved image date that flows
// into the cache key.
func SelectScene(ctx context.Context, src SceneSource, p model.Polygon, maxCloud float64, from, to time.Time) (*Scene, error) {
	scenes, err := src.Scenes(ctx, p, from, to)
	if err != nil {
		return nil, fmt.Errorf("scene source: %w", err)
	}

	candidates := scenes[:0:0]
	for _, s := range scenes {
		if s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		if s.CloudPct >= maxCloud {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil, ErrNoScene
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Date.After(candidates[j].Date)
	})

	best := candidates[0]
	best.maskClouds()
	return best, nil
}
