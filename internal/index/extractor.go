package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

// Extractor is the expensive producer: it selects a scene, computes the
// requested index over it and summarizes the result.
type Extractor struct {
	src      SceneSource
	tileBase string
	lookback time.Duration
}

func NewExtractor(src SceneSource, tileBase string, lookback time.Duration) *Extractor {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &Extractor{src: src, tileBase: strings.TrimRight(tileBase, "/"), lookback: lookback}
}

// Extract computes the index summary for one request and returns the
// resolved acquisition date alongside it.
func (e *Extractor) Extract(ctx context.Context, req model.IndexRequest) (model.IndexResult, time.Time, error) {
	from, to := e.window(req.ImageDate)

	scene, err := SelectScene(ctx, e.src, req.Polygon, req.MaxCloud, from, to)
	if err != nil {
		return model.IndexResult{}, time.Time{}, fmt.Errorf("select scene: %w", err)
	}

	raster, err := Compute(req.Index, scene)
	if err != nil {
		return model.IndexResult{}, time.Time{}, fmt.Errorf("compute %s: %w", req.Index, err)
	}

	min, max, mean, ok := raster.Stats()
	if !ok {
		return model.IndexResult{}, time.Time{}, errors.New("scene fully cloud-masked")
	}

	res := model.IndexResult{
		TileURL:   fmt.Sprintf("%s/%s/%s.png", e.tileBase, scene.ID, strings.ToLower(string(req.Index))),
		MinValue:  min,
		MaxValue:  max,
		MeanValue: mean,
		Date:      scene.Date.Format("2006-01-02"),
		Index:     req.Index,
	}
	return res, scene.Date, nil
}

// window maps a requested date to the scene search range: a concrete
// date means that day only, the zero "latest" sentinel means the
// trailing lookback window.
func (e *Extractor) window(imageDate time.Time) (from, to time.Time) {
	if !imageDate.IsZero() {
		d := dateOnly(imageDate)
		return d, d.Add(24*time.Hour - time.Nanosecond)
	}
	now := time.Now().UTC()
	return now.Add(-e.lookback), now
}
