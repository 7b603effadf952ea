// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedIndex is returned for index types outside the known set.
// It is fatal to the requesting call and never replaced by a default.
var ErrUnsupportedIndex = errors.New("unsupported vegetation index type")

type IndexType string

const (
	NDVI IndexType = "NDVI"
	NDRE IndexType = "NDRE"
	EVI  IndexType = "EVI"
)

// ParseIndexType validates a user-supplied index name.
func ParseIndexType(s string) (IndexType, error) {
	switch IndexType(strings.ToUpper(strings.TrimSpace(s))) {
	case NDVI:
		return NDVI, nil
	case NDRE:
		return NDRE, nil
	case EVI:
		return EVI, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedIndex, s)
	}
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Polygon is an ordered vertex list in degrees. Vertex order is meaningful
// for geometry; only the key-hashing path may reorder a private copy.
type Polygon []LatLng

func (p Polygon) Validate() error {
	for i, pt := range p {
		if pt.Lat < -90 || pt.Lat > 90 {
			return fmt.Errorf("vertex %d: latitude %v out of [-90,90]", i, pt.Lat)
		}
		if pt.Lng < -180 || pt.Lng > 180 {
			return fmt.Errorf("vertex %d: longitude %v out of [-180,180]", i, pt.Lng)
		}
	}
	return nil
}

// IndexRequest is one extraction request as seen by the pipeline.
// A zero ImageDate means "most recent available scene".
type IndexRequest struct {
	Polygon   Polygon
	Index     IndexType
	MaxCloud  float64
	ImageDate time.Time
}

func (r IndexRequest) Validate() error {
	if len(r.Polygon) < 3 {
		return fmt.Errorf("polygon needs at least 3 vertices, got %d", len(r.Polygon))
	}
	if err := r.Polygon.Validate(); err != nil {
		return err
	}
	if _, err := ParseIndexType(string(r.Index)); err != nil {
		return err
	}
	if r.MaxCloud < 0 || r.MaxCloud > 100 {
		return fmt.Errorf("cloud coverage %v out of [0,100]", r.MaxCloud)
	}
	return nil
}

// IndexResult is the producer's summary for one extraction.
type IndexResult struct {
	TileURL   string    `json:"tileUrl"`
	MinValue  float64   `json:"minValue"`
	MaxValue  float64   `json:"maxValue"`
	MeanValue float64   `json:"meanValue"`
	Date      string    `json:"date"`
	Index     IndexType `json:"indexType"`
}
