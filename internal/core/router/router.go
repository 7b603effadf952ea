package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/croplens/indexcache/internal/cache/resultcache"
	"github.com/croplens/indexcache/internal/core/model"
	"github.com/croplens/indexcache/internal/core/observability"
	"github.com/croplens/indexcache/internal/geo"
)

// DefaultMaxCloud applies when the caller omits the maxCloud parameter.
const DefaultMaxCloud = 20.0

// receives validated index requests and serves them
type IndexHandler interface {
	HandleIndex(ctx context.Context, w http.ResponseWriter, r *http.Request, req model.IndexRequest)
}

// StatsProvider reports best-effort cache aggregates.
type StatsProvider interface {
	Stats(ctx context.Context) (resultcache.Stats, error)
}

// validates input query params and calls the handler
func HandleIndex(logger *slog.Logger, h IndexHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		req, warn, err := ParseIndexRequest(r)
		if warn != "" {
			logger.Warn(warn)
		}
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			observability.ObserveHTTP(r.Method, "/v1/index", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		h.HandleIndex(r.Context(), sw, r, req)
		observability.ObserveHTTP(r.Method, "/v1/index", sw.code, time.Since(start).Seconds())
	}
}

// HandleArea computes the geodesic area of a polygon without touching
// the cache or the producer.
func HandleArea(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		poly, warn, err := parsePolygon(r.URL.Query().Get("polygon"))
		if warn != "" {
			logger.Warn(warn)
		}
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			observability.ObserveHTTP(r.Method, "/v1/area", http.StatusBadRequest, time.Since(start).Seconds())
			return
		}

		sqm := geo.Area(poly)
		writeJSON(sw, http.StatusOK, map[string]any{
			"areaSqm":  sqm,
			"areaHa":   geo.FormatHectares(sqm),
			"areaSqKm": geo.FormatSquareKilometers(sqm),
		})
		observability.ObserveHTTP(r.Method, "/v1/area", sw.code, time.Since(start).Seconds())
	}
}

func HandleStats(logger *slog.Logger, sp StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		stats, err := sp.Stats(r.Context())
		if err != nil {
			logger.Error("stats scan failed", "err", err)
			http.Error(sw, "stats unavailable", http.StatusInternalServerError)
			observability.ObserveHTTP(r.Method, "/v1/stats", sw.code, time.Since(start).Seconds())
			return
		}

		writeJSON(sw, http.StatusOK, stats)
		observability.ObserveHTTP(r.Method, "/v1/stats", sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParseIndexRequest(r *http.Request) (model.IndexRequest, string, error) {
	q := r.URL.Query()

	rawIndex := strings.TrimSpace(q.Get("index"))
	if rawIndex == "" {
		return model.IndexRequest{}, "", errors.New("missing required parameter: index")
	}
	idx, err := model.ParseIndexType(rawIndex)
	if err != nil {
		return model.IndexRequest{}, "", err
	}

	poly, warn, err := parsePolygon(q.Get("polygon"))
	if err != nil {
		return model.IndexRequest{}, warn, err
	}

	maxCloud := DefaultMaxCloud
	if raw := strings.TrimSpace(q.Get("maxCloud")); raw != "" {
		maxCloud, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.IndexRequest{}, warn, fmt.Errorf("invalid maxCloud: %w", err)
		}
		if maxCloud < 0 || maxCloud > 100 {
			return model.IndexRequest{}, warn, errors.New("maxCloud must be in [0,100]")
		}
	}

	var imageDate time.Time
	if raw := strings.TrimSpace(q.Get("date")); raw != "" && !strings.EqualFold(raw, "latest") {
		imageDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return model.IndexRequest{}, warn, fmt.Errorf("invalid date %q: want YYYY-MM-DD or latest", raw)
		}
	}

	return model.IndexRequest{
		Polygon:   poly,
		Index:     idx,
		MaxCloud:  maxCloud,
		ImageDate: imageDate,
	}, warn, nil
}

// parsePolygon decodes "lat,lng|lat,lng|..." vertex lists. Pipe is the
// vertex separator because net/url drops query pairs containing literal
// semicolons. A ring that repeats its first vertex at the end is
// accepted and unclosed.
func parsePolygon(raw string) (model.Polygon, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", errors.New("missing required parameter: polygon")
	}

	var warn string
	pairs := strings.Split(raw, "|")
	poly := make(model.Polygon, 0, len(pairs))
	for i, pair := range pairs {
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, warn, fmt.Errorf("vertex %d: expected lat,lng", i)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, warn, fmt.Errorf("vertex %d: latitude: %w", i, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, warn, fmt.Errorf("vertex %d: longitude: %w", i, err)
		}
		poly = append(poly, model.LatLng{Lat: lat, Lng: lng})
	}

	if len(poly) >= 4 && poly[0] == poly[len(poly)-1] {
		warn = "polygon ring is explicitly closed; dropping duplicate closing vertex"
		poly = poly[:len(poly)-1]
	}

	if len(poly) < 3 {
		return nil, warn, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(poly))
	}
	if err := poly.Validate(); err != nil {
		return nil, warn, err
	}
	return poly, warn, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
