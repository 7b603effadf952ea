package index

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

// CatalogSource fetches scenes from an HTTP imagery catalog. The
// catalog returns one JSON document per query with band samples and the
// QA bitmask inlined; heavy full-resolution rasters never travel this
// path, the catalog serves footprint-clipped extracts.
type CatalogSource struct {
	base *url.URL
	http *http.Client
}

func NewCatalogSource(baseURL string, client *http.Client) (*CatalogSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CatalogSource{base: u, http: client}, nil
}

type catalogScene struct {
	ID       string               `json:"id"`
	Date     string               `json:"date"`
	CloudPct float64              `json:"cloudPct"`
	Width    int                  `json:"width"`
	Height   int                  `json:"height"`
	Bands    map[string][]float64 `json:"bands"`
	QA       []float64            `json:"qa,omitempty"`
}

func (s *CatalogSource) Scenes(ctx context.Context, p model.Polygon, from, to time.Time) ([]*Scene, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format("2006-01-02"))
	q.Set("to", to.UTC().Format("2006-01-02"))
	var fp strings.Builder
	for i, pt := range p {
		if i > 0 {
			fp.WriteByte(';')
		}
		fmt.Fprintf(&fp, "%.5f,%.5f", pt.Lat, pt.Lng)
	}
	q.Set("footprint", fp.String())

	u := *s.base
	u.Path += "/scenes"
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %d", resp.StatusCode)
	}

	var payload struct {
		Scenes []catalogScene `json:"scenes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	out := make([]*Scene, 0, len(payload.Scenes))
	for _, cs := range payload.Scenes {
		sc, err := cs.toScene()
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", cs.ID, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func (cs catalogScene) toScene() (*Scene, error) {
	date, err := time.Parse("2006-01-02", cs.Date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", cs.Date, err)
	}
	if cs.Width <= 0 || cs.Height <= 0 {
		return nil, fmt.Errorf("bad raster size %dx%d", cs.Width, cs.Height)
	}
	n := cs.Width * cs.Height

	sc := &Scene{
		ID:       cs.ID,
		Date:     date,
		CloudPct: cs.CloudPct,
		Bands:    make(map[Band]*Raster, len(cs.Bands)),
	}
	for name, px := range cs.Bands {
		if len(px) != n {
			return nil, fmt.Errorf("band %s has %d pixels want %d", name, len(px), n)
		}
		sc.Bands[Band(name)] = &Raster{Width: cs.Width, Height: cs.Height, Pixels: px}
	}
	if len(cs.QA) > 0 {
		if len(cs.QA) != n {
			return nil, fmt.Errorf("qa band has %d pixels want %d", len(cs.QA), n)
		}
		sc.QA = &Raster{Width: cs.Width, Height: cs.Height, Pixels: cs.QA}
	}
	return sc, nil
}
