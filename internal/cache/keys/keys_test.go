package keys

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

func baseRequest() Request {
	return Request{
		Polygon: model.Polygon{
			{Lat: 59.30012, Lng: 18.10008},
			{Lat: 59.30112, Lng: 18.10208},
			{Lat: 59.30212, Lng: 18.10008},
		},
		Index:    model.NDVI,
		MaxCloud: 20,
	}
}

func TestHash_Deterministic(t *testing.T) {
	r := baseRequest()
	h1 := Hash(r)
	h2 := Hash(r)
	if h1 != h2 {
		t.Fatalf("determinism failed:\n h1=%s\n h2=%s", h1, h2)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(h1) {
		t.Fatalf("hash is not 64 hex chars: %s", h1)
	}
}

func TestHash_InvariantToVertexOrderAndWinding(t *testing.T) {
	r := baseRequest()
	base := Hash(r)

	rotated := baseRequest()
	rotated.Polygon = model.Polygon{r.Polygon[2], r.Polygon[0], r.Polygon[1]}
	if got := Hash(rotated); got != base {
		t.Fatalf("rotated vertex list changed hash")
	}

	reversed := baseRequest()
	reversed.Polygon = model.Polygon{r.Polygon[2], r.Polygon[1], r.Polygon[0]}
	if got := Hash(reversed); got != base {
		t.Fatalf("reversed winding changed hash")
	}
}

func TestHash_AbsorbsNoiseBeyondFifthDecimal(t *testing.T) {
	r := baseRequest()
	base := Hash(r)

	noisy := baseRequest()
	noisy.Polygon[0].Lat += 4e-7
	noisy.Polygon[1].Lng -= 3e-7
	if got := Hash(noisy); got != base {
		t.Fatalf("sub-precision noise changed hash")
	}

	moved := baseRequest()
	moved.Polygon[0].Lat += 2e-5 // past the rounding tolerance
	if got := Hash(moved); got == base {
		t.Fatalf("materially moved vertex did not change hash")
	}
}

func TestHash_ZeroCrossingVerticesCollapse(t *testing.T) {
	// a field straddling the equator and prime meridian: vertices a hair
	// on either side of zero must round to the same coordinate
	south := Request{
		Polygon: model.Polygon{
			{Lat: -0.000001, Lng: -0.000002},
			{Lat: 0.001, Lng: 0.003},
			{Lat: 0.002, Lng: -0.001},
		},
		Index:    model.NDVI,
		MaxCloud: 20,
	}
	north := south
	north.Polygon = model.Polygon{
		{Lat: 0.000001, Lng: 0.000002},
		{Lat: 0.001, Lng: 0.003},
		{Lat: 0.002, Lng: -0.001},
	}

	if Hash(south) != Hash(north) {
		t.Fatalf("zero-crossing noise changed hash:\n %s\n %s", Canonical(south), Canonical(north))
	}
	if c := Canonical(south); strings.Contains(c, "-0.00000") {
		t.Fatalf("negative zero leaked into canonical encoding: %s", c)
	}
}

func TestHash_ParametersChangeIdentity(t *testing.T) {
	base := Hash(baseRequest())

	r := baseRequest()
	r.Index = model.EVI
	if Hash(r) == base {
		t.Fatal("index type change did not change hash")
	}

	r = baseRequest()
	r.MaxCloud = 35
	if Hash(r) == base {
		t.Fatal("cloud threshold change did not change hash")
	}

	r = baseRequest()
	r.ImageDate = time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	if Hash(r) == base {
		t.Fatal("image date change did not change hash")
	}
}

func TestCanonical_LatestSentinelAndFieldOrder(t *testing.T) {
	c := Canonical(baseRequest())
	if !strings.HasSuffix(c, "|date=latest") {
		t.Fatalf("missing latest sentinel: %s", c)
	}
	if !strings.HasPrefix(c, "coords=") {
		t.Fatalf("unexpected field order: %s", c)
	}
	if !strings.Contains(c, "|index=NDVI|cloud=20|") {
		t.Fatalf("unexpected parameter encoding: %s", c)
	}
}

func TestCanonical_TimeOfDayIgnoredForConcreteDates(t *testing.T) {
	a := baseRequest()
	a.ImageDate = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	b := baseRequest()
	b.ImageDate = time.Date(2026, 6, 15, 23, 59, 59, 0, time.UTC)
	if Hash(a) != Hash(b) {
		t.Fatal("same calendar date with different times produced different hashes")
	}
}

func TestCanonical_DoesNotMutateCallerPolygon(t *testing.T) {
	r := Request{
		Polygon: model.Polygon{
			{Lat: 2, Lng: 2},
			{Lat: 1, Lng: 1},
			{Lat: 3, Lng: 3},
		},
		Index:    model.NDVI,
		MaxCloud: 10,
	}
	_ = Canonical(r)
	if r.Polygon[0].Lat != 2 || r.Polygon[1].Lat != 1 || r.Polygon[2].Lat != 3 {
		t.Fatalf("caller polygon reordered: %+v", r.Polygon)
	}
}
