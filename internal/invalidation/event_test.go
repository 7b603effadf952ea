package invalidation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

func validEvent() Event {
	return Event{
		Version: 1,
		Op:      "reprocess",
		TS:      time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC),
		Seq:     7,
		BBox:    &BBox{LatMin: 59.0, LngMin: 18.0, LatMax: 59.5, LngMax: 18.5},
	}
}

func TestValidate_AcceptsWellFormedEvents(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("bbox event: %v", err)
	}

	ev := validEvent()
	ev.BBox = nil
	ev.Coordinates = model.Polygon{{Lat: 59, Lng: 18}, {Lat: 59.1, Lng: 18.1}, {Lat: 59.2, Lng: 18}}
	if err := ev.Validate(); err != nil {
		t.Fatalf("polygon event: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Event)
	}{
		{"bad version", func(e *Event) { e.Version = 2 }},
		{"bad op", func(e *Event) { e.Op = "delete" }},
		{"missing ts", func(e *Event) { e.TS = time.Time{} }},
		{"no region", func(e *Event) { e.BBox = nil }},
		{"both regions", func(e *Event) {
			e.Coordinates = model.Polygon{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}, {Lat: 3, Lng: 1}}
		}},
		{"inverted bbox", func(e *Event) { e.BBox = &BBox{LatMin: 60, LngMin: 18, LatMax: 59, LngMax: 19} }},
		{"short polygon", func(e *Event) {
			e.BBox = nil
			e.Coordinates = model.Polygon{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}
		}},
	}
	for _, tc := range cases {
		ev := validEvent()
		tc.mut(&ev)
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestFootprint_BBoxBecomesCornerRing(t *testing.T) {
	fp := validEvent().Footprint()
	if len(fp) != 4 {
		t.Fatalf("footprint has %d vertices want 4", len(fp))
	}
	if fp[0].Lat != 59.0 || fp[2].Lat != 59.5 {
		t.Fatalf("unexpected corners: %+v", fp)
	}
}

func TestRegionKey_StablePerRegion(t *testing.T) {
	a := validEvent()
	b := validEvent()
	b.Seq = 99
	b.TS = b.TS.Add(time.Hour)
	if a.RegionKey() != b.RegionKey() {
		t.Fatal("same region produced different keys")
	}

	c := validEvent()
	c.BBox.LatMax = 59.6
	if a.RegionKey() == c.RegionKey() {
		t.Fatal("different regions produced the same key")
	}
}

func TestEvent_JSONRoundTripKeepsRegion(t *testing.T) {
	raw, err := json.Marshal(validEvent())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Event
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("decoded event invalid: %v", err)
	}
}
