package index

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/croplens/indexcache/internal/core/model"
)

func TestCatalogSource_ParsesScenes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scenes" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if r.URL.Query().Get("from") != "2026-07-01" || r.URL.Query().Get("to") != "2026-07-10" {
			t.Errorf("date range not forwarded: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("footprint") == "" {
			t.Error("footprint missing")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scenes":[{
			"id":"S2A_20260705",
			"date":"2026-07-05",
			"cloudPct":12.5,
			"width":2,"height":1,
			"bands":{"B4":[0.2,0.3],"B8":[0.8,0.7]},
			"qa":[0,1024]
		}]}`))
	}))
	defer srv.Close()

	src, err := NewCatalogSource(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewCatalogSource: %v", err)
	}

	p := model.Polygon{{Lat: 59.3, Lng: 18.1}, {Lat: 59.31, Lng: 18.12}, {Lat: 59.32, Lng: 18.1}}
	scenes, err := src.Scenes(context.Background(), p,
		time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Scenes: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("got %d scenes want 1", len(scenes))
	}
	sc := scenes[0]
	if sc.ID != "S2A_20260705" || sc.CloudPct != 12.5 {
		t.Fatalf("scene metadata: %+v", sc)
	}
	if sc.Bands[BandRed].At(1, 0) != 0.3 {
		t.Fatalf("band sample: %v", sc.Bands[BandRed].At(1, 0))
	}
	if sc.QA == nil || sc.QA.At(1, 0) != 1024 {
		t.Fatal("qa band not parsed")
	}
}

func TestCatalogSource_BadPayloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"scenes":[{"id":"X","date":"2026-07-05","width":2,"height":2,"bands":{"B4":[0.1]}}]}`))
	}))
	defer srv.Close()

	src, _ := NewCatalogSource(srv.URL, srv.Client())
	_, err := src.Scenes(context.Background(), nil, time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected error for truncated band")
	}
}

func TestCatalogSource_Non200Fails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src, _ := NewCatalogSource(srv.URL, srv.Client())
	if _, err := src.Scenes(context.Background(), nil, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("expected error for 502")
	}
}
