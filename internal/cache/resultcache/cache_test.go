package resultcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/croplens/indexcache/internal/cache/keys"
	"github.com/croplens/indexcache/internal/cache/redisstore"
	"github.com/croplens/indexcache/internal/core/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func testKey() keys.Request {
	return keys.Request{
		Polygon: model.Polygon{
			{Lat: 59.3, Lng: 18.1},
			{Lat: 59.31, Lng: 18.12},
			{Lat: 59.32, Lng: 18.1},
		},
		Index:    model.NDVI,
		MaxCloud: 20,
	}
}

func testResult() model.IndexResult {
	return model.IndexResult{
		TileURL:   "https://tiles.example.com/S1/ndvi.png",
		MinValue:  0.1,
		MaxValue:  0.9,
		MeanValue: 0.6,
		Date:      "2026-08-01",
		Index:     model.NDVI,
	}
}

func TestGet_NeverWrittenHashIsMiss(t *testing.T) {
	c := New(newStore(t), testLogger())
	if _, ok := c.Get(context.Background(), "deadbeef"); ok {
		t.Fatal("expected miss for never-written hash")
	}
}

func TestPutThenGet_ReturnsStoredEntryUnmodified(t *testing.T) {
	c := New(newStore(t), testLogger())
	ctx := context.Background()

	k := testKey()
	h := keys.Hash(k)
	imageDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	c.Put(ctx, h, k, testResult(), imageDate)

	e, ok := c.Get(ctx, h)
	if !ok {
		t.Fatal("expected hit immediately after Put")
	}
	if e.Hash != h {
		t.Fatalf("hash=%q want %q", e.Hash, h)
	}
	if got := e.Result(); got != testResult() {
		t.Fatalf("payload changed through the cache: %+v", got)
	}
	if e.ImageDate != "2026-08-01" {
		t.Fatalf("imageDate=%q", e.ImageDate)
	}
	if e.CachedAt.IsZero() {
		t.Fatal("cachedAt not set")
	}
	if len(e.Coordinates) != 3 || e.CloudCoverage != 20 {
		t.Fatalf("debug fields not retained: %+v", e)
	}
}

func TestGet_EntryPastTTLIsMiss(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := &now
	c := New(newStore(t), testLogger(), WithClock(func() time.Time { return *clock }))
	ctx := context.Background()

	k := testKey()
	h := keys.Hash(k)
	c.Put(ctx, h, k, testResult(), now)

	later := now.Add(30*24*time.Hour - time.Minute)
	clock = &later
	if _, ok := c.Get(ctx, h); !ok {
		t.Fatal("entry inside TTL reported as miss")
	}

	expired := now.Add(30*24*time.Hour + time.Minute)
	clock = &expired
	if _, ok := c.Get(ctx, h); ok {
		t.Fatal("entry past TTL reported as hit")
	}
}

func TestPut_SecondWriteFullyReplacesFirst(t *testing.T) {
	c := New(newStore(t), testLogger())
	ctx := context.Background()

	k := testKey()
	h := keys.Hash(k)
	c.Put(ctx, h, k, testResult(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	second := model.IndexResult{
		TileURL:   "https://tiles.example.com/S2/ndvi.png",
		MinValue:  0.2,
		MaxValue:  0.8,
		MeanValue: 0.5,
		Date:      "2026-08-10",
		Index:     model.NDVI,
	}
	c.Put(ctx, h, k, second, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC))

	e, ok := c.Get(ctx, h)
	if !ok {
		t.Fatal("expected hit")
	}
	if got := e.Result(); got != second {
		t.Fatalf("got %+v want only the second payload", got)
	}
	if e.ImageDate != "2026-08-10" {
		t.Fatalf("imageDate=%q; old fields must not survive", e.ImageDate)
	}
}

func TestDelete_RemovesEntry(t *testing.T) {
	c := New(newStore(t), testLogger())
	ctx := context.Background()

	k := testKey()
	h := keys.Hash(k)
	c.Put(ctx, h, k, testResult(), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	if err := c.Delete(ctx, h); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get(ctx, h); ok {
		t.Fatal("entry still served after Delete")
	}
}

func TestStats_CountsEntriesAndAgeRange(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	times := []time.Time{now.Add(-48 * time.Hour), now.Add(-24 * time.Hour), now}
	i := 0
	c := New(newStore(t), testLogger(), WithClock(func() time.Time { return times[i] }))
	ctx := context.Background()

	for i = 0; i < len(times); i++ {
		k := testKey()
		k.MaxCloud = float64(10 * (i + 1)) // three distinct hashes
		c.Put(ctx, keys.Hash(k), k, testResult(), now)
	}
	i = len(times) - 1

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalEntries != 3 {
		t.Fatalf("totalEntries=%d want 3", st.TotalEntries)
	}
	if st.OldestEntry == nil || !st.OldestEntry.Equal(times[0]) {
		t.Fatalf("oldestEntry=%v want %v", st.OldestEntry, times[0])
	}
	if st.NewestEntry == nil || !st.NewestEntry.Equal(times[2]) {
		t.Fatalf("newestEntry=%v want %v", st.NewestEntry, times[2])
	}
}

// brokenStore fails every operation, standing in for an unreachable
// document store.
type brokenStore struct{}

var errDown = errors.New("store unreachable")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errDown
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (brokenStore) Del(context.Context, ...string) error                     { return errDown }
func (brokenStore) Scan(context.Context, string, int) ([]string, error)      { return nil, errDown }

func TestFailOpen_StoreErrorsNeverPropagate(t *testing.T) {
	// no L1 so every call reaches the broken store
	c := New(brokenStore{}, testLogger(), WithL1Size(0))
	ctx := context.Background()

	if _, ok := c.Get(ctx, "abc"); ok {
		t.Fatal("read failure must present as a miss")
	}

	// must not panic or surface the error
	c.Put(ctx, "abc", testKey(), testResult(), time.Now())
}
