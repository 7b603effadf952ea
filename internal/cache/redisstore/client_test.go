package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestGetSetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "doc:1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, found, err := rc.Get(ctx, "doc:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(val) != "v1" {
		t.Fatalf("Get=(%q,%v) want (v1,true)", val, found)
	}

	if err := rc.Del(ctx, "doc:1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, found, _ := rc.Get(ctx, "doc:1"); found {
		t.Fatal("key still present after Del")
	}
}

func TestGet_MissingKeyIsCleanMiss(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	val, found, err := rc.Get(ctx, "never-written")
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if found || val != nil {
		t.Fatalf("Get=(%q,%v) want clean miss", val, found)
	}
}

func TestSet_FullyReplacesPriorValue(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = rc.Set(ctx, "doc:2", []byte(`{"a":1,"b":2}`), time.Minute)
	_ = rc.Set(ctx, "doc:2", []byte(`{"c":3}`), time.Minute)

	val, found, err := rc.Get(ctx, "doc:2")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if string(val) != `{"c":3}` {
		t.Fatalf("value=%q; overwrite must not merge", val)
	}
}

func TestScan_RespectsLimit(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, k := range []string{"res:a", "res:b", "res:c", "other:x"} {
		if err := rc.Set(ctx, k, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	keys, err := rc.Scan(ctx, "res:*", 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("Scan found %d keys want 3: %v", len(keys), keys)
	}

	keys, err = rc.Scan(ctx, "res:*", 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("limited Scan found %d keys want 2", len(keys))
	}
}

func TestContextCancellation_SurfacesAsError(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatal("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatal("expected error on Get with canceled context")
	}
}
