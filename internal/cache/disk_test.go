package cache

import (
	"context"
	"testing"
	"time"

	"github.com/chromegate/prerender/internal/types"
)

func testKey() types.CacheKey {
	return types.CacheKey{CanonicalURL: "https://example.com/", Format: types.FormatHTML}
}

func TestDiskPutGetRoundTrip(t *testing.T) {
	d, err := NewDisk(t.TempDir(), TTL(time.Hour))
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	key := testKey()
	artifact := &types.Artifact{Format: types.FormatHTML, Bytes: []byte("<html></html>"), ContentType: "text/html", ProducedAt: time.Now()}

	if err := d.Put(context.Background(), key, artifact); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, hit, err := d.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if string(got.Bytes) != string(artifact.Bytes) {
		t.Fatalf("got bytes %q, want %q", got.Bytes, artifact.Bytes)
	}
}

func TestDiskGetMiss(t *testing.T) {
	d, err := NewDisk(t.TempDir(), TTL(time.Hour))
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	_, hit, err := d.Get(context.Background(), testKey())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit {
		t.Fatal("expected miss on empty cache")
	}
}

func TestDiskExpiredTTL(t *testing.T) {
	d, err := NewDisk(t.TempDir(), TTL(time.Nanosecond))
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	key := testKey()
	artifact := &types.Artifact{Format: types.FormatHTML, Bytes: []byte("stale"), ProducedAt: time.Now()}
	if err := d.Put(context.Background(), key, artifact); err != nil {
		t.Fatalf("Put: %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	_, hit, err := d.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit {
		t.Fatal("expected expired entry to miss")
	}
}
