package cache

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(context.Background(), filepath.Join(t.TempDir(), "cache.db"), ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSaveLoadWithinTTL(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	want := []byte(`{"operations":[]}`)
	if err := c.Save(ctx, "room-1", want); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.Load(ctx, "room-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || !bytes.Equal(got, want) {
		t.Fatalf("load = %q, ok = %v", got, ok)
	}
}

func TestLoadAfterExpiryReturnsAbsentAndDeletes(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	// Force an already-expired row.
	c.ttl = -time.Second
	if err := c.Save(ctx, "room-1", []byte("stale")); err != nil {
		t.Fatal(err)
	}
	c.ttl = time.Hour

	if _, ok, err := c.Load(ctx, "room-1"); err != nil || ok {
		t.Fatalf("expired row returned: ok = %v, err = %v", ok, err)
	}

	// The expired row must be gone, not just hidden.
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expired row still present: %d rows", n)
	}
}

func TestLoadUnknownRoom(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if _, ok, err := c.Load(context.Background(), "never-saved"); err != nil || ok {
		t.Fatalf("ok = %v, err = %v", ok, err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := c.Save(ctx, "room-1", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(ctx, "room-1", []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, ok, _ := c.Load(ctx, "room-1")
	if !ok || string(got) != "second" {
		t.Fatalf("load = %q", got)
	}

	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("superseded row appended instead of overwritten: %d rows", n)
	}
}

func TestSweepDeletesExpiredRows(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	c.ttl = -time.Second
	_ = c.Save(ctx, "expired-1", []byte("a"))
	_ = c.Save(ctx, "expired-2", []byte("b"))
	c.ttl = time.Hour
	_ = c.Save(ctx, "live", []byte("c"))

	n, err := c.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("swept %d rows, want 2", n)
	}
	if _, ok, _ := c.Load(ctx, "live"); !ok {
		t.Fatal("sweep removed a live row")
	}
}
