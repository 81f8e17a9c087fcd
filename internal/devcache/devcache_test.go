package devcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/urmzd/homai-gateway/internal/beeeon"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(filepath.Join(t.TempDir(), "devices.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestUpsertAndAll(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	desc := beeeon.DeviceDescription{
		DeviceID: beeeon.NewDeviceID(beeeon.PrefixJablotron, 0x1a0000),
		Vendor:   "Jablotron",
		Product:  "JA-81M",
		Modules: []beeeon.Module{
			{Type: beeeon.TypeOpenClose},
			{Type: beeeon.TypeSecurityAlert},
			{Type: beeeon.TypeBattery},
		},
		RefreshTime: beeeon.RefreshEvery(9 * time.Minute),
	}

	if err := cache.Upsert(ctx, desc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	entries, err := cache.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.DeviceID != desc.DeviceID || e.Vendor != "Jablotron" || e.Product != "JA-81M" {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Modules) != 3 || e.Modules[0] != "open_close" || e.Modules[2] != "battery" {
		t.Errorf("modules = %v", e.Modules)
	}

	// upsert again with a new product name: still one row
	desc.Product = "JA-83M"
	if err := cache.Upsert(ctx, desc); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	entries, err = cache.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 1 || entries[0].Product != "JA-83M" {
		t.Errorf("after upsert: %+v", entries)
	}
}

func TestAllEmpty(t *testing.T) {
	cache := testCache(t)

	entries, err := cache.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty cache, got %+v", entries)
	}
}
