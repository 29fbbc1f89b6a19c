package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dripfeed/internal/catalog"
	"dripfeed/internal/services"
)

const sample = `{
  "Shop": {
    "app_token": "shop-token",
    "use_get_request": true,
    "events": {"install": "tokI", "purchase": "tokP", "level_5": "tokL"}
  },
  "Miner": {"app_token": "miner-token", "events": {"open": "tokO"}}
}`

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}

func TestResolvePreservesRequestedOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	writeCatalog(t, path, sample)

	c, err := catalog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	target, steps, err := c.Resolve("Shop", []string{"purchase", "install", "level_5"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if target.AppName != "Shop" || target.Credential != "shop-token" || !target.UseGet {
		t.Fatalf("unexpected target %+v", target)
	}
	want := []string{"purchase", "install", "level_5"}
	for i, name := range steps.Names() {
		if name != want[i] {
			t.Fatalf("expected %v, got %v", want, steps.Names())
		}
	}
	if steps[0].Payload != "tokP" {
		t.Fatalf("expected purchase token, got %q", steps[0].Payload)
	}
}

func TestResolveUnknownNamesAreConfigurationErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	writeCatalog(t, path, sample)
	c, err := catalog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, _, err = c.Resolve("Nope", []string{"install"})
	if !errors.Is(err, catalog.ErrUnknownApp) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected unknown app configuration error, got %v", err)
	}
	_, _, err = c.Resolve("Shop", []string{"install", "refund"})
	if !errors.Is(err, catalog.ErrUnknownEvent) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected unknown event configuration error, got %v", err)
	}
}

func TestMissingFileIsEmptyCatalog(t *testing.T) {
	c, err := catalog.Open(filepath.Join(t.TempDir(), "absent.json"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if apps := c.Apps(); len(apps) != 0 {
		t.Fatalf("expected empty catalog, got %v", apps)
	}
}

func TestOpenRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	writeCatalog(t, path, `{"Shop": [}`)
	_, err := catalog.Open(path, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLookupReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	writeCatalog(t, path, sample)
	c, err := catalog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	writeCatalog(t, path, `{"Fresh": {"app_token": "f", "events": {"a": "1"}}}`)
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := c.Lookup("Fresh"); err != nil {
		t.Fatalf("expected reloaded entry, got %v", err)
	}
	if _, err := c.Lookup("Shop"); !errors.Is(err, catalog.ErrUnknownApp) {
		t.Fatalf("expected stale entry to disappear, got %v", err)
	}
}

func TestAppsSortedWithEventNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.json")
	writeCatalog(t, path, sample)
	c, err := catalog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	apps := c.Apps()
	if len(apps) != 2 || apps[0].Name != "Miner" || apps[1].Name != "Shop" {
		t.Fatalf("unexpected apps %+v", apps)
	}
	names := apps[1].EventNames()
	if len(names) != 3 || names[0] != "install" || names[2] != "purchase" {
		t.Fatalf("unexpected event names %v", names)
	}
}

func TestWatchPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.json")
	writeCatalog(t, path, sample)
	c, err := catalog.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	tmp := filepath.Join(dir, "apps.json.tmp")
	writeCatalog(t, tmp, `{"Renamed": {"app_token": "r", "events": {"a": "1"}}}`)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Lookup("Renamed"); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the catalog")
}
