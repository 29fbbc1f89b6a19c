package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dripfeed/internal/config"
	"dripfeed/internal/queue"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckQueueDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	if result := CheckQueueDatabase(context.Background(), path); !result.Passed {
		t.Fatalf("expected missing database to pass, got: %s", result.Detail)
	}

	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.Close()

	result := CheckQueueDatabase(context.Background(), path)
	if !result.Passed {
		t.Fatalf("expected fresh database to pass, got: %s", result.Detail)
	}
	if !strings.HasPrefix(result.Detail, "0 jobs") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckExecutorEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if result := CheckExecutorEndpoint(context.Background(), srv.URL); !result.Passed {
		t.Fatalf("expected any response to pass, got: %s", result.Detail)
	}
	if result := CheckExecutorEndpoint(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for missing endpoint")
	}
	if result := CheckExecutorEndpoint(context.Background(), "http://127.0.0.1:1/events"); result.Passed {
		t.Fatal("expected failure for refused connection")
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.json")
	if result := CheckCatalog(path); !result.Passed {
		t.Fatalf("expected absent catalog to pass, got: %s", result.Detail)
	}

	if err := os.WriteFile(path, []byte(`{"Shop":{"app_token":"t","events":{"install":"a"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckCatalog(path); !result.Passed || result.Detail != "1 apps" {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := os.WriteFile(path, []byte(`{`), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckCatalog(path); result.Passed {
		t.Fatal("expected malformed catalog to fail")
	}
}

func TestCheckNotifications(t *testing.T) {
	cfg := config.Default()
	if result := CheckNotifications(&cfg); !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("unexpected result %+v", result)
	}
	cfg.Notifications.NtfyTopic = "https://ntfy.sh/topic"
	cfg.Notifications.DiscordWebhook = "https://discord.test/hook"
	if result := CheckNotifications(&cfg); result.Detail != "ntfy, discord" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Catalog.Path = ""
	cfg.Executor.Endpoint = srv.URL

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if Failed(results) {
		t.Fatal("expected no failures")
	}
}
