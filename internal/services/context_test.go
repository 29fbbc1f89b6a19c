package services_test

import (
	"context"
	"testing"

	"dripfeed/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, 42)
	ctx = services.WithScanID(ctx, "scan-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if scan, ok := services.ScanIDFromContext(ctx); !ok || scan != "scan-1" {
		t.Fatalf("unexpected scan id: %v %v", scan, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankScanPreservesContext(t *testing.T) {
	ctx := services.WithScanID(context.Background(), "")
	if _, ok := services.ScanIDFromContext(ctx); ok {
		t.Fatal("expected no scan value")
	}
	if _, ok := services.JobIDFromContext(context.Background()); ok {
		t.Fatal("expected no job id")
	}
}
