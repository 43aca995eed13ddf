package observability

import (
	"context"
	"testing"
)

func TestSetup_ReturnsShutdown(t *testing.T) {
	// The exporter construction is lazy; no collector needs to be
	// listening for Setup to succeed.
	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "localhost:0",
		ServiceName: "quorum-test",
		Environment: "test",
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function is nil")
	}
}

func TestSetup_DefaultEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function is nil")
	}
}
