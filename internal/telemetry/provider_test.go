package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	provider, err := Init("ema-recorder-test", "0.0.0")
	if err != nil {
		t.Fatalf("expected provider, got %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	counter, err := otel.Meter("telemetry-test").Int64Counter("recorder.frames_dropped")
	if err != nil {
		t.Fatalf("expected counter, got %v", err)
	}
	counter.Add(context.Background(), 3)

	server := httptest.NewServer(provider.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("expected scrape to succeed, got %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("expected body, got %v", err)
	}
	if !strings.Contains(string(body), "recorder_frames_dropped") {
		t.Fatalf("expected frames dropped counter in scrape output, got:\n%s", body)
	}
}
