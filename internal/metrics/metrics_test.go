package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{0.05, "0.0"},
		{0.1, "0.1"},
		{1.26, "1.2"},
		{12.99, "12.9"},
		{1024, "1024.0"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := formatGB(2.5); got != "2.5 GB" {
		t.Errorf("formatGB = %q", got)
	}
	if got := formatMBps(0); got != "0.0 MB/s" {
		t.Errorf("formatMBps = %q", got)
	}
}

func TestCollectorSample(t *testing.T) {
	c := NewCollector(0, zap.NewNop())
	if c.interval <= 0 {
		t.Fatalf("interval = %v", c.interval)
	}
	if c.Last() != nil {
		t.Fatal("expected no sample before Collect")
	}

	s := c.Collect()
	if c.Last() != s {
		t.Error("Last does not return the latest sample")
	}
	if s.Timestamp.IsZero() {
		t.Error("sample has no timestamp")
	}
	if s.MemoryPercent < 0 || s.MemoryPercent > 100 {
		t.Errorf("memory percent = %v", s.MemoryPercent)
	}
}

func TestCollectorStopsOnCancel(t *testing.T) {
	c := NewCollector(0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
	if c.Last() == nil {
		t.Error("Start did not take an initial sample")
	}
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := Serve(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	RecordsWritten.WithLabelValues("parquet").Add(3)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `gazetteer_records_written_total{format="parquet"} 3`) {
		t.Errorf("records counter missing from /metrics output:\n%s", body)
	}
}
