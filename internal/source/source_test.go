package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	local := filepath.Join(t.TempDir(), "monaco")
	if err := os.WriteFile(local, []byte("pbf"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "url", input: "https://example.com/extract.osm.pbf", want: "https://example.com/extract.osm.pbf"},
		{name: "local file", input: local, want: local},
		{name: "planet", input: "planet", want: PlanetURL},
		{name: "geofabrik prefix", input: "geofabrik/monaco", want: "https://download.geofabrik.de/europe/monaco-latest.osm.pbf"},
		{name: "bare region", input: "Japan", want: "https://download.geofabrik.de/asia/japan-latest.osm.pbf"},
		{name: "geofabrik path", input: "geofabrik/europe/malta", want: "https://download.geofabrik.de/europe/malta-latest.osm.pbf"},
		{name: "missing file", input: "no-such-file.osm.pbf", wantErr: true},
		{name: "empty", input: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRegionsSorted(t *testing.T) {
	regions := Regions()
	if len(regions) != len(geofabrikRegions) {
		t.Fatalf("got %d regions, want %d", len(regions), len(geofabrikRegions))
	}
	for i := 1; i < len(regions); i++ {
		if regions[i-1] >= regions[i] {
			t.Errorf("regions not sorted at %d: %q >= %q", i, regions[i-1], regions[i])
		}
	}
}

func newTestFetcher(t *testing.T) *Fetcher {
	f := NewFetcher(t.TempDir())
	f.retryDelay = time.Millisecond
	return f
}

func TestFetchCachesDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "osm-gazetteer/") {
			t.Errorf("User-Agent = %q", ua)
		}
		io.WriteString(w, "extract-bytes")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	url := srv.URL + "/regions/monaco-latest.osm.pbf"

	path, err := f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(path) != "monaco-latest.osm.pbf" {
		t.Errorf("cache path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "extract-bytes" {
		t.Errorf("cached content = %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}

	again, err := f.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if again != path {
		t.Errorf("second Fetch path = %q, want %q", again, path)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	if _, err := f.Fetch(context.Background(), srv.URL+"/a.osm.pbf"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestFetchFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/missing.osm.pbf":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.osm.pbf"); err == nil {
		t.Error("expected error for 404")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("404 was retried: %d hits", n)
	}

	hits.Store(0)
	if _, err := f.Fetch(context.Background(), srv.URL+"/broken.osm.pbf"); err == nil {
		t.Error("expected error after retries")
	}
	if n := hits.Load(); n != int32(f.maxRetries+1) {
		t.Errorf("server hit %d times, want %d", n, f.maxRetries+1)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/"); err == nil {
		t.Error("expected error for URL without a file name")
	}
}

func TestOpenLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.osm.pbf")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	in, err := Open(context.Background(), path, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()

	if in.Size != 10 || in.Path != path {
		t.Errorf("Input = {Path: %q, Size: %d}", in.Path, in.Size)
	}
	data, err := io.ReadAll(in)
	if err != nil || string(data) != "0123456789" {
		t.Errorf("read %q, %v", data, err)
	}
}

func TestOpenDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "remote")
	}))
	defer srv.Close()

	cache := t.TempDir()
	in, err := Open(context.Background(), srv.URL+"/remote.osm.pbf", cache)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()

	if !strings.HasPrefix(in.Path, cache) {
		t.Errorf("Path %q not under cache dir %q", in.Path, cache)
	}
	if in.Size != int64(len("remote")) {
		t.Errorf("Size = %d", in.Size)
	}
}
