package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/progress"
)

// Fetcher downloads extracts into a cache directory
type Fetcher struct {
	client     *http.Client
	cacheDir   string
	maxRetries int
	retryDelay time.Duration
}

// NewFetcher creates a fetcher caching into cacheDir
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		// extracts are large, so only the connection phase has a timeout
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
		cacheDir:   cacheDir,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

// CachePath returns where a URL is cached
func (f *Fetcher) CachePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("URL has no file name: %s", rawURL)
	}
	return filepath.Join(f.cacheDir, u.Host, name), nil
}

// Fetch downloads the URL unless it is already cached and returns the
// local path
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	log := logger.Named("source")

	cacheFile, err := f.CachePath(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	if _, err := os.Stat(cacheFile); err == nil {
		log.Info("Using cached download", zap.String("path", cacheFile))
		return cacheFile, nil
	}

	log.Info("Downloading", zap.String("url", rawURL))
	start := time.Now()

	resp, err := f.fetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, rawURL)
	}

	tmpFile := cacheFile + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("failed to write cache file: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		os.Remove(tmpFile)
		return "", fmt.Errorf("short download: got %d of %d bytes", n, resp.ContentLength)
	}

	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return "", fmt.Errorf("failed to rename cache file: %w", err)
	}

	log.Info("Downloaded",
		zap.String("path", cacheFile),
		zap.String("size", progress.FormatBytes(n)),
		zap.Duration("elapsed", time.Since(start)))
	return cacheFile, nil
}

// fetchWithRetry performs an HTTP GET with retries
func (f *Fetcher) fetchWithRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Named("source").Warn("Retrying download",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "osm-gazetteer/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Retry on server errors
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
