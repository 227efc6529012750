// Package source locates the input extract: a local file, a URL, or a
// named planet or Geofabrik download.
package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
)

// PlanetURL is the full planet extract
const PlanetURL = "https://planet.openstreetmap.org/pbf/planet-latest.osm.pbf"

const geofabrikBase = "https://download.geofabrik.de"

// Geofabrik regions with their download paths
var geofabrikRegions = map[string]string{
	// Europe
	"europe":         "europe",
	"germany":        "europe/germany",
	"france":         "europe/france",
	"italy":          "europe/italy",
	"spain":          "europe/spain",
	"united-kingdom": "europe/great-britain",
	"great-britain":  "europe/great-britain",
	"netherlands":    "europe/netherlands",
	"belgium":        "europe/belgium",
	"switzerland":    "europe/switzerland",
	"austria":        "europe/austria",
	"poland":         "europe/poland",
	"monaco":         "europe/monaco",

	// Americas
	"north-america": "north-america",
	"us":            "north-america/us",
	"usa":           "north-america/us",
	"canada":        "north-america/canada",
	"mexico":        "north-america/mexico",
	"south-america": "south-america",
	"brazil":        "south-america/brazil",

	// Asia
	"asia":  "asia",
	"japan": "asia/japan",
	"china": "asia/china",
	"india": "asia/india",

	// Africa
	"africa": "africa",

	// Oceania
	"oceania":     "australia-oceania",
	"australia":   "australia-oceania/australia",
	"new-zealand": "australia-oceania/new-zealand",
}

// GeofabrikURL returns the latest extract URL for a region. Unknown
// regions are used directly as a download path.
func GeofabrikURL(region string) string {
	region = strings.ToLower(strings.TrimSpace(region))
	path, ok := geofabrikRegions[region]
	if !ok {
		path = region
	}
	return fmt.Sprintf("%s/%s-latest.osm.pbf", geofabrikBase, path)
}

// IsURL reports whether the input is fetched over HTTP
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Resolve maps an input argument to a local path or a download URL.
// Formats:
//   - local path to an .osm.pbf file
//   - "http://..." or "https://..."
//   - "planet"
//   - "geofabrik/<region>" or a bare region name such as "monaco"
//
// An existing local file always wins over a region of the same name.
func Resolve(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty input")
	}
	if IsURL(s) {
		return s, nil
	}
	if _, err := os.Stat(s); err == nil {
		return s, nil
	}

	lower := strings.ToLower(s)
	if lower == "planet" {
		return PlanetURL, nil
	}
	if strings.HasPrefix(lower, "geofabrik/") {
		return GeofabrikURL(strings.TrimPrefix(lower, "geofabrik/")), nil
	}
	if _, ok := geofabrikRegions[lower]; ok {
		return GeofabrikURL(lower), nil
	}

	return "", fmt.Errorf("input not found: %s", s)
}

// Regions lists the named Geofabrik regions in alphabetical order
func Regions() []string {
	regions := make([]string, 0, len(geofabrikRegions))
	for region := range geofabrikRegions {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// Input is an opened extract
type Input struct {
	*os.File
	Path string
	Size int64
}

// Open resolves the input, downloads it into cacheDir when remote, and
// opens the local file
func Open(ctx context.Context, input, cacheDir string) (*Input, error) {
	log := logger.Named("source")

	target, err := Resolve(input)
	if err != nil {
		return nil, err
	}

	path := target
	if IsURL(target) {
		path, err = NewFetcher(cacheDir).Fetch(ctx, target)
		if err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}

	log.Info("Opened input",
		zap.String("path", path),
		zap.Int64("size_bytes", info.Size()))

	return &Input{File: f, Path: path, Size: info.Size()}, nil
}
