package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Output formats
const (
	FormatCSV      = "csv"
	FormatParquet  = "parquet"
	FormatPostgres = "postgres"
	FormatRedis    = "redis"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if b == nil || !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// String renders the box in the same form ParseBBox accepts
func (b *BBox) String() string {
	if b == nil || !b.IsSet {
		return ""
	}
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Config holds the global configuration for a gazetteer run
type Config struct {
	// Input settings
	InputFile string // Path or http(s) URL of the .osm.pbf extract
	CacheDir  string // Download cache for URL inputs
	BBox      *BBox  // Only emit features inside this box

	// Output settings
	OutputFile    string // "-" writes CSV to stdout
	Format        string // csv, parquet, postgres or redis
	SelectionFile string // YAML feature/boundary selection rules
	Boundaries    bool   // Also emit one record per administrative boundary
	Projection    int    // SRID of the PostGIS geometry column (4326 or 3857)

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string
	DBTable    string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // Key namespace for documents and the geo set

	// Processing settings
	Workers   int
	BatchSize int

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
	MetricsAddr     string        // Listen address for the Prometheus endpoint
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		CacheDir:        "./osm_cache",
		OutputFile:      "places.csv",
		Format:          FormatCSV,
		Boundaries:      true,
		Projection:      4326,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBSchema:        "public",
		DBTable:         "gazetteer",
		RedisAddr:       "127.0.0.1:6379",
		RedisPrefix:     "gazetteer",
		Workers:         runtime.NumCPU(),
		BatchSize:       100000,
		MetricsInterval: 30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1000 {
		return fmt.Errorf("batch size must be at least 1000")
	}
	switch c.Format {
	case FormatCSV, FormatParquet:
		if c.OutputFile == "" {
			return fmt.Errorf("output file is required for %s output", c.Format)
		}
		if c.Format == FormatParquet && c.OutputFile == "-" {
			return fmt.Errorf("parquet output cannot be written to stdout")
		}
	case FormatPostgres:
		if c.DBTable == "" {
			return fmt.Errorf("db table is required for postgres output")
		}
	case FormatRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis output")
		}
		if c.RedisPrefix == "" {
			return fmt.Errorf("redis key prefix is required for redis output")
		}
	default:
		return fmt.Errorf("unknown output format %q (supported: csv, parquet, postgres, redis)", c.Format)
	}
	if c.Projection != 4326 && c.Projection != 3857 {
		return fmt.Errorf("unsupported projection %d (supported: 4326, 3857)", c.Projection)
	}
	return nil
}

// envPrefix namespaces environment overrides
const envPrefix = "GAZETTEER_"

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from GAZETTEER_* environment variables
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"DB_HOST":        &c.DBHost,
		"DB_NAME":        &c.DBName,
		"DB_USER":        &c.DBUser,
		"DB_PASSWORD":    &c.DBPassword,
		"DB_SCHEMA":      &c.DBSchema,
		"DB_TABLE":       &c.DBTable,
		"CACHE_DIR":      &c.CacheDir,
		"SELECTION":      &c.SelectionFile,
		"REDIS_ADDR":     &c.RedisAddr,
		"REDIS_PASSWORD": &c.RedisPassword,
		"REDIS_PREFIX":   &c.RedisPrefix,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DB_PORT":  &c.DBPort,
		"WORKERS":  &c.Workers,
		"REDIS_DB": &c.RedisDB,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, v, err)
		}
		*dst = n
	}

	return nil
}
