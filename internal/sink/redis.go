package sink

import (
	"context"
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/record"
)

// geoMaxLat is the latitude limit Redis accepts for GEOADD
const geoMaxLat = 85.05112878

// Redis stores each record as a JSON document and adds its position to a
// geo set, pipelined in batches
type Redis struct {
	ctx       context.Context
	client    *redis.Client
	pipe      redis.Pipeliner
	prefix    string
	batchSize int
	pending   int
	written   int64
}

// NewRedis connects and checks the server is reachable
func NewRedis(ctx context.Context, cfg *config.Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	return &Redis{
		ctx:       ctx,
		client:    client,
		pipe:      client.Pipeline(),
		prefix:    cfg.RedisPrefix,
		batchSize: cfg.BatchSize,
	}, nil
}

// DocKey returns the document key for an OSM id
func DocKey(prefix string, r *record.Record) string {
	return prefix + ":doc:" + r.OSMID.String()
}

// GeoKey returns the key of the geo set
func GeoKey(prefix string) string {
	return prefix + ":geo"
}

// geoValid reports whether Redis can index the position
func geoValid(lat, lon float64) bool {
	return math.Abs(lat) <= geoMaxLat && math.Abs(lon) <= 180
}

// Write queues one record, executing the pipeline every batchSize records
func (s *Redis) Write(r *record.Record) error {
	doc, err := json.Marshal(r.AsDocument())
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.OSMID, err)
	}

	s.pipe.Set(s.ctx, DocKey(s.prefix, r), doc, 0)
	if geoValid(r.Latitude, r.Longitude) {
		s.pipe.GeoAdd(s.ctx, GeoKey(s.prefix), &redis.GeoLocation{
			Name:      r.OSMID.String(),
			Longitude: r.Longitude,
			Latitude:  r.Latitude,
		})
	}

	s.pending++
	if s.pending >= s.batchSize {
		return s.flush()
	}
	return nil
}

func (s *Redis) flush() error {
	if s.pending == 0 {
		return nil
	}
	if _, err := s.pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	s.written += int64(s.pending)
	s.pending = 0
	return nil
}

// Close executes the last batch and closes the client
func (s *Redis) Close() error {
	defer s.client.Close()
	if err := s.flush(); err != nil {
		return err
	}
	logger.Named("sink").Info("Redis load complete",
		zap.String("prefix", s.prefix),
		zap.Int64("documents", s.written))
	return nil
}

var _ Sink = (*Redis)(nil)
