package sink

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/record"
	"github.com/wegman-software/osm-gazetteer/internal/wkb"
)

// PostgresColumns lists the COPY target columns in row order
var PostgresColumns = []string{
	"name", "alt_name", "operator", "osm_id", "osm_type", "location",
	"latitude", "longitude", "admin_level", "geom",
}

type copyResult struct {
	rows int64
	err  error
}

// Postgres streams records into a PostGIS table over a single COPY
type Postgres struct {
	ctx     context.Context
	pool    *pgxpool.Pool
	table   pgx.Identifier
	encoder *wkb.Encoder
	rows    chan []interface{}
	done    chan copyResult
	result  *copyResult
}

// NewPostgres connects, recreates the target table and starts the COPY
func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	encoder, err := wkb.NewEncoder(cfg.Projection)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	// one connection for COPY, one for setup and indexes
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	p := &Postgres{
		ctx:     ctx,
		pool:    pool,
		table:   pgx.Identifier{cfg.DBSchema, cfg.DBTable},
		encoder: encoder,
		rows:    make(chan []interface{}, 10000),
		done:    make(chan copyResult, 1),
	}

	if err := p.prepare(ctx, cfg.DBSchema); err != nil {
		pool.Close()
		return nil, err
	}

	go p.copy()
	return p, nil
}

// prepare creates the PostGIS extension, schema and an empty table
func (p *Postgres) prepare(ctx context.Context, schema string) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}

	if schema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
		if _, err := p.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	table := p.table.Sanitize()
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	createSQL := fmt.Sprintf(`
		CREATE UNLOGGED TABLE %s (
			name TEXT NOT NULL,
			alt_name TEXT,
			operator TEXT,
			osm_id TEXT NOT NULL,
			osm_type CHAR(1) NOT NULL,
			location JSONB NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			admin_level SMALLINT NOT NULL,
			geom GEOMETRY(Point, %d)
		)
	`, table, p.encoder.SRID())
	if _, err := p.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

func (p *Postgres) copy() {
	conn, err := p.pool.Acquire(p.ctx)
	if err != nil {
		p.done <- copyResult{err: fmt.Errorf("failed to acquire connection: %w", err)}
		return
	}
	defer conn.Release()

	n, err := conn.Conn().CopyFrom(p.ctx, p.table, PostgresColumns, &rowSource{rows: p.rows})
	if err != nil {
		err = fmt.Errorf("COPY failed: %w", err)
	}
	p.done <- copyResult{rows: n, err: err}
}

// Row converts a record to COPY values
func (p *Postgres) Row(r *record.Record) ([]interface{}, error) {
	location, err := json.Marshal(nonEmpty(r.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to encode location: %w", err)
	}
	geom, err := p.encoder.EncodePoint(r.Longitude, r.Latitude)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}

	return []interface{}{
		r.Name,
		nullable(r.AltName),
		nullable(r.Operator),
		r.OSMID.String(),
		string(r.OSMID.Kind.Letter()),
		string(location),
		r.Latitude,
		r.Longitude,
		int16(r.AdminLevel),
		geom,
	}, nil
}

// Write queues one row for the running COPY
func (p *Postgres) Write(r *record.Record) error {
	if p.result != nil {
		return p.result.err
	}

	row, err := p.Row(r)
	if err != nil {
		return err
	}

	select {
	case p.rows <- row:
		return nil
	case res := <-p.done:
		// COPY ended before its input did
		if res.err == nil {
			res.err = fmt.Errorf("COPY finished early after %d rows", res.rows)
		}
		p.result = &res
		return res.err
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Close ends the COPY, then indexes and analyzes the table
func (p *Postgres) Close() error {
	defer p.pool.Close()
	log := logger.Named("sink")

	close(p.rows)
	if p.result == nil {
		res := <-p.done
		p.result = &res
	}
	if p.result.err != nil {
		return p.result.err
	}

	table := p.table.Sanitize()
	name := p.table[len(p.table)-1]
	log.Info("Creating indexes", zap.String("table", table), zap.Int64("rows", p.result.rows))

	statements := []string{
		fmt.Sprintf("ALTER TABLE %s SET LOGGED", table),
		fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (geom)", pgx.Identifier{name + "_geom_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX %s ON %s (osm_id)", pgx.Identifier{name + "_osm_id_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX %s ON %s (admin_level)", pgx.Identifier{name + "_admin_level_idx"}.Sanitize(), table),
		fmt.Sprintf("ANALYZE %s", table),
	}
	for _, sql := range statements {
		if _, err := p.pool.Exec(p.ctx, sql); err != nil {
			return fmt.Errorf("failed to run %q: %w", sql, err)
		}
	}

	log.Info("PostgreSQL load complete", zap.String("table", table), zap.Int64("rows", p.result.rows))
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// rowSource implements pgx.CopyFromSource for streaming rows from a channel
type rowSource struct {
	rows    <-chan []interface{}
	current []interface{}
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]interface{}, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
