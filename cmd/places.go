package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/pipeline"
	"github.com/wegman-software/osm-gazetteer/internal/progress"
)

var (
	placesFormat string
	bboxStr      string
	noBoundaries bool
)

var placesCmd = &cobra.Command{
	Use:   "places <input.osm.pbf | URL | region>",
	Short: "Resolve named features to their administrative chain",
	Long: `Build the gazetteer from an OSM extract:

  1. Decode the PBF into an in-memory planet store
  2. Assemble administrative relations into polygons and index them
  3. Resolve every named amenity or building to the areas containing it
  4. Emit one record per feature, then one per boundary

The input may be a local file, an http(s) URL, "planet", or a Geofabrik
region such as "monaco" or "geofabrik/europe/malta". Downloads are cached
in --cache-dir.`,
	Args: cobra.ExactArgs(1),
	Run:  runPlaces,
}

func init() {
	rootCmd.AddCommand(placesCmd)

	placesCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, `Output file ("-" for stdout)`)
	placesCmd.Flags().StringVarP(&placesFormat, "format", "f", config.FormatCSV, "Output format: csv, parquet, postgres or redis")
	placesCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Only emit records inside minlon,minlat,maxlon,maxlat")
	placesCmd.Flags().BoolVar(&noBoundaries, "no-boundaries", false, "Skip boundary records")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPlaces(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	cfg.Format = placesFormat
	cfg.Boundaries = !noBoundaries
	log := logger.Get()

	bbox, err := config.ParseBBox(bboxStr)
	if err != nil {
		exitWithError("invalid bbox", err)
	}
	cfg.BBox = bbox

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("format", cfg.Format),
		zap.Int("workers", cfg.Workers),
		zap.Bool("boundaries", cfg.Boundaries),
	}
	switch cfg.Format {
	case config.FormatPostgres:
		logFields = append(logFields,
			zap.String("database", cfg.DBName),
			zap.String("table", cfg.DBSchema+"."+cfg.DBTable),
			zap.Int("projection", cfg.Projection))
	case config.FormatRedis:
		logFields = append(logFields,
			zap.String("redis", cfg.RedisAddr),
			zap.String("prefix", cfg.RedisPrefix))
	default:
		logFields = append(logFields, zap.String("output", cfg.OutputFile))
	}
	if bbox.IsSet {
		logFields = append(logFields, zap.String("bbox", bbox.String()))
	}
	log.Info("Starting gazetteer build", logFields...)

	totalStart := time.Now()

	coordinator, err := pipeline.NewCoordinator(cfg)
	if err != nil {
		exitWithError("failed to create pipeline", err)
	}

	ctx, stop := signalContext()
	defer stop()

	stats, err := coordinator.Run(ctx)
	if err != nil {
		exitWithError("gazetteer build failed", err)
	}

	log.Info("Gazetteer complete",
		zap.Duration("total_time", time.Since(totalStart).Round(time.Second)),
		zap.String("input_size", progress.FormatBytes(stats.BytesRead)),
		zap.Int("nodes", stats.Planet.Nodes),
		zap.Int("ways", stats.Planet.Ways),
		zap.Int("relations", stats.Planet.Relations),
		zap.Int("boundaries_indexed", stats.Index.Indexed),
		zap.Int("boundaries_skipped", stats.Index.Skipped),
		zap.Int64("features", stats.Resolve.Features),
		zap.Int64("boundary_records", stats.Resolve.Boundaries),
		zap.Int64("records_written", stats.Written),
		zap.Duration("load_time", stats.Durations.Load.Round(time.Second)),
		zap.Duration("index_time", stats.Durations.Index.Round(time.Second)),
		zap.Duration("resolve_time", stats.Durations.Resolve.Round(time.Second)),
	)
}
