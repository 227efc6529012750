package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/pipeline"
)

var loadFormat string

var loadCmd = &cobra.Command{
	Use:   "load <places.csv>",
	Short: "Load a gazetteer CSV into PostgreSQL or Redis",
	Long: `Bulk load a CSV written by "places" into another sink.

This stage:
  1. Validates the CSV header and every osm_id
  2. Recreates the target table and streams rows with COPY (postgres), or
     pipelines documents and geo entries (redis)
  3. Creates spatial and lookup indexes (postgres)`,
	Args: cobra.ExactArgs(1),
	Run:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVarP(&loadFormat, "format", "f", config.FormatPostgres, "Target format: postgres, redis or parquet")
	loadCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output file for file formats")
}

func runLoad(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	cfg.Format = loadFormat
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	if cfg.Format == config.FormatCSV {
		exitWithError("load needs a non-CSV target format", nil)
	}

	log.Info("Starting CSV load",
		zap.String("input", cfg.InputFile),
		zap.String("format", cfg.Format),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("table", cfg.DBSchema+"."+cfg.DBTable),
	)

	coordinator, err := pipeline.NewCoordinator(cfg)
	if err != nil {
		exitWithError("failed to create pipeline", err)
	}

	ctx, stop := signalContext()
	defer stop()

	stats, err := coordinator.LoadCSV(ctx, cfg.InputFile)
	if err != nil {
		exitWithError("load failed", err)
	}

	log.Info("Load complete",
		zap.Int64("rows", stats.Rows),
		zap.Duration("duration", stats.Duration))
}
