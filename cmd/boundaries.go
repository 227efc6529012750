package cmd

import (
	"bufio"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/pipeline"
)

var ringsOutput string

var boundariesCmd = &cobra.Command{
	Use:   "boundaries <input.osm.pbf | URL | region>",
	Short: "Write assembled boundary rings as GeoJSON",
	Long: `Assemble every administrative relation and write its outer rings as a
GeoJSON FeatureCollection of LineStrings with osm_id, name and admin_level
properties. Useful for checking ring assembly against a map.`,
	Args: cobra.ExactArgs(1),
	Run:  runBoundaries,
}

func init() {
	rootCmd.AddCommand(boundariesCmd)

	boundariesCmd.Flags().StringVarP(&ringsOutput, "output", "o", "boundaries.geojson", `Output file ("-" for stdout)`)
}

func runBoundaries(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	start := time.Now()

	coordinator, err := pipeline.NewCoordinator(cfg)
	if err != nil {
		exitWithError("failed to create pipeline", err)
	}

	out := os.Stdout
	if ringsOutput != "-" {
		out, err = os.Create(ringsOutput)
		if err != nil {
			exitWithError("failed to create output file", err)
		}
		defer out.Close()
	}
	w := bufio.NewWriterSize(out, 1<<20)

	ctx, stop := signalContext()
	defer stop()

	stats, err := coordinator.DumpRings(ctx, w)
	if err != nil {
		exitWithError("boundary dump failed", err)
	}
	if err := w.Flush(); err != nil {
		exitWithError("failed to write output", err)
	}

	log.Info("Boundary rings written",
		zap.String("output", ringsOutput),
		zap.Int("boundaries", stats.Index.Indexed),
		zap.Int("skipped", stats.Index.Skipped),
		zap.Int64("rings", stats.Written),
		zap.Duration("duration", time.Since(start).Round(time.Second)))
}
