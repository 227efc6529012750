package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/logger"
	"github.com/wegman-software/osm-gazetteer/internal/proj"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	envFile         string
	projectionStr   string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osm-gazetteer",
	Short: "Build a place gazetteer from OpenStreetMap extracts",
	Long: `osm-gazetteer turns an OSM PBF extract into a gazetteer: one record per
named feature with the chain of administrative areas that contain it.

Features:
  - Parallel PBF decoding into an in-memory planet store
  - Boundary ring assembly with an R-tree polygon index
  - Concurrent address resolution
  - CSV, Parquet, PostgreSQL/PostGIS and Redis output`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile

		// Initialize logger with optional file output
		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}

		if err := applyEnv(cmd); err != nil {
			exitWithError("invalid environment", err)
		}
		cfg.MetricsInterval = metricsInterval

		srid, err := proj.ParseSRID(projectionStr)
		if err != nil {
			exitWithError("invalid projection", err)
		}
		cfg.Projection = srid
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")
	rootCmd.PersistentFlags().StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory for downloaded extracts")
	rootCmd.PersistentFlags().StringVarP(&cfg.SelectionFile, "selection", "S", "", "Selection YAML file for feature and boundary tags")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load GAZETTEER_* settings from a .env file")
	rootCmd.PersistentFlags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Records per Parquet row group or Redis pipeline")
	rootCmd.PersistentFlags().StringVarP(&projectionStr, "projection", "E", "4326", "Geometry SRID for PostgreSQL output (4326 or 3857)")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")
	rootCmd.PersistentFlags().StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9090)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
	rootCmd.PersistentFlags().StringVar(&cfg.DBTable, "db-table", cfg.DBTable, "PostgreSQL table")

	// Redis flags
	rootCmd.PersistentFlags().StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	rootCmd.PersistentFlags().StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	rootCmd.PersistentFlags().IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	rootCmd.PersistentFlags().StringVar(&cfg.RedisPrefix, "redis-prefix", cfg.RedisPrefix, "Redis key prefix")
}

// applyEnv layers GAZETTEER_* variables between defaults and flags:
// explicitly set flags keep their values
func applyEnv(cmd *cobra.Command) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	changed := make(map[*pflag.Flag]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f] = f.Value.String()
	})

	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	for f, v := range changed {
		if err := f.Value.Set(v); err != nil {
			return err
		}
	}
	return nil
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
