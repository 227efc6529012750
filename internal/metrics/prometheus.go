// Package metrics logs system load and exposes pipeline counters to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-gazetteer/internal/logger"
)

var (
	PlanetObjects = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gazetteer_planet_objects",
		Help: "Objects held by the planet store by kind",
	}, []string{"kind"})
	BoundariesIndexed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gazetteer_boundaries_indexed",
		Help: "Administrative relations in the polygon index",
	})
	BoundariesSkipped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gazetteer_boundaries_skipped",
		Help: "Administrative relations whose rings could not be assembled",
	})
	FeaturesResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gazetteer_features_resolved_total",
		Help: "Named features resolved to a record",
	})
	FeaturesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gazetteer_features_skipped_total",
		Help: "Named features without a record by reason",
	}, []string{"reason"})
	RecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gazetteer_records_written_total",
		Help: "Records accepted by the sink by output format",
	}, []string{"format"})
	PhaseSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gazetteer_phase_seconds",
		Help: "Wall time of each pipeline phase",
	}, []string{"phase"})
	ProcessCPU = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gazetteer_process_cpu_percent",
		Help: "CPU usage of this process, per core",
	})
	ProcessRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gazetteer_process_rss_bytes",
		Help: "Resident memory of this process",
	})
	SystemMemoryPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gazetteer_system_memory_percent",
		Help: "System memory in use",
	})
)

func init() {
	prometheus.MustRegister(PlanetObjects)
	prometheus.MustRegister(BoundariesIndexed)
	prometheus.MustRegister(BoundariesSkipped)
	prometheus.MustRegister(FeaturesResolved)
	prometheus.MustRegister(FeaturesSkipped)
	prometheus.MustRegister(RecordsWritten)
	prometheus.MustRegister(PhaseSeconds)
	prometheus.MustRegister(ProcessCPU)
	prometheus.MustRegister(ProcessRSS)
	prometheus.MustRegister(SystemMemoryPercent)
}

// Handler exposes the registered metrics
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until the context is cancelled and
// returns the bound address
func Serve(ctx context.Context, addr string) (net.Addr, error) {
	log := logger.Named("metrics")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}
