package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/tless/tless-bench/pkg/log"
)

// Instruments are the measurements published per repeat
type Instruments struct {
	latency  metric.Float64Histogram
	outcomes metric.Int64Counter
}

// NewInstruments creates the instruments on the global meter provider
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(TracerName)
	latency, err := meter.Float64Histogram("tless_repeat_latency",
		metric.WithDescription("End-to-end workflow execution latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000))
	if err != nil {
		return nil, err
	}
	outcomes, err := meter.Int64Counter("tless_repeat_outcomes",
		metric.WithDescription("Repeats by policy decision"))
	if err != nil {
		return nil, err
	}
	return &Instruments{latency: latency, outcomes: outcomes}, nil
}

// RecordLatency adds a successful repeat to the latency histogram
func (i *Instruments) RecordLatency(ctx context.Context, ms int64, attrs ...attribute.KeyValue) {
	if i == nil {
		return
	}
	i.latency.Record(ctx, float64(ms), metric.WithAttributes(attrs...))
}

// RecordOutcome counts a repeat under its decision
func (i *Instruments) RecordOutcome(ctx context.Context, decision string, attrs ...attribute.KeyValue) {
	if i == nil {
		return
	}
	all := append(attrs[:len(attrs):len(attrs)], attribute.String("decision", decision))
	i.outcomes.Add(ctx, 1, metric.WithAttributes(all...))
}

// InitMetrics installs a meter provider backed by a prometheus exporter
// registered on reg and returns the handler serving it
func InitMetrics(reg *prometheus.Registry) (http.Handler, func(context.Context) error, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

// ServeMetrics exposes /metrics on address until ctx is done
func ServeMetrics(ctx context.Context, address string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Infof("[Metrics]: serving prometheus metrics on %s/metrics", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[Metrics]: metrics server stopped, err: %v", err)
		}
	}()
}
