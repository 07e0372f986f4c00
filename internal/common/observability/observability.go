package observability

import (
	"context"
	"io"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes New. The zero value registers metrics with the default
// Prometheus registry and leaves tracing off.
type Options struct {
	Registerer    promclient.Registerer
	EnableTracing bool
	TraceWriter   io.Writer
}

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	invocations    otelmetric.Int64Counter
	duration       otelmetric.Float64Histogram
}

// New wires OpenTelemetry metrics (Prometheus exporter) and, optionally,
// tracing (stdout exporter). A failing exporter degrades to no-op instruments.
func New(serviceName string, opts Options) (*Observability, error) {
	o := &Observability{
		tracer: otel.Tracer(serviceName),
	}

	var exporterOpts []prometheus.Option
	if opts.Registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(opts.Registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		return o, err
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(o.meterProvider)
	o.meter = o.meterProvider.Meter(serviceName)

	o.invocations, _ = o.meter.Int64Counter(
		"kb.invocations",
		otelmetric.WithDescription("Number of retrieve-and-generate invocations"),
	)
	o.duration, _ = o.meter.Float64Histogram(
		"kb.invocation.duration",
		otelmetric.WithDescription("Retrieve-and-generate invocation duration"),
		otelmetric.WithUnit("ms"),
	)

	if opts.EnableTracing {
		w := opts.TraceWriter
		if w == nil {
			w = os.Stdout
		}
		traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return o, err
		}
		o.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(traceExporter))
		otel.SetTracerProvider(o.tracerProvider)
		o.tracer = o.tracerProvider.Tracer(serviceName)
	}

	return o, nil
}

// Tracer is never nil; without tracing it is the global no-op tracer.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

func (o *Observability) RecordInvocation(ctx context.Context, source, status string, d time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	)
	if o.invocations != nil {
		o.invocations.Add(ctx, 1, attrs)
	}
	if o.duration != nil {
		o.duration.Record(ctx, float64(d.Milliseconds()), attrs)
	}
}

// Shutdown flushes exporters.
func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
