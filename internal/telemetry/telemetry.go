package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const instrumentationName = "inkpost"

// Options configures the meter provider.
type Options struct {
	ServiceName string
	Environment string
}

// Provider owns the process meter provider and its scrape handler.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	handler       http.Handler
}

// Setup installs a global meter provider backed by a Prometheus reader. When
// the exporter cannot be created metrics are still recorded but not served.
func Setup(ctx context.Context, opts Options, log zerolog.Logger) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = instrumentationName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			attribute.String("deployment.environment", opts.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	p := &Provider{}
	promExporter, err := prometheus.New()
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize prometheus exporter")
		p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	} else {
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(promExporter),
			sdkmetric.WithResource(res),
		)
		p.handler = promhttp.Handler()
	}
	otel.SetMeterProvider(p.meterProvider)

	log.Info().Str("exporter", "prometheus").Bool("served", p.handler != nil).Msg("telemetry initialized")
	return p, nil
}

func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(instrumentationName)
	}
	return p.meterProvider.Meter(instrumentationName)
}

// Handler returns the metrics scrape handler, or nil when none is available.
func (p *Provider) Handler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
