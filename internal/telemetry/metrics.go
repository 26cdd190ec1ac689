package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application instruments. A nil *Metrics records nothing.
type Metrics struct {
	sessions          metric.Int64Counter
	restarts          metric.Int64Counter
	recognitionErrors metric.Int64Counter
	generations       metric.Int64Counter
	generationLatency metric.Float64Histogram
	trainings         metric.Int64Counter
	templates         metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.sessions, err = meter.Int64Counter("inkpost.dictation.sessions",
		metric.WithDescription("Recording sessions started")); err != nil {
		return nil, err
	}
	if m.restarts, err = meter.Int64Counter("inkpost.dictation.restarts",
		metric.WithDescription("Recognition engine restarts after an unexpected end")); err != nil {
		return nil, err
	}
	if m.recognitionErrors, err = meter.Int64Counter("inkpost.dictation.errors",
		metric.WithDescription("Recognition errors by code")); err != nil {
		return nil, err
	}
	if m.generations, err = meter.Int64Counter("inkpost.compose.generations",
		metric.WithDescription("Email generation requests by outcome")); err != nil {
		return nil, err
	}
	if m.generationLatency, err = meter.Float64Histogram("inkpost.compose.generation.duration",
		metric.WithDescription("Email generation latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.trainings, err = meter.Int64Counter("inkpost.handwriting.trainings",
		metric.WithDescription("Completed handwriting trainings by method")); err != nil {
		return nil, err
	}
	if m.templates, err = meter.Int64Counter("inkpost.handwriting.templates",
		metric.WithDescription("Template downloads and uploads by outcome")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) SessionStarted(ctx context.Context, language string) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

func (m *Metrics) EngineRestarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.restarts.Add(ctx, 1)
}

func (m *Metrics) RecognitionError(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.recognitionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

func (m *Metrics) Generation(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.generations.Add(ctx, 1, attrs)
	m.generationLatency.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) TrainingCompleted(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.trainings.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

func (m *Metrics) Template(ctx context.Context, op string, outcome string) {
	if m == nil {
		return
	}
	m.templates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}
