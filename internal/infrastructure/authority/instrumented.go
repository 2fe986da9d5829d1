package authority

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/infrastructure/telemetry"
)

// InstrumentedGateway decorates a gateway with round-trip metrics
type InstrumentedGateway struct {
	inner    fiscal.AuthorityGateway
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewInstrumentedGateway wraps a gateway with OTel instruments
func NewInstrumentedGateway(inner fiscal.AuthorityGateway) (*InstrumentedGateway, error) {
	meter := telemetry.Meter()
	requests, err := meter.Int64Counter("fiscal_authority_requests_total",
		metric.WithDescription("Authority webservice calls by operation and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("fiscal_authority_roundtrip_seconds",
		metric.WithDescription("Authority webservice round-trip latency"))
	if err != nil {
		return nil, err
	}
	return &InstrumentedGateway{inner: inner, requests: requests, latency: latency}, nil
}

// DocumentType returns the family of the wrapped gateway
func (g *InstrumentedGateway) DocumentType() fiscal.DocumentType {
	return g.inner.DocumentType()
}

// Submit measures a submission round trip
func (g *InstrumentedGateway) Submit(ctx context.Context, doc *fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
	start := time.Now()
	outcome, err := g.inner.Submit(ctx, doc)
	g.observe(ctx, "submit", string(outcome.Kind), start, err)
	return outcome, err
}

// Query measures a query round trip
func (g *InstrumentedGateway) Query(ctx context.Context, accessKey string) (fiscal.SubmissionOutcome, error) {
	start := time.Now()
	outcome, err := g.inner.Query(ctx, accessKey)
	g.observe(ctx, "query", string(outcome.Kind), start, err)
	return outcome, err
}

// Cancel measures a cancellation round trip
func (g *InstrumentedGateway) Cancel(ctx context.Context, accessKey, justification string) (fiscal.CancelOutcome, error) {
	start := time.Now()
	outcome, err := g.inner.Cancel(ctx, accessKey, justification)
	g.observe(ctx, "cancel", string(outcome.Kind), start, err)
	return outcome, err
}

// FileDisagreement measures a disagreement round trip
func (g *InstrumentedGateway) FileDisagreement(ctx context.Context, accessKey, justification string) (fiscal.DisagreementOutcome, error) {
	start := time.Now()
	outcome, err := g.inner.FileDisagreement(ctx, accessKey, justification)
	g.observe(ctx, "disagreement", string(outcome.Kind), start, err)
	return outcome, err
}

func (g *InstrumentedGateway) observe(ctx context.Context, op, outcome string, start time.Time, err error) {
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("family", g.inner.DocumentType().String()),
		attribute.String("outcome", outcome),
	)
	g.requests.Add(ctx, 1, attrs)
	g.latency.Record(ctx, time.Since(start).Seconds(), attrs)
}
