package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
)

// EmissionMetricsHandler counts lifecycle outcomes off the domain event
// bus, keeping the application service free of instrumentation.
type EmissionMetricsHandler struct {
	outcomes metric.Int64Counter
}

// NewEmissionMetricsHandler creates the handler and its instruments
func NewEmissionMetricsHandler() (*EmissionMetricsHandler, error) {
	outcomes, err := Meter().Int64Counter("fiscal_emission_outcomes_total",
		metric.WithDescription("Lifecycle outcomes of fiscal document emission"))
	if err != nil {
		return nil, err
	}
	return &EmissionMetricsHandler{outcomes: outcomes}, nil
}

// EventTypes returns the events this handler counts
func (h *EmissionMetricsHandler) EventTypes() []string {
	return []string{
		fiscal.EventDocumentAuthorized,
		fiscal.EventDocumentRejected,
		fiscal.EventSubmissionUnavailable,
		fiscal.EventDocumentCancelled,
		fiscal.EventCancelRejected,
		fiscal.EventDisagreementFiled,
	}
}

// Handle increments the outcome counter
func (h *EmissionMetricsHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", event.EventType()),
	))
	return nil
}
