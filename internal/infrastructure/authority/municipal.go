package authority

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
)

// MunicipalGateway is the simulated service-invoice webservice of one
// municipality. Each city runs its own webservice with its own quirks, so
// one gateway instance is registered per IBGE city code.
type MunicipalGateway struct {
	cityCode string
	sim      *Simulator
}

// NewMunicipalGateway creates the gateway for one municipality
func NewMunicipalGateway(cityCode string, store shared.IdempotencyStore, opts SimulatorOptions, logger *zap.Logger) *MunicipalGateway {
	return &MunicipalGateway{
		cityCode: cityCode,
		sim: NewSimulator(fiscal.DocumentTypeNFSE, store, opts,
			logger.With(zap.String("city_code", cityCode))),
	}
}

// CityCode returns the municipality this gateway serves
func (g *MunicipalGateway) CityCode() string {
	return g.cityCode
}

// DocumentType returns the family this gateway serves
func (g *MunicipalGateway) DocumentType() fiscal.DocumentType {
	return fiscal.DocumentTypeNFSE
}

// Submit converts the RPS batch into an authorized service invoice
func (g *MunicipalGateway) Submit(ctx context.Context, doc *fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
	outcome, err := g.sim.Submit(ctx, doc)
	if err != nil {
		return fiscal.SubmissionOutcome{}, err
	}
	if outcome.Kind == fiscal.OutcomeAuthorized {
		// Municipal protocols carry the city code instead of the state code
		outcome.Protocol = fmt.Sprintf("%s-%d", g.cityCode, time.Now().Unix())
	}
	return outcome, nil
}

// Query fetches the municipality-side outcome for a provisional key
func (g *MunicipalGateway) Query(ctx context.Context, accessKey string) (fiscal.SubmissionOutcome, error) {
	return g.sim.Query(ctx, accessKey)
}

// Cancel requests cancellation of an authorized service invoice
func (g *MunicipalGateway) Cancel(ctx context.Context, accessKey, justification string) (fiscal.CancelOutcome, error) {
	return g.sim.Cancel(ctx, accessKey, justification)
}

// FileDisagreement is not supported by municipal webservices
func (g *MunicipalGateway) FileDisagreement(ctx context.Context, accessKey, justification string) (fiscal.DisagreementOutcome, error) {
	return fiscal.DisagreementOutcome{}, fmt.Errorf("disagreement filing is not supported for service invoices")
}
