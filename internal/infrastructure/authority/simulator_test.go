package authority

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
	"github.com/emissor/backend/internal/infrastructure/cache"
)

const (
	nfeTestKey  = "35250311222333000181550010000000421123456780"
	nfeTestKey2 = "35250311222333000181550010000000011000000092"
	cteTestKey  = "35250311222333000181570010000000071000000018"
	nfseTestKey = "35250311222333000181990010000000051000000020"
)

func newTestSimulator(docType fiscal.DocumentType, opts SimulatorOptions) *Simulator {
	return NewSimulator(docType, cache.NewInMemoryIdempotencyStore(), opts, zap.NewNop())
}

func serialized(docType fiscal.DocumentType, key string) *fiscal.SerializedDocument {
	return &fiscal.SerializedDocument{
		DocumentType: docType,
		AccessKey:    key,
		ContentType:  "application/xml",
		Payload:      []byte("<NFe/>"),
	}
}

func TestSimulator_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("authorizes a valid submission", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		outcome, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)

		assert.Equal(t, fiscal.OutcomeAuthorized, outcome.Kind)
		assert.NotEmpty(t, outcome.Protocol)
		assert.Contains(t, outcome.RawPayload, `"cStat":"100"`)
	})

	t.Run("resubmitting a decided key replays the original decision", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		first, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)
		second, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)

		assert.Equal(t, first.Kind, second.Kind)
		assert.Equal(t, first.Protocol, second.Protocol, "no second authority-side record for one key")
	})

	t.Run("rejects a key with a bad check digit", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		outcome, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey[:43]+"9"))
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeRejected, outcome.Kind)
		assert.Equal(t, "217", outcome.ReasonCode)
	})

	t.Run("refuses a document from another family", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		_, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeCTE, cteTestKey))
		assert.Error(t, err)
	})

	t.Run("a forced outage reports unavailable", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{UnavailableRate: 1})

		outcome, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeUnavailable, outcome.Kind)
		assert.True(t, outcome.Retriable)
	})

	t.Run("a forced rejection reports the business refusal", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{RejectionRate: 1})

		outcome, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeRejected, outcome.Kind)
		assert.Equal(t, "217", outcome.ReasonCode)
	})
}

func TestSimulator_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("an unknown key is not found", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		outcome, err := sim.Query(ctx, nfeTestKey2)
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeNotFound, outcome.Kind)
	})

	t.Run("a decided key returns the decision", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})
		submitted, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)

		queried, err := sim.Query(ctx, nfeTestKey)
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeAuthorized, queried.Kind)
		assert.Equal(t, submitted.Protocol, queried.Protocol)
	})

	t.Run("a cancelled key reports the cancellation", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})
		_, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)
		_, err = sim.Cancel(ctx, nfeTestKey, "duplicidade de emissao do documento")
		require.NoError(t, err)

		queried, err := sim.Query(ctx, nfeTestKey)
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeCancelled, queried.Kind)
	})
}

func TestSimulator_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels an authorized key", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})
		_, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)

		outcome, err := sim.Cancel(ctx, nfeTestKey, "duplicidade de emissao do documento")
		require.NoError(t, err)
		assert.Equal(t, fiscal.CancelAccepted, outcome.Kind)
		assert.NotEmpty(t, outcome.Protocol)
		assert.Contains(t, outcome.RawPayload, `"cStat":"101"`)
	})

	t.Run("repeating a cancel replays the original decision", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})
		_, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)

		first, err := sim.Cancel(ctx, nfeTestKey, "duplicidade de emissao do documento")
		require.NoError(t, err)
		require.Equal(t, fiscal.CancelAccepted, first.Kind)

		replayed, err := sim.Cancel(ctx, nfeTestKey, "duplicidade de emissao do documento")
		require.NoError(t, err)
		assert.Equal(t, fiscal.CancelAccepted, replayed.Kind)
		assert.Equal(t, first.Protocol, replayed.Protocol, "no second authority-side record")
	})

	t.Run("refuses a short justification", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})
		_, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeNFE, nfeTestKey))
		require.NoError(t, err)

		outcome, err := sim.Cancel(ctx, nfeTestKey, "curta")
		require.NoError(t, err)
		assert.Equal(t, fiscal.CancelRefusedKind, outcome.Kind)
	})

	t.Run("refuses an undecided key", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		outcome, err := sim.Cancel(ctx, nfeTestKey2, "duplicidade de emissao do documento")
		require.NoError(t, err)
		assert.Equal(t, fiscal.CancelRefusedKind, outcome.Kind)
	})
}

func TestSimulator_FileDisagreement(t *testing.T) {
	ctx := context.Background()

	t.Run("acknowledges a filing against an authorized transport document", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeCTE, SimulatorOptions{})
		_, err := sim.Submit(ctx, serialized(fiscal.DocumentTypeCTE, cteTestKey))
		require.NoError(t, err)

		outcome, err := sim.FileDisagreement(ctx, cteTestKey, "servico de transporte nao foi prestado")
		require.NoError(t, err)
		assert.Equal(t, fiscal.DisagreementAcknowledged, outcome.Kind)
		assert.NotEmpty(t, outcome.Protocol)
	})

	t.Run("only transport gateways accept filings", func(t *testing.T) {
		sim := newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{})

		_, err := sim.FileDisagreement(ctx, nfeTestKey, "servico de transporte nao foi prestado")
		assert.Error(t, err)
	})
}

func TestMunicipalGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("authorized protocols carry the city code", func(t *testing.T) {
		gateway := NewMunicipalGateway("3550308", cache.NewInMemoryIdempotencyStore(), SimulatorOptions{}, zap.NewNop())

		outcome, err := gateway.Submit(ctx, serialized(fiscal.DocumentTypeNFSE, nfseTestKey))
		require.NoError(t, err)
		assert.Equal(t, fiscal.OutcomeAuthorized, outcome.Kind)
		assert.Contains(t, outcome.Protocol, "3550308-")
	})

	t.Run("disagreement filing is not supported", func(t *testing.T) {
		gateway := NewMunicipalGateway("3550308", cache.NewInMemoryIdempotencyStore(), SimulatorOptions{}, zap.NewNop())

		_, err := gateway.FileDisagreement(ctx, nfseTestKey, "justificativa longa o suficiente")
		assert.Error(t, err)
	})
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()
	store := cache.NewInMemoryIdempotencyStore()
	registry.Register(newTestSimulator(fiscal.DocumentTypeNFE, SimulatorOptions{}))
	registry.RegisterMunicipal("3550308", NewMunicipalGateway("3550308", store, SimulatorOptions{}, zap.NewNop()))

	t.Run("resolves a federal family by type", func(t *testing.T) {
		gateway, err := registry.Resolve(fiscal.DocumentTypeNFE, "")
		require.NoError(t, err)
		assert.Equal(t, fiscal.DocumentTypeNFE, gateway.DocumentType())
	})

	t.Run("resolves service invoices by municipality", func(t *testing.T) {
		gateway, err := registry.Resolve(fiscal.DocumentTypeNFSE, "3550308")
		require.NoError(t, err)
		assert.Equal(t, fiscal.DocumentTypeNFSE, gateway.DocumentType())
	})

	t.Run("an unknown municipality is a configuration error", func(t *testing.T) {
		_, err := registry.Resolve(fiscal.DocumentTypeNFSE, "9999999")
		require.Error(t, err)

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "CONFIGURATION_ERROR", domainErr.Code)
	})

	t.Run("an unregistered family is a configuration error", func(t *testing.T) {
		_, err := registry.Resolve(fiscal.DocumentTypeCTE, "")
		assert.Error(t, err)
	})
}
