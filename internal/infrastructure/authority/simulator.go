// Package authority contains the tax-authority gateway adapters. The
// simulators stand in for the government webservices behind the same
// contract a real SOAP client would implement.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
)

// Authority status codes, as used on the wire
const (
	codeAuthorized = "100" // Autorizado o uso
	codeCancelled  = "101" // Cancelamento homologado
	codeRejected   = "217" // Rejeicao
)

// decisionRecord is the persisted shape of a decided submission. Replayed
// on resubmission of the same access key so the authority side never holds
// two records for one key.
type decisionRecord struct {
	Kind       string `json:"kind"`
	Protocol   string `json:"protocol"`
	ReasonCode string `json:"reason_code,omitempty"`
	ReasonText string `json:"reason_text,omitempty"`
}

// SimulatorOptions tune the simulated authority behavior
type SimulatorOptions struct {
	DecisionTTL     time.Duration
	RejectionRate   float64 // probability of a business rejection (0 disables)
	UnavailableRate float64 // probability of an outage (0 disables)
}

// Simulator is a simulated authority webservice for one document family.
// Decisions are stored through the idempotency store keyed by access key.
type Simulator struct {
	docType fiscal.DocumentType
	store   shared.IdempotencyStore
	opts    SimulatorOptions
	logger  *zap.Logger
}

// NewSimulator creates a simulated gateway for a document family
func NewSimulator(docType fiscal.DocumentType, store shared.IdempotencyStore, opts SimulatorOptions, logger *zap.Logger) *Simulator {
	if opts.DecisionTTL == 0 {
		opts.DecisionTTL = 72 * time.Hour
	}
	return &Simulator{
		docType: docType,
		store:   store,
		opts:    opts,
		logger:  logger.Named("authority").With(zap.String("family", docType.String())),
	}
}

// DocumentType returns the family this gateway serves
func (s *Simulator) DocumentType() fiscal.DocumentType {
	return s.docType
}

// Submit decides a submission. Resubmitting an already-decided key returns
// the original decision.
func (s *Simulator) Submit(ctx context.Context, doc *fiscal.SerializedDocument) (fiscal.SubmissionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return fiscal.SubmissionOutcome{}, err
	}
	if doc.DocumentType != s.docType {
		return fiscal.SubmissionOutcome{}, fmt.Errorf("gateway for %s received a %s document", s.docType, doc.DocumentType)
	}
	if !fiscal.VerifyKey(doc.AccessKey) {
		return fiscal.RejectedOutcome(codeRejected, "Chave de acesso invalida", rawStatus(codeRejected, "Chave de acesso invalida", "")), nil
	}

	if record, ok, err := s.lookup(ctx, doc.AccessKey); err != nil {
		return fiscal.SubmissionOutcome{}, err
	} else if ok {
		s.logger.Debug("replaying decided submission", zap.String("access_key", doc.AccessKey))
		return record.toOutcome(), nil
	}

	if rand.Float64() < s.opts.UnavailableRate {
		return fiscal.UnavailableOutcome(true, `{"error":"service temporarily unavailable"}`), nil
	}

	record := decisionRecord{Kind: string(fiscal.OutcomeAuthorized), Protocol: newProtocol(doc.AccessKey)}
	if rand.Float64() < s.opts.RejectionRate {
		record = decisionRecord{
			Kind:       string(fiscal.OutcomeRejected),
			ReasonCode: codeRejected,
			ReasonText: "Rejeicao: irregularidade fiscal do emitente",
		}
	}

	stored, err := s.record(ctx, doc.AccessKey, record)
	if err != nil {
		return fiscal.SubmissionOutcome{}, err
	}
	return stored.toOutcome(), nil
}

// Query returns the decided outcome for a key, or NotFound when the key
// was never submitted
func (s *Simulator) Query(ctx context.Context, accessKey string) (fiscal.SubmissionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return fiscal.SubmissionOutcome{}, err
	}
	record, ok, err := s.lookup(ctx, accessKey)
	if err != nil {
		return fiscal.SubmissionOutcome{}, err
	}
	if !ok {
		return fiscal.NotFoundOutcome(`{"cStat":"217","xMotivo":"NF-e nao consta na base de dados"}`), nil
	}
	if cancel, ok, err := s.lookupCancel(ctx, accessKey); err != nil {
		return fiscal.SubmissionOutcome{}, err
	} else if ok {
		return fiscal.CancelledOutcome(cancel.Protocol, rawStatus(codeCancelled, "Cancelamento homologado", cancel.Protocol)), nil
	}
	return record.toOutcome(), nil
}

// Cancel decides a cancellation request for an authorized key. Repeating
// a cancel for an already-cancelled key replays the original decision.
func (s *Simulator) Cancel(ctx context.Context, accessKey, justification string) (fiscal.CancelOutcome, error) {
	if err := ctx.Err(); err != nil {
		return fiscal.CancelOutcome{}, err
	}
	// The length rule is enforced by the caller before the round trip, but
	// the authority applies it as well
	if err := fiscal.ValidateJustification(justification); err != nil {
		return fiscal.CancelOutcome{
			Kind:       fiscal.CancelRefusedKind,
			ReasonCode: codeRejected,
			ReasonText: "Justificativa de cancelamento invalida",
			RawPayload: rawStatus(codeRejected, "Justificativa de cancelamento invalida", ""),
		}, nil
	}

	if existing, ok, err := s.lookupCancel(ctx, accessKey); err != nil {
		return fiscal.CancelOutcome{}, err
	} else if ok {
		s.logger.Debug("replaying decided cancellation", zap.String("access_key", accessKey))
		return fiscal.CancelOutcome{
			Kind:       fiscal.CancelAccepted,
			Protocol:   existing.Protocol,
			RawPayload: rawStatus(codeCancelled, "Cancelamento homologado", existing.Protocol),
		}, nil
	}

	record, ok, err := s.lookup(ctx, accessKey)
	if err != nil {
		return fiscal.CancelOutcome{}, err
	}
	if !ok || record.Kind != string(fiscal.OutcomeAuthorized) {
		return fiscal.CancelOutcome{
			Kind:       fiscal.CancelRefusedKind,
			ReasonCode: codeRejected,
			ReasonText: "Documento nao autorizado na base de dados",
			RawPayload: rawStatus(codeRejected, "Documento nao autorizado na base de dados", ""),
		}, nil
	}

	if rand.Float64() < s.opts.UnavailableRate {
		return fiscal.CancelOutcome{Kind: fiscal.CancelUnavailable, Retriable: true, RawPayload: `{"error":"service temporarily unavailable"}`}, nil
	}

	cancel, err := s.recordCancel(ctx, accessKey, decisionRecord{Kind: string(fiscal.OutcomeCancelled), Protocol: newProtocol(accessKey)})
	if err != nil {
		return fiscal.CancelOutcome{}, err
	}
	return fiscal.CancelOutcome{
		Kind:       fiscal.CancelAccepted,
		Protocol:   cancel.Protocol,
		RawPayload: rawStatus(codeCancelled, "Cancelamento homologado", cancel.Protocol),
	}, nil
}

// FileDisagreement acknowledges a counterparty disagreement filing
func (s *Simulator) FileDisagreement(ctx context.Context, accessKey, justification string) (fiscal.DisagreementOutcome, error) {
	if err := ctx.Err(); err != nil {
		return fiscal.DisagreementOutcome{}, err
	}
	if s.docType != fiscal.DocumentTypeCTE {
		return fiscal.DisagreementOutcome{}, fmt.Errorf("disagreement filing is not supported for %s", s.docType)
	}
	if err := fiscal.ValidateJustification(justification); err != nil {
		return fiscal.DisagreementOutcome{
			Kind:       fiscal.DisagreementRefused,
			ReasonText: "Justificativa de desacordo invalida",
			RawPayload: rawStatus(codeRejected, "Justificativa de desacordo invalida", ""),
		}, nil
	}
	record, ok, err := s.lookup(ctx, accessKey)
	if err != nil {
		return fiscal.DisagreementOutcome{}, err
	}
	if !ok || record.Kind != string(fiscal.OutcomeAuthorized) {
		return fiscal.DisagreementOutcome{
			Kind:       fiscal.DisagreementRefused,
			ReasonText: "Documento nao autorizado na base de dados",
			RawPayload: rawStatus(codeRejected, "Documento nao autorizado na base de dados", ""),
		}, nil
	}
	protocol := newProtocol(accessKey)
	return fiscal.DisagreementOutcome{
		Kind:       fiscal.DisagreementAcknowledged,
		Protocol:   protocol,
		RawPayload: rawStatus(codeAuthorized, "Desacordo registrado", protocol),
	}, nil
}

func (s *Simulator) lookup(ctx context.Context, accessKey string) (decisionRecord, bool, error) {
	return s.get(ctx, accessKey)
}

func (s *Simulator) lookupCancel(ctx context.Context, accessKey string) (decisionRecord, bool, error) {
	return s.get(ctx, accessKey+":cancel")
}

func (s *Simulator) get(ctx context.Context, key string) (decisionRecord, bool, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return decisionRecord{}, false, err
	}
	var record decisionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return decisionRecord{}, false, fmt.Errorf("decoding decision record: %w", err)
	}
	return record, true, nil
}

// record stores a decision; when a concurrent submission won the race, the
// winning decision is returned instead
func (s *Simulator) record(ctx context.Context, accessKey string, record decisionRecord) (decisionRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return decisionRecord{}, err
	}
	fresh, err := s.store.Put(ctx, accessKey, raw, s.opts.DecisionTTL)
	if err != nil {
		return decisionRecord{}, err
	}
	if !fresh {
		winner, ok, err := s.get(ctx, accessKey)
		if err != nil {
			return decisionRecord{}, err
		}
		if ok {
			return winner, nil
		}
	}
	return record, nil
}

// recordCancel stores a cancellation decision; when a concurrent cancel
// won the race, the winning decision is returned instead
func (s *Simulator) recordCancel(ctx context.Context, accessKey string, record decisionRecord) (decisionRecord, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return decisionRecord{}, err
	}
	fresh, err := s.store.Put(ctx, accessKey+":cancel", raw, s.opts.DecisionTTL)
	if err != nil {
		return decisionRecord{}, err
	}
	if !fresh {
		winner, ok, err := s.lookupCancel(ctx, accessKey)
		if err != nil {
			return decisionRecord{}, err
		}
		if ok {
			return winner, nil
		}
	}
	return record, nil
}

func (r decisionRecord) toOutcome() fiscal.SubmissionOutcome {
	if r.Kind == string(fiscal.OutcomeRejected) {
		return fiscal.RejectedOutcome(r.ReasonCode, r.ReasonText, rawStatus(r.ReasonCode, r.ReasonText, ""))
	}
	return fiscal.AuthorizedOutcome(r.Protocol, "", rawStatus(codeAuthorized, "Autorizado o uso", r.Protocol))
}

func rawStatus(code, motive, protocol string) string {
	if protocol == "" {
		return fmt.Sprintf(`{"cStat":%q,"xMotivo":%q}`, code, motive)
	}
	return fmt.Sprintf(`{"cStat":%q,"xMotivo":%q,"nProt":%q}`, code, motive, protocol)
}

// newProtocol builds an authority protocol number from the state code and
// the current clock
func newProtocol(accessKey string) string {
	state := "35"
	if len(accessKey) >= 2 {
		state = accessKey[0:2]
	}
	return fmt.Sprintf("%s%013d", state, time.Now().UnixNano()%1_000_000_000_0000)
}
