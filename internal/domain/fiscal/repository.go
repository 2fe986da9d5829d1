package fiscal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emissor/backend/internal/domain/shared"
)

// FiscalDocumentRepository defines persistence for fiscal documents
type FiscalDocumentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FiscalDocument, error)
	FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*FiscalDocument, error)
	FindByAccessKey(ctx context.Context, accessKey string) (*FiscalDocument, error)
	FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter shared.Filter) (shared.Paginated[FiscalDocument], error)

	// FindStuck returns documents left in a transient status longer than
	// the given age; used by the startup recovery sweep
	FindStuck(ctx context.Context, olderThan time.Duration) ([]FiscalDocument, error)

	Save(ctx context.Context, doc *FiscalDocument) error

	// SaveWithLock persists with an optimistic lock on the aggregate
	// version; a stale version yields CONCURRENCY_CONFLICT
	SaveWithLock(ctx context.Context, doc *FiscalDocument) error

	// TransitionStatus performs the atomic check-and-set that guards
	// at-most-one-in-flight transitions: a single conditional update that
	// succeeds only when the current status equals from. Zero rows
	// affected means another caller holds the transition.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to DocumentStatus) error

	// NextNumber allocates the next sequential document number for an
	// issuer, series and type
	NextNumber(ctx context.Context, companyID uuid.UUID, docType DocumentType, series int) (int64, error)

	Delete(ctx context.Context, id uuid.UUID) error
}

// LifecycleEventRepository persists the append-only audit trail
type LifecycleEventRepository interface {
	Append(ctx context.Context, event *LifecycleEvent) error
	FindByDocument(ctx context.Context, documentID uuid.UUID) ([]LifecycleEvent, error)
}
