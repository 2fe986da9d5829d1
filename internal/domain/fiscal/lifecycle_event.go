package fiscal

import (
	"github.com/google/uuid"

	"github.com/emissor/backend/internal/domain/shared"
)

// LifecycleEvent is the append-only audit record of one status transition.
// The contract is exactly one record per transition, so a submission
// attempt that fails as unavailable leaves a pair of records: the claim of
// the transient status and the rollback out of it. Rollbacks and
// informational disagreement acknowledgments are recorded like any other
// transition; records are never updated or deleted.
type LifecycleEvent struct {
	shared.BaseEntity
	DocumentID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	PreviousStatus   DocumentStatus `gorm:"size:20;not null" json:"previous_status"`
	NewStatus        DocumentStatus `gorm:"size:20;not null" json:"new_status"`
	AuthorityPayload string         `gorm:"type:text" json:"authority_payload"`
	OperatorNote     string         `gorm:"size:500" json:"operator_note"`
}

// TableName specifies the table name for GORM
func (LifecycleEvent) TableName() string {
	return "fiscal_lifecycle_events"
}

// NewLifecycleEvent creates an audit record for one transition
func NewLifecycleEvent(documentID uuid.UUID, previous, next DocumentStatus, authorityPayload, operatorNote string) *LifecycleEvent {
	return &LifecycleEvent{
		BaseEntity:       shared.NewBaseEntity(),
		DocumentID:       documentID,
		PreviousStatus:   previous,
		NewStatus:        next,
		AuthorityPayload: authorityPayload,
		OperatorNote:     operatorNote,
	}
}
