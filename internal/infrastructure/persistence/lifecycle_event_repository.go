package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emissor/backend/internal/domain/fiscal"
)

// GormLifecycleEventRepository persists the append-only audit trail.
// Records are only ever inserted; there is no update or delete path.
type GormLifecycleEventRepository struct {
	db *gorm.DB
}

// NewGormLifecycleEventRepository creates a new repository
func NewGormLifecycleEventRepository(db *gorm.DB) *GormLifecycleEventRepository {
	return &GormLifecycleEventRepository{db: db}
}

// Append inserts one audit record
func (r *GormLifecycleEventRepository) Append(ctx context.Context, event *fiscal.LifecycleEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByDocument returns the full trail of a document in insertion order
func (r *GormLifecycleEventRepository) FindByDocument(ctx context.Context, documentID uuid.UUID) ([]fiscal.LifecycleEvent, error) {
	var events []fiscal.LifecycleEvent
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
