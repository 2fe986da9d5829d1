package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emissor/backend/internal/domain/fiscal"
	"github.com/emissor/backend/internal/domain/shared"
)

// GormFiscalDocumentRepository is the GORM implementation of the fiscal
// document repository
type GormFiscalDocumentRepository struct {
	db *gorm.DB
}

// NewGormFiscalDocumentRepository creates a new repository
func NewGormFiscalDocumentRepository(db *gorm.DB) *GormFiscalDocumentRepository {
	return &GormFiscalDocumentRepository{db: db}
}

// documentCounter allocates sequential document numbers per issuer,
// series and type
type documentCounter struct {
	CompanyID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	DocumentType string    `gorm:"size:10;primaryKey"`
	Series       int       `gorm:"primaryKey"`
	NextNumber   int64     `gorm:"not null"`
}

func (documentCounter) TableName() string {
	return "fiscal_document_counters"
}

// FindByID loads a document with its items
func (r *GormFiscalDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*fiscal.FiscalDocument, error) {
	var doc fiscal.FiscalDocument
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&doc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// FindByIDForCompany loads a document scoped to the issuing company
func (r *GormFiscalDocumentRepository) FindByIDForCompany(ctx context.Context, companyID, id uuid.UUID) (*fiscal.FiscalDocument, error) {
	var doc fiscal.FiscalDocument
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&doc, "id = ? AND company_id = ?", id, companyID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// FindByAccessKey loads a document by its authorized or attempted key
func (r *GormFiscalDocumentRepository) FindByAccessKey(ctx context.Context, accessKey string) (*fiscal.FiscalDocument, error) {
	var doc fiscal.FiscalDocument
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&doc, "access_key = ? OR last_attempt_key = ?", accessKey, accessKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// FindAllForCompany returns a page of documents, optionally filtered by
// status and document type
func (r *GormFiscalDocumentRepository) FindAllForCompany(ctx context.Context, companyID uuid.UUID, filter shared.Filter) (shared.Paginated[fiscal.FiscalDocument], error) {
	query := r.db.WithContext(ctx).Model(&fiscal.FiscalDocument{}).Where("company_id = ?", companyID)

	if status, ok := filter.Filters["status"]; ok && status != "" {
		query = query.Where("status = ?", status)
	}
	if docType, ok := filter.Filters["document_type"]; ok && docType != "" {
		query = query.Where("document_type = ?", docType)
	}
	if filter.Search != "" {
		query = query.Where("access_key = ? OR counterparty_legal_name ILIKE ?", filter.Search, "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[fiscal.FiscalDocument]{}, err
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	orderDir := filter.OrderDir
	if orderDir != "asc" {
		orderDir = "desc"
	}

	var docs []fiscal.FiscalDocument
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order(orderBy + " " + orderDir).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&docs).Error
	if err != nil {
		return shared.Paginated[fiscal.FiscalDocument]{}, err
	}
	return shared.NewPaginated(docs, total, filter.Page, filter.PageSize), nil
}

// FindStuck returns documents left in a transient status longer than the
// given age
func (r *GormFiscalDocumentRepository) FindStuck(ctx context.Context, olderThan time.Duration) ([]fiscal.FiscalDocument, error) {
	cutoff := time.Now().Add(-olderThan)
	var docs []fiscal.FiscalDocument
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("status IN ? AND updated_at < ?", []fiscal.DocumentStatus{fiscal.StatusSubmitting, fiscal.StatusCancelling}, cutoff).
		Find(&docs).Error
	return docs, err
}

// Save inserts a new document aggregate with its items
func (r *GormFiscalDocumentRepository) Save(ctx context.Context, doc *fiscal.FiscalDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// SaveWithLock persists the aggregate under an optimistic lock on the
// version column. A stale version yields CONCURRENCY_CONFLICT.
func (r *GormFiscalDocumentRepository) SaveWithLock(ctx context.Context, doc *fiscal.FiscalDocument) error {
	currentVersion := doc.GetVersion()
	doc.IncrementVersion()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&fiscal.FiscalDocument{}).
			Where("id = ? AND version = ?", doc.ID, currentVersion).
			Select("*").Omit("id", "created_at", "Items").
			Updates(doc)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		if len(doc.Items) > 0 {
			if err := tx.Where("document_id = ?", doc.ID).Delete(&fiscal.DocumentItem{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&doc.Items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		doc.Version = currentVersion
		return err
	}
	return nil
}

// TransitionStatus is the atomic check-and-set guarding in-flight
// transitions: one conditional update that succeeds only when the current
// status equals from. Zero rows affected means another caller already
// holds the transition.
func (r *GormFiscalDocumentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to fiscal.DocumentStatus) error {
	res := r.db.WithContext(ctx).Model(&fiscal.FiscalDocument{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrAlreadyInProgress
	}
	return nil
}

// NextNumber allocates the next sequential document number
func (r *GormFiscalDocumentRepository) NextNumber(ctx context.Context, companyID uuid.UUID, docType fiscal.DocumentType, series int) (int64, error) {
	var allocated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter documentCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&counter, "company_id = ? AND document_type = ? AND series = ?", companyID, docType.String(), series).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = documentCounter{
				CompanyID:    companyID,
				DocumentType: docType.String(),
				Series:       series,
				NextNumber:   1,
			}
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		allocated = counter.NextNumber
		counter.NextNumber++
		return tx.Model(&documentCounter{}).
			Where("company_id = ? AND document_type = ? AND series = ?", companyID, docType.String(), series).
			Update("next_number", counter.NextNumber).Error
	})
	return allocated, err
}

// Delete removes a document; only drafts should ever be deleted
func (r *GormFiscalDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, fiscal.StatusDraft).
		Delete(&fiscal.FiscalDocument{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrInvalidState
	}
	return nil
}
