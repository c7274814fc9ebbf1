// internal/repository/licence_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/models"
)

type LicenceRepository struct {
	db *gorm.DB
}

func NewLicenceRepository(db *gorm.DB) *LicenceRepository {
	return &LicenceRepository{db: db}
}

// withDetails loads what coverage resolution needs.
func (r *LicenceRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("LicenceType").
		Preload("SubstanceMappings", func(db *gorm.DB) *gorm.DB {
			return db.Order("substance_code ASC")
		})
}

func (r *LicenceRepository) GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	var licence models.Licence
	if err := r.withDetails(ctx).Preload("Documents").First(&licence, "id = ?", id).Error; err != nil {
		return nil, translate(err, "licence", id)
	}
	return &licence, nil
}

func (r *LicenceRepository) ListByHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) ([]models.Licence, error) {
	var licences []models.Licence
	if err := r.withDetails(ctx).
		Where("holder_type = ? AND holder_id = ?", holderType, holderID).
		Order("issue_date ASC, licence_number ASC").
		Find(&licences).Error; err != nil {
		return nil, fmt.Errorf("failed to list licences for %s %s: %w", holderType, holderID, err)
	}
	return licences, nil
}

// ListBySubstance returns licences that cover the substance, either through a
// mapping or by covering all substances.
func (r *LicenceRepository) ListBySubstance(ctx context.Context, substanceCode string) ([]models.Licence, error) {
	mapped := r.db.Model(&models.LicenceSubstanceMapping{}).
		Select("licence_id").
		Where("substance_code = ?", substanceCode)

	var licences []models.Licence
	if err := r.withDetails(ctx).
		Where("covers_all_substances = ? OR id IN (?)", true, mapped).
		Order("licence_number ASC").
		Find(&licences).Error; err != nil {
		return nil, fmt.Errorf("failed to list licences for substance %s: %w", substanceCode, err)
	}
	return licences, nil
}

func (r *LicenceRepository) ListActive(ctx context.Context) ([]models.Licence, error) {
	var licences []models.Licence
	if err := r.withDetails(ctx).
		Where("status = ?", models.LicenceStatusValid).
		Order("licence_number ASC").
		Find(&licences).Error; err != nil {
		return nil, fmt.Errorf("failed to list active licences: %w", err)
	}
	return licences, nil
}

// ListLapsed returns licences still marked valid whose expiry date lies
// before asOf.
func (r *LicenceRepository) ListLapsed(ctx context.Context, asOf time.Time) ([]models.Licence, error) {
	var licences []models.Licence
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date < ?",
			models.LicenceStatusValid, models.DateOnly(asOf)).
		Order("expiry_date ASC").
		Find(&licences).Error; err != nil {
		return nil, fmt.Errorf("failed to list lapsed licences: %w", err)
	}
	return licences, nil
}

// Create stores the licence together with its substance mappings.
func (r *LicenceRepository) Create(ctx context.Context, licence *models.Licence) error {
	if err := r.db.WithContext(ctx).Omit("LicenceType", "Documents").Create(licence).Error; err != nil {
		return fmt.Errorf("failed to create licence: %w", err)
	}
	return nil
}

// Update saves the licence header and replaces its substance mappings.
func (r *LicenceRepository) Update(ctx context.Context, licence *models.Licence) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("LicenceType", "SubstanceMappings", "Documents").Save(licence).Error; err != nil {
			return fmt.Errorf("failed to update licence: %w", err)
		}
		if err := tx.Unscoped().Where("licence_id = ?", licence.ID).Delete(&models.LicenceSubstanceMapping{}).Error; err != nil {
			return fmt.Errorf("failed to clear substance mappings: %w", err)
		}
		for i := range licence.SubstanceMappings {
			m := &licence.SubstanceMappings[i]
			m.ID = uuid.Nil
			m.LicenceID = licence.ID
			if err := tx.Create(m).Error; err != nil {
				return fmt.Errorf("failed to store substance mapping %s: %w", m.SubstanceCode, err)
			}
		}
		return nil
	})
}

func (r *LicenceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.LicenceStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Licence{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update licence status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "licence", id)
	}
	return nil
}

// MarkExpired flips the given licences from valid to expired and returns how
// many changed.
func (r *LicenceRepository) MarkExpired(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.Licence{}).
		Where("id IN ? AND status = ?", ids, models.LicenceStatusValid).
		Update("status", models.LicenceStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark licences expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *LicenceRepository) UpdateDates(ctx context.Context, id uuid.UUID, issue time.Time, expiry *time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Licence{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"issue_date":  issue,
			"expiry_date": expiry,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update licence dates: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "licence", id)
	}
	return nil
}

func (r *LicenceRepository) CreateCorrection(ctx context.Context, correction *models.LicenceCorrection) error {
	if err := r.db.WithContext(ctx).Create(correction).Error; err != nil {
		return fmt.Errorf("failed to record licence correction: %w", err)
	}
	return nil
}

func (r *LicenceRepository) ListCorrections(ctx context.Context, licenceID uuid.UUID) ([]models.LicenceCorrection, error) {
	var corrections []models.LicenceCorrection
	if err := r.db.WithContext(ctx).
		Where("licence_id = ?", licenceID).
		Order("correction_date DESC, created_at DESC").
		Find(&corrections).Error; err != nil {
		return nil, fmt.Errorf("failed to list licence corrections: %w", err)
	}
	return corrections, nil
}

func (r *LicenceRepository) GetType(ctx context.Context, id uuid.UUID) (*models.LicenceType, error) {
	var licenceType models.LicenceType
	if err := r.db.WithContext(ctx).First(&licenceType, "id = ?", id).Error; err != nil {
		return nil, translate(err, "licence type", id)
	}
	return &licenceType, nil
}

func (r *LicenceRepository) ListTypes(ctx context.Context) ([]models.LicenceType, error) {
	var types []models.LicenceType
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to list licence types: %w", err)
	}
	return types, nil
}

func (r *LicenceRepository) AddDocument(ctx context.Context, doc *models.LicenceDocument) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to store licence document: %w", err)
	}
	return nil
}

func (r *LicenceRepository) GetDocument(ctx context.Context, licenceID, documentID uuid.UUID) (*models.LicenceDocument, error) {
	var doc models.LicenceDocument
	if err := r.db.WithContext(ctx).
		Where("id = ? AND licence_id = ?", documentID, licenceID).
		First(&doc).Error; err != nil {
		return nil, translate(err, "licence document", documentID)
	}
	return &doc, nil
}

func (r *LicenceRepository) DeleteDocument(ctx context.Context, doc *models.LicenceDocument) error {
	if err := r.db.WithContext(ctx).Delete(doc).Error; err != nil {
		return fmt.Errorf("failed to delete licence document: %w", err)
	}
	return nil
}
