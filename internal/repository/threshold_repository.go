// internal/repository/threshold_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/models"
)

type ThresholdRepository struct {
	db *gorm.DB
}

type ThresholdFilter struct {
	Type             *models.ThresholdType
	SubstanceCode    string
	CustomerCategory *models.CustomerCategory
	ActiveOnly       bool
}

func NewThresholdRepository(db *gorm.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// ListActive returns the active thresholds. Effective dates are left to the
// evaluator, which knows the transaction date.
func (r *ThresholdRepository) ListActive(ctx context.Context) ([]models.Threshold, error) {
	return r.List(ctx, ThresholdFilter{ActiveOnly: true})
}

func (r *ThresholdRepository) List(ctx context.Context, filter ThresholdFilter) ([]models.Threshold, error) {
	query := r.db.WithContext(ctx).Order("name ASC, id ASC")
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Type != nil {
		query = query.Where("threshold_type = ?", *filter.Type)
	}
	if filter.SubstanceCode != "" {
		query = query.Where("substance_code = ?", filter.SubstanceCode)
	}
	if filter.CustomerCategory != nil {
		query = query.Where("customer_category = ?", *filter.CustomerCategory)
	}

	var thresholds []models.Threshold
	if err := query.Find(&thresholds).Error; err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	return thresholds, nil
}

func (r *ThresholdRepository) Get(ctx context.Context, id uuid.UUID) (*models.Threshold, error) {
	var threshold models.Threshold
	if err := r.db.WithContext(ctx).First(&threshold, "id = ?", id).Error; err != nil {
		return nil, translate(err, "threshold", id)
	}
	return &threshold, nil
}

func (r *ThresholdRepository) Create(ctx context.Context, threshold *models.Threshold) error {
	if err := r.db.WithContext(ctx).Create(threshold).Error; err != nil {
		return fmt.Errorf("failed to create threshold: %w", err)
	}
	return nil
}

func (r *ThresholdRepository) Save(ctx context.Context, threshold *models.Threshold) error {
	if err := r.db.WithContext(ctx).Save(threshold).Error; err != nil {
		return fmt.Errorf("failed to save threshold: %w", err)
	}
	return nil
}

func (r *ThresholdRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Threshold{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate threshold: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "threshold", id)
	}
	return nil
}
