// internal/repository/substance_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/models"
)

type SubstanceRepository struct {
	db *gorm.DB
}

func NewSubstanceRepository(db *gorm.DB) *SubstanceRepository {
	return &SubstanceRepository{db: db}
}

func (r *SubstanceRepository) GetByCode(ctx context.Context, code string) (*models.Substance, error) {
	var substance models.Substance
	if err := r.db.WithContext(ctx).Where("code = ?", strings.TrimSpace(code)).First(&substance).Error; err != nil {
		return nil, translate(err, "substance", code)
	}
	return &substance, nil
}

func (r *SubstanceRepository) Create(ctx context.Context, substance *models.Substance) error {
	if err := r.db.WithContext(ctx).Create(substance).Error; err != nil {
		return fmt.Errorf("failed to create substance: %w", err)
	}
	return nil
}

func (r *SubstanceRepository) Save(ctx context.Context, substance *models.Substance) error {
	if err := r.db.WithContext(ctx).Save(substance).Error; err != nil {
		return fmt.Errorf("failed to save substance: %w", err)
	}
	return nil
}

// List returns substances ordered by code, optionally only the active ones.
func (r *SubstanceRepository) List(ctx context.Context, activeOnly bool) ([]models.Substance, error) {
	query := r.db.WithContext(ctx).Order("code ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var substances []models.Substance
	if err := query.Find(&substances).Error; err != nil {
		return nil, fmt.Errorf("failed to list substances: %w", err)
	}
	return substances, nil
}
