// internal/services/substance_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type SubstanceService struct {
	repos   *repository.Repositories
	lookups *LookupProvider
}

type SubstanceRequest struct {
	Code              string              `json:"code" validate:"required,max=50"`
	Name              string              `json:"name" validate:"required,max=255"`
	OpiumActList      models.OpiumActList `json:"opium_act_list,omitempty" validate:"omitempty,oneof=none list_i list_ii"`
	PrecursorCategory string              `json:"precursor_category,omitempty" validate:"max=20"`
	BaseUnit          string              `json:"base_unit,omitempty" validate:"omitempty,max=10"`
	IsActive          *bool               `json:"is_active,omitempty"`
}

func NewSubstanceService(repos *repository.Repositories, lookups *LookupProvider) *SubstanceService {
	return &SubstanceService{repos: repos, lookups: lookups}
}

func (s *SubstanceService) Create(ctx context.Context, req *SubstanceRequest) (*models.Substance, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid substance", err)
	}
	code := strings.TrimSpace(req.Code)
	if _, err := s.repos.Substances.GetByCode(ctx, code); err == nil {
		return nil, compliance.NewInvalidOperation("substance %s already exists", code)
	} else if !errors.Is(err, compliance.ErrNotFound) {
		return nil, err
	}

	substance := &models.Substance{Code: code, IsActive: true}
	if err := applySubstance(substance, req); err != nil {
		return nil, err
	}
	if err := s.repos.Substances.Create(ctx, substance); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"code":       substance.Code,
		"controlled": substance.IsControlled(),
	}).Info("Substance registered")
	return substance, nil
}

// Update changes everything but the code.
func (s *SubstanceService) Update(ctx context.Context, code string, req *SubstanceRequest) (*models.Substance, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid substance", err)
	}
	substance, err := s.repos.Substances.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := applySubstance(substance, req); err != nil {
		return nil, err
	}
	if err := s.repos.Substances.Save(ctx, substance); err != nil {
		return nil, err
	}
	s.lookups.InvalidateSubstance(ctx, substance.Code)
	return substance, nil
}

func applySubstance(substance *models.Substance, req *SubstanceRequest) error {
	substance.Name = req.Name
	substance.OpiumActList = req.OpiumActList
	if substance.OpiumActList == "" {
		substance.OpiumActList = models.OpiumActListNone
	}
	substance.PrecursorCategory = req.PrecursorCategory
	if req.BaseUnit != "" {
		if !models.IsKnownUnit(req.BaseUnit) {
			return compliance.NewValidationFailed("unknown base unit "+req.BaseUnit, nil)
		}
		substance.BaseUnit = strings.ToLower(req.BaseUnit)
	}
	if substance.BaseUnit == "" {
		substance.BaseUnit = "g"
	}
	if req.IsActive != nil {
		substance.IsActive = *req.IsActive
	}
	return nil
}

func (s *SubstanceService) GetByCode(ctx context.Context, code string) (*models.Substance, error) {
	return s.repos.Substances.GetByCode(ctx, code)
}

func (s *SubstanceService) List(ctx context.Context, activeOnly bool) ([]models.Substance, error) {
	return s.repos.Substances.List(ctx, activeOnly)
}
