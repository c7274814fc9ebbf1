// internal/services/threshold_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type ThresholdService struct {
	repos  *repository.Repositories
	logger *logrus.Entry
}

type ThresholdRequest struct {
	Name                    string                   `json:"name" validate:"required,max=255"`
	ThresholdType           models.ThresholdType     `json:"threshold_type" validate:"required,oneof=quantity frequency value cumulative_quantity"`
	Period                  models.ThresholdPeriod   `json:"period" validate:"required,oneof=per_transaction daily weekly monthly yearly"`
	LimitValue              decimal.Decimal          `json:"limit_value" validate:"gt=0"`
	LimitUnit               string                   `json:"limit_unit,omitempty" validate:"max=10"`
	WarningThresholdPercent *decimal.Decimal         `json:"warning_threshold_percent,omitempty"`
	AllowOverride           *bool                    `json:"allow_override,omitempty"`
	MaxOverridePercent      *decimal.Decimal         `json:"max_override_percent,omitempty"`
	SubstanceCode           *string                  `json:"substance_code,omitempty" validate:"omitempty,max=50"`
	CustomerID              *uuid.UUID               `json:"customer_id,omitempty"`
	CustomerCategory        *models.CustomerCategory `json:"customer_category,omitempty"`
	EffectiveFrom           *time.Time               `json:"effective_from,omitempty"`
	EffectiveTo             *time.Time               `json:"effective_to,omitempty"`
	Description             string                   `json:"description,omitempty"`
}

func NewThresholdService(repos *repository.Repositories) *ThresholdService {
	return &ThresholdService{
		repos:  repos,
		logger: logrus.WithField("component", "threshold_service"),
	}
}

func (s *ThresholdService) Create(ctx context.Context, req *ThresholdRequest) (*models.Threshold, error) {
	threshold := &models.Threshold{IsActive: true}
	if err := s.apply(ctx, threshold, req); err != nil {
		return nil, err
	}
	if err := s.repos.Thresholds.Create(ctx, threshold); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"threshold_id": threshold.ID,
		"type":         threshold.ThresholdType,
		"period":       threshold.Period,
	}).Info("Threshold created")
	return threshold, nil
}

func (s *ThresholdService) Update(ctx context.Context, id uuid.UUID, req *ThresholdRequest) (*models.Threshold, error) {
	threshold, err := s.repos.Thresholds.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, threshold, req); err != nil {
		return nil, err
	}
	if err := s.repos.Thresholds.Save(ctx, threshold); err != nil {
		return nil, err
	}
	return threshold, nil
}

func (s *ThresholdService) apply(ctx context.Context, t *models.Threshold, req *ThresholdRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return compliance.NewValidationFailed("invalid threshold", err)
	}

	t.Name = req.Name
	t.ThresholdType = req.ThresholdType
	t.Period = req.Period
	t.LimitValue = req.LimitValue
	t.LimitUnit = req.LimitUnit
	t.WarningThresholdPercent = decimal.NewFromInt(80)
	if req.WarningThresholdPercent != nil {
		t.WarningThresholdPercent = *req.WarningThresholdPercent
	}
	t.AllowOverride = true
	if req.AllowOverride != nil {
		t.AllowOverride = *req.AllowOverride
	}
	t.MaxOverridePercent = req.MaxOverridePercent
	t.SubstanceCode = req.SubstanceCode
	t.CustomerID = req.CustomerID
	t.CustomerCategory = req.CustomerCategory
	t.EffectiveFrom = dateRef(req.EffectiveFrom)
	t.EffectiveTo = dateRef(req.EffectiveTo)
	t.Description = req.Description

	if err := t.Validate(); err != nil {
		return compliance.NewValidationFailed(err.Error(), err)
	}
	if t.SubstanceCode != nil && *t.SubstanceCode != "" {
		if _, err := s.repos.Substances.GetByCode(ctx, *t.SubstanceCode); err != nil {
			return err
		}
	}
	if t.CustomerID != nil {
		if _, err := s.repos.Customers.GetCustomer(ctx, *t.CustomerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *ThresholdService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repos.Thresholds.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("threshold_id", id).Info("Threshold deactivated")
	return nil
}

func (s *ThresholdService) Get(ctx context.Context, id uuid.UUID) (*models.Threshold, error) {
	return s.repos.Thresholds.Get(ctx, id)
}

func (s *ThresholdService) List(ctx context.Context, filter repository.ThresholdFilter) ([]models.Threshold, error) {
	return s.repos.Thresholds.List(ctx, filter)
}
