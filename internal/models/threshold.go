// internal/models/threshold.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrThresholdLimitNotPositive      = errors.New("threshold limit value must be greater than zero")
	ErrThresholdWarningOutOfRange     = errors.New("threshold warning percentage must be between 0 and 100")
	ErrThresholdOverrideCeilingTooLow = errors.New("threshold override ceiling must exceed 100 percent")
	ErrThresholdEffectiveWindow       = errors.New("threshold effective_to precedes effective_from")
)

var hundred = decimal.NewFromInt(100)

type Threshold struct {
	BaseModel
	Name                    string            `json:"name" gorm:"size:255;not null"`
	ThresholdType           ThresholdType     `json:"threshold_type" gorm:"type:varchar(30);not null;index"`
	Period                  ThresholdPeriod   `json:"period" gorm:"type:varchar(20);not null"`
	LimitValue              decimal.Decimal   `json:"limit_value" gorm:"type:decimal(18,4);not null"`
	LimitUnit               string            `json:"limit_unit" gorm:"size:10"`
	WarningThresholdPercent decimal.Decimal   `json:"warning_threshold_percent" gorm:"type:decimal(5,2);not null;default:80"`
	AllowOverride           bool              `json:"allow_override" gorm:"default:true"`
	MaxOverridePercent      *decimal.Decimal  `json:"max_override_percent,omitempty" gorm:"type:decimal(7,2)"`
	SubstanceCode           *string           `json:"substance_code,omitempty" gorm:"size:50;index"`
	CustomerID              *uuid.UUID        `json:"customer_id,omitempty" gorm:"type:uuid;index"`
	CustomerCategory        *CustomerCategory `json:"customer_category,omitempty" gorm:"type:varchar(30);index"`
	EffectiveFrom           *time.Time        `json:"effective_from,omitempty"`
	EffectiveTo             *time.Time        `json:"effective_to,omitempty"`
	IsActive                bool              `json:"is_active" gorm:"default:true;index"`
	Description             string            `json:"description,omitempty" gorm:"type:text"`
}

func (t *Threshold) Validate() error {
	if !t.LimitValue.IsPositive() {
		return ErrThresholdLimitNotPositive
	}
	if t.WarningThresholdPercent.IsNegative() || t.WarningThresholdPercent.GreaterThan(hundred) {
		return ErrThresholdWarningOutOfRange
	}
	if t.MaxOverridePercent != nil && !t.MaxOverridePercent.GreaterThan(hundred) {
		return ErrThresholdOverrideCeilingTooLow
	}
	if t.EffectiveFrom != nil && t.EffectiveTo != nil && t.EffectiveTo.Before(*t.EffectiveFrom) {
		return ErrThresholdEffectiveWindow
	}
	return nil
}

// IsEffective reports whether date falls within [EffectiveFrom, EffectiveTo].
// A missing bound is unbounded on that side.
func (t *Threshold) IsEffective(date time.Time) bool {
	day := DateOnly(date)
	if t.EffectiveFrom != nil && DateOnly(*t.EffectiveFrom).After(day) {
		return false
	}
	if t.EffectiveTo != nil && DateOnly(*t.EffectiveTo).Before(day) {
		return false
	}
	return true
}

// AppliesToCustomer matches on the specific customer when one is set,
// otherwise on the customer category. Neither set means every customer.
func (t *Threshold) AppliesToCustomer(customerID uuid.UUID, category CustomerCategory) bool {
	if t.CustomerID != nil {
		return *t.CustomerID == customerID
	}
	if t.CustomerCategory != nil {
		return *t.CustomerCategory == category
	}
	return true
}

func (t *Threshold) AppliesToSubstance(code string) bool {
	return t.SubstanceCode == nil || *t.SubstanceCode == "" || *t.SubstanceCode == code
}

// IsExceeded is strictly greater-than; usage equal to the limit is allowed.
func (t *Threshold) IsExceeded(usage decimal.Decimal) bool {
	return usage.GreaterThan(t.LimitValue)
}

func (t *Threshold) WarningLevel() decimal.Decimal {
	return t.LimitValue.Mul(t.WarningThresholdPercent).Div(hundred)
}

// IsWarning reports usage inside the warning band but not over the limit.
func (t *Threshold) IsWarning(usage decimal.Decimal) bool {
	return !t.IsExceeded(usage) && usage.GreaterThanOrEqual(t.WarningLevel())
}

// GetUsagePercent returns usage as a percentage of the limit. A zero limit
// reports 100.
func (t *Threshold) GetUsagePercent(usage decimal.Decimal) decimal.Decimal {
	if t.LimitValue.IsZero() {
		return hundred
	}
	return usage.Div(t.LimitValue).Mul(hundred)
}

// OverrideCeiling returns the absolute usage above which no override is
// possible, and false when the threshold has no ceiling.
func (t *Threshold) OverrideCeiling() (decimal.Decimal, bool) {
	if t.MaxOverridePercent == nil {
		return decimal.Zero, false
	}
	return t.LimitValue.Mul(*t.MaxOverridePercent).Div(hundred), true
}

// CanOverride reports whether usage at the requested amount may be approved
// through the override workflow.
func (t *Threshold) CanOverride(requested decimal.Decimal) bool {
	if !t.AllowOverride {
		return false
	}
	if ceiling, ok := t.OverrideCeiling(); ok && requested.GreaterThan(ceiling) {
		return false
	}
	return true
}
