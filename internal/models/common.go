// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the primary key on the application side so the same
// models migrate on postgres and on the sqlite test databases.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
}

// DateOnly truncates t to midnight UTC. Licence and threshold validity is
// decided per calendar day, so every effective-date comparison goes through
// this helper.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Enums
type UserRole string

const (
	UserRoleComplianceOfficer UserRole = "compliance_officer"
	UserRoleResponsiblePerson UserRole = "responsible_person"
	UserRoleAdmin             UserRole = "admin"
)

// CanDecideOverrides reports whether the role may approve or reject
// compliance overrides.
func (r UserRole) CanDecideOverrides() bool {
	return r == UserRoleResponsiblePerson || r == UserRoleAdmin
}

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type CustomerCategory string

const (
	CustomerCategoryWholesalerEU        CustomerCategory = "wholesaler_eu"
	CustomerCategoryWholesalerNonEU     CustomerCategory = "wholesaler_non_eu"
	CustomerCategoryManufacturer        CustomerCategory = "manufacturer"
	CustomerCategoryPharmacy            CustomerCategory = "pharmacy"
	CustomerCategoryHospital            CustomerCategory = "hospital"
	CustomerCategoryVeterinarian        CustomerCategory = "veterinarian"
	CustomerCategoryResearchInstitution CustomerCategory = "research_institution"
)

type ApprovalStatus string

const (
	ApprovalStatusPending               ApprovalStatus = "pending"
	ApprovalStatusApproved              ApprovalStatus = "approved"
	ApprovalStatusConditionallyApproved ApprovalStatus = "conditionally_approved"
	ApprovalStatusRejected              ApprovalStatus = "rejected"
	ApprovalStatusSuspended             ApprovalStatus = "suspended"
)

type GdpQualificationStatus string

const (
	GdpStatusNotEvaluated          GdpQualificationStatus = "not_evaluated"
	GdpStatusPending               GdpQualificationStatus = "pending"
	GdpStatusApproved              GdpQualificationStatus = "approved"
	GdpStatusConditionallyApproved GdpQualificationStatus = "conditionally_approved"
	GdpStatusRejected              GdpQualificationStatus = "rejected"
	GdpStatusNotRequired           GdpQualificationStatus = "not_required"
)

type OpiumActList string

const (
	OpiumActListI    OpiumActList = "list_i"
	OpiumActListII   OpiumActList = "list_ii"
	OpiumActListNone OpiumActList = "none"
)

type HolderType string

const (
	HolderTypeCustomer HolderType = "customer"
	HolderTypeCompany  HolderType = "company"
)

type LicenceStatus string

const (
	LicenceStatusValid     LicenceStatus = "valid"
	LicenceStatusExpired   LicenceStatus = "expired"
	LicenceStatusSuspended LicenceStatus = "suspended"
	LicenceStatusRevoked   LicenceStatus = "revoked"
)

type ThresholdType string

const (
	ThresholdTypeQuantity           ThresholdType = "quantity"
	ThresholdTypeFrequency          ThresholdType = "frequency"
	ThresholdTypeValue              ThresholdType = "value"
	ThresholdTypeCumulativeQuantity ThresholdType = "cumulative_quantity"
)

type ThresholdPeriod string

const (
	ThresholdPeriodPerTransaction ThresholdPeriod = "per_transaction"
	ThresholdPeriodDaily          ThresholdPeriod = "daily"
	ThresholdPeriodWeekly         ThresholdPeriod = "weekly"
	ThresholdPeriodMonthly        ThresholdPeriod = "monthly"
	ThresholdPeriodYearly         ThresholdPeriod = "yearly"
)

type TransactionType string

const (
	TransactionTypeOrder    TransactionType = "order"
	TransactionTypeShipment TransactionType = "shipment"
	TransactionTypeReturn   TransactionType = "return"
	TransactionTypeTransfer TransactionType = "transfer"
)

type TransactionDirection string

const (
	DirectionInternal TransactionDirection = "internal"
	DirectionInbound  TransactionDirection = "inbound"
	DirectionOutbound TransactionDirection = "outbound"
)

type ValidationStatus string

const (
	ValidationStatusPending              ValidationStatus = "pending"
	ValidationStatusPassed               ValidationStatus = "passed"
	ValidationStatusFailed               ValidationStatus = "failed"
	ValidationStatusApprovedWithOverride ValidationStatus = "approved_with_override"
	ValidationStatusRejectedOverride     ValidationStatus = "rejected_override"
)

// Proceeded reports whether a transaction with this status was allowed to go
// ahead.
func (s ValidationStatus) Proceeded() bool {
	return s == ValidationStatusPassed || s == ValidationStatusApprovedWithOverride
}

type OverrideStatus string

const (
	OverrideStatusNone     OverrideStatus = "none"
	OverrideStatusPending  OverrideStatus = "pending"
	OverrideStatusApproved OverrideStatus = "approved"
	OverrideStatusRejected OverrideStatus = "rejected"
)

// StringList is a list of strings stored as a postgres text[] through
// lib/pq, falling back to the array literal in a text column elsewhere.
type StringList []string

func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *StringList) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}
