// internal/models/transaction.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Transaction struct {
	BaseModel
	ExternalReference  string               `json:"external_reference" gorm:"size:100;uniqueIndex;not null"`
	TransactionType    TransactionType      `json:"transaction_type" gorm:"type:varchar(20);not null;index"`
	Direction          TransactionDirection `json:"direction" gorm:"type:varchar(20);not null"`
	CustomerID         uuid.UUID            `json:"customer_id" gorm:"type:uuid;not null;index"`
	OriginCountry      string               `json:"origin_country" gorm:"size:2;not null"`
	DestinationCountry *string              `json:"destination_country,omitempty" gorm:"size:2"`
	TransactionDate    time.Time            `json:"transaction_date" gorm:"not null;index"`
	TotalQuantity      decimal.Decimal      `json:"total_quantity" gorm:"type:decimal(18,4);not null;default:0"`
	TotalValue         decimal.Decimal      `json:"total_value" gorm:"type:decimal(18,2);not null;default:0"`
	Currency           string               `json:"currency" gorm:"size:3;default:'EUR'"`
	ValidationStatus   ValidationStatus     `json:"validation_status" gorm:"type:varchar(30);default:'pending';index"`
	ValidatedAt        *time.Time           `json:"validated_at"`
	RequiresOverride   bool                 `json:"requires_override" gorm:"default:false"`
	Violations         ViolationRecords     `json:"violations" gorm:"type:text"`
	ComplianceWarnings StringList           `json:"compliance_warnings"`
	ComplianceErrors   StringList           `json:"compliance_errors"`

	// Override workflow
	OverrideStatus        OverrideStatus `json:"override_status" gorm:"type:varchar(20);default:'none';index"`
	OverrideDecidedBy     *uuid.UUID     `json:"override_decided_by" gorm:"type:uuid"`
	OverrideJustification string         `json:"override_justification,omitempty" gorm:"type:text"`
	OverrideDecidedAt     *time.Time     `json:"override_decided_at"`

	// Optimistic concurrency token, incremented on every status write.
	Version int `json:"version" gorm:"not null;default:1"`

	// Relationships
	Customer *Customer         `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	Lines    []TransactionLine `json:"lines" gorm:"foreignKey:TransactionID"`
}

type TransactionLine struct {
	BaseModel
	TransactionID     uuid.UUID       `json:"transaction_id" gorm:"type:uuid;not null;index"`
	LineNumber        int             `json:"line_number" gorm:"not null"`
	SubstanceCode     string          `json:"substance_code" gorm:"size:50;not null;index"`
	Quantity          decimal.Decimal `json:"quantity" gorm:"type:decimal(18,4);not null"`
	Unit              string          `json:"unit" gorm:"size:10"`
	BaseQuantity      decimal.Decimal `json:"base_quantity" gorm:"type:decimal(18,4);not null"`
	LineValue         decimal.Decimal `json:"line_value" gorm:"type:decimal(18,2);not null;default:0"`
	IsValid           bool            `json:"is_valid" gorm:"default:false"`
	ErrorCode         string          `json:"error_code,omitempty" gorm:"size:50"`
	CoveringLicenceID *uuid.UUID      `json:"covering_licence_id,omitempty" gorm:"type:uuid"`
}

// NormalizedQuantity is the quantity in the substance's base unit, falling
// back to the transaction unit when no conversion was recorded.
func (l *TransactionLine) NormalizedQuantity() decimal.Decimal {
	if l.BaseQuantity.IsZero() {
		return l.Quantity
	}
	return l.BaseQuantity
}

// ViolationRecord is the persisted form of a compliance finding.
type ViolationRecord struct {
	Code          string `json:"code"`
	Severity      string `json:"severity"`
	Overridable   bool   `json:"overridable"`
	Message       string `json:"message"`
	LineNumber    int    `json:"line_number,omitempty"`
	SubstanceCode string `json:"substance_code,omitempty"`
	LicenceNumber string `json:"licence_number,omitempty"`
}

type ViolationRecords []ViolationRecord

func (v ViolationRecords) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]ViolationRecord(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *ViolationRecords) Scan(value interface{}) error {
	var raw []byte
	switch src := value.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		raw = src
	case string:
		raw = []byte(src)
	default:
		return fmt.Errorf("unsupported violation records source type %T", value)
	}
	var records []ViolationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return err
	}
	*v = records
	return nil
}

// IsCrossBorder is true when both countries are present and differ, ignoring
// case.
func (t *Transaction) IsCrossBorder() bool {
	if t.OriginCountry == "" || t.DestinationCountry == nil || *t.DestinationCountry == "" {
		return false
	}
	return !strings.EqualFold(t.OriginCountry, *t.DestinationCountry)
}

func (t *Transaction) RequiresImportPermit() bool {
	return t.IsCrossBorder() && t.Direction == DirectionInbound
}

func (t *Transaction) RequiresExportPermit() bool {
	return t.IsCrossBorder() && t.Direction == DirectionOutbound
}

// RecalculateTotals sums line quantities and values into the header.
func (t *Transaction) RecalculateTotals() {
	qty := decimal.Zero
	value := decimal.Zero
	for i := range t.Lines {
		qty = qty.Add(t.Lines[i].NormalizedQuantity())
		value = value.Add(t.Lines[i].LineValue)
	}
	t.TotalQuantity = qty
	t.TotalValue = value
}
