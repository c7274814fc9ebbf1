// internal/models/licence.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrLicenceExpiryBeforeIssue  = errors.New("licence expiry date precedes issue date")
	ErrLicenceActivitiesExceeded = errors.New("licence permits activities outside its licence type")
)

type Activity string

const (
	ActivityPossess     Activity = "possess"
	ActivityStore       Activity = "store"
	ActivityDistribute  Activity = "distribute"
	ActivityImport      Activity = "import"
	ActivityExport      Activity = "export"
	ActivityManufacture Activity = "manufacture"
	ActivityDispense    Activity = "dispense"
)

// ActivitySet is a set of permitted activities persisted as a JSON array.
type ActivitySet []Activity

func NewActivitySet(activities ...Activity) ActivitySet {
	return ActivitySet(activities).Normalize()
}

func (s ActivitySet) Contains(a Activity) bool {
	for _, existing := range s {
		if existing == a {
			return true
		}
	}
	return false
}

// IsSubsetOf reports whether every activity in s is also in other.
func (s ActivitySet) IsSubsetOf(other ActivitySet) bool {
	for _, a := range s {
		if !other.Contains(a) {
			return false
		}
	}
	return true
}

// Normalize returns a sorted copy without duplicates.
func (s ActivitySet) Normalize() ActivitySet {
	seen := make(map[Activity]struct{}, len(s))
	out := make(ActivitySet, 0, len(s))
	for _, a := range s {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s ActivitySet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Activity(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *ActivitySet) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported activity set source type %T", value)
	}
	var activities []Activity
	if err := json.Unmarshal(raw, &activities); err != nil {
		return err
	}
	*s = activities
	return nil
}

type LicenceType struct {
	BaseModel
	Name                string      `json:"name" gorm:"size:100;uniqueIndex;not null"`
	IssuingAuthority    string      `json:"issuing_authority" gorm:"size:100"`
	PermittedActivities ActivitySet `json:"permitted_activities" gorm:"type:text;not null"`
	IsPermit            bool        `json:"is_permit" gorm:"default:false"`
	Description         string      `json:"description,omitempty" gorm:"type:text"`
}

type Licence struct {
	BaseModel
	LicenceNumber       string        `json:"licence_number" gorm:"size:100;uniqueIndex;not null"`
	LicenceTypeID       uuid.UUID     `json:"licence_type_id" gorm:"type:uuid;not null;index"`
	HolderType          HolderType    `json:"holder_type" gorm:"type:varchar(20);not null;index:idx_licence_holder"`
	HolderID            uuid.UUID     `json:"holder_id" gorm:"type:uuid;not null;index:idx_licence_holder"`
	IssuingAuthority    string        `json:"issuing_authority" gorm:"size:100"`
	IssueDate           time.Time     `json:"issue_date" gorm:"not null"`
	ExpiryDate          *time.Time    `json:"expiry_date"`
	Status              LicenceStatus `json:"status" gorm:"type:varchar(20);default:'valid';index"`
	PermittedActivities ActivitySet   `json:"permitted_activities" gorm:"type:text;not null"`
	CoversAllSubstances bool          `json:"covers_all_substances" gorm:"default:false"`
	Notes               string        `json:"notes,omitempty" gorm:"type:text"`

	// Relationships
	LicenceType       *LicenceType              `json:"licence_type,omitempty" gorm:"foreignKey:LicenceTypeID"`
	SubstanceMappings []LicenceSubstanceMapping `json:"substance_mappings,omitempty" gorm:"foreignKey:LicenceID"`
	Documents         []LicenceDocument         `json:"documents,omitempty" gorm:"foreignKey:LicenceID"`
}

// LicenceSubstanceMapping links a licence to a substance it covers and may cap
// the quantity allowed per transaction.
type LicenceSubstanceMapping struct {
	BaseModel
	LicenceID                 uuid.UUID        `json:"licence_id" gorm:"type:uuid;not null;index"`
	SubstanceCode             string           `json:"substance_code" gorm:"size:50;not null;index"`
	MaxQuantityPerTransaction *decimal.Decimal `json:"max_quantity_per_transaction,omitempty" gorm:"type:decimal(18,4)"`
	MaxQuantityPerPeriod      *decimal.Decimal `json:"max_quantity_per_period,omitempty" gorm:"type:decimal(18,4)"`
	CapPeriod                 *ThresholdPeriod `json:"cap_period,omitempty" gorm:"type:varchar(20)"`
}

// PeriodCap returns the calendar period cap of the mapping, if one is set.
func (m *LicenceSubstanceMapping) PeriodCap() (ThresholdPeriod, decimal.Decimal, bool) {
	if m.MaxQuantityPerPeriod == nil || m.CapPeriod == nil || *m.CapPeriod == ThresholdPeriodPerTransaction {
		return "", decimal.Zero, false
	}
	return *m.CapPeriod, *m.MaxQuantityPerPeriod, true
}

// LicenceCorrection records a retroactive change to a licence's effective or
// expiry date.
type LicenceCorrection struct {
	BaseModel
	LicenceID              uuid.UUID  `json:"licence_id" gorm:"type:uuid;not null;index"`
	CorrectionDate         time.Time  `json:"correction_date" gorm:"not null"`
	OriginalEffectiveDate  *time.Time `json:"original_effective_date"`
	CorrectedEffectiveDate *time.Time `json:"corrected_effective_date"`
	OriginalExpiryDate     *time.Time `json:"original_expiry_date"`
	CorrectedExpiryDate    *time.Time `json:"corrected_expiry_date"`
	Reason                 string     `json:"reason" gorm:"type:text;not null"`
	CorrectedBy            uuid.UUID  `json:"corrected_by" gorm:"type:uuid;not null"`
	ImpactedTransactions   int        `json:"impacted_transactions"`
}

type LicenceDocument struct {
	BaseModel
	LicenceID  uuid.UUID `json:"licence_id" gorm:"type:uuid;not null;index"`
	FileName   string    `json:"file_name" gorm:"size:255;not null"`
	StorageKey string    `json:"storage_key" gorm:"size:512;not null"`
	URL        string    `json:"url" gorm:"size:1024"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type" gorm:"size:100"`
	Checksum   string    `json:"checksum" gorm:"size:64"`
	UploadedBy uuid.UUID `json:"uploaded_by" gorm:"type:uuid"`
}

// Validate checks the licence's internal consistency. The activity check only
// runs when the licence type is loaded.
func (l *Licence) Validate() error {
	if l.ExpiryDate != nil && DateOnly(*l.ExpiryDate).Before(DateOnly(l.IssueDate)) {
		return ErrLicenceExpiryBeforeIssue
	}
	if l.LicenceType != nil && !l.PermittedActivities.IsSubsetOf(l.LicenceType.PermittedActivities) {
		return ErrLicenceActivitiesExceeded
	}
	return nil
}

// IsEffectiveOn reports whether date falls within the licence's issue and
// expiry dates, inclusive. Status is not considered.
func (l *Licence) IsEffectiveOn(date time.Time) bool {
	return EffectiveBetween(l.IssueDate, l.ExpiryDate, date)
}

// IsExpiredOn reports whether the licence's expiry date lies before date.
func (l *Licence) IsExpiredOn(date time.Time) bool {
	return l.ExpiryDate != nil && DateOnly(*l.ExpiryDate).Before(DateOnly(date))
}

// CoversSubstance reports whether the licence applies to the substance code.
func (l *Licence) CoversSubstance(code string) bool {
	if l.CoversAllSubstances {
		return true
	}
	return l.MappingFor(code) != nil
}

func (l *Licence) MappingFor(code string) *LicenceSubstanceMapping {
	for i := range l.SubstanceMappings {
		if l.SubstanceMappings[i].SubstanceCode == code {
			return &l.SubstanceMappings[i]
		}
	}
	return nil
}

// EffectiveBetween is the shared effective-date test: issue <= date and, when
// an expiry is set, date <= expiry, compared per calendar day.
func EffectiveBetween(issue time.Time, expiry *time.Time, date time.Time) bool {
	day := DateOnly(date)
	if DateOnly(issue).After(day) {
		return false
	}
	if expiry != nil && DateOnly(*expiry).Before(day) {
		return false
	}
	return true
}
