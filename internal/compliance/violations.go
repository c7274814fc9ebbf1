// internal/compliance/violations.go
package compliance

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/substance-compliance/internal/models"
)

type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

var severityNames = [...]string{
	SeverityInfo:     "info",
	SeverityWarning:  "warning",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	if int(s) >= len(severityNames) {
		return nil, fmt.Errorf("unknown severity %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	for i, name := range severityNames {
		if name == string(text) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// ViolationCode is the closed set of compliance findings. The text form of
// each code is a stable contract with reporting and audit consumers.
type ViolationCode uint8

const (
	CodeLicenceExpired ViolationCode = iota + 1
	CodeLicenceMissing
	CodeLicenceSuspended
	CodeLicenceRevoked
	CodeLicenceScopeInsufficient
	CodeSubstanceNotAuthorized
	CodeThresholdExceeded
	CodeMissingPermit
	CodeCustomerSuspended
	CodeCustomerNotApproved
	CodeGdpNotQualified
	CodeThresholdWarning
	CodeCustomerConditionallyApproved

	codeCount
)

type codeInfo struct {
	name        string
	severity    Severity
	overridable bool
}

var catalog = [codeCount]codeInfo{
	CodeLicenceExpired:                {"LICENCE_EXPIRED", SeverityCritical, true},
	CodeLicenceMissing:                {"LICENCE_MISSING", SeverityCritical, true},
	CodeLicenceSuspended:              {"LICENCE_SUSPENDED", SeverityCritical, true},
	CodeLicenceRevoked:                {"LICENCE_REVOKED", SeverityCritical, true},
	CodeLicenceScopeInsufficient:      {"LICENCE_SCOPE_INSUFFICIENT", SeverityCritical, true},
	CodeSubstanceNotAuthorized:        {"SUBSTANCE_NOT_AUTHORIZED", SeverityCritical, true},
	CodeThresholdExceeded:             {"THRESHOLD_EXCEEDED", SeverityCritical, true},
	CodeMissingPermit:                 {"MISSING_PERMIT", SeverityCritical, true},
	CodeCustomerSuspended:             {"CUSTOMER_SUSPENDED", SeverityCritical, false},
	CodeCustomerNotApproved:           {"CUSTOMER_NOT_APPROVED", SeverityCritical, false},
	CodeGdpNotQualified:               {"GDP_NOT_QUALIFIED", SeverityWarning, false},
	CodeThresholdWarning:              {"THRESHOLD_WARNING", SeverityWarning, false},
	CodeCustomerConditionallyApproved: {"CUSTOMER_CONDITIONALLY_APPROVED", SeverityInfo, false},
}

// AllViolationCodes lists every code in declaration order.
func AllViolationCodes() []ViolationCode {
	codes := make([]ViolationCode, 0, codeCount-1)
	for c := CodeLicenceExpired; c < codeCount; c++ {
		codes = append(codes, c)
	}
	return codes
}

func (c ViolationCode) valid() bool {
	return c > 0 && c < codeCount
}

func (c ViolationCode) String() string {
	if !c.valid() {
		return fmt.Sprintf("ViolationCode(%d)", uint8(c))
	}
	return catalog[c].name
}

// Severity is the default severity of the code.
func (c ViolationCode) Severity() Severity {
	if !c.valid() {
		return SeverityCritical
	}
	return catalog[c].severity
}

// Overridable is the default overridability of the code. Individual
// violations may be narrowed, e.g. by a threshold's override ceiling.
func (c ViolationCode) Overridable() bool {
	return c.valid() && catalog[c].overridable
}

// IsLicenceDateFinding reports whether the code can be cleared by a change to
// a licence's effective or expiry date.
func (c ViolationCode) IsLicenceDateFinding() bool {
	return c == CodeLicenceExpired || c == CodeLicenceMissing
}

func (c ViolationCode) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("unknown violation code %d", uint8(c))
	}
	return []byte(catalog[c].name), nil
}

func (c *ViolationCode) UnmarshalText(text []byte) error {
	code, err := ParseViolationCode(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}

func ParseViolationCode(name string) (ViolationCode, error) {
	for c := CodeLicenceExpired; c < codeCount; c++ {
		if catalog[c].name == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown violation code %q", name)
}

// Violation is a single compliance finding. Findings are data: they are
// returned inside a ValidationResult, never as errors.
type Violation struct {
	Code          ViolationCode    `json:"code"`
	Severity      Severity         `json:"severity"`
	Overridable   bool             `json:"overridable"`
	Message       string           `json:"message"`
	LineNumber    int              `json:"line_number,omitempty"`
	SubstanceCode string           `json:"substance_code,omitempty"`
	LicenceID     *uuid.UUID       `json:"licence_id,omitempty"`
	LicenceNumber string           `json:"licence_number,omitempty"`
	ThresholdID   *uuid.UUID       `json:"threshold_id,omitempty"`
	LimitValue    *decimal.Decimal `json:"limit_value,omitempty"`
	Usage         *decimal.Decimal `json:"usage,omitempty"`
	UsagePercent  *decimal.Decimal `json:"usage_percent,omitempty"`
}

func newViolation(code ViolationCode, format string, args ...interface{}) Violation {
	return Violation{
		Code:        code,
		Severity:    code.Severity(),
		Overridable: code.Overridable(),
		Message:     fmt.Sprintf(format, args...),
	}
}

func (v Violation) IsCritical() bool {
	return v.Severity == SeverityCritical
}

func (v Violation) withLicence(l *models.Licence) Violation {
	id := l.ID
	v.LicenceID = &id
	v.LicenceNumber = l.LicenceNumber
	return v
}

func (v Violation) atLine(lineNumber int, substanceCode string) Violation {
	v.LineNumber = lineNumber
	v.SubstanceCode = substanceCode
	return v
}

// Record converts the violation to its persisted form.
func (v Violation) Record() models.ViolationRecord {
	return models.ViolationRecord{
		Code:          v.Code.String(),
		Severity:      v.Severity.String(),
		Overridable:   v.Overridable,
		Message:       v.Message,
		LineNumber:    v.LineNumber,
		SubstanceCode: v.SubstanceCode,
		LicenceNumber: v.LicenceNumber,
	}
}
