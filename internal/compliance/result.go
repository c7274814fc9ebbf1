// internal/compliance/result.go
package compliance

import (
	"github.com/google/uuid"

	"github.com/javajoker/substance-compliance/internal/models"
)

// LineOutcome is the per-line part of a validation run.
type LineOutcome struct {
	LineNumber        int        `json:"line_number"`
	SubstanceCode     string     `json:"substance_code"`
	IsValid           bool       `json:"is_valid"`
	ErrorCode         string     `json:"error_code,omitempty"`
	CoveringLicenceID *uuid.UUID `json:"covering_licence_id,omitempty"`
}

// ValidationResult is the immutable outcome of one validation run. It carries
// no timestamps so that repeated runs over the same inputs compare equal.
type ValidationResult struct {
	TransactionID    uuid.UUID               `json:"transaction_id"`
	Status           models.ValidationStatus `json:"status"`
	IsValid          bool                    `json:"is_valid"`
	RequiresOverride bool                    `json:"requires_override"`
	Violations       []Violation             `json:"violations"`
	Lines            []LineOutcome           `json:"lines"`
}

func newResult(transactionID uuid.UUID, violations []Violation, lines []LineOutcome) *ValidationResult {
	r := &ValidationResult{
		TransactionID: transactionID,
		Violations:    violations,
		Lines:         lines,
	}
	if r.Violations == nil {
		r.Violations = []Violation{}
	}

	criticals := 0
	overridable := 0
	for _, v := range violations {
		if !v.IsCritical() {
			continue
		}
		criticals++
		if v.Overridable {
			overridable++
		}
	}

	r.IsValid = criticals == 0
	if r.IsValid {
		r.Status = models.ValidationStatusPassed
	} else {
		r.Status = models.ValidationStatusFailed
		// A single non-overridable finding blocks the whole transaction.
		r.RequiresOverride = overridable == criticals
	}
	return r
}

func (r *ValidationResult) Critical() []Violation {
	return r.filter(func(v Violation) bool { return v.IsCritical() })
}

func (r *ValidationResult) NonBlocking() []Violation {
	return r.filter(func(v Violation) bool { return !v.IsCritical() })
}

func (r *ValidationResult) HasCode(code ViolationCode) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func (r *ValidationResult) filter(keep func(Violation) bool) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// ErrorMessages and WarningMessages are the denormalized strings stored on
// the transaction for display.
func (r *ValidationResult) ErrorMessages() []string {
	return messages(r.Critical())
}

func (r *ValidationResult) WarningMessages() []string {
	return messages(r.NonBlocking())
}

func (r *ValidationResult) Records() models.ViolationRecords {
	records := make(models.ViolationRecords, 0, len(r.Violations))
	for _, v := range r.Violations {
		records = append(records, v.Record())
	}
	return records
}

func messages(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Code.String()+": "+v.Message)
	}
	return out
}
