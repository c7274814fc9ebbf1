// internal/compliance/override.go
package compliance

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/javajoker/substance-compliance/internal/models"
)

// ApplyValidation records the first validation result on a pending
// transaction. A failed result that may be overridden opens the override
// workflow.
func ApplyValidation(tx *models.Transaction, result *ValidationResult, at time.Time) error {
	if tx.ValidationStatus != models.ValidationStatusPending {
		return NewInvalidOperation("transaction %s was already validated (status %s)", tx.ExternalReference, tx.ValidationStatus)
	}
	writeResult(tx, result, at)
	return nil
}

// ApplyRevalidation replaces an earlier outcome with a corrective result and
// reopens the override workflow when needed. Earlier override decisions are
// cleared; the caller audits the previous state.
func ApplyRevalidation(tx *models.Transaction, result *ValidationResult, at time.Time) error {
	if tx.ValidationStatus == models.ValidationStatusPending {
		return NewInvalidOperation("transaction %s has not been validated yet", tx.ExternalReference)
	}
	writeResult(tx, result, at)
	tx.OverrideDecidedBy = nil
	tx.OverrideDecidedAt = nil
	tx.OverrideJustification = ""
	return nil
}

func writeResult(tx *models.Transaction, result *ValidationResult, at time.Time) {
	validatedAt := at.UTC()
	tx.ValidationStatus = result.Status
	tx.ValidatedAt = &validatedAt
	tx.RequiresOverride = result.RequiresOverride
	tx.Violations = result.Records()
	tx.ComplianceErrors = result.ErrorMessages()
	tx.ComplianceWarnings = result.WarningMessages()

	tx.OverrideStatus = models.OverrideStatusNone
	if result.Status == models.ValidationStatusFailed && result.RequiresOverride {
		tx.OverrideStatus = models.OverrideStatusPending
	}

	lines := make(map[int]LineOutcome, len(result.Lines))
	for _, o := range result.Lines {
		lines[o.LineNumber] = o
	}
	for i := range tx.Lines {
		o, ok := lines[tx.Lines[i].LineNumber]
		if !ok {
			continue
		}
		tx.Lines[i].IsValid = o.IsValid
		tx.Lines[i].ErrorCode = o.ErrorCode
		tx.Lines[i].CoveringLicenceID = o.CoveringLicenceID
	}
}

// ApproveOverride lets a failed transaction proceed. It is only legal while
// an override is pending.
func ApproveOverride(tx *models.Transaction, approver uuid.UUID, justification string, at time.Time) error {
	if err := checkOverrideDecision(tx, approver, justification); err != nil {
		return err
	}
	decide(tx, approver, justification, at)
	tx.OverrideStatus = models.OverrideStatusApproved
	tx.ValidationStatus = models.ValidationStatusApprovedWithOverride
	return nil
}

// RejectOverride closes the override workflow and blocks the transaction.
func RejectOverride(tx *models.Transaction, approver uuid.UUID, reason string, at time.Time) error {
	if err := checkOverrideDecision(tx, approver, reason); err != nil {
		return err
	}
	decide(tx, approver, reason, at)
	tx.OverrideStatus = models.OverrideStatusRejected
	tx.ValidationStatus = models.ValidationStatusRejectedOverride
	return nil
}

func checkOverrideDecision(tx *models.Transaction, approver uuid.UUID, text string) error {
	switch {
	case !tx.RequiresOverride:
		return NewInvalidOperation("transaction %s does not require an override", tx.ExternalReference)
	case tx.OverrideStatus != models.OverrideStatusPending:
		return NewInvalidOperation("override for transaction %s is %s, not pending", tx.ExternalReference, tx.OverrideStatus)
	case tx.ValidationStatus != models.ValidationStatusFailed:
		return NewInvalidOperation("transaction %s has status %s", tx.ExternalReference, tx.ValidationStatus)
	case approver == uuid.Nil:
		return NewInvalidOperation("override decision requires an approver")
	case strings.TrimSpace(text) == "":
		return NewInvalidOperation("override decision requires a justification")
	}
	return nil
}

func decide(tx *models.Transaction, approver uuid.UUID, text string, at time.Time) {
	decidedAt := at.UTC()
	tx.OverrideDecidedBy = &approver
	tx.OverrideJustification = strings.TrimSpace(text)
	tx.OverrideDecidedAt = &decidedAt
}
