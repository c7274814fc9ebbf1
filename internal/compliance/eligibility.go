// internal/compliance/eligibility.go
package compliance

import (
	"github.com/javajoker/substance-compliance/internal/models"
)

type EligibilityResult struct {
	MayTransact bool
	Violations  []Violation
}

// CheckCustomerEligibility gates a transaction on the customer's own state.
// Suspension wins over any approval status.
func CheckCustomerEligibility(c *models.Customer) EligibilityResult {
	var vs []Violation

	switch {
	case c.IsSuspended:
		msg := "customer " + c.AccountNumber + " is suspended"
		if c.SuspensionReason != "" {
			msg += ": " + c.SuspensionReason
		}
		vs = append(vs, newViolation(CodeCustomerSuspended, "%s", msg))
	case c.ApprovalStatus == models.ApprovalStatusConditionallyApproved:
		vs = append(vs, newViolation(CodeCustomerConditionallyApproved,
			"customer %s is conditionally approved; restrictions may apply", c.AccountNumber))
	case c.ApprovalStatus != models.ApprovalStatusApproved:
		vs = append(vs, newViolation(CodeCustomerNotApproved,
			"customer %s has approval status %s", c.AccountNumber, c.ApprovalStatus))
	}

	if c.RequiresGdpQualification() && !c.IsGdpQualified() {
		vs = append(vs, newViolation(CodeGdpNotQualified,
			"customer %s (%s) has GDP qualification status %s", c.AccountNumber, c.Category, c.GdpQualificationStatus))
	}

	return EligibilityResult{
		MayTransact: c.CanTransact(),
		Violations:  vs,
	}
}
