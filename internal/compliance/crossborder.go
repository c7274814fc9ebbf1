// internal/compliance/crossborder.go
package compliance

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/javajoker/substance-compliance/internal/models"
)

// RequiredPermit returns the permit activity a cross-border transaction
// needs. Internal transactions and domestic trade need none.
func RequiredPermit(tx *models.Transaction) (models.Activity, bool) {
	switch {
	case tx.RequiresExportPermit():
		return models.ActivityExport, true
	case tx.RequiresImportPermit():
		return models.ActivityImport, true
	}
	return "", false
}

// CheckPermit resolves a permit for the request's holder and substance using
// the licence coverage rules. It returns nil when a permit covers the
// request.
func CheckPermit(tx *models.Transaction, req CoverageRequest, licences []models.Licence) *Violation {
	// Mapping caps do not apply to permits.
	req.Quantity = decimal.Zero
	res := ResolveLicenceCoverage(req, licences)
	if res.Covered() {
		return nil
	}

	reasons := make([]string, 0, len(res.Violations))
	for _, v := range res.Violations {
		reasons = append(reasons, v.Code.String())
	}
	destination := ""
	if tx.DestinationCountry != nil {
		destination = *tx.DestinationCountry
	}
	v := newViolation(CodeMissingPermit, "%s permit required for %s from %s to %s (%s)",
		req.Activity, req.SubstanceCode, strings.ToUpper(tx.OriginCountry), strings.ToUpper(destination),
		strings.Join(reasons, ", ")).atLine(req.LineNumber, req.SubstanceCode)
	return &v
}
