// internal/compliance/licence_coverage.go
package compliance

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/substance-compliance/internal/models"
)

// CoverageRequest asks whether a holder may perform an activity with a
// substance on a date.
type CoverageRequest struct {
	HolderType    models.HolderType
	HolderID      uuid.UUID
	SubstanceCode string
	Activity      models.Activity
	Date          time.Time
	LineNumber    int
	// Quantity is the transaction's total of the substance in base units,
	// checked against the covering mapping's caps. Zero skips the caps.
	Quantity decimal.Decimal
	// PeriodUsage is the quantity the holder already used per calendar
	// period, excluding this transaction.
	PeriodUsage map[models.ThresholdPeriod]decimal.Decimal
}

type CoverageResult struct {
	Covering   *models.Licence
	Violations []Violation
}

func (r CoverageResult) Covered() bool {
	return r.Covering != nil
}

// ResolveLicenceCoverage picks the licence that covers the request from the
// holder's licences. Candidates are the licences mapping the substance; each
// is excluded when it is suspended, revoked, expired, not yet effective or
// lacks the activity. The surviving candidate with the soonest expiry covers
// the request and the findings on the other candidates are dropped.
func ResolveLicenceCoverage(req CoverageRequest, licences []models.Licence) CoverageResult {
	if len(licences) == 0 {
		return CoverageResult{Violations: []Violation{
			newViolation(CodeLicenceMissing, "%s %s holds no licence for %s",
				req.HolderType, req.HolderID, req.Activity).atLine(req.LineNumber, req.SubstanceCode),
		}}
	}

	var candidates []*models.Licence
	for i := range licences {
		if licences[i].CoversSubstance(req.SubstanceCode) {
			candidates = append(candidates, &licences[i])
		}
	}
	if len(candidates) == 0 {
		return CoverageResult{Violations: []Violation{
			newViolation(CodeSubstanceNotAuthorized, "no %s licence covers substance %s",
				req.HolderType, req.SubstanceCode).atLine(req.LineNumber, req.SubstanceCode),
		}}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LicenceNumber < candidates[j].LicenceNumber
	})

	var (
		survivors  []*models.Licence
		exclusions []Violation
	)
	for _, l := range candidates {
		if v, excluded := excludeCandidate(l, req); excluded {
			if v != nil {
				exclusions = append(exclusions, v.withLicence(l).atLine(req.LineNumber, req.SubstanceCode))
			}
			continue
		}
		survivors = append(survivors, l)
	}

	if len(survivors) == 0 {
		if len(exclusions) == 0 {
			// Every candidate was not yet effective on the date.
			exclusions = append(exclusions, newViolation(CodeLicenceMissing,
				"no licence for %s is effective on %s", req.SubstanceCode, req.Date.Format("2006-01-02")).
				atLine(req.LineNumber, req.SubstanceCode))
		}
		return CoverageResult{Violations: exclusions}
	}

	covering := tightestBinding(survivors)
	result := CoverageResult{Covering: covering}
	result.Violations = checkMappingCaps(covering, req)
	return result
}

// excludeCandidate returns the reason a candidate cannot cover the request.
// A not-yet-effective licence is excluded without a finding of its own.
func excludeCandidate(l *models.Licence, req CoverageRequest) (*Violation, bool) {
	date := req.Date.Format("2006-01-02")
	switch {
	case l.Status == models.LicenceStatusSuspended:
		v := newViolation(CodeLicenceSuspended, "licence %s is suspended", l.LicenceNumber)
		return &v, true
	case l.Status == models.LicenceStatusRevoked:
		v := newViolation(CodeLicenceRevoked, "licence %s is revoked", l.LicenceNumber)
		return &v, true
	case l.Status == models.LicenceStatusExpired || l.IsExpiredOn(req.Date):
		v := newViolation(CodeLicenceExpired, "licence %s expired before %s", l.LicenceNumber, date)
		return &v, true
	case !l.IsEffectiveOn(req.Date):
		return nil, true
	case !l.PermittedActivities.Contains(req.Activity):
		v := newViolation(CodeLicenceScopeInsufficient, "licence %s does not permit %s", l.LicenceNumber, req.Activity)
		return &v, true
	}
	return nil, false
}

// tightestBinding returns the licence with the soonest expiry. Licences
// without an expiry sort last; ties keep licence number order.
func tightestBinding(ls []*models.Licence) *models.Licence {
	best := ls[0]
	for _, l := range ls[1:] {
		switch {
		case l.ExpiryDate == nil:
		case best.ExpiryDate == nil || l.ExpiryDate.Before(*best.ExpiryDate):
			best = l
		}
	}
	return best
}

// PlanCapUsage lists the history aggregates needed by the period caps of the
// holders' licences, in a stable order. Caps on company licences count the
// usage of every customer.
func PlanCapUsage(tx *models.Transaction, customerLicences, companyLicences []models.Licence) []UsageKey {
	seen := make(map[UsageKey]bool)
	var keys []UsageKey
	collect := func(licences []models.Licence, companyWide bool) {
		for _, u := range aggregateUsage(tx.Lines) {
			for i := range licences {
				m := licences[i].MappingFor(u.SubstanceCode)
				if m == nil {
					continue
				}
				period, _, ok := m.PeriodCap()
				if !ok {
					continue
				}
				k := UsageKey{SubstanceCode: u.SubstanceCode, Period: period, CompanyWide: companyWide}
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}
	collect(customerLicences, false)
	collect(companyLicences, true)
	return keys
}

// checkMappingCaps compares the request quantity with the per-transaction
// cap and, together with the period's prior usage, the period cap of the
// covering licence's mapping.
func checkMappingCaps(l *models.Licence, req CoverageRequest) []Violation {
	m := l.MappingFor(req.SubstanceCode)
	if m == nil || req.Quantity.IsZero() {
		return nil
	}

	var vs []Violation
	if m.MaxQuantityPerTransaction != nil && req.Quantity.GreaterThan(*m.MaxQuantityPerTransaction) {
		limit := *m.MaxQuantityPerTransaction
		usage := req.Quantity
		v := newViolation(CodeThresholdExceeded, "quantity %s of %s exceeds the per-transaction cap %s on licence %s",
			usage.String(), req.SubstanceCode, limit.String(), l.LicenceNumber).
			withLicence(l).atLine(req.LineNumber, req.SubstanceCode)
		v.LimitValue = &limit
		v.Usage = &usage
		vs = append(vs, v)
	}

	if period, limit, ok := m.PeriodCap(); ok {
		usage := req.Quantity.Add(req.PeriodUsage[period])
		if usage.GreaterThan(limit) {
			v := newViolation(CodeThresholdExceeded, "%s usage %s of %s exceeds the cap %s on licence %s",
				period, usage.String(), req.SubstanceCode, limit.String(), l.LicenceNumber).
				withLicence(l).atLine(req.LineNumber, req.SubstanceCode)
			v.LimitValue = &limit
			v.Usage = &usage
			vs = append(vs, v)
		}
	}
	return vs
}
