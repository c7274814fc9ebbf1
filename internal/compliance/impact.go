// internal/compliance/impact.go
package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/substance-compliance/internal/metrics"
	"github.com/javajoker/substance-compliance/internal/models"
)

type ImpactSeverity string

const (
	ImpactCritical ImpactSeverity = "critical"
	ImpactMajor    ImpactSeverity = "major"
	ImpactMinor    ImpactSeverity = "minor"
)

type ImpactItem struct {
	TransactionID     uuid.UUID               `json:"transaction_id"`
	ExternalReference string                  `json:"external_reference"`
	CustomerID        uuid.UUID               `json:"customer_id"`
	TransactionDate   time.Time               `json:"transaction_date"`
	OriginalStatus    models.ValidationStatus `json:"original_status"`
	CorrectedStatus   models.ValidationStatus `json:"corrected_status"`
	Severity          ImpactSeverity          `json:"severity"`
	Explanation       string                  `json:"explanation"`
	RequiresReview    bool                    `json:"requires_review"`
}

type ImpactSummary struct {
	Analyzed int `json:"analyzed"`
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

type ImpactReport struct {
	LicenceID     uuid.UUID     `json:"licence_id"`
	LicenceNumber string        `json:"licence_number"`
	WindowStart   time.Time     `json:"window_start"`
	WindowEnd     time.Time     `json:"window_end"`
	Items         []ImpactItem  `json:"items"`
	Summary       ImpactSummary `json:"summary"`
}

// ImpactAnalyzer re-evaluates history after a licence's dates are corrected.
// It never writes.
type ImpactAnalyzer struct {
	licences LicenceLookup
	history  TransactionHistory
	workers  int
	metrics  *metrics.Metrics
	logger   *logrus.Entry
}

func NewImpactAnalyzer(licences LicenceLookup, history TransactionHistory, workers int, m *metrics.Metrics) *ImpactAnalyzer {
	if workers <= 0 {
		workers = 4
	}
	return &ImpactAnalyzer{
		licences: licences,
		history:  history,
		workers:  workers,
		metrics:  m,
		logger:   logrus.WithField("component", "impact_analyzer"),
	}
}

// licenceDates is one version of a licence's validity.
type licenceDates struct {
	issue  time.Time
	expiry *time.Time
}

func (d licenceDates) validOn(date time.Time) bool {
	return models.EffectiveBetween(d.issue, d.expiry, date)
}

// Analyze reports the transactions whose outcome would differ under the
// corrected dates.
func (a *ImpactAnalyzer) Analyze(ctx context.Context, c *models.LicenceCorrection) (*ImpactReport, error) {
	licence, err := a.licences.GetLicence(ctx, c.LicenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewInvalidOperation("cannot correct licence %s: it does not exist", c.LicenceID)
		}
		return nil, lookupError("licence", err)
	}

	original, corrected := correctionDates(licence, c)
	from := AnalysisWindowStart(licence, c)
	to := models.DateOnly(c.CorrectionDate)

	report := &ImpactReport{
		LicenceID:     licence.ID,
		LicenceNumber: licence.LicenceNumber,
		WindowStart:   from,
		WindowEnd:     to,
		Items:         []ImpactItem{},
	}
	if to.Before(from) {
		return report, nil
	}

	q := HistoryQuery{From: from, To: to}
	if licence.HolderType == models.HolderTypeCustomer {
		holder := licence.HolderID
		q.CustomerID = &holder
	}
	txs, err := a.history.ListInWindow(ctx, q)
	if err != nil {
		return nil, lookupError("transaction history", err)
	}

	results := make([]*ImpactItem, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range txs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = assessTransaction(&txs[i], licence, original, corrected)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, item := range results {
		if !touchesLicence(&txs[i], licence) {
			continue
		}
		report.Summary.Analyzed++
		if item == nil {
			continue
		}
		report.Items = append(report.Items, *item)
		switch item.Severity {
		case ImpactCritical:
			report.Summary.Critical++
		case ImpactMajor:
			report.Summary.Major++
		case ImpactMinor:
			report.Summary.Minor++
		}
	}
	sort.SliceStable(report.Items, func(i, j int) bool {
		x, y := report.Items[i], report.Items[j]
		if !x.TransactionDate.Equal(y.TransactionDate) {
			return x.TransactionDate.Before(y.TransactionDate)
		}
		return x.ExternalReference < y.ExternalReference
	})

	a.metrics.AddImpactItems(string(ImpactCritical), report.Summary.Critical)
	a.metrics.AddImpactItems(string(ImpactMajor), report.Summary.Major)
	a.metrics.AddImpactItems(string(ImpactMinor), report.Summary.Minor)
	a.logger.WithFields(logrus.Fields{
		"licence":  licence.LicenceNumber,
		"from":     from.Format("2006-01-02"),
		"to":       to.Format("2006-01-02"),
		"analyzed": report.Summary.Analyzed,
		"items":    len(report.Items),
	}).Info("Impact analysis completed")
	return report, nil
}

// AnalysisWindowStart is the earlier of the original and corrected effective
// dates, or the licence's issue date when only the expiry changes.
func AnalysisWindowStart(l *models.Licence, c *models.LicenceCorrection) time.Time {
	var start *time.Time
	for _, d := range []*time.Time{c.OriginalEffectiveDate, c.CorrectedEffectiveDate} {
		if d != nil && (start == nil || d.Before(*start)) {
			start = d
		}
	}
	if start == nil {
		return models.DateOnly(l.IssueDate)
	}
	return models.DateOnly(*start)
}

// correctionDates derives both versions of the licence's validity. Dates the
// correction leaves out are taken from the licence as stored.
func correctionDates(l *models.Licence, c *models.LicenceCorrection) (original, corrected licenceDates) {
	original = licenceDates{issue: l.IssueDate, expiry: l.ExpiryDate}
	if c.OriginalEffectiveDate != nil {
		original.issue = *c.OriginalEffectiveDate
	}
	if c.OriginalExpiryDate != nil {
		original.expiry = c.OriginalExpiryDate
	}
	corrected = original
	if c.CorrectedEffectiveDate != nil {
		corrected.issue = *c.CorrectedEffectiveDate
	}
	if c.CorrectedExpiryDate != nil {
		corrected.expiry = c.CorrectedExpiryDate
	}
	return original, corrected
}

// touchesLicence reports whether any line of tx is for a substance the
// licence covers.
func touchesLicence(tx *models.Transaction, l *models.Licence) bool {
	for _, line := range tx.Lines {
		if l.CoversSubstance(line.SubstanceCode) {
			return true
		}
	}
	return false
}

// assessTransaction returns the impact of the correction on tx, or nil when
// its status would not change.
func assessTransaction(tx *models.Transaction, l *models.Licence, original, corrected licenceDates) *ImpactItem {
	if !touchesLicence(tx, l) {
		return nil
	}
	wasValid := original.validOn(tx.TransactionDate)
	nowValid := corrected.validOn(tx.TransactionDate)
	if wasValid == nowValid {
		return nil
	}

	item := &ImpactItem{
		TransactionID:     tx.ID,
		ExternalReference: tx.ExternalReference,
		CustomerID:        tx.CustomerID,
		TransactionDate:   tx.TransactionDate,
		OriginalStatus:    tx.ValidationStatus,
		CorrectedStatus:   tx.ValidationStatus,
	}
	date := tx.TransactionDate.Format("2006-01-02")

	switch tx.ValidationStatus {
	case models.ValidationStatusFailed:
		if !nowValid || !onlyDateFindings(tx) {
			return nil
		}
		item.CorrectedStatus = models.ValidationStatusPassed
		item.Severity = ImpactMajor
		item.Explanation = fmt.Sprintf("licence %s is valid on %s under the corrected dates; the transaction was wrongly blocked",
			l.LicenceNumber, date)
	case models.ValidationStatusPassed:
		if nowValid || !reliedOn(tx, l) {
			return nil
		}
		item.CorrectedStatus = models.ValidationStatusFailed
		item.Severity = ImpactCritical
		item.Explanation = fmt.Sprintf("licence %s is not valid on %s under the corrected dates; the transaction should not have proceeded",
			l.LicenceNumber, date)
	case models.ValidationStatusApprovedWithOverride:
		if !nowValid {
			if !reliedOn(tx, l) {
				return nil
			}
			item.CorrectedStatus = models.ValidationStatusFailed
			item.Severity = ImpactCritical
			item.Explanation = fmt.Sprintf("licence %s is not valid on %s under the corrected dates; the override was granted on incomplete findings",
				l.LicenceNumber, date)
			break
		}
		if !onlyDateFindings(tx) {
			return nil
		}
		item.CorrectedStatus = models.ValidationStatusPassed
		item.Severity = ImpactMinor
		item.Explanation = fmt.Sprintf("licence %s is valid on %s under the corrected dates; the override was unnecessary",
			l.LicenceNumber, date)
	default:
		return nil
	}

	item.RequiresReview = item.Severity == ImpactCritical || item.Severity == ImpactMajor
	return item
}

// onlyDateFindings reports whether every stored critical finding of tx could
// be cleared by a licence date change. Transactions stored without findings
// are judged on dates alone.
func onlyDateFindings(tx *models.Transaction) bool {
	for _, r := range tx.Violations {
		if r.Severity != SeverityCritical.String() {
			continue
		}
		code, err := ParseViolationCode(r.Code)
		if err != nil || !code.IsLicenceDateFinding() {
			return false
		}
	}
	return true
}

// reliedOn reports whether a line of tx was covered by l, or carries no
// covering licence at all.
func reliedOn(tx *models.Transaction, l *models.Licence) bool {
	for _, line := range tx.Lines {
		if !l.CoversSubstance(line.SubstanceCode) {
			continue
		}
		if line.CoveringLicenceID == nil || *line.CoveringLicenceID == l.ID {
			return true
		}
	}
	return false
}
