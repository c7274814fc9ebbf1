// internal/compliance/validator.go
package compliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/javajoker/substance-compliance/internal/metrics"
	"github.com/javajoker/substance-compliance/internal/models"
)

const defaultLookupTimeout = 5 * time.Second

// Config is the explicit configuration of the engine.
type Config struct {
	// CompanyHolderID is the holder id of the operating company's own
	// licences. Nil disables company-side licence checks.
	CompanyHolderID *uuid.UUID
	// LookupTimeout bounds reference data gathering for one validation.
	LookupTimeout time.Duration
	// MaxConcurrentLookups caps lookups in flight; zero means no cap. Set it
	// to 1 when the lookups share a single database connection.
	MaxConcurrentLookups int
}

// Lookups groups the read-only collaborators of the engine.
type Lookups struct {
	Customers  CustomerLookup
	Licences   LicenceLookup
	Thresholds ThresholdLookup
	Substances SubstanceLookup
	History    TransactionHistory
}

type Validator struct {
	lookups Lookups
	cfg     Config
	metrics *metrics.Metrics
	logger  *logrus.Entry
}

type Option func(*Validator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

func WithLogger(l *logrus.Entry) Option {
	return func(v *Validator) { v.logger = l }
}

func NewValidator(lookups Lookups, cfg Config, opts ...Option) *Validator {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	v := &Validator{
		lookups: lookups,
		cfg:     cfg,
		logger:  logrus.WithField("component", "validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate gathers the reference data for tx and evaluates it. A failing
// lookup returns an error and no result; the caller must leave the
// transaction pending.
func (v *Validator) Validate(ctx context.Context, tx *models.Transaction) (*ValidationResult, error) {
	start := time.Now()
	defer func() { v.metrics.ObserveValidateLatency(time.Since(start)) }()

	if tx == nil || len(tx.Lines) == 0 {
		return nil, NewInvalidOperation("transaction has no lines to validate")
	}
	// Quantities in a unit must be converted before thresholds and caps can
	// count them.
	for _, l := range tx.Lines {
		if l.Unit != "" && l.BaseQuantity.IsZero() && !l.Quantity.IsZero() {
			return nil, NewValidationFailed(fmt.Sprintf("line %d: quantity %s %s has no base quantity",
				l.LineNumber, l.Quantity.String(), l.Unit), nil)
		}
	}

	in, err := v.gather(ctx, tx)
	if err != nil {
		v.logger.WithError(err).WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"reference":      tx.ExternalReference,
		}).Warn("Validation aborted")
		return nil, err
	}

	result := Evaluate(*in)
	v.metrics.IncrementOutcome(string(result.Status), result.RequiresOverride)
	v.logger.WithFields(logrus.Fields{
		"transaction_id":    tx.ID,
		"reference":         tx.ExternalReference,
		"status":            result.Status,
		"violations":        len(result.Violations),
		"requires_override": result.RequiresOverride,
		"duration":          time.Since(start).String(),
	}).Info("Transaction validated")
	return result, nil
}

// gather fetches reference data in parallel, then the usage history the
// matched periodic thresholds need.
func (v *Validator) gather(ctx context.Context, tx *models.Transaction) (*EvaluationInput, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.LookupTimeout)
	defer cancel()

	in := &EvaluationInput{
		Transaction:     tx,
		CompanyHolderID: v.cfg.CompanyHolderID,
	}

	g, gctx := errgroup.WithContext(ctx)
	if v.cfg.MaxConcurrentLookups > 0 {
		g.SetLimit(v.cfg.MaxConcurrentLookups)
	}

	g.Go(func() error {
		start := time.Now()
		customer, err := v.lookups.Customers.GetCustomer(gctx, tx.CustomerID)
		v.metrics.ObserveLookupLatency("customer", time.Since(start))
		if err != nil {
			return lookupError("customer", err)
		}
		in.Customer = customer
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		licences, err := v.lookups.Licences.ListByHolder(gctx, models.HolderTypeCustomer, tx.CustomerID)
		v.metrics.ObserveLookupLatency("licences", time.Since(start))
		if err != nil {
			return lookupError("customer licence", err)
		}
		in.CustomerLicences = licences
		return nil
	})

	if v.cfg.CompanyHolderID != nil {
		companyID := *v.cfg.CompanyHolderID
		g.Go(func() error {
			start := time.Now()
			licences, err := v.lookups.Licences.ListByHolder(gctx, models.HolderTypeCompany, companyID)
			v.metrics.ObserveLookupLatency("licences", time.Since(start))
			if err != nil {
				return lookupError("company licence", err)
			}
			in.CompanyLicences = licences
			return nil
		})
	}

	g.Go(func() error {
		start := time.Now()
		thresholds, err := v.lookups.Thresholds.ListActive(gctx)
		v.metrics.ObserveLookupLatency("thresholds", time.Since(start))
		if err != nil {
			return lookupError("threshold", err)
		}
		in.Thresholds = thresholds
		return nil
	})

	codes := substanceCodes(tx.Lines)
	substances := make([]*models.Substance, len(codes))
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			start := time.Now()
			s, err := v.lookups.Substances.GetByCode(gctx, code)
			v.metrics.ObserveLookupLatency("substance", time.Since(start))
			if err != nil {
				// An unknown substance is a finding, not a failure.
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return lookupError("substance", err)
			}
			substances[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	in.Substances = make(map[string]*models.Substance, len(codes))
	for i, code := range codes {
		in.Substances[code] = substances[i]
	}

	keys := PlanUsage(tx, in.Customer, in.Thresholds)
	for _, k := range PlanCapUsage(tx, in.CustomerLicences, in.CompanyLicences) {
		if !containsKey(keys, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return in, nil
	}

	totals := make([]UsageTotals, len(keys))
	ug, uctx := errgroup.WithContext(ctx)
	if v.cfg.MaxConcurrentLookups > 0 {
		ug.SetLimit(v.cfg.MaxConcurrentLookups)
	}
	for i, key := range keys {
		i, key := i, key
		ug.Go(func() error {
			start := time.Now()
			t, err := v.lookups.History.SumUsage(uctx, UsageQueryFor(tx, key))
			v.metrics.ObserveLookupLatency("usage", time.Since(start))
			if err != nil {
				return lookupError("transaction history", err)
			}
			totals[i] = t
			return nil
		})
	}
	if err := ug.Wait(); err != nil {
		return nil, err
	}

	in.Usage = make(map[UsageKey]UsageTotals, len(keys))
	for i, key := range keys {
		in.Usage[key] = totals[i]
	}
	return in, nil
}

// lookupError keeps domain errors and caller cancellation as they are and
// reports everything else as the collaborator being unavailable.
func lookupError(source string, err error) error {
	var de *DomainError
	if errors.As(err, &de) || errors.Is(err, context.Canceled) {
		return err
	}
	return NewExternalUnavailable(source, err)
}

// EvaluationInput is a snapshot of everything one evaluation reads.
type EvaluationInput struct {
	Transaction      *models.Transaction
	Customer         *models.Customer
	Substances       map[string]*models.Substance
	CustomerLicences []models.Licence
	CompanyLicences  []models.Licence
	Thresholds       []models.Threshold
	Usage            map[UsageKey]UsageTotals
	CompanyHolderID  *uuid.UUID
}

// Evaluate runs every check over in and merges the findings. It performs no
// I/O and returns equal results for equal inputs. Findings are ordered:
// customer eligibility, then per line in line order (substance, licences,
// permit), then thresholds per substance.
func Evaluate(in EvaluationInput) *ValidationResult {
	tx := in.Transaction
	var violations []Violation

	violations = append(violations, CheckCustomerEligibility(in.Customer).Violations...)

	lines := sortedLines(tx.Lines)
	totals := make(map[string]SubstanceUsage)
	for _, u := range aggregateUsage(tx.Lines) {
		totals[u.SubstanceCode] = u
	}
	outcomes := make([]LineOutcome, len(lines))
	byLine := make(map[int]int, len(lines))
	permit, needsPermit := RequiredPermit(tx)

	for i, line := range lines {
		byLine[line.LineNumber] = i
		outcomes[i] = LineOutcome{LineNumber: line.LineNumber, SubstanceCode: line.SubstanceCode, IsValid: true}

		var lineVs []Violation
		substance := in.Substances[line.SubstanceCode]
		switch {
		case substance == nil || !substance.IsActive:
			v := newViolation(CodeSubstanceNotAuthorized, "substance %s is unknown or inactive", line.SubstanceCode).
				atLine(line.LineNumber, line.SubstanceCode)
			v.Overridable = false
			lineVs = append(lineVs, v)
		case substance.IsControlled():
			for _, req := range coverageRequests(in, line, totals[line.SubstanceCode]) {
				res := ResolveLicenceCoverage(req, in.licencesOf(req.HolderType))
				lineVs = append(lineVs, res.Violations...)
				if res.Covered() && outcomes[i].CoveringLicenceID == nil {
					id := res.Covering.ID
					outcomes[i].CoveringLicenceID = &id
				}
			}
			if needsPermit {
				req := permitRequest(in, line, permit)
				if v := CheckPermit(tx, req, in.licencesOf(req.HolderType)); v != nil {
					lineVs = append(lineVs, *v)
				}
			}
		}

		markLine(&outcomes[i], lineVs)
		violations = append(violations, lineVs...)
	}

	thresholdVs := evaluateThresholds(tx, in.Customer, in.Thresholds, in.Usage)
	for _, v := range thresholdVs {
		if i, ok := byLine[v.LineNumber]; ok {
			markLine(&outcomes[i], []Violation{v})
		}
	}
	violations = append(violations, thresholdVs...)

	return newResult(tx.ID, violations, outcomes)
}

func markLine(o *LineOutcome, vs []Violation) {
	for _, v := range vs {
		if v.IsCritical() && o.IsValid {
			o.IsValid = false
			o.ErrorCode = v.Code.String()
		}
	}
}

func (in EvaluationInput) licencesOf(holder models.HolderType) []models.Licence {
	if holder == models.HolderTypeCompany {
		return in.CompanyLicences
	}
	return in.CustomerLicences
}

// coverageRequests lists the licences a line needs. Outbound trade needs the
// customer to possess and the company to distribute; returns reverse this;
// internal movements need the company to store. The substance's first line
// carries the transaction total for the mapping caps.
func coverageRequests(in EvaluationInput, line models.TransactionLine, total SubstanceUsage) []CoverageRequest {
	tx := in.Transaction
	base := CoverageRequest{
		SubstanceCode: line.SubstanceCode,
		Date:          tx.TransactionDate,
		LineNumber:    line.LineNumber,
	}
	if total.FirstLine == line.LineNumber {
		base.Quantity = total.Quantity
	}
	customer := func(a models.Activity) CoverageRequest {
		r := base
		r.HolderType, r.HolderID, r.Activity = models.HolderTypeCustomer, tx.CustomerID, a
		r.PeriodUsage = in.periodUsage(line.SubstanceCode, false)
		return r
	}
	company := func(a models.Activity) CoverageRequest {
		r := base
		r.HolderType, r.HolderID, r.Activity = models.HolderTypeCompany, *in.CompanyHolderID, a
		r.PeriodUsage = in.periodUsage(line.SubstanceCode, true)
		return r
	}

	var reqs []CoverageRequest
	switch tx.Direction {
	case models.DirectionOutbound:
		reqs = append(reqs, customer(models.ActivityPossess))
		if in.CompanyHolderID != nil {
			reqs = append(reqs, company(models.ActivityDistribute))
		}
	case models.DirectionInbound:
		reqs = append(reqs, customer(models.ActivityDistribute))
		if in.CompanyHolderID != nil {
			reqs = append(reqs, company(models.ActivityPossess))
		}
	case models.DirectionInternal:
		if in.CompanyHolderID != nil {
			reqs = append(reqs, company(models.ActivityStore))
		}
	}
	return reqs
}

// periodUsage returns the gathered history quantities of the substance per
// period.
func (in EvaluationInput) periodUsage(code string, companyWide bool) map[models.ThresholdPeriod]decimal.Decimal {
	out := make(map[models.ThresholdPeriod]decimal.Decimal)
	for k, t := range in.Usage {
		if k.SubstanceCode == code && k.CompanyWide == companyWide {
			out[k.Period] = t.Quantity
		}
	}
	return out
}

func containsKey(keys []UsageKey, k UsageKey) bool {
	for _, existing := range keys {
		if existing == k {
			return true
		}
	}
	return false
}

// permitRequest targets the company's permits when a company holder is
// configured and the customer's otherwise.
func permitRequest(in EvaluationInput, line models.TransactionLine, activity models.Activity) CoverageRequest {
	req := CoverageRequest{
		HolderType:    models.HolderTypeCustomer,
		HolderID:      in.Transaction.CustomerID,
		SubstanceCode: line.SubstanceCode,
		Activity:      activity,
		Date:          in.Transaction.TransactionDate,
		LineNumber:    line.LineNumber,
	}
	if in.CompanyHolderID != nil {
		req.HolderType = models.HolderTypeCompany
		req.HolderID = *in.CompanyHolderID
	}
	return req
}

func sortedLines(lines []models.TransactionLine) []models.TransactionLine {
	out := make([]models.TransactionLine, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out
}

func substanceCodes(lines []models.TransactionLine) []string {
	seen := make(map[string]bool, len(lines))
	var codes []string
	for _, l := range lines {
		if !seen[l.SubstanceCode] {
			seen[l.SubstanceCode] = true
			codes = append(codes, l.SubstanceCode)
		}
	}
	sort.Strings(codes)
	return codes
}
