// internal/compliance/threshold.go
package compliance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/javajoker/substance-compliance/internal/models"
)

// MatchThresholds returns the active thresholds that are effective on date
// and apply to the customer and substance, ordered by name then id.
func MatchThresholds(thresholds []models.Threshold, customer *models.Customer, substanceCode string, date time.Time) []models.Threshold {
	var out []models.Threshold
	for _, t := range thresholds {
		if !t.IsActive || !t.IsEffective(date) {
			continue
		}
		if !t.AppliesToCustomer(customer.ID, customer.Category) || !t.AppliesToSubstance(substanceCode) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// PeriodWindow returns the inclusive calendar window of the period containing
// date. Weeks start on Monday. PerTransaction has no window.
func PeriodWindow(period models.ThresholdPeriod, date time.Time) (from, to time.Time, ok bool) {
	day := models.DateOnly(date)
	switch period {
	case models.ThresholdPeriodDaily:
		from = day
		to = day
	case models.ThresholdPeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		from = day.AddDate(0, 0, -offset)
		to = from.AddDate(0, 0, 6)
	case models.ThresholdPeriodMonthly:
		from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, -1)
	case models.ThresholdPeriodYearly:
		from = time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		to = time.Date(day.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// SubstanceUsage is this transaction's contribution for one substance, all
// lines of that substance summed.
type SubstanceUsage struct {
	SubstanceCode string
	FirstLine     int
	Quantity      decimal.Decimal
	Value         decimal.Decimal
}

// UsageFor combines the transaction's own usage with history according to the
// threshold type. History is ignored for per-transaction thresholds.
func UsageFor(t *models.Threshold, current SubstanceUsage, history UsageTotals) decimal.Decimal {
	periodic := t.Period != models.ThresholdPeriodPerTransaction
	switch t.ThresholdType {
	case models.ThresholdTypeValue:
		if periodic {
			return current.Value.Add(history.Value)
		}
		return current.Value
	case models.ThresholdTypeFrequency:
		if periodic {
			return decimal.NewFromInt(history.Count + 1)
		}
		return decimal.NewFromInt(1)
	default:
		if periodic {
			return current.Quantity.Add(history.Quantity)
		}
		return current.Quantity
	}
}

// EvaluateThreshold returns the finding for usage against the threshold, or
// nil when usage is below the warning level.
func EvaluateThreshold(t *models.Threshold, usage decimal.Decimal) *Violation {
	var v Violation
	switch {
	case t.IsExceeded(usage):
		v = newViolation(CodeThresholdExceeded, "%s: usage %s exceeds limit %s %s (%s period)",
			t.Name, usage.String(), t.LimitValue.String(), t.LimitUnit, t.Period)
		v.Overridable = t.CanOverride(usage)
		if !v.Overridable && t.AllowOverride {
			v.Message += "; above the override ceiling"
		}
	case t.IsWarning(usage):
		v = newViolation(CodeThresholdWarning, "%s: usage %s reaches %s%% of limit %s %s",
			t.Name, usage.String(), t.GetUsagePercent(usage).StringFixed(1), t.LimitValue.String(), t.LimitUnit)
	default:
		return nil
	}

	id := t.ID
	limit := t.LimitValue
	percent := t.GetUsagePercent(usage).Round(2)
	v.ThresholdID = &id
	v.LimitValue = &limit
	v.Usage = &usage
	v.UsagePercent = &percent
	if t.SubstanceCode != nil {
		v.SubstanceCode = *t.SubstanceCode
	}
	return &v
}

// UsageKey identifies one history aggregate needed by an evaluation.
// CompanyWide aggregates over every customer.
type UsageKey struct {
	SubstanceCode string
	Period        models.ThresholdPeriod
	CompanyWide   bool
}

// aggregateUsage sums lines per substance, in order of first appearance.
func aggregateUsage(lines []models.TransactionLine) []SubstanceUsage {
	index := make(map[string]int)
	var out []SubstanceUsage
	for _, l := range sortedLines(lines) {
		i, ok := index[l.SubstanceCode]
		if !ok {
			i = len(out)
			index[l.SubstanceCode] = i
			out = append(out, SubstanceUsage{SubstanceCode: l.SubstanceCode, FirstLine: l.LineNumber})
		}
		out[i].Quantity = out[i].Quantity.Add(l.NormalizedQuantity())
		out[i].Value = out[i].Value.Add(l.LineValue)
	}
	return out
}

// PlanUsage lists the history aggregates a transaction's periodic thresholds
// need, in a stable order.
func PlanUsage(tx *models.Transaction, customer *models.Customer, thresholds []models.Threshold) []UsageKey {
	seen := make(map[UsageKey]bool)
	var keys []UsageKey
	for _, u := range aggregateUsage(tx.Lines) {
		for _, t := range MatchThresholds(thresholds, customer, u.SubstanceCode, tx.TransactionDate) {
			if t.Period == models.ThresholdPeriodPerTransaction {
				continue
			}
			k := UsageKey{SubstanceCode: u.SubstanceCode, Period: t.Period}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// UsageQueryFor builds the history query for key on the transaction's date.
func UsageQueryFor(tx *models.Transaction, key UsageKey) UsageQuery {
	from, to, _ := PeriodWindow(key.Period, tx.TransactionDate)
	return UsageQuery{
		CustomerID:           tx.CustomerID,
		SubstanceCode:        key.SubstanceCode,
		From:                 from,
		To:                   to,
		ExcludeTransactionID: tx.ID,
		AllCustomers:         key.CompanyWide,
	}
}

func evaluateThresholds(tx *models.Transaction, customer *models.Customer, thresholds []models.Threshold, usage map[UsageKey]UsageTotals) []Violation {
	var vs []Violation
	for _, u := range aggregateUsage(tx.Lines) {
		for _, t := range MatchThresholds(thresholds, customer, u.SubstanceCode, tx.TransactionDate) {
			t := t
			history := usage[UsageKey{SubstanceCode: u.SubstanceCode, Period: t.Period}]
			if v := EvaluateThreshold(&t, UsageFor(&t, u, history)); v != nil {
				vs = append(vs, v.atLine(u.FirstLine, u.SubstanceCode))
			}
		}
	}
	return vs
}
