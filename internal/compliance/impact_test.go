package compliance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/substance-compliance/internal/models"
)

func historical(customerID uuid.UUID, ref, date string, status models.ValidationStatus, codes ...ViolationCode) models.Transaction {
	tx := models.Transaction{
		ExternalReference: ref,
		CustomerID:        customerID,
		TransactionDate:   day(date),
		ValidationStatus:  status,
		Lines:             []models.TransactionLine{line(1, "MORPH", "1")},
	}
	tx.ID = uuid.New()
	for _, c := range codes {
		tx.Violations = append(tx.Violations, newViolation(c, "stored").Record())
	}
	return tx
}

func TestImpactEffectiveDateMovedEarlier(t *testing.T) {
	customerID := uuid.New()
	licence := licenceFor(models.HolderTypeCustomer, customerID, "CL-9", "2025-06-01", nil, models.ActivityPossess)
	correction := &models.LicenceCorrection{
		LicenceID:              licence.ID,
		CorrectionDate:         day("2025-07-01"),
		OriginalEffectiveDate:  dayPtr("2025-06-01"),
		CorrectedEffectiveDate: dayPtr("2025-01-01"),
	}

	blocked := historical(customerID, "SO-1", "2025-03-01", models.ValidationStatusFailed, CodeLicenceMissing)
	otherFailure := historical(customerID, "SO-2", "2025-03-02", models.ValidationStatusFailed, CodeCustomerNotApproved)
	overridden := historical(customerID, "SO-3", "2025-02-01", models.ValidationStatusApprovedWithOverride, CodeLicenceMissing)
	unaffected := historical(customerID, "SO-4", "2025-06-15", models.ValidationStatusPassed)
	otherSubstance := historical(customerID, "SO-5", "2025-03-03", models.ValidationStatusFailed, CodeLicenceMissing)
	otherSubstance.Lines[0].SubstanceCode = "FENT"

	licences := new(mockLicences)
	licences.On("GetLicence", mock.Anything, licence.ID).Return(&licence, nil)
	history := new(mockHistory)
	history.On("ListInWindow", mock.Anything, HistoryQuery{
		CustomerID: &customerID,
		From:       day("2025-01-01"),
		To:         day("2025-07-01"),
	}).Return([]models.Transaction{blocked, otherFailure, overridden, unaffected, otherSubstance}, nil)

	report, err := NewImpactAnalyzer(licences, history, 2, nil).Analyze(context.Background(), correction)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Summary.Analyzed)
	require.Len(t, report.Items, 2)

	minor := report.Items[0]
	assert.Equal(t, "SO-3", minor.ExternalReference)
	assert.Equal(t, ImpactMinor, minor.Severity)
	assert.Equal(t, models.ValidationStatusPassed, minor.CorrectedStatus)
	assert.False(t, minor.RequiresReview)

	major := report.Items[1]
	assert.Equal(t, "SO-1", major.ExternalReference)
	assert.Equal(t, models.ValidationStatusFailed, major.OriginalStatus)
	assert.Equal(t, models.ValidationStatusPassed, major.CorrectedStatus)
	assert.Equal(t, ImpactMajor, major.Severity)
	assert.True(t, major.RequiresReview)

	assert.Equal(t, ImpactSummary{Analyzed: 4, Major: 1, Minor: 1}, report.Summary)
}

func TestImpactExpiryShortenedIsCritical(t *testing.T) {
	customerID := uuid.New()
	licence := licenceFor(models.HolderTypeCustomer, customerID, "CL-9", "2024-01-01", dayPtr("2025-12-31"), models.ActivityPossess)
	correction := &models.LicenceCorrection{
		LicenceID:           licence.ID,
		CorrectionDate:      day("2025-06-01"),
		OriginalExpiryDate:  dayPtr("2025-12-31"),
		CorrectedExpiryDate: dayPtr("2025-03-31"),
	}

	covered := historical(customerID, "SO-1", "2025-04-15", models.ValidationStatusPassed)
	covered.Lines[0].CoveringLicenceID = &licence.ID
	otherLicence := historical(customerID, "SO-2", "2025-04-16", models.ValidationStatusPassed)
	otherID := uuid.New()
	otherLicence.Lines[0].CoveringLicenceID = &otherID
	beforeCut := historical(customerID, "SO-3", "2025-03-31", models.ValidationStatusPassed)

	licences := new(mockLicences)
	licences.On("GetLicence", mock.Anything, licence.ID).Return(&licence, nil)
	history := new(mockHistory)
	history.On("ListInWindow", mock.Anything, mock.MatchedBy(func(q HistoryQuery) bool {
		return q.From.Equal(day("2024-01-01")) && q.To.Equal(day("2025-06-01"))
	})).Return([]models.Transaction{covered, otherLicence, beforeCut}, nil)

	report, err := NewImpactAnalyzer(licences, history, 0, nil).Analyze(context.Background(), correction)
	require.NoError(t, err)

	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, "SO-1", item.ExternalReference)
	assert.Equal(t, ImpactCritical, item.Severity)
	assert.Equal(t, models.ValidationStatusFailed, item.CorrectedStatus)
	assert.True(t, item.RequiresReview)
	assert.Equal(t, 1, report.Summary.Critical)
}

func TestImpactCompanyLicenceScansAllCustomers(t *testing.T) {
	licence := licenceFor(models.HolderTypeCompany, uuid.New(), "OW-1", "2025-06-01", nil, models.ActivityDistribute)
	correction := &models.LicenceCorrection{
		LicenceID:              licence.ID,
		CorrectionDate:         day("2025-07-01"),
		OriginalEffectiveDate:  dayPtr("2025-06-01"),
		CorrectedEffectiveDate: dayPtr("2025-05-01"),
	}

	licences := new(mockLicences)
	licences.On("GetLicence", mock.Anything, licence.ID).Return(&licence, nil)
	history := new(mockHistory)
	history.On("ListInWindow", mock.Anything, mock.MatchedBy(func(q HistoryQuery) bool {
		return q.CustomerID == nil
	})).Return([]models.Transaction{}, nil)

	report, err := NewImpactAnalyzer(licences, history, 1, nil).Analyze(context.Background(), correction)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	history.AssertExpectations(t)
}

func TestImpactUnknownLicenceIsInvalidOperation(t *testing.T) {
	id := uuid.New()
	licences := new(mockLicences)
	licences.On("GetLicence", mock.Anything, id).Return(nil, NewNotFound("licence", id))

	_, err := NewImpactAnalyzer(licences, new(mockHistory), 1, nil).
		Analyze(context.Background(), &models.LicenceCorrection{LicenceID: id, CorrectionDate: day("2025-01-01")})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestImpactHistoryFailure(t *testing.T) {
	licence := licenceFor(models.HolderTypeCustomer, uuid.New(), "CL-1", "2025-01-01", nil)
	licences := new(mockLicences)
	licences.On("GetLicence", mock.Anything, licence.ID).Return(&licence, nil)
	history := new(mockHistory)
	history.On("ListInWindow", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	_, err := NewImpactAnalyzer(licences, history, 1, nil).
		Analyze(context.Background(), &models.LicenceCorrection{LicenceID: licence.ID, CorrectionDate: day("2025-03-01")})
	assert.ErrorIs(t, err, ErrExternalUnavailable)
}
