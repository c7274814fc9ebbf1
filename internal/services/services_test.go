// internal/services/services_test.go
package services

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

var fixedNow = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)

type ServicesTestSuite struct {
	suite.Suite
	db    *gorm.DB
	repos *repository.Repositories
	ctx   context.Context

	transactions *TransactionService
	licences     *LicenceService
	customers    *CustomerService
	thresholds   *ThresholdService
	substances   *SubstanceService

	customer    *models.Customer
	pharmacy    *models.LicenceType
	officer     uuid.UUID
	responsible uuid.UUID
}

func (suite *ServicesTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	suite.Require().NoError(err)
	sqlDB, err := db.DB()
	suite.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	suite.Require().NoError(database.RunMigrations(db))

	suite.db = db
	suite.repos = repository.New(db)
	suite.ctx = context.Background()

	lookups := NewLookupProvider(nil, "", 0)
	suite.transactions = NewTransactionService(db, lookups, config.ValidationConfig{
		LookupTimeoutSeconds: 5,
		ConflictRetries:      2,
	}, nil)
	suite.transactions.now = func() time.Time { return fixedNow }
	suite.licences = NewLicenceService(db, lookups, 2, nil)
	suite.licences.now = func() time.Time { return fixedNow }
	suite.customers = NewCustomerService(db)
	suite.thresholds = NewThresholdService(suite.repos)
	suite.substances = NewSubstanceService(suite.repos, lookups)

	suite.customer = &models.Customer{
		AccountNumber:  "C-1001",
		Name:           "Apotheek Centrum",
		Category:       models.CustomerCategoryPharmacy,
		CountryCode:    "NL",
		ApprovalStatus: models.ApprovalStatusApproved,
	}
	suite.Require().NoError(suite.repos.Customers.Create(suite.ctx, suite.customer))

	_, err = suite.substances.Create(suite.ctx, &SubstanceRequest{
		Code:         "MORPH",
		Name:         "Morphine",
		OpiumActList: models.OpiumActListII,
		BaseUnit:     "g",
	})
	suite.Require().NoError(err)

	suite.pharmacy = &models.LicenceType{
		Name:                "Pharmacy Licence",
		IssuingAuthority:    "CIBG",
		PermittedActivities: models.NewActivitySet(models.ActivityPossess, models.ActivityStore, models.ActivityDispense),
	}
	suite.Require().NoError(db.Create(suite.pharmacy).Error)

	suite.officer = suite.createUser("officer", models.UserRoleComplianceOfficer)
	suite.responsible = suite.createUser("responsible", models.UserRoleResponsiblePerson)
}

func (suite *ServicesTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func TestServicesTestSuite(t *testing.T) {
	suite.Run(t, new(ServicesTestSuite))
}

func (suite *ServicesTestSuite) createUser(username string, role models.UserRole) uuid.UUID {
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
		Status:   models.UserStatusActive,
	}
	suite.Require().NoError(user.SetPassword("Secret123!"))
	suite.Require().NoError(suite.db.Create(user).Error)
	return user.ID
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (suite *ServicesTestSuite) registerLicence(number string, issue time.Time, expiry *time.Time) *models.Licence {
	licence, err := suite.licences.Create(suite.ctx, &CreateLicenceRequest{
		LicenceNumber:       number,
		LicenceTypeID:       suite.pharmacy.ID,
		HolderType:          models.HolderTypeCustomer,
		HolderID:            suite.customer.ID,
		IssueDate:           issue,
		ExpiryDate:          expiry,
		PermittedActivities: []models.Activity{models.ActivityPossess},
		Substances:          []LicenceSubstanceRequest{{SubstanceCode: "MORPH"}},
	})
	suite.Require().NoError(err)
	return licence
}

func (suite *ServicesTestSuite) submitOrder(ref string, on time.Time, qty string, unit string) (*TransactionOutcome, error) {
	return suite.transactions.Submit(suite.ctx, &SubmitTransactionRequest{
		ExternalReference: ref,
		TransactionType:   models.TransactionTypeOrder,
		Direction:         models.DirectionOutbound,
		CustomerID:        suite.customer.ID,
		OriginCountry:     "nl",
		TransactionDate:   on,
		Lines: []TransactionLineRequest{{
			SubstanceCode: "MORPH",
			Quantity:      decimal.RequireFromString(qty),
			Unit:          unit,
			LineValue:     decimal.NewFromInt(120),
		}},
	})
}

func (suite *ServicesTestSuite) TestSubmitPassesWithCoveringLicence() {
	licence := suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)

	outcome, err := suite.submitOrder("SO-1", day(2026, time.March, 10), "500", "mg")
	suite.Require().NoError(err)
	suite.Require().NotNil(outcome.Result)
	suite.Equal(models.ValidationStatusPassed, outcome.Result.Status)

	stored, err := suite.transactions.Get(suite.ctx, outcome.Transaction.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPassed, stored.ValidationStatus)
	suite.Equal(models.OverrideStatusNone, stored.OverrideStatus)
	suite.Equal(2, stored.Version)
	suite.Equal("NL", stored.OriginCountry)
	suite.Require().Len(stored.Lines, 1)
	suite.True(stored.Lines[0].IsValid)
	suite.True(stored.Lines[0].BaseQuantity.Equal(decimal.RequireFromString("0.5")))
	suite.Require().NotNil(stored.Lines[0].CoveringLicenceID)
	suite.Equal(licence.ID, *stored.Lines[0].CoveringLicenceID)
}

func (suite *ServicesTestSuite) TestSubmitRejectsDuplicateReference() {
	suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	_, err := suite.submitOrder("SO-1", day(2026, time.March, 10), "1", "g")
	suite.Require().NoError(err)

	_, err = suite.submitOrder("SO-1", day(2026, time.March, 11), "1", "g")
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))
}

func (suite *ServicesTestSuite) TestSubmitRejectsInvalidRequest() {
	_, err := suite.transactions.Submit(suite.ctx, &SubmitTransactionRequest{
		ExternalReference: "SO-BAD",
		TransactionType:   models.TransactionTypeOrder,
		Direction:         models.DirectionOutbound,
		CustomerID:        suite.customer.ID,
		OriginCountry:     "NL",
		TransactionDate:   fixedNow,
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))
}

func (suite *ServicesTestSuite) TestSubmitUnknownCustomerStaysPending() {
	outcome, err := suite.transactions.Submit(suite.ctx, &SubmitTransactionRequest{
		ExternalReference: "SO-GHOST",
		TransactionType:   models.TransactionTypeOrder,
		Direction:         models.DirectionOutbound,
		CustomerID:        uuid.New(),
		OriginCountry:     "NL",
		TransactionDate:   fixedNow,
		Lines: []TransactionLineRequest{{
			SubstanceCode: "MORPH",
			Quantity:      decimal.NewFromInt(1),
			LineValue:     decimal.Zero,
		}},
	})
	suite.Require().Error(err)
	suite.True(errors.Is(err, compliance.ErrNotFound))
	suite.Require().NotNil(outcome)

	stored, err := suite.transactions.Get(suite.ctx, outcome.Transaction.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPending, stored.ValidationStatus)
	suite.Equal(1, stored.Version)
}

func (suite *ServicesTestSuite) TestSubmitRejectsUnconvertibleUnits() {
	suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)

	_, err := suite.submitOrder("SO-LB", day(2026, time.March, 10), "5", "lb")
	suite.True(errors.Is(err, compliance.ErrValidationFailed), "got %v", err)

	_, err = suite.submitOrder("SO-LITRE", day(2026, time.March, 10), "5", "l")
	suite.True(errors.Is(err, compliance.ErrValidationFailed), "got %v", err)

	for _, ref := range []string{"SO-LB", "SO-LITRE"} {
		_, err := suite.repos.Transactions.GetByReference(suite.ctx, ref)
		suite.True(errors.Is(err, compliance.ErrNotFound), ref)
	}
}

type failingSubstances struct{ err error }

func (f failingSubstances) GetByCode(context.Context, string) (*models.Substance, error) {
	return nil, f.err
}

func TestNormalizeLines(t *testing.T) {
	tx := &models.Transaction{Lines: []models.TransactionLine{
		{LineNumber: 1, SubstanceCode: "MORPH", Quantity: decimal.NewFromInt(3)},
		{LineNumber: 2, SubstanceCode: "MORPH", Quantity: decimal.NewFromInt(5), Unit: "kg"},
	}}
	morphine := &models.Substance{Code: "MORPH", BaseUnit: "g"}
	err := normalizeLines(context.Background(), stubSubstances{morphine}, tx)
	require.NoError(t, err)
	assert.True(t, tx.Lines[0].BaseQuantity.Equal(decimal.NewFromInt(3)))
	assert.True(t, tx.Lines[1].BaseQuantity.Equal(decimal.NewFromInt(5000)))
	assert.True(t, tx.TotalQuantity.Equal(decimal.NewFromInt(5003)))

	err = normalizeLines(context.Background(), failingSubstances{errors.New("connection reset")}, tx)
	assert.True(t, errors.Is(err, compliance.ErrExternalUnavailable), "got %v", err)

	err = normalizeLines(context.Background(), failingSubstances{context.Canceled}, tx)
	assert.True(t, errors.Is(err, context.Canceled))

	unknown := &models.Transaction{Lines: []models.TransactionLine{
		{LineNumber: 1, SubstanceCode: "XYZ", Quantity: decimal.NewFromInt(2), Unit: "mg"},
	}}
	err = normalizeLines(context.Background(), failingSubstances{compliance.NewNotFound("substance", "XYZ")}, unknown)
	require.NoError(t, err)
	assert.True(t, unknown.Lines[0].BaseQuantity.Equal(decimal.NewFromInt(2)))
}

type stubSubstances struct{ substance *models.Substance }

func (s stubSubstances) GetByCode(context.Context, string) (*models.Substance, error) {
	return s.substance, nil
}

func (suite *ServicesTestSuite) TestCancelledValidationLeavesTransactionPending() {
	pending := &models.Transaction{
		ExternalReference: "SO-CANCEL",
		TransactionType:   models.TransactionTypeOrder,
		Direction:         models.DirectionOutbound,
		CustomerID:        suite.customer.ID,
		OriginCountry:     "NL",
		TransactionDate:   day(2026, time.March, 10),
		ValidationStatus:  models.ValidationStatusPending,
		OverrideStatus:    models.OverrideStatusNone,
		Version:           1,
		Lines: []models.TransactionLine{{
			LineNumber:    1,
			SubstanceCode: "MORPH",
			Quantity:      decimal.NewFromInt(1),
			BaseQuantity:  decimal.NewFromInt(1),
			Unit:          "g",
		}},
	}
	suite.Require().NoError(suite.repos.Transactions.Create(suite.ctx, pending))

	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()
	outcome, err := suite.transactions.ValidatePending(ctx, pending.ID)
	suite.Nil(outcome)
	suite.True(errors.Is(err, context.Canceled), "got %v", err)

	stored, err := suite.transactions.Get(suite.ctx, pending.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPending, stored.ValidationStatus)
	suite.Equal(1, stored.Version)
	suite.Empty(stored.Violations)
}

func (suite *ServicesTestSuite) TestConcurrentOverrideDecisionConflicts() {
	outcome, err := suite.submitOrder("SO-RACE", day(2026, time.March, 10), "10", "g")
	suite.Require().NoError(err)
	id := outcome.Transaction.ID

	// Another decision commits between this decision's read and its write.
	armed := true
	suite.Require().NoError(suite.db.Callback().Query().After("gorm:query").Register("test:concurrent_decision", func(db *gorm.DB) {
		if !armed || db.Statement.Table != "transactions" {
			return
		}
		armed = false
		db.Session(&gorm.Session{NewDB: true}).Exec("UPDATE transactions SET version = version + 1 WHERE id = ?", id)
	}))

	decision := &OverrideDecisionRequest{Justification: "Licence renewal confirmed by phone with CIBG"}
	_, err = suite.transactions.ApproveOverride(suite.ctx, id, suite.responsible, models.UserRoleResponsiblePerson, decision)
	suite.True(errors.Is(err, compliance.ErrConcurrencyConflict), "got %v", err)
	suite.False(armed)

	stored, err := suite.transactions.Get(suite.ctx, id)
	suite.Require().NoError(err)
	suite.Equal(models.OverrideStatusPending, stored.OverrideStatus)
	suite.Equal(models.ValidationStatusFailed, stored.ValidationStatus)
}

func (suite *ServicesTestSuite) TestLicencePeriodCapCountsEarlierOrders() {
	monthly := models.ThresholdPeriodMonthly
	limit := decimal.NewFromInt(100)
	_, err := suite.licences.Create(suite.ctx, &CreateLicenceRequest{
		LicenceNumber:       "OW-2026-CAP",
		LicenceTypeID:       suite.pharmacy.ID,
		HolderType:          models.HolderTypeCustomer,
		HolderID:            suite.customer.ID,
		IssueDate:           day(2026, time.January, 1),
		PermittedActivities: []models.Activity{models.ActivityPossess},
		Substances: []LicenceSubstanceRequest{{
			SubstanceCode:        "MORPH",
			MaxQuantityPerPeriod: &limit,
			CapPeriod:            &monthly,
		}},
	})
	suite.Require().NoError(err)

	first, err := suite.submitOrder("SO-CAP-1", day(2026, time.March, 2), "60", "g")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPassed, first.Result.Status)

	second, err := suite.submitOrder("SO-CAP-2", day(2026, time.March, 20), "50000", "mg")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusFailed, second.Result.Status)
	suite.True(second.Result.HasCode(compliance.CodeThresholdExceeded))

	nextMonth, err := suite.submitOrder("SO-CAP-3", day(2026, time.April, 1), "50", "g")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPassed, nextMonth.Result.Status)
}

func (suite *ServicesTestSuite) TestLicencePeriodCapNeedsPeriod() {
	limit := decimal.NewFromInt(100)
	_, err := suite.licences.Create(suite.ctx, &CreateLicenceRequest{
		LicenceNumber:       "OW-2026-HALF",
		LicenceTypeID:       suite.pharmacy.ID,
		HolderType:          models.HolderTypeCustomer,
		HolderID:            suite.customer.ID,
		IssueDate:           day(2026, time.January, 1),
		PermittedActivities: []models.Activity{models.ActivityPossess},
		Substances:          []LicenceSubstanceRequest{{SubstanceCode: "MORPH", MaxQuantityPerPeriod: &limit}},
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))
}

func (suite *ServicesTestSuite) TestOverrideWorkflow() {
	outcome, err := suite.submitOrder("SO-2", day(2026, time.March, 10), "10", "g")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusFailed, outcome.Result.Status)
	suite.True(outcome.Result.HasCode(compliance.CodeLicenceMissing))
	suite.Equal(models.OverrideStatusPending, outcome.Transaction.OverrideStatus)

	pending, err := suite.transactions.ListPendingOverrides(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(pending, 1)

	decision := &OverrideDecisionRequest{Justification: "Licence renewal confirmed by phone with CIBG"}
	_, err = suite.transactions.ApproveOverride(suite.ctx, outcome.Transaction.ID, suite.officer, models.UserRoleComplianceOfficer, decision)
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))

	approved, err := suite.transactions.ApproveOverride(suite.ctx, outcome.Transaction.ID, suite.responsible, models.UserRoleResponsiblePerson, decision)
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusApprovedWithOverride, approved.ValidationStatus)
	suite.Equal(models.OverrideStatusApproved, approved.OverrideStatus)
	suite.Require().NotNil(approved.OverrideDecidedBy)
	suite.Equal(suite.responsible, *approved.OverrideDecidedBy)

	_, err = suite.transactions.RejectOverride(suite.ctx, outcome.Transaction.ID, suite.responsible, models.UserRoleResponsiblePerson, decision)
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))

	entries, total, err := suite.repos.Audit.List(suite.ctx, repository.AuditFilter{Action: models.AuditActionOverrideApproved}, utils.PageRequest{Page: 1, Limit: 10, Desc: true})
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal("transaction", entries[0].ResourceType)
}

func (suite *ServicesTestSuite) TestRejectOverrideNeedsJustification() {
	outcome, err := suite.submitOrder("SO-3", day(2026, time.March, 10), "10", "g")
	suite.Require().NoError(err)

	_, err = suite.transactions.RejectOverride(suite.ctx, outcome.Transaction.ID, suite.responsible, models.UserRoleResponsiblePerson, &OverrideDecisionRequest{})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))
}

func (suite *ServicesTestSuite) TestRevalidateAfterLicenceRegistered() {
	outcome, err := suite.submitOrder("SO-4", day(2026, time.March, 10), "10", "g")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusFailed, outcome.Result.Status)

	suite.registerLicence("OW-2026-002", day(2026, time.January, 1), nil)

	revalidated, err := suite.transactions.Revalidate(suite.ctx, outcome.Transaction.ID, suite.officer)
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPassed, revalidated.Transaction.ValidationStatus)
	suite.Equal(models.OverrideStatusNone, revalidated.Transaction.OverrideStatus)

	entries, _, err := suite.repos.Audit.List(suite.ctx, repository.AuditFilter{Action: models.AuditActionRevalidated}, utils.PageRequest{Page: 1, Limit: 10, Desc: true})
	suite.Require().NoError(err)
	suite.Require().Len(entries, 1)
	suite.Equal(string(models.ValidationStatusFailed), entries[0].OldValues["validation_status"])
}

func (suite *ServicesTestSuite) TestRevalidatePendingIsInvalid() {
	outcome, err := suite.transactions.Submit(suite.ctx, &SubmitTransactionRequest{
		ExternalReference: "SO-5",
		TransactionType:   models.TransactionTypeOrder,
		Direction:         models.DirectionOutbound,
		CustomerID:        uuid.New(),
		OriginCountry:     "NL",
		TransactionDate:   fixedNow,
		Lines:             []TransactionLineRequest{{SubstanceCode: "MORPH", Quantity: decimal.NewFromInt(1)}},
	})
	suite.Require().Error(err)

	_, err = suite.transactions.Revalidate(suite.ctx, outcome.Transaction.ID, suite.officer)
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))
}

func (suite *ServicesTestSuite) TestPerTransactionThresholdBlocks() {
	suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	code := "MORPH"
	_, err := suite.thresholds.Create(suite.ctx, &ThresholdRequest{
		Name:          "Morphine per order",
		ThresholdType: models.ThresholdTypeQuantity,
		Period:        models.ThresholdPeriodPerTransaction,
		LimitValue:    decimal.NewFromInt(100),
		LimitUnit:     "g",
		SubstanceCode: &code,
	})
	suite.Require().NoError(err)

	outcome, err := suite.submitOrder("SO-6", day(2026, time.March, 10), "150", "g")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusFailed, outcome.Result.Status)
	suite.True(outcome.Result.HasCode(compliance.CodeThresholdExceeded))
	suite.True(outcome.Result.RequiresOverride)
}

func (suite *ServicesTestSuite) TestThresholdValidation() {
	warning := decimal.NewFromInt(120)
	_, err := suite.thresholds.Create(suite.ctx, &ThresholdRequest{
		Name:                    "Broken",
		ThresholdType:           models.ThresholdTypeQuantity,
		Period:                  models.ThresholdPeriodMonthly,
		LimitValue:              decimal.NewFromInt(10),
		WarningThresholdPercent: &warning,
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))

	_, err = suite.thresholds.Create(suite.ctx, &ThresholdRequest{
		Name:          "Zero",
		ThresholdType: models.ThresholdTypeQuantity,
		Period:        models.ThresholdPeriodMonthly,
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))
}

func (suite *ServicesTestSuite) TestThresholdDeactivate() {
	t, err := suite.thresholds.Create(suite.ctx, &ThresholdRequest{
		Name:          "Monthly cap",
		ThresholdType: models.ThresholdTypeValue,
		Period:        models.ThresholdPeriodMonthly,
		LimitValue:    decimal.NewFromInt(1000),
	})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.thresholds.Deactivate(suite.ctx, t.ID))

	active, err := suite.thresholds.List(suite.ctx, repository.ThresholdFilter{ActiveOnly: true})
	suite.Require().NoError(err)
	suite.Empty(active)

	err = suite.thresholds.Deactivate(suite.ctx, uuid.New())
	suite.True(errors.Is(err, compliance.ErrNotFound))
}

func (suite *ServicesTestSuite) TestLicenceCreateChecksActivities() {
	_, err := suite.licences.Create(suite.ctx, &CreateLicenceRequest{
		LicenceNumber:       "OW-BAD",
		LicenceTypeID:       suite.pharmacy.ID,
		HolderType:          models.HolderTypeCustomer,
		HolderID:            suite.customer.ID,
		IssueDate:           day(2026, time.January, 1),
		PermittedActivities: []models.Activity{models.ActivityExport},
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))

	_, err = suite.licences.Create(suite.ctx, &CreateLicenceRequest{
		LicenceNumber: "OW-NOSUB",
		LicenceTypeID: suite.pharmacy.ID,
		HolderType:    models.HolderTypeCustomer,
		HolderID:      suite.customer.ID,
		IssueDate:     day(2026, time.January, 1),
		Substances:    []LicenceSubstanceRequest{{SubstanceCode: "UNKNOWN"}},
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))
}

func (suite *ServicesTestSuite) TestLicenceStatusTransitions() {
	licence := suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)

	suspended, err := suite.licences.ChangeStatus(suite.ctx, licence.ID, suite.officer, &ChangeLicenceStatusRequest{
		Status: models.LicenceStatusSuspended,
		Reason: "Inspection pending",
	})
	suite.Require().NoError(err)
	suite.Equal(models.LicenceStatusSuspended, suspended.Status)

	outcome, err := suite.submitOrder("SO-7", day(2026, time.March, 10), "1", "g")
	suite.Require().NoError(err)
	suite.True(outcome.Result.HasCode(compliance.CodeLicenceSuspended))

	_, err = suite.licences.ChangeStatus(suite.ctx, licence.ID, suite.officer, &ChangeLicenceStatusRequest{
		Status: models.LicenceStatusRevoked,
		Reason: "Inspection failed",
	})
	suite.Require().NoError(err)

	_, err = suite.licences.ChangeStatus(suite.ctx, licence.ID, suite.officer, &ChangeLicenceStatusRequest{
		Status: models.LicenceStatusValid,
		Reason: "Appeal granted",
	})
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))
}

func (suite *ServicesTestSuite) TestCorrectDatesReportsImpactAndPersists() {
	licence := suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	outcome, err := suite.submitOrder("SO-8", day(2026, time.March, 10), "1", "g")
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPassed, outcome.Result.Status)

	corrected := day(2026, time.April, 1)
	req := &CorrectLicenceDatesRequest{IssueDate: &corrected, Reason: "Issue date misread from certificate"}

	preview, err := suite.licences.PreviewCorrection(suite.ctx, licence.ID, req)
	suite.Require().NoError(err)
	suite.Require().Len(preview.Items, 1)

	result, err := suite.licences.CorrectDates(suite.ctx, licence.ID, suite.officer, req)
	suite.Require().NoError(err)
	suite.Require().Len(result.Report.Items, 1)
	item := result.Report.Items[0]
	suite.Equal("SO-8", item.ExternalReference)
	suite.Equal(compliance.ImpactCritical, item.Severity)
	suite.Equal(models.ValidationStatusFailed, item.CorrectedStatus)
	suite.Equal(1, result.Correction.ImpactedTransactions)

	reloaded, err := suite.licences.Get(suite.ctx, licence.ID)
	suite.Require().NoError(err)
	suite.True(reloaded.IssueDate.Equal(corrected))

	corrections, err := suite.licences.ListCorrections(suite.ctx, licence.ID)
	suite.Require().NoError(err)
	suite.Require().Len(corrections, 1)
	suite.Equal(suite.officer, corrections[0].CorrectedBy)

	stored, err := suite.transactions.Get(suite.ctx, outcome.Transaction.ID)
	suite.Require().NoError(err)
	suite.Equal(models.ValidationStatusPassed, stored.ValidationStatus, "history is not rewritten")
}

func (suite *ServicesTestSuite) TestCorrectDatesRejectsExpiryBeforeIssue() {
	licence := suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	expiry := day(2025, time.December, 1)
	_, err := suite.licences.CorrectDates(suite.ctx, licence.ID, suite.officer, &CorrectLicenceDatesRequest{
		ExpiryDate: &expiry,
		Reason:     "Expiry typed in the wrong year",
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))

	_, err = suite.licences.CorrectDates(suite.ctx, licence.ID, suite.officer, &CorrectLicenceDatesRequest{
		Reason: "Nothing to correct here",
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))
}

func (suite *ServicesTestSuite) TestCorrectDatesRevivesExpiredLicence() {
	expiry := day(2026, time.February, 1)
	licence := suite.registerLicence("OW-2026-001", day(2025, time.January, 1), &expiry)

	changed, err := suite.licences.ExpireLapsed(suite.ctx, fixedNow)
	suite.Require().NoError(err)
	suite.Equal(1, changed)

	extended := day(2027, time.February, 1)
	result, err := suite.licences.CorrectDates(suite.ctx, licence.ID, suite.officer, &CorrectLicenceDatesRequest{
		ExpiryDate: &extended,
		Reason:     "Renewal was registered late",
	})
	suite.Require().NoError(err)
	suite.Empty(result.Report.Items)

	reloaded, err := suite.licences.Get(suite.ctx, licence.ID)
	suite.Require().NoError(err)
	suite.Equal(models.LicenceStatusValid, reloaded.Status)
}

func (suite *ServicesTestSuite) TestExpireLapsed() {
	expiry := day(2026, time.May, 31)
	suite.registerLicence("OW-2026-001", day(2025, time.January, 1), &expiry)
	suite.registerLicence("OW-2026-002", day(2025, time.January, 1), nil)

	changed, err := suite.licences.ExpireLapsed(suite.ctx, fixedNow)
	suite.Require().NoError(err)
	suite.Equal(1, changed)

	changed, err = suite.licences.ExpireLapsed(suite.ctx, fixedNow)
	suite.Require().NoError(err)
	suite.Zero(changed)

	active, err := suite.licences.ListActive(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(active, 1)
	suite.Equal("OW-2026-002", active[0].LicenceNumber)
}

func (suite *ServicesTestSuite) TestCustomerSuspendAndReinstate() {
	suspended, err := suite.customers.Suspend(suite.ctx, suite.customer.ID, suite.officer, &SuspendCustomerRequest{Reason: "Unpaid invoices"})
	suite.Require().NoError(err)
	suite.True(suspended.IsSuspended)

	_, err = suite.customers.Suspend(suite.ctx, suite.customer.ID, suite.officer, &SuspendCustomerRequest{Reason: "Again"})
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))

	suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	outcome, err := suite.submitOrder("SO-9", day(2026, time.March, 10), "1", "g")
	suite.Require().NoError(err)
	suite.True(outcome.Result.HasCode(compliance.CodeCustomerSuspended))
	suite.False(outcome.Result.RequiresOverride)

	reinstated, err := suite.customers.Reinstate(suite.ctx, suite.customer.ID, suite.officer)
	suite.Require().NoError(err)
	suite.False(reinstated.IsSuspended)
	suite.Empty(reinstated.SuspensionReason)
}

func (suite *ServicesTestSuite) TestCustomerCreateAndApprove() {
	customer, err := suite.customers.Create(suite.ctx, &CreateCustomerRequest{
		AccountNumber: "C-2001",
		Name:          "Groothandel Oost",
		Category:      models.CustomerCategoryWholesalerEU,
		CountryCode:   "de",
	})
	suite.Require().NoError(err)
	suite.Equal(models.ApprovalStatusPending, customer.ApprovalStatus)
	suite.Equal("DE", customer.CountryCode)

	_, err = suite.customers.Create(suite.ctx, &CreateCustomerRequest{
		AccountNumber: "C-2001",
		Name:          "Duplicate",
		Category:      models.CustomerCategoryPharmacy,
		CountryCode:   "NL",
	})
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))

	gdp := models.GdpStatusApproved
	approved, err := suite.customers.SetApproval(suite.ctx, customer.ID, suite.responsible, &CustomerApprovalRequest{
		ApprovalStatus:         models.ApprovalStatusApproved,
		GdpQualificationStatus: &gdp,
	})
	suite.Require().NoError(err)
	suite.True(approved.CanTransact())
	suite.True(approved.IsGdpQualified())

	status := models.ApprovalStatusApproved
	page, err := suite.customers.List(suite.ctx, CustomerSearchParams{
		PageRequest: utils.PageRequest{Page: 1, Limit: 10, Sort: "account_number"},
		CustomerFilter:   repository.CustomerFilter{ApprovalStatus: &status},
	})
	suite.Require().NoError(err)
	suite.Equal(int64(2), page.Total)
}

func (suite *ServicesTestSuite) TestSubstanceUpdateRejectsUnknownUnit() {
	_, err := suite.substances.Update(suite.ctx, "MORPH", &SubstanceRequest{
		Code:     "MORPH",
		Name:     "Morphine",
		BaseUnit: "bushel",
	})
	suite.True(errors.Is(err, compliance.ErrValidationFailed))

	_, err = suite.substances.Create(suite.ctx, &SubstanceRequest{Code: "MORPH", Name: "Again"})
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))
}

func (suite *ServicesTestSuite) TestAuthLoginAndRefresh() {
	utils.ConfigureTokens("test-secret", "")
	auth := NewAuthService(suite.db, &config.Config{JWT: config.JWTConfig{AccessTokenTTL: 1, RefreshTokenTTL: 24}})

	resp, err := auth.Login(suite.ctx, &LoginRequest{Login: "officer", Password: "Secret123!"})
	suite.Require().NoError(err)
	suite.NotEmpty(resp.AccessToken)
	suite.Equal(3600, resp.ExpiresIn)

	claims, err := utils.ParseAccessToken(resp.AccessToken)
	suite.Require().NoError(err)
	suite.Equal(string(models.UserRoleComplianceOfficer), claims.Role)

	_, err = auth.Login(suite.ctx, &LoginRequest{Login: "officer@example.com", Password: "Secret123!"})
	suite.NoError(err)

	_, err = auth.Login(suite.ctx, &LoginRequest{Login: "officer", Password: "wrong"})
	suite.ErrorIs(err, ErrInvalidCredentials)

	refreshed, err := auth.RefreshToken(suite.ctx, resp.RefreshToken)
	suite.Require().NoError(err)
	suite.Equal("officer", refreshed.User.Username)

	_, err = auth.RefreshToken(suite.ctx, "garbage")
	suite.ErrorIs(err, ErrInvalidToken)
}

func (suite *ServicesTestSuite) TestAuthCreateUser() {
	auth := NewAuthService(suite.db, &config.Config{})

	user, err := auth.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "newofficer",
		Email:    "New.Officer@Example.com",
		Password: "Secret123!",
		Role:     models.UserRoleComplianceOfficer,
	})
	suite.Require().NoError(err)
	suite.Equal("new.officer@example.com", user.Email)

	_, err = auth.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "newofficer",
		Email:    "other@example.com",
		Password: "Secret123!",
		Role:     models.UserRoleComplianceOfficer,
	})
	suite.True(errors.Is(err, compliance.ErrInvalidOperation))
}

func (suite *ServicesTestSuite) TestDocumentLifecycle() {
	licence := suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	store, err := NewLocalStore(suite.T().TempDir())
	suite.Require().NoError(err)
	docs := NewDocumentService(suite.repos, store, NewLookupProvider(nil, "", 0), 15*time.Minute)

	content := []byte("%PDF-1.4\n% licence certificate\n")
	file, header := suite.tempUpload("certificate.pdf", content)
	defer file.Close()

	doc, err := docs.Upload(suite.ctx, licence.ID, suite.officer, file, header)
	suite.Require().NoError(err)
	suite.Equal("application/pdf", doc.MimeType)
	suite.Equal(utils.HashBytes(content), doc.Checksum)

	downloaded, err := docs.Download(suite.ctx, licence.ID, doc.ID)
	suite.Require().NoError(err)
	suite.Equal(content, downloaded.Data)

	_, err = docs.PresignedURL(suite.ctx, licence.ID, doc.ID)
	suite.ErrorIs(err, ErrPresignUnsupported)

	suite.Require().NoError(docs.Delete(suite.ctx, licence.ID, doc.ID))
	_, err = docs.Download(suite.ctx, licence.ID, doc.ID)
	suite.True(errors.Is(err, compliance.ErrNotFound))
}

func (suite *ServicesTestSuite) TestDocumentUploadRejectsDisguisedFile() {
	licence := suite.registerLicence("OW-2026-001", day(2026, time.January, 1), nil)
	store, err := NewLocalStore(suite.T().TempDir())
	suite.Require().NoError(err)
	docs := NewDocumentService(suite.repos, store, nil, time.Minute)

	file, header := suite.tempUpload("certificate.pdf", []byte("MZ this is not a pdf"))
	defer file.Close()

	_, err = docs.Upload(suite.ctx, licence.ID, suite.officer, file, header)
	suite.ErrorIs(err, ErrFileTypeNotAllowed)
}

func (suite *ServicesTestSuite) tempUpload(name string, content []byte) (*os.File, *multipart.FileHeader) {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, content, 0o600))
	file, err := os.Open(path)
	suite.Require().NoError(err)
	return file, &multipart.FileHeader{Filename: name, Size: int64(len(content))}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "../outside.pdf", "application/pdf", []byte("x"))
	assert.Error(t, err)
}

func TestStatusAfterCorrection(t *testing.T) {
	now := day(2026, time.June, 1)
	past := day(2026, time.May, 1)
	future := day(2026, time.July, 1)

	assert.Equal(t, models.LicenceStatusExpired, statusAfterCorrection(models.LicenceStatusValid, &past, now))
	assert.Equal(t, models.LicenceStatusValid, statusAfterCorrection(models.LicenceStatusExpired, &future, now))
	assert.Equal(t, models.LicenceStatusValid, statusAfterCorrection(models.LicenceStatusExpired, nil, now))
	assert.Equal(t, models.LicenceStatusSuspended, statusAfterCorrection(models.LicenceStatusSuspended, &past, now))
}

func TestRenderImpactReport(t *testing.T) {
	report := &compliance.ImpactReport{
		LicenceNumber: "OW-2026-001",
		WindowStart:   day(2026, time.January, 1),
		WindowEnd:     day(2026, time.June, 1),
		Items: []compliance.ImpactItem{{
			ExternalReference: "SO-8",
			TransactionDate:   day(2026, time.March, 10),
			OriginalStatus:    models.ValidationStatusPassed,
			CorrectedStatus:   models.ValidationStatusFailed,
			Severity:          compliance.ImpactCritical,
			RequiresReview:    true,
		}},
		Summary: compliance.ImpactSummary{Analyzed: 1, Critical: 1},
	}

	data, err := RenderImpactReport(report)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	licence, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "OW-2026-001", licence)

	rows, err := f.GetRows("Impacted transactions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Reference", rows[0][0])
	assert.Equal(t, "SO-8", rows[1][0])
	assert.Equal(t, "critical", rows[1][5])
}

func TestRenderPendingOverrides(t *testing.T) {
	validated := fixedNow.Add(-50 * time.Hour)
	tx := models.Transaction{
		ExternalReference: "SO-2",
		TransactionDate:   day(2026, time.May, 29),
		ValidatedAt:       &validated,
		ComplianceErrors:  models.StringList{"no licence", "over limit"},
		Customer:          &models.Customer{Name: "Apotheek Centrum"},
	}

	data, err := RenderPendingOverrides([]models.Transaction{tx}, fixedNow)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Pending overrides")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Apotheek Centrum", rows[1][2])
	assert.Equal(t, "2", rows[1][4])
	assert.Equal(t, "no licence; over limit", rows[1][5])
}
