package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/javajoker/substance-compliance/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func approvedCustomer() *models.Customer {
	c := &models.Customer{
		AccountNumber:          "C-1001",
		Name:                   "Apotheek De Linde",
		Category:               models.CustomerCategoryPharmacy,
		CountryCode:            "NL",
		ApprovalStatus:         models.ApprovalStatusApproved,
		GdpQualificationStatus: models.GdpStatusNotRequired,
	}
	c.ID = uuid.New()
	return c
}

func morphine() *models.Substance {
	return &models.Substance{Code: "MORPH", Name: "Morphine", OpiumActList: models.OpiumActListI, BaseUnit: "g", IsActive: true}
}

func licenceFor(holder models.HolderType, holderID uuid.UUID, number string, issue string, expiry *time.Time, activities ...models.Activity) models.Licence {
	l := models.Licence{
		LicenceNumber:       number,
		HolderType:          holder,
		HolderID:            holderID,
		IssueDate:           day(issue),
		ExpiryDate:          expiry,
		Status:              models.LicenceStatusValid,
		PermittedActivities: models.NewActivitySet(activities...),
		SubstanceMappings:   []models.LicenceSubstanceMapping{{SubstanceCode: "MORPH"}},
	}
	l.ID = uuid.New()
	return l
}

func orderFor(customer *models.Customer, date string, lines ...models.TransactionLine) *models.Transaction {
	nl := "NL"
	tx := &models.Transaction{
		ExternalReference:  "SO-" + date,
		TransactionType:    models.TransactionTypeOrder,
		Direction:          models.DirectionOutbound,
		CustomerID:         customer.ID,
		OriginCountry:      "NL",
		DestinationCountry: &nl,
		TransactionDate:    day(date),
		ValidationStatus:   models.ValidationStatusPending,
		OverrideStatus:     models.OverrideStatusNone,
		Lines:              lines,
	}
	tx.ID = uuid.New()
	return tx
}

func line(n int, code, qty string) models.TransactionLine {
	return models.TransactionLine{LineNumber: n, SubstanceCode: code, Quantity: dec(qty), BaseQuantity: dec(qty), Unit: "g"}
}

func codesOf(vs []Violation) []ViolationCode {
	out := make([]ViolationCode, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Code)
	}
	return out
}

type mockCustomers struct{ mock.Mock }

func (m *mockCustomers) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Customer)
	return c, args.Error(1)
}

type mockLicences struct{ mock.Mock }

func (m *mockLicences) GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*models.Licence)
	return l, args.Error(1)
}

func (m *mockLicences) ListByHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) ([]models.Licence, error) {
	args := m.Called(ctx, holderType, holderID)
	ls, _ := args.Get(0).([]models.Licence)
	return ls, args.Error(1)
}

type mockThresholds struct{ mock.Mock }

func (m *mockThresholds) ListActive(ctx context.Context) ([]models.Threshold, error) {
	args := m.Called(ctx)
	ts, _ := args.Get(0).([]models.Threshold)
	return ts, args.Error(1)
}

type mockSubstances struct{ mock.Mock }

func (m *mockSubstances) GetByCode(ctx context.Context, code string) (*models.Substance, error) {
	args := m.Called(ctx, code)
	s, _ := args.Get(0).(*models.Substance)
	return s, args.Error(1)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) SumUsage(ctx context.Context, q UsageQuery) (UsageTotals, error) {
	args := m.Called(ctx, q)
	t, _ := args.Get(0).(UsageTotals)
	return t, args.Error(1)
}

func (m *mockHistory) ListInWindow(ctx context.Context, q HistoryQuery) ([]models.Transaction, error) {
	args := m.Called(ctx, q)
	ts, _ := args.Get(0).([]models.Transaction)
	return ts, args.Error(1)
}
