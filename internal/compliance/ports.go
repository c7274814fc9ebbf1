// internal/compliance/ports.go
package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/javajoker/substance-compliance/internal/models"
)

// The lookups below are read-only from the engine's point of view. A missing
// record is reported as an error matching ErrNotFound; any other error is
// treated as the collaborator being unavailable.

type CustomerLookup interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type LicenceLookup interface {
	GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error)
	// ListByHolder returns every licence of the holder whatever its status,
	// with licence type and substance mappings loaded.
	ListByHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) ([]models.Licence, error)
}

type ThresholdLookup interface {
	ListActive(ctx context.Context) ([]models.Threshold, error)
}

type SubstanceLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Substance, error)
}

// UsageQuery selects prior transactions of one customer and substance whose
// date falls within [From, To]. Only transactions that proceeded count.
// AllCustomers widens the selection to every customer, for caps on the
// company's own licences.
type UsageQuery struct {
	CustomerID           uuid.UUID
	SubstanceCode        string
	From                 time.Time
	To                   time.Time
	ExcludeTransactionID uuid.UUID
	AllCustomers         bool
}

// UsageTotals aggregates history for threshold evaluation. Quantity is in
// base units.
type UsageTotals struct {
	Quantity decimal.Decimal
	Value    decimal.Decimal
	Count    int64
}

// HistoryQuery selects transactions for impact analysis. A nil CustomerID
// selects transactions of every customer.
type HistoryQuery struct {
	CustomerID *uuid.UUID
	From       time.Time
	To         time.Time
}

type TransactionHistory interface {
	SumUsage(ctx context.Context, q UsageQuery) (UsageTotals, error)
	// ListInWindow returns validated transactions with their lines loaded.
	ListInWindow(ctx context.Context, q HistoryQuery) ([]models.Transaction, error)
}
