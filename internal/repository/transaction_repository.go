// internal/repository/transaction_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type TransactionRepository struct {
	db *gorm.DB
}

type TransactionFilter struct {
	CustomerID       *uuid.UUID
	ValidationStatus *models.ValidationStatus
	OverrideStatus   *models.OverrideStatus
	From             *time.Time
	To               *time.Time
	Reference        string
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC")
}

// Create stores a new transaction and its lines.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Omit("Customer").Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Preload("Customer").
		First(&tx, "id = ?", id).Error; err != nil {
		return nil, translate(err, "transaction", id)
	}
	return &tx, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("external_reference = ?", reference).
		First(&tx).Error; err != nil {
		return nil, translate(err, "transaction", reference)
	}
	return &tx, nil
}

var transactionSort = sortColumns{
	"created_at":         "created_at",
	"date":               "transaction_date",
	"transaction_date":   "transaction_date",
	"reference":          "external_reference",
	"external_reference": "external_reference",
	"validation_status":  "validation_status",
}

func (r *TransactionRepository) Search(ctx context.Context, filter TransactionFilter, params utils.PageRequest) ([]models.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ValidationStatus != nil {
		query = query.Where("validation_status = ?", *filter.ValidationStatus)
	}
	if filter.OverrideStatus != nil {
		query = query.Where("override_status = ?", *filter.OverrideStatus)
	}
	if filter.From != nil {
		query = query.Where("transaction_date >= ?", models.DateOnly(*filter.From))
	}
	if filter.To != nil {
		query = query.Where("transaction_date < ?", dayAfter(*filter.To))
	}
	if filter.Reference != "" {
		query = query.Where("external_reference LIKE ?", "%"+filter.Reference+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var txs []models.Transaction
	if err := paginate(query.Preload("Lines", orderedLines), params, transactionSort).Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search transactions: %w", err)
	}
	return txs, total, nil
}

// ListPendingOverrides returns transactions awaiting an override decision,
// oldest first. A non-nil validatedBefore restricts to those validated before
// that instant.
func (r *TransactionRepository) ListPendingOverrides(ctx context.Context, validatedBefore *time.Time) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Preload("Customer").
		Where("override_status = ? AND validation_status = ?",
			models.OverrideStatusPending, models.ValidationStatusFailed)
	if validatedBefore != nil {
		query = query.Where("validated_at < ?", *validatedBefore)
	}

	var txs []models.Transaction
	if err := query.Order("validated_at ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending overrides: %w", err)
	}
	return txs, nil
}

// SaveValidation writes the validation and override state of tx guarded by
// its version. A concurrent writer that got there first leaves no row to
// update, which is reported as a concurrency conflict.
func (r *TransactionRepository) SaveValidation(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		result := db.Model(&models.Transaction{}).
			Where("id = ? AND version = ?", tx.ID, tx.Version).
			Updates(map[string]interface{}{
				"validation_status":      tx.ValidationStatus,
				"validated_at":           tx.ValidatedAt,
				"requires_override":      tx.RequiresOverride,
				"violations":             tx.Violations,
				"compliance_warnings":    tx.ComplianceWarnings,
				"compliance_errors":      tx.ComplianceErrors,
				"override_status":        tx.OverrideStatus,
				"override_decided_by":    tx.OverrideDecidedBy,
				"override_justification": tx.OverrideJustification,
				"override_decided_at":    tx.OverrideDecidedAt,
				"total_quantity":         tx.TotalQuantity,
				"total_value":            tx.TotalValue,
				"version":                gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to save validation of transaction %s: %w", tx.ExternalReference, result.Error)
		}
		if result.RowsAffected == 0 {
			return compliance.NewConcurrencyConflict("transaction %s was modified concurrently (version %d)", tx.ExternalReference, tx.Version)
		}

		for i := range tx.Lines {
			line := &tx.Lines[i]
			if err := db.Model(&models.TransactionLine{}).
				Where("id = ?", line.ID).
				Updates(map[string]interface{}{
					"is_valid":            line.IsValid,
					"error_code":          line.ErrorCode,
					"covering_licence_id": line.CoveringLicenceID,
					"base_quantity":       line.BaseQuantity,
				}).Error; err != nil {
				return fmt.Errorf("failed to save line %d of transaction %s: %w", line.LineNumber, tx.ExternalReference, err)
			}
		}
		tx.Version++
		return nil
	})
}

type usageRow struct {
	TotalQuantity    decimal.Decimal
	TotalValue       decimal.Decimal
	TransactionCount int64
}

// SumUsage totals the customer's proceeded transactions for one substance in
// the inclusive date window, excluding the transaction under evaluation.
func (r *TransactionRepository) SumUsage(ctx context.Context, q compliance.UsageQuery) (compliance.UsageTotals, error) {
	var row usageRow
	query := r.db.WithContext(ctx).
		Table("transaction_lines AS l").
		Select(`COALESCE(SUM(CASE WHEN l.base_quantity = 0 THEN l.quantity ELSE l.base_quantity END), 0) AS total_quantity,
			COALESCE(SUM(l.line_value), 0) AS total_value,
			COUNT(DISTINCT t.id) AS transaction_count`).
		Joins("JOIN transactions AS t ON t.id = l.transaction_id").
		Where("t.deleted_at IS NULL AND l.deleted_at IS NULL").
		Where("l.substance_code = ?", q.SubstanceCode).
		Where("t.validation_status IN ?", []models.ValidationStatus{
			models.ValidationStatusPassed,
			models.ValidationStatusApprovedWithOverride,
		}).
		Where("t.transaction_date >= ? AND t.transaction_date < ?", models.DateOnly(q.From), dayAfter(q.To)).
		Where("t.id <> ?", q.ExcludeTransactionID)
	if !q.AllCustomers {
		query = query.Where("t.customer_id = ?", q.CustomerID)
	}
	err := query.Scan(&row).Error
	if err != nil {
		return compliance.UsageTotals{}, fmt.Errorf("failed to sum usage of %s: %w", q.SubstanceCode, err)
	}
	return compliance.UsageTotals{
		Quantity: row.TotalQuantity,
		Value:    row.TotalValue,
		Count:    row.TransactionCount,
	}, nil
}

// ListInWindow returns validated transactions dated within the inclusive
// window, lines loaded, ordered by date.
func (r *TransactionRepository) ListInWindow(ctx context.Context, q compliance.HistoryQuery) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("validation_status <> ?", models.ValidationStatusPending).
		Where("transaction_date >= ? AND transaction_date < ?", models.DateOnly(q.From), dayAfter(q.To))
	if q.CustomerID != nil {
		query = query.Where("customer_id = ?", *q.CustomerID)
	}

	var txs []models.Transaction
	if err := query.Order("transaction_date ASC, external_reference ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions in window: %w", err)
	}
	return txs, nil
}
