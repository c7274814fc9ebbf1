// internal/services/transaction_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/metrics"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type TransactionService struct {
	db      *gorm.DB
	repos   *repository.Repositories
	lookups *LookupProvider
	cfg     config.ValidationConfig
	metrics *metrics.Metrics
	logger  *logrus.Entry
	now     func() time.Time
}

type SubmitTransactionRequest struct {
	ExternalReference  string                      `json:"external_reference" validate:"required,max=100"`
	TransactionType    models.TransactionType      `json:"transaction_type" validate:"required,oneof=order shipment return transfer"`
	Direction          models.TransactionDirection `json:"direction" validate:"required,oneof=internal inbound outbound"`
	CustomerID         uuid.UUID                   `json:"customer_id" validate:"required"`
	OriginCountry      string                      `json:"origin_country" validate:"required,country_code"`
	DestinationCountry *string                     `json:"destination_country,omitempty" validate:"omitempty,country_code"`
	TransactionDate    time.Time                   `json:"transaction_date" validate:"required"`
	Currency           string                      `json:"currency,omitempty" validate:"omitempty,len=3"`
	Lines              []TransactionLineRequest    `json:"lines" validate:"required,min=1,dive"`
}

type TransactionLineRequest struct {
	SubstanceCode string          `json:"substance_code" validate:"required,max=50"`
	Quantity      decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit          string          `json:"unit,omitempty" validate:"omitempty,max=10"`
	LineValue     decimal.Decimal `json:"line_value" validate:"gte=0"`
}

type OverrideDecisionRequest struct {
	Justification string `json:"justification" validate:"required,min=10"`
}

type TransactionSearchParams struct {
	utils.PageRequest
	repository.TransactionFilter
}

// TransactionOutcome pairs the stored transaction with the result that was
// just written to it. Result is nil when validation could not run.
type TransactionOutcome struct {
	Transaction *models.Transaction          `json:"transaction"`
	Result      *compliance.ValidationResult `json:"result,omitempty"`
}

func NewTransactionService(db *gorm.DB, lookups *LookupProvider, cfg config.ValidationConfig, m *metrics.Metrics) *TransactionService {
	return &TransactionService{
		db:      db,
		repos:   repository.New(db),
		lookups: lookups,
		cfg:     cfg,
		metrics: m,
		logger:  logrus.WithField("component", "transaction_service"),
		now:     time.Now,
	}
}

func (s *TransactionService) validatorFor(repos *repository.Repositories) *compliance.Validator {
	return compliance.NewValidator(s.lookups.For(repos), compliance.Config{
		CompanyHolderID: s.cfg.CompanyHolder(),
		LookupTimeout:   s.cfg.LookupTimeout(),
		// The lookups run on the unit's database transaction, which is a
		// single connection.
		MaxConcurrentLookups: 1,
	}, compliance.WithMetrics(s.metrics), compliance.WithLogger(s.logger))
}

// Submit stores a new transaction as pending and validates it. When the
// validation cannot complete, the transaction is left pending and the error
// is returned together with it.
func (s *TransactionService) Submit(ctx context.Context, req *SubmitTransactionRequest) (*TransactionOutcome, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid transaction", err)
	}

	if existing, err := s.repos.Transactions.GetByReference(ctx, req.ExternalReference); err == nil {
		return nil, compliance.NewInvalidOperation("transaction %s was already submitted (id %s)", existing.ExternalReference, existing.ID)
	} else if !errors.Is(err, compliance.ErrNotFound) {
		return nil, err
	}

	tx := s.buildTransaction(req)
	normErr := normalizeLines(ctx, s.lookups.For(s.repos).Substances, tx)
	if normErr != nil && !errors.Is(normErr, compliance.ErrExternalUnavailable) {
		return nil, normErr
	}
	if err := s.repos.Transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"reference":      tx.ExternalReference,
		"lines":          len(tx.Lines),
	}).Info("Transaction submitted")

	if normErr != nil {
		s.logger.WithError(normErr).WithField("transaction_id", tx.ID).Warn("Transaction left pending")
		return &TransactionOutcome{Transaction: tx}, normErr
	}

	outcome, err := s.ValidatePending(ctx, tx.ID)
	if err != nil {
		return &TransactionOutcome{Transaction: tx}, err
	}
	return outcome, nil
}

func (s *TransactionService) buildTransaction(req *SubmitTransactionRequest) *models.Transaction {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "EUR"
	}
	var destination *string
	if req.DestinationCountry != nil {
		d := strings.ToUpper(*req.DestinationCountry)
		destination = &d
	}

	tx := &models.Transaction{
		ExternalReference:  req.ExternalReference,
		TransactionType:    req.TransactionType,
		Direction:          req.Direction,
		CustomerID:         req.CustomerID,
		OriginCountry:      strings.ToUpper(req.OriginCountry),
		DestinationCountry: destination,
		TransactionDate:    models.DateOnly(req.TransactionDate),
		Currency:           currency,
		ValidationStatus:   models.ValidationStatusPending,
		OverrideStatus:     models.OverrideStatusNone,
		Version:            1,
	}

	for i, l := range req.Lines {
		line := models.TransactionLine{
			LineNumber:    i + 1,
			SubstanceCode: strings.TrimSpace(l.SubstanceCode),
			Quantity:      l.Quantity,
			Unit:          l.Unit,
			LineValue:     l.LineValue,
		}
		tx.Lines = append(tx.Lines, line)
	}
	return tx
}

// normalizeLines converts every line quantity to the base unit of its
// substance and recomputes the totals. Lines without a unit are already in
// base units. An unknown substance keeps its quantity; it fails validation
// on its own.
func normalizeLines(ctx context.Context, substances compliance.SubstanceLookup, tx *models.Transaction) error {
	for i := range tx.Lines {
		line := &tx.Lines[i]
		if line.Unit == "" {
			line.BaseQuantity = line.Quantity
			continue
		}
		if !models.IsKnownUnit(line.Unit) {
			return compliance.NewValidationFailed(fmt.Sprintf("line %d: unknown unit %q", line.LineNumber, line.Unit), nil)
		}
		substance, err := substances.GetByCode(ctx, line.SubstanceCode)
		if err != nil {
			if errors.Is(err, compliance.ErrNotFound) {
				line.BaseQuantity = line.Quantity
				continue
			}
			var de *compliance.DomainError
			if errors.As(err, &de) || errors.Is(err, context.Canceled) {
				return err
			}
			return compliance.NewExternalUnavailable("substance", err)
		}
		q, ok := models.ConvertQuantity(line.Quantity, line.Unit, substance.BaseUnit)
		if !ok {
			return compliance.NewValidationFailed(fmt.Sprintf("line %d: unit %s cannot be converted to %s, the base unit of %s",
				line.LineNumber, line.Unit, substance.BaseUnit, substance.Code), nil)
		}
		line.BaseQuantity = q
	}
	tx.RecalculateTotals()
	return nil
}

// ValidatePending validates a stored pending transaction and records the
// result. Usage reads and the status write share one serializable unit.
func (s *TransactionService) ValidatePending(ctx context.Context, id uuid.UUID) (*TransactionOutcome, error) {
	var outcome *TransactionOutcome
	err := s.inUnit(ctx, "validate", func(repos *repository.Repositories) error {
		tx, err := repos.Transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		if tx.ValidationStatus != models.ValidationStatusPending {
			return compliance.NewInvalidOperation("transaction %s was already validated (status %s)", tx.ExternalReference, tx.ValidationStatus)
		}
		if err := normalizeLines(ctx, s.lookups.For(repos).Substances, tx); err != nil {
			return err
		}
		result, err := s.validatorFor(repos).Validate(ctx, tx)
		if err != nil {
			return err
		}
		if err := compliance.ApplyValidation(tx, result, s.now()); err != nil {
			return err
		}
		if err := repos.Transactions.SaveValidation(ctx, tx); err != nil {
			return err
		}
		outcome = &TransactionOutcome{Transaction: tx, Result: result}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Revalidate replaces the outcome of an already validated transaction, for
// example after reference data was corrected. The previous state is audited.
func (s *TransactionService) Revalidate(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*TransactionOutcome, error) {
	var outcome *TransactionOutcome
	err := s.inUnit(ctx, "revalidate", func(repos *repository.Repositories) error {
		tx, err := repos.Transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		if tx.ValidationStatus == models.ValidationStatusPending {
			return compliance.NewInvalidOperation("transaction %s has not been validated yet", tx.ExternalReference)
		}
		previous := models.JSONB{
			"validation_status": tx.ValidationStatus,
			"override_status":   tx.OverrideStatus,
			"violations":        tx.Violations,
		}
		if err := normalizeLines(ctx, s.lookups.For(repos).Substances, tx); err != nil {
			return err
		}
		result, err := s.validatorFor(repos).Validate(ctx, tx)
		if err != nil {
			return err
		}
		if err := compliance.ApplyRevalidation(tx, result, s.now()); err != nil {
			return err
		}
		if err := repos.Transactions.SaveValidation(ctx, tx); err != nil {
			return err
		}
		current := models.JSONB{
			"validation_status": tx.ValidationStatus,
			"override_status":   tx.OverrideStatus,
			"violations":        tx.Violations,
		}
		if err := recordAudit(ctx, repos, models.AuditActionRevalidated, "transaction", tx.ID, userRef(userID), previous, current); err != nil {
			return err
		}
		outcome = &TransactionOutcome{Transaction: tx, Result: result}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ApproveOverride lets a failed transaction proceed. A concurrent decision
// on the same transaction surfaces as a concurrency conflict.
func (s *TransactionService) ApproveOverride(ctx context.Context, id uuid.UUID, approverID uuid.UUID, role models.UserRole, req *OverrideDecisionRequest) (*models.Transaction, error) {
	return s.decideOverride(ctx, id, approverID, role, req, true)
}

func (s *TransactionService) RejectOverride(ctx context.Context, id uuid.UUID, approverID uuid.UUID, role models.UserRole, req *OverrideDecisionRequest) (*models.Transaction, error) {
	return s.decideOverride(ctx, id, approverID, role, req, false)
}

func (s *TransactionService) decideOverride(ctx context.Context, id uuid.UUID, approverID uuid.UUID, role models.UserRole, req *OverrideDecisionRequest, approve bool) (*models.Transaction, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid override decision", err)
	}
	if !role.CanDecideOverrides() {
		return nil, compliance.NewInvalidOperation("role %s may not decide compliance overrides", role)
	}

	decision, action := "rejected", models.AuditActionOverrideRejected
	if approve {
		decision, action = "approved", models.AuditActionOverrideApproved
	}

	var tx *models.Transaction
	err := database.WithTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		repos := s.repos.WithTx(db)
		var err error
		tx, err = repos.Transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		previous := models.JSONB{
			"validation_status": tx.ValidationStatus,
			"override_status":   tx.OverrideStatus,
		}
		if approve {
			err = compliance.ApproveOverride(tx, approverID, req.Justification, s.now())
		} else {
			err = compliance.RejectOverride(tx, approverID, req.Justification, s.now())
		}
		if err != nil {
			return err
		}
		if err := repos.Transactions.SaveValidation(ctx, tx); err != nil {
			return err
		}
		return recordAudit(ctx, repos, action, "transaction", tx.ID, userRef(approverID), previous, models.JSONB{
			"validation_status": tx.ValidationStatus,
			"override_status":   tx.OverrideStatus,
			"justification":     tx.OverrideJustification,
		})
	})
	if err != nil {
		if errors.Is(err, compliance.ErrConcurrencyConflict) {
			s.metrics.IncrementConflict("override")
		}
		return nil, err
	}

	s.metrics.IncrementOverrideDecision(decision)
	s.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"reference":      tx.ExternalReference,
		"decision":       decision,
		"decided_by":     approverID,
	}).Info("Override decided")
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.repos.Transactions.Get(ctx, id)
}

func (s *TransactionService) Search(ctx context.Context, params TransactionSearchParams) (*utils.Page, error) {
	txs, total, err := s.repos.Transactions.Search(ctx, params.TransactionFilter, params.PageRequest)
	if err != nil {
		return nil, err
	}
	result := utils.NewPage(txs, total, params.PageRequest)
	return &result, nil
}

func (s *TransactionService) ListPendingOverrides(ctx context.Context) ([]models.Transaction, error) {
	return s.repos.Transactions.ListPendingOverrides(ctx, nil)
}

// ListStaleOverrides returns pending overrides validated more than age ago.
func (s *TransactionService) ListStaleOverrides(ctx context.Context, age time.Duration) ([]models.Transaction, error) {
	cutoff := s.now().Add(-age)
	return s.repos.Transactions.ListPendingOverrides(ctx, &cutoff)
}

// inUnit runs fn in one database transaction, serializable when configured,
// and retries serialization failures and version conflicts.
func (s *TransactionService) inUnit(ctx context.Context, operation string, fn func(*repository.Repositories) error) error {
	run := database.WithTransaction
	if s.cfg.SerializableWrites {
		run = database.WithSerializableTransaction
	}
	attempts := s.cfg.ConflictRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := run(s.db.WithContext(ctx), func(db *gorm.DB) error {
			return fn(s.repos.WithTx(db))
		})
		if err == nil {
			return nil
		}
		serialization := database.IsSerializationFailure(err)
		if !serialization && !errors.Is(err, compliance.ErrConcurrencyConflict) {
			return err
		}
		s.metrics.IncrementConflict(operation)
		if attempt >= attempts {
			if serialization {
				return compliance.NewConcurrencyConflict("%s did not complete after %d attempts: %v", operation, attempt, err)
			}
			return err
		}

		s.logger.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).Warn("Retrying after write conflict")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
}
