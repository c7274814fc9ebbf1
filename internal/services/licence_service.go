// internal/services/licence_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/metrics"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type LicenceService struct {
	db            *gorm.DB
	repos         *repository.Repositories
	lookups       *LookupProvider
	impactWorkers int
	metrics       *metrics.Metrics
	notifier      ImpactNotifier
	logger        *logrus.Entry
	now           func() time.Time
}

// ImpactNotifier is told about corrections with critical impact.
type ImpactNotifier interface {
	NotifyCriticalImpact(ctx context.Context, licence *models.Licence, report *compliance.ImpactReport) error
}

type LicenceSubstanceRequest struct {
	SubstanceCode             string                  `json:"substance_code" validate:"required,max=50"`
	MaxQuantityPerTransaction *decimal.Decimal        `json:"max_quantity_per_transaction,omitempty"`
	MaxQuantityPerPeriod      *decimal.Decimal        `json:"max_quantity_per_period,omitempty"`
	CapPeriod                 *models.ThresholdPeriod `json:"cap_period,omitempty" validate:"omitempty,oneof=daily weekly monthly yearly"`
}

type CreateLicenceRequest struct {
	LicenceNumber       string                    `json:"licence_number" validate:"required,max=100"`
	LicenceTypeID       uuid.UUID                 `json:"licence_type_id" validate:"required"`
	HolderType          models.HolderType         `json:"holder_type" validate:"required,oneof=customer company"`
	HolderID            uuid.UUID                 `json:"holder_id" validate:"required"`
	IssuingAuthority    string                    `json:"issuing_authority,omitempty" validate:"max=100"`
	IssueDate           time.Time                 `json:"issue_date" validate:"required"`
	ExpiryDate          *time.Time                `json:"expiry_date,omitempty"`
	PermittedActivities []models.Activity         `json:"permitted_activities,omitempty"`
	CoversAllSubstances bool                      `json:"covers_all_substances"`
	Substances          []LicenceSubstanceRequest `json:"substances,omitempty" validate:"dive"`
	Notes               string                    `json:"notes,omitempty"`
}

// UpdateLicenceRequest changes a licence's scope. Dates are changed through
// CorrectDates so that the change is analysed and audited.
type UpdateLicenceRequest struct {
	IssuingAuthority    *string                   `json:"issuing_authority,omitempty" validate:"omitempty,max=100"`
	PermittedActivities []models.Activity         `json:"permitted_activities,omitempty"`
	CoversAllSubstances *bool                     `json:"covers_all_substances,omitempty"`
	Substances          []LicenceSubstanceRequest `json:"substances,omitempty" validate:"omitempty,dive"`
	Notes               *string                   `json:"notes,omitempty"`
}

type ChangeLicenceStatusRequest struct {
	Status models.LicenceStatus `json:"status" validate:"required,oneof=valid suspended revoked"`
	Reason string               `json:"reason" validate:"required,min=5"`
}

type CorrectLicenceDatesRequest struct {
	IssueDate  *time.Time `json:"issue_date,omitempty"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Reason     string     `json:"reason" validate:"required,min=10"`
}

type LicenceCorrectionResult struct {
	Correction *models.LicenceCorrection `json:"correction"`
	Report     *compliance.ImpactReport  `json:"report"`
}

func NewLicenceService(db *gorm.DB, lookups *LookupProvider, impactWorkers int, m *metrics.Metrics) *LicenceService {
	return &LicenceService{
		db:            db,
		repos:         repository.New(db),
		lookups:       lookups,
		impactWorkers: impactWorkers,
		metrics:       m,
		logger:        logrus.WithField("component", "licence_service"),
		now:           time.Now,
	}
}

// SetNotifier registers the recipient of critical impact alerts.
func (s *LicenceService) SetNotifier(n ImpactNotifier) {
	s.notifier = n
}

func (s *LicenceService) Create(ctx context.Context, req *CreateLicenceRequest) (*models.Licence, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid licence", err)
	}

	licenceType, err := s.repos.Licences.GetType(ctx, req.LicenceTypeID)
	if err != nil {
		return nil, err
	}
	if err := s.checkHolder(ctx, req.HolderType, req.HolderID); err != nil {
		return nil, err
	}

	activities := models.NewActivitySet(req.PermittedActivities...)
	if len(activities) == 0 {
		activities = licenceType.PermittedActivities.Normalize()
	}
	authority := req.IssuingAuthority
	if authority == "" {
		authority = licenceType.IssuingAuthority
	}

	licence := &models.Licence{
		LicenceNumber:       strings.TrimSpace(req.LicenceNumber),
		LicenceTypeID:       licenceType.ID,
		HolderType:          req.HolderType,
		HolderID:            req.HolderID,
		IssuingAuthority:    authority,
		IssueDate:           models.DateOnly(req.IssueDate),
		ExpiryDate:          dateRef(req.ExpiryDate),
		Status:              models.LicenceStatusValid,
		PermittedActivities: activities,
		CoversAllSubstances: req.CoversAllSubstances,
		SubstanceMappings:   mappingsFrom(req.Substances),
		Notes:               req.Notes,
		LicenceType:         licenceType,
	}
	if err := licence.Validate(); err != nil {
		return nil, compliance.NewValidationFailed(err.Error(), err)
	}
	if err := s.checkSubstances(ctx, licence.SubstanceMappings); err != nil {
		return nil, err
	}

	if err := s.repos.Licences.Create(ctx, licence); err != nil {
		return nil, err
	}
	s.lookups.InvalidateLicence(ctx, licence)

	s.logger.WithFields(logrus.Fields{
		"licence_id": licence.ID,
		"number":     licence.LicenceNumber,
		"holder":     licence.HolderID,
	}).Info("Licence registered")
	return licence, nil
}

func (s *LicenceService) Update(ctx context.Context, id uuid.UUID, req *UpdateLicenceRequest) (*models.Licence, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid licence", err)
	}

	licence, err := s.repos.Licences.GetLicence(ctx, id)
	if err != nil {
		return nil, err
	}
	if licence.Status == models.LicenceStatusRevoked {
		return nil, compliance.NewInvalidOperation("licence %s is revoked and cannot be changed", licence.LicenceNumber)
	}

	if req.IssuingAuthority != nil {
		licence.IssuingAuthority = *req.IssuingAuthority
	}
	if req.PermittedActivities != nil {
		licence.PermittedActivities = models.NewActivitySet(req.PermittedActivities...)
	}
	if req.CoversAllSubstances != nil {
		licence.CoversAllSubstances = *req.CoversAllSubstances
	}
	if req.Substances != nil {
		licence.SubstanceMappings = mappingsFrom(req.Substances)
		if err := s.checkSubstances(ctx, licence.SubstanceMappings); err != nil {
			return nil, err
		}
	}
	if req.Notes != nil {
		licence.Notes = *req.Notes
	}
	if err := licence.Validate(); err != nil {
		return nil, compliance.NewValidationFailed(err.Error(), err)
	}

	if err := s.repos.Licences.Update(ctx, licence); err != nil {
		return nil, err
	}
	s.lookups.InvalidateLicence(ctx, licence)
	return licence, nil
}

// ChangeStatus suspends, revokes or reinstates a licence. Revocation is
// final; an expired licence can only be revoked.
func (s *LicenceService) ChangeStatus(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *ChangeLicenceStatusRequest) (*models.Licence, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid status change", err)
	}

	licence, err := s.repos.Licences.GetLicence(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkStatusTransition(licence, req.Status); err != nil {
		return nil, err
	}

	previous := licence.Status
	err = database.WithTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		repos := s.repos.WithTx(db)
		if err := repos.Licences.UpdateStatus(ctx, licence.ID, req.Status); err != nil {
			return err
		}
		return recordAudit(ctx, repos, models.AuditActionLicenceStatus, "licence", licence.ID, userRef(userID),
			models.JSONB{"status": previous},
			models.JSONB{"status": req.Status, "reason": req.Reason})
	})
	if err != nil {
		return nil, err
	}

	licence.Status = req.Status
	s.lookups.InvalidateLicence(ctx, licence)
	s.logger.WithFields(logrus.Fields{
		"licence_id": licence.ID,
		"from":       previous,
		"to":         req.Status,
	}).Info("Licence status changed")
	return licence, nil
}

func checkStatusTransition(l *models.Licence, to models.LicenceStatus) error {
	from := l.Status
	switch {
	case from == to:
		return compliance.NewInvalidOperation("licence %s is already %s", l.LicenceNumber, to)
	case from == models.LicenceStatusRevoked:
		return compliance.NewInvalidOperation("licence %s is revoked", l.LicenceNumber)
	case from == models.LicenceStatusExpired && to != models.LicenceStatusRevoked:
		return compliance.NewInvalidOperation("licence %s has expired; correct its dates instead", l.LicenceNumber)
	}
	return nil
}

// CorrectDates applies a retroactive correction of a licence's issue or
// expiry date. The impact on recorded history is analysed first; the
// correction, the new dates and the audit entry commit together. History
// itself is not rewritten: affected transactions are revalidated
// separately.
func (s *LicenceService) CorrectDates(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *CorrectLicenceDatesRequest) (*LicenceCorrectionResult, error) {
	licence, correction, err := s.prepareCorrection(ctx, id, userID, req)
	if err != nil {
		return nil, err
	}

	report, err := s.analyzer().Analyze(ctx, correction)
	if err != nil {
		return nil, err
	}
	correction.ImpactedTransactions = len(report.Items)

	issue := licence.IssueDate
	if correction.CorrectedEffectiveDate != nil {
		issue = *correction.CorrectedEffectiveDate
	}
	expiry := licence.ExpiryDate
	if correction.CorrectedExpiryDate != nil {
		expiry = correction.CorrectedExpiryDate
	}

	status := statusAfterCorrection(licence.Status, expiry, s.now())

	err = database.WithTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		repos := s.repos.WithTx(db)
		if err := repos.Licences.CreateCorrection(ctx, correction); err != nil {
			return err
		}
		if err := repos.Licences.UpdateDates(ctx, licence.ID, issue, expiry); err != nil {
			return err
		}
		if status != licence.Status {
			if err := repos.Licences.UpdateStatus(ctx, licence.ID, status); err != nil {
				return err
			}
		}
		return recordAudit(ctx, repos, models.AuditActionLicenceCorrected, "licence", licence.ID, userRef(userID),
			models.JSONB{"issue_date": licence.IssueDate, "expiry_date": licence.ExpiryDate, "status": licence.Status},
			models.JSONB{
				"issue_date":            issue,
				"expiry_date":           expiry,
				"status":                status,
				"reason":                correction.Reason,
				"impacted_transactions": correction.ImpactedTransactions,
			})
	})
	if err != nil {
		return nil, err
	}

	licence.IssueDate = issue
	licence.ExpiryDate = expiry
	licence.Status = status
	s.lookups.InvalidateLicence(ctx, licence)

	s.logger.WithFields(logrus.Fields{
		"licence_id": licence.ID,
		"number":     licence.LicenceNumber,
		"impacted":   correction.ImpactedTransactions,
		"critical":   report.Summary.Critical,
	}).Info("Licence dates corrected")

	if s.notifier != nil && report.Summary.Critical > 0 {
		if err := s.notifier.NotifyCriticalImpact(ctx, licence, report); err != nil {
			s.logger.WithError(err).WithField("licence_id", licence.ID).Warn("Failed to send impact notification")
		}
	}
	return &LicenceCorrectionResult{Correction: correction, Report: report}, nil
}

// statusAfterCorrection moves a licence between valid and expired when its
// corrected expiry date says so. Suspended and revoked licences keep their
// status.
func statusAfterCorrection(current models.LicenceStatus, expiry *time.Time, now time.Time) models.LicenceStatus {
	lapsed := expiry != nil && models.DateOnly(*expiry).Before(models.DateOnly(now))
	switch {
	case current == models.LicenceStatusValid && lapsed:
		return models.LicenceStatusExpired
	case current == models.LicenceStatusExpired && !lapsed:
		return models.LicenceStatusValid
	}
	return current
}

// ExpireLapsed marks valid licences whose expiry date has passed as
// expired, auditing each one. It returns the number of licences changed.
func (s *LicenceService) ExpireLapsed(ctx context.Context, asOf time.Time) (int, error) {
	lapsed, err := s.repos.Licences.ListLapsed(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if len(lapsed) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(lapsed))
	for i := range lapsed {
		ids[i] = lapsed[i].ID
	}

	var changed int64
	err = database.WithTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		repos := s.repos.WithTx(db)
		var err error
		if changed, err = repos.Licences.MarkExpired(ctx, ids); err != nil {
			return err
		}
		for i := range lapsed {
			if err := recordAudit(ctx, repos, models.AuditActionLicencesExpired, "licence", lapsed[i].ID, nil,
				models.JSONB{"status": models.LicenceStatusValid},
				models.JSONB{"status": models.LicenceStatusExpired, "expiry_date": lapsed[i].ExpiryDate}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range lapsed {
		s.lookups.InvalidateLicence(ctx, &lapsed[i])
	}
	s.logger.WithFields(logrus.Fields{
		"as_of":   models.DateOnly(asOf).Format("2006-01-02"),
		"expired": changed,
	}).Info("Lapsed licences expired")
	return int(changed), nil
}

// PreviewCorrection runs the impact analysis for a correction without
// applying it.
func (s *LicenceService) PreviewCorrection(ctx context.Context, id uuid.UUID, req *CorrectLicenceDatesRequest) (*compliance.ImpactReport, error) {
	_, correction, err := s.prepareCorrection(ctx, id, uuid.Nil, req)
	if err != nil {
		return nil, err
	}
	return s.analyzer().Analyze(ctx, correction)
}

func (s *LicenceService) prepareCorrection(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *CorrectLicenceDatesRequest) (*models.Licence, *models.LicenceCorrection, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, nil, compliance.NewValidationFailed("invalid licence correction", err)
	}
	if req.IssueDate == nil && req.ExpiryDate == nil {
		return nil, nil, compliance.NewValidationFailed("a correction needs a corrected issue or expiry date", nil)
	}

	licence, err := s.repos.Licences.GetLicence(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	correction := &models.LicenceCorrection{
		LicenceID:      licence.ID,
		CorrectionDate: models.DateOnly(s.now()),
		Reason:         req.Reason,
		CorrectedBy:    userID,
	}
	if req.IssueDate != nil {
		original := licence.IssueDate
		correction.OriginalEffectiveDate = &original
		correction.CorrectedEffectiveDate = dateRef(req.IssueDate)
	}
	if req.ExpiryDate != nil {
		correction.OriginalExpiryDate = licence.ExpiryDate
		correction.CorrectedExpiryDate = dateRef(req.ExpiryDate)
	}

	corrected := *licence
	if correction.CorrectedEffectiveDate != nil {
		corrected.IssueDate = *correction.CorrectedEffectiveDate
	}
	if correction.CorrectedExpiryDate != nil {
		corrected.ExpiryDate = correction.CorrectedExpiryDate
	}
	if err := corrected.Validate(); err != nil {
		return nil, nil, compliance.NewValidationFailed(err.Error(), err)
	}
	return licence, correction, nil
}

// analyzer reads straight from the database; cached licences may predate
// the correction.
func (s *LicenceService) analyzer() *compliance.ImpactAnalyzer {
	return compliance.NewImpactAnalyzer(s.repos.Licences, s.repos.Transactions, s.impactWorkers, s.metrics)
}

func (s *LicenceService) Get(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	return s.repos.Licences.GetLicence(ctx, id)
}

func (s *LicenceService) ListByHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) ([]models.Licence, error) {
	return s.repos.Licences.ListByHolder(ctx, holderType, holderID)
}

func (s *LicenceService) ListBySubstance(ctx context.Context, code string) ([]models.Licence, error) {
	return s.repos.Licences.ListBySubstance(ctx, strings.TrimSpace(code))
}

func (s *LicenceService) ListActive(ctx context.Context) ([]models.Licence, error) {
	return s.repos.Licences.ListActive(ctx)
}

func (s *LicenceService) ListTypes(ctx context.Context) ([]models.LicenceType, error) {
	return s.repos.Licences.ListTypes(ctx)
}

func (s *LicenceService) ListCorrections(ctx context.Context, id uuid.UUID) ([]models.LicenceCorrection, error) {
	if _, err := s.repos.Licences.GetLicence(ctx, id); err != nil {
		return nil, err
	}
	return s.repos.Licences.ListCorrections(ctx, id)
}

func (s *LicenceService) checkHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) error {
	if holderType != models.HolderTypeCustomer {
		return nil
	}
	if _, err := s.repos.Customers.GetCustomer(ctx, holderID); err != nil {
		if errors.Is(err, compliance.ErrNotFound) {
			return compliance.NewValidationFailed("licence holder is not a known customer", err)
		}
		return err
	}
	return nil
}

func (s *LicenceService) checkSubstances(ctx context.Context, mappings []models.LicenceSubstanceMapping) error {
	for _, m := range mappings {
		if _, err := s.repos.Substances.GetByCode(ctx, m.SubstanceCode); err != nil {
			if errors.Is(err, compliance.ErrNotFound) {
				return compliance.NewValidationFailed("unknown substance "+m.SubstanceCode, err)
			}
			return err
		}
		if m.MaxQuantityPerTransaction != nil && !m.MaxQuantityPerTransaction.IsPositive() {
			return compliance.NewValidationFailed("max quantity per transaction must be positive for "+m.SubstanceCode, nil)
		}
		if (m.MaxQuantityPerPeriod == nil) != (m.CapPeriod == nil) {
			return compliance.NewValidationFailed("max quantity per period and cap period must be set together for "+m.SubstanceCode, nil)
		}
		if m.MaxQuantityPerPeriod != nil && !m.MaxQuantityPerPeriod.IsPositive() {
			return compliance.NewValidationFailed("max quantity per period must be positive for "+m.SubstanceCode, nil)
		}
	}
	return nil
}

func mappingsFrom(reqs []LicenceSubstanceRequest) []models.LicenceSubstanceMapping {
	mappings := make([]models.LicenceSubstanceMapping, 0, len(reqs))
	seen := map[string]bool{}
	for _, r := range reqs {
		code := strings.TrimSpace(r.SubstanceCode)
		if seen[code] {
			continue
		}
		seen[code] = true
		mappings = append(mappings, models.LicenceSubstanceMapping{
			SubstanceCode:             code,
			MaxQuantityPerTransaction: r.MaxQuantityPerTransaction,
			MaxQuantityPerPeriod:      r.MaxQuantityPerPeriod,
			CapPeriod:                 r.CapPeriod,
		})
	}
	return mappings
}

func dateRef(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOnly(*t)
	return &d
}
