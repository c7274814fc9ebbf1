// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

// expiryHorizon is how far ahead the dashboard looks for expiring licences.
const expiryHorizon = 30 * 24 * time.Hour

type AdminService struct {
	db    *gorm.DB
	repos *repository.Repositories
	now   func() time.Time
}

type AdminDashboardStats struct {
	TransactionsThisMonth int64            `json:"transactions_this_month"`
	ByValidationStatus    map[string]int64 `json:"by_validation_status"`
	PendingOverrides      int64            `json:"pending_overrides"`
	OverridesThisMonth    int64            `json:"overrides_this_month"`
	ValidLicences         int64            `json:"valid_licences"`
	LicencesExpiringSoon  int64            `json:"licences_expiring_soon"`
	CorrectionsThisMonth  int64            `json:"corrections_this_month"`
	SuspendedCustomers    int64            `json:"suspended_customers"`
	CustomersAwaiting     int64            `json:"customers_awaiting_approval"`
	ActiveUsers           int64            `json:"active_users"`
}

type AdminUserFilter struct {
	utils.PageRequest
	Role   *models.UserRole   `json:"role,omitempty"`
	Status *models.UserStatus `json:"status,omitempty"`
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active suspended"`
	Reason string            `json:"reason,omitempty" validate:"max=500"`
}

type AuditSearchParams struct {
	utils.PageRequest
	repository.AuditFilter
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{
		db:    db,
		repos: repository.New(db),
		now:   time.Now,
	}
}

// GetDashboardStats summarises the compliance workload for the current
// calendar month.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{ByValidationStatus: map[string]int64{}}
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	today := models.DateOnly(now)

	// Transaction statistics
	if err := db.Model(&models.Transaction{}).
		Where("transaction_date >= ?", monthStart).
		Count(&stats.TransactionsThisMonth).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []struct {
		ValidationStatus string
		Count            int64
	}
	if err := db.Model(&models.Transaction{}).
		Select("validation_status, COUNT(*) AS count").
		Where("transaction_date >= ?", monthStart).
		Group("validation_status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to group transactions: %w", err)
	}
	for _, r := range rows {
		stats.ByValidationStatus[r.ValidationStatus] = r.Count
	}

	// Override statistics
	db.Model(&models.Transaction{}).
		Where("override_status = ?", models.OverrideStatusPending).
		Count(&stats.PendingOverrides)
	db.Model(&models.Transaction{}).
		Where("override_decided_at >= ?", monthStart).
		Count(&stats.OverridesThisMonth)

	// Licence statistics
	db.Model(&models.Licence{}).
		Where("status = ?", models.LicenceStatusValid).
		Count(&stats.ValidLicences)
	db.Model(&models.Licence{}).
		Where("status = ? AND expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date < ?",
			models.LicenceStatusValid, today, today.Add(expiryHorizon)).
		Count(&stats.LicencesExpiringSoon)
	db.Model(&models.LicenceCorrection{}).
		Where("correction_date >= ?", monthStart).
		Count(&stats.CorrectionsThisMonth)

	// Customer and user statistics
	db.Model(&models.Customer{}).Where("is_suspended = ?", true).Count(&stats.SuspendedCustomers)
	db.Model(&models.Customer{}).
		Where("approval_status = ?", models.ApprovalStatusPending).
		Count(&stats.CustomersAwaiting)
	db.Model(&models.User{}).Where("status = ?", models.UserStatusActive).Count(&stats.ActiveUsers)

	return stats, nil
}

func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) (*utils.Page, error) {
	users, total, err := s.repos.Users.List(ctx, repository.UserFilter{
		Role:   filter.Role,
		Status: filter.Status,
		Search: filter.Search,
	}, filter.PageRequest)
	if err != nil {
		return nil, err
	}

	page := utils.NewPage(users, total, filter.PageRequest)
	return &page, nil
}

// UpdateUserStatus suspends or reactivates a staff account. Administrators
// cannot change their own status.
func (s *AdminService) UpdateUserStatus(ctx context.Context, userID, adminID uuid.UUID, req *UpdateUserStatusRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid status change", err)
	}
	if userID == adminID {
		return nil, compliance.NewInvalidOperation("administrators cannot change their own status")
	}

	var user models.User
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if user.Status == req.Status {
			return compliance.NewInvalidOperation("user %s is already %s", user.Username, req.Status)
		}

		oldStatus := user.Status
		if err := tx.Model(&user).Update("status", req.Status).Error; err != nil {
			return fmt.Errorf("failed to update user status: %w", err)
		}
		user.Status = req.Status

		return recordAudit(ctx, s.repos.WithTx(tx), models.AuditActionUserStatus, "user", user.ID, userRef(adminID),
			models.JSONB{"status": oldStatus},
			models.JSONB{"status": req.Status, "reason": req.Reason})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, compliance.NewNotFound("user", userID)
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"status":   user.Status,
		"admin_id": adminID,
	}).Info("User status updated")
	return &user, nil
}

func (s *AdminService) ListAuditLogs(ctx context.Context, params AuditSearchParams) (*utils.Page, error) {
	entries, total, err := s.repos.Audit.List(ctx, params.AuditFilter, params.PageRequest)
	if err != nil {
		return nil, err
	}
	result := utils.NewPage(entries, total, params.PageRequest)
	return &result, nil
}
