// internal/services/customer_service.go
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type CustomerService struct {
	db     *gorm.DB
	repos  *repository.Repositories
	logger *logrus.Entry
}

type CreateCustomerRequest struct {
	AccountNumber          string                        `json:"account_number" validate:"required,max=50"`
	Name                   string                        `json:"name" validate:"required,max=255"`
	Category               models.CustomerCategory       `json:"category" validate:"required,oneof=wholesaler_eu wholesaler_non_eu manufacturer pharmacy hospital veterinarian research_institution"`
	CountryCode            string                        `json:"country_code" validate:"required,country_code"`
	GdpQualificationStatus models.GdpQualificationStatus `json:"gdp_qualification_status,omitempty" validate:"omitempty,oneof=not_evaluated pending approved conditionally_approved rejected not_required"`
}

type UpdateCustomerRequest struct {
	Name        *string                  `json:"name,omitempty" validate:"omitempty,max=255"`
	Category    *models.CustomerCategory `json:"category,omitempty" validate:"omitempty,oneof=wholesaler_eu wholesaler_non_eu manufacturer pharmacy hospital veterinarian research_institution"`
	CountryCode *string                  `json:"country_code,omitempty" validate:"omitempty,country_code"`
}

type CustomerApprovalRequest struct {
	ApprovalStatus         models.ApprovalStatus          `json:"approval_status" validate:"required,oneof=pending approved conditionally_approved rejected"`
	GdpQualificationStatus *models.GdpQualificationStatus `json:"gdp_qualification_status,omitempty" validate:"omitempty,oneof=not_evaluated pending approved conditionally_approved rejected not_required"`
	Comment                string                         `json:"comment,omitempty"`
}

type SuspendCustomerRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

type CustomerSearchParams struct {
	utils.PageRequest
	repository.CustomerFilter
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{
		db:     db,
		repos:  repository.New(db),
		logger: logrus.WithField("component", "customer_service"),
	}
}

func (s *CustomerService) Create(ctx context.Context, req *CreateCustomerRequest) (*models.Customer, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid customer", err)
	}

	if _, err := s.repos.Customers.GetByAccountNumber(ctx, req.AccountNumber); err == nil {
		return nil, compliance.NewInvalidOperation("customer account %s already exists", req.AccountNumber)
	} else if !errors.Is(err, compliance.ErrNotFound) {
		return nil, err
	}

	gdp := req.GdpQualificationStatus
	if gdp == "" {
		gdp = models.GdpStatusNotEvaluated
	}
	customer := &models.Customer{
		AccountNumber:          strings.TrimSpace(req.AccountNumber),
		Name:                   req.Name,
		Category:               req.Category,
		CountryCode:            strings.ToUpper(req.CountryCode),
		ApprovalStatus:         models.ApprovalStatusPending,
		GdpQualificationStatus: gdp,
	}
	if err := s.repos.Customers.Create(ctx, customer); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"customer_id": customer.ID,
		"account":     customer.AccountNumber,
		"category":    customer.Category,
	}).Info("Customer created")
	return customer, nil
}

func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, req *UpdateCustomerRequest) (*models.Customer, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid customer", err)
	}
	customer, err := s.repos.Customers.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.Category != nil {
		customer.Category = *req.Category
	}
	if req.CountryCode != nil {
		customer.CountryCode = strings.ToUpper(*req.CountryCode)
	}
	if err := s.repos.Customers.Save(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

// SetApproval records a qualification decision. Suspension is a separate
// flag and is left untouched.
func (s *CustomerService) SetApproval(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *CustomerApprovalRequest) (*models.Customer, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid approval decision", err)
	}

	var customer *models.Customer
	err := database.WithTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		repos := s.repos.WithTx(db)
		var err error
		customer, err = repos.Customers.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		previous := models.JSONB{
			"approval_status":          customer.ApprovalStatus,
			"gdp_qualification_status": customer.GdpQualificationStatus,
		}
		customer.ApprovalStatus = req.ApprovalStatus
		if req.GdpQualificationStatus != nil {
			customer.GdpQualificationStatus = *req.GdpQualificationStatus
		}
		if err := repos.Customers.Save(ctx, customer); err != nil {
			return err
		}
		return recordAudit(ctx, repos, models.AuditActionCustomerApproval, "customer", customer.ID, userRef(userID), previous, models.JSONB{
			"approval_status":          customer.ApprovalStatus,
			"gdp_qualification_status": customer.GdpQualificationStatus,
			"comment":                  req.Comment,
		})
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *CustomerService) Suspend(ctx context.Context, id uuid.UUID, userID uuid.UUID, req *SuspendCustomerRequest) (*models.Customer, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, compliance.NewValidationFailed("invalid suspension", err)
	}
	return s.setSuspended(ctx, id, userID, true, req.Reason)
}

func (s *CustomerService) Reinstate(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Customer, error) {
	return s.setSuspended(ctx, id, userID, false, "")
}

func (s *CustomerService) setSuspended(ctx context.Context, id uuid.UUID, userID uuid.UUID, suspend bool, reason string) (*models.Customer, error) {
	action := models.AuditActionCustomerReinstated
	if suspend {
		action = models.AuditActionCustomerSuspended
	}

	var customer *models.Customer
	err := database.WithTransaction(s.db.WithContext(ctx), func(db *gorm.DB) error {
		repos := s.repos.WithTx(db)
		var err error
		customer, err = repos.Customers.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		if customer.IsSuspended == suspend {
			if suspend {
				return compliance.NewInvalidOperation("customer %s is already suspended", customer.AccountNumber)
			}
			return compliance.NewInvalidOperation("customer %s is not suspended", customer.AccountNumber)
		}
		previous := models.JSONB{"is_suspended": customer.IsSuspended, "suspension_reason": customer.SuspensionReason}
		customer.IsSuspended = suspend
		customer.SuspensionReason = reason
		if err := repos.Customers.Save(ctx, customer); err != nil {
			return err
		}
		return recordAudit(ctx, repos, action, "customer", customer.ID, userRef(userID), previous,
			models.JSONB{"is_suspended": customer.IsSuspended, "suspension_reason": customer.SuspensionReason})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"customer_id": customer.ID,
		"suspended":   suspend,
	}).Info("Customer suspension changed")
	return customer, nil
}

func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return s.repos.Customers.GetCustomer(ctx, id)
}

func (s *CustomerService) List(ctx context.Context, params CustomerSearchParams) (*utils.Page, error) {
	customers, total, err := s.repos.Customers.List(ctx, params.CustomerFilter, params.PageRequest)
	if err != nil {
		return nil, err
	}
	result := utils.NewPage(customers, total, params.PageRequest)
	return &result, nil
}
