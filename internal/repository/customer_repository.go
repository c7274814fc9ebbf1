// internal/repository/customer_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type CustomerRepository struct {
	db *gorm.DB
}

type CustomerFilter struct {
	ApprovalStatus *models.ApprovalStatus
	Category       *models.CustomerCategory
	Suspended      *bool
	Search         string
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		return nil, translate(err, "customer", id)
	}
	return &customer, nil
}

func (r *CustomerRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&customer).Error; err != nil {
		return nil, translate(err, "customer", accountNumber)
	}
	return &customer, nil
}

func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) Save(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Save(customer).Error; err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

var customerSort = sortColumns{
	"created_at":      "created_at",
	"name":            "name",
	"account_number":  "account_number",
	"approval_status": "approval_status",
}

func (r *CustomerRepository) List(ctx context.Context, filter CustomerFilter, params utils.PageRequest) ([]models.Customer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Customer{})
	if filter.ApprovalStatus != nil {
		query = query.Where("approval_status = ?", *filter.ApprovalStatus)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Suspended != nil {
		query = query.Where("is_suspended = ?", *filter.Suspended)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR account_number LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	var customers []models.Customer
	if err := paginate(query, params, customerSort).Find(&customers).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, total, nil
}
