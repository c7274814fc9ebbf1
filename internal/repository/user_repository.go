// internal/repository/user_repository.go
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type UserRepository struct {
	db *gorm.DB
}

type UserFilter struct {
	Role   *models.UserRole
	Status *models.UserStatus
	Search string
}

var userSort = sortColumns{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"username":   "username",
	"email":      "email",
	"role":       "role",
	"status":     "status",
	"last_login": "last_login_at",
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context, filter UserFilter, params utils.PageRequest) ([]models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("username LIKE ? OR email LIKE ? OR full_name LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := paginate(query, params, userSort).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}
