// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
	authService  *services.AuthService
}

func NewAdminHandler(adminService *services.AdminService, authService *services.AuthService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		authService:  authService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	filter := services.AdminUserFilter{
		PageRequest: utils.PageRequestFrom(c),
	}

	// Parse filters
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	if status := c.Query("status"); status != "" {
		s := models.UserStatus(status)
		filter.Status = &s
	}

	result, err := h.adminService.GetUsers(c.Request.Context(), filter)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	utils.PaginatedResponse(c, *result)
}

// POST /admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	var req services.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyUserCreated),
		"user":    user,
	})
}

// GET /admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user": user,
	})
}

// PUT /admin/users/:id/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	adminID, _, ok := currentUser(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateUserStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminService.UpdateUserStatus(c.Request.Context(), userID, adminID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	message := i18n.T(lang, i18n.KeyUserReactivated)
	if user.Status == models.UserStatusSuspended {
		message = i18n.T(lang, i18n.KeyUserSuspended)
	}

	utils.SuccessResponse(c, gin.H{
		"message": message,
		"user":    user,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	userID, ok := queryUUID(c, "user_id")
	if !ok {
		return
	}
	resourceID, ok := queryUUID(c, "resource_id")
	if !ok {
		return
	}

	params := services.AuditSearchParams{
		PageRequest: utils.PageRequestFrom(c),
		AuditFilter: repository.AuditFilter{
			UserID:       userID,
			Action:       c.Query("action"),
			ResourceType: c.Query("resource_type"),
			ResourceID:   resourceID,
		},
	}

	result, err := h.adminService.ListAuditLogs(c.Request.Context(), params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	utils.PaginatedResponse(c, *result)
}
