// internal/handlers/customer.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type CustomerHandler struct {
	customerService *services.CustomerService
	licenceService  *services.LicenceService
}

func NewCustomerHandler(customerService *services.CustomerService, licenceService *services.LicenceService) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
		licenceService:  licenceService,
	}
}

// POST /customers
func (h *CustomerHandler) Create(c *gin.Context) {
	var req services.CreateCustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := h.customerService.Create(c.Request.Context(), &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"customer": customer,
	})
}

// GET /customers
func (h *CustomerHandler) List(c *gin.Context) {
	params := services.CustomerSearchParams{
		PageRequest: utils.PageRequestFrom(c),
	}
	params.CustomerFilter.Search = params.PageRequest.Search

	if status := c.Query("approval_status"); status != "" {
		s := models.ApprovalStatus(status)
		params.ApprovalStatus = &s
	}
	if category := c.Query("category"); category != "" {
		cat := models.CustomerCategory(category)
		params.CustomerFilter.Category = &cat
	}
	if suspended := c.Query("suspended"); suspended != "" {
		s := suspended == "true"
		params.Suspended = &s
	}

	result, err := h.customerService.List(c.Request.Context(), params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.PaginatedResponse(c, *result)
}

// GET /customers/:id
func (h *CustomerHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	customer, err := h.customerService.Get(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"customer": customer,
	})
}

// PUT /customers/:id
func (h *CustomerHandler) Update(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateCustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := h.customerService.Update(c.Request.Context(), id, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyCustomerUpdated),
		"customer": customer,
	})
}

// PUT /customers/:id/approval
func (h *CustomerHandler) SetApproval(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.CustomerApprovalRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := h.customerService.SetApproval(c.Request.Context(), id, userID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyCustomerUpdated),
		"customer": customer,
	})
}

// POST /customers/:id/suspend
func (h *CustomerHandler) Suspend(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.SuspendCustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := h.customerService.Suspend(c.Request.Context(), id, userID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyCustomerSuspended),
		"customer": customer,
	})
}

// POST /customers/:id/reinstate
func (h *CustomerHandler) Reinstate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	customer, err := h.customerService.Reinstate(c.Request.Context(), id, userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyCustomerReinstated),
		"customer": customer,
	})
}

// GET /customers/:id/licences
func (h *CustomerHandler) ListLicences(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	licences, err := h.licenceService.ListByHolder(c.Request.Context(), models.HolderTypeCustomer, id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"licences": licences,
	})
}
