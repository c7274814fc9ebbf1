// internal/handlers/threshold.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type ThresholdHandler struct {
	thresholdService *services.ThresholdService
}

func NewThresholdHandler(thresholdService *services.ThresholdService) *ThresholdHandler {
	return &ThresholdHandler{
		thresholdService: thresholdService,
	}
}

// POST /thresholds
func (h *ThresholdHandler) Create(c *gin.Context) {
	var req services.ThresholdRequest
	if !bindJSON(c, &req) {
		return
	}

	threshold, err := h.thresholdService.Create(c.Request.Context(), &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"threshold": threshold,
	})
}

// GET /thresholds
func (h *ThresholdHandler) List(c *gin.Context) {
	filter := repository.ThresholdFilter{
		SubstanceCode: c.Query("substance"),
		ActiveOnly:    c.Query("all") != "true",
	}
	if t := c.Query("type"); t != "" {
		tt := models.ThresholdType(t)
		filter.Type = &tt
	}
	if category := c.Query("customer_category"); category != "" {
		cat := models.CustomerCategory(category)
		filter.CustomerCategory = &cat
	}

	thresholds, err := h.thresholdService.List(c.Request.Context(), filter)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"thresholds": thresholds,
	})
}

// GET /thresholds/:id
func (h *ThresholdHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	threshold, err := h.thresholdService.Get(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"threshold": threshold,
	})
}

// PUT /thresholds/:id
func (h *ThresholdHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.ThresholdRequest
	if !bindJSON(c, &req) {
		return
	}

	threshold, err := h.thresholdService.Update(c.Request.Context(), id, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"threshold": threshold,
	})
}

// DELETE /thresholds/:id
func (h *ThresholdHandler) Deactivate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.thresholdService.Deactivate(c.Request.Context(), id); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyThresholdDeactivated),
	})
}
