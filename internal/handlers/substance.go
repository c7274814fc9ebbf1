// internal/handlers/substance.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type SubstanceHandler struct {
	substanceService *services.SubstanceService
}

func NewSubstanceHandler(substanceService *services.SubstanceService) *SubstanceHandler {
	return &SubstanceHandler{
		substanceService: substanceService,
	}
}

// POST /substances
func (h *SubstanceHandler) Create(c *gin.Context) {
	var req services.SubstanceRequest
	if !bindJSON(c, &req) {
		return
	}

	substance, err := h.substanceService.Create(c.Request.Context(), &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"substance": substance,
	})
}

// GET /substances
func (h *SubstanceHandler) List(c *gin.Context) {
	substances, err := h.substanceService.List(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"substances": substances,
	})
}

// GET /substances/:code
func (h *SubstanceHandler) Get(c *gin.Context) {
	substance, err := h.substanceService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"substance": substance,
	})
}

// PUT /substances/:code
func (h *SubstanceHandler) Update(c *gin.Context) {
	var req services.SubstanceRequest
	if !bindJSON(c, &req) {
		return
	}

	substance, err := h.substanceService.Update(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"substance": substance,
	})
}
