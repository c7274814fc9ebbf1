// internal/handlers/report.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
	}
}

// GET /reports/pending-overrides.xlsx
func (h *ReportHandler) PendingOverrides(c *gin.Context) {
	wb, err := h.reportService.PendingOverridesWorkbook(c.Request.Context())
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	sendWorkbook(c, wb)
}
