// internal/handlers/licence.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type LicenceHandler struct {
	licenceService *services.LicenceService
	reportService  *services.ReportService
}

func NewLicenceHandler(licenceService *services.LicenceService, reportService *services.ReportService) *LicenceHandler {
	return &LicenceHandler{
		licenceService: licenceService,
		reportService:  reportService,
	}
}

// POST /licences
func (h *LicenceHandler) Create(c *gin.Context) {
	var req services.CreateLicenceRequest
	if !bindJSON(c, &req) {
		return
	}

	licence, err := h.licenceService.Create(c.Request.Context(), &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"licence": licence,
	})
}

// GET /licences
//
// Without filters the currently valid licences are listed. holder_type with
// holder_id, or substance, narrow the list and include every status.
func (h *LicenceHandler) List(c *gin.Context) {
	holderID, ok := queryUUID(c, "holder_id")
	if !ok {
		return
	}

	var (
		licences []models.Licence
		err      error
	)
	ctx := c.Request.Context()
	switch {
	case holderID != nil:
		holderType := models.HolderType(c.DefaultQuery("holder_type", string(models.HolderTypeCustomer)))
		licences, err = h.licenceService.ListByHolder(ctx, holderType, *holderID)
	case c.Query("substance") != "":
		licences, err = h.licenceService.ListBySubstance(ctx, c.Query("substance"))
	default:
		licences, err = h.licenceService.ListActive(ctx)
	}
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"licences": licences,
		"count":    len(licences),
	})
}

// GET /licences/types
func (h *LicenceHandler) ListTypes(c *gin.Context) {
	types, err := h.licenceService.ListTypes(c.Request.Context())
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"licence_types": types,
	})
}

// GET /licences/:id
func (h *LicenceHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	licence, err := h.licenceService.Get(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"licence": licence,
	})
}

// PUT /licences/:id
func (h *LicenceHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateLicenceRequest
	if !bindJSON(c, &req) {
		return
	}

	licence, err := h.licenceService.Update(c.Request.Context(), id, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"licence": licence,
	})
}

// PUT /licences/:id/status
func (h *LicenceHandler) ChangeStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.ChangeLicenceStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	licence, err := h.licenceService.ChangeStatus(c.Request.Context(), id, userID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenceStatusChange),
		"licence": licence,
	})
}

// POST /licences/:id/corrections
func (h *LicenceHandler) CorrectDates(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.CorrectLicenceDatesRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.licenceService.CorrectDates(c.Request.Context(), id, userID, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":    i18n.T(lang, i18n.KeyLicenceCorrected),
		"correction": result.Correction,
		"report":     result.Report,
	})
}

// POST /licences/:id/corrections/preview
//
// Responds with JSON, or with an XLSX workbook when the client accepts one.
func (h *LicenceHandler) PreviewCorrection(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.CorrectLicenceDatesRequest
	if !bindJSON(c, &req) {
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, xlsxContentType) == xlsxContentType {
		wb, err := h.reportService.ImpactWorkbook(c.Request.Context(), id, &req)
		if err != nil {
			utils.DomainErrorResponse(c, err)
			return
		}
		sendWorkbook(c, wb)
		return
	}

	report, err := h.licenceService.PreviewCorrection(c.Request.Context(), id, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"report": report,
	})
}

// GET /licences/:id/corrections
func (h *LicenceHandler) ListCorrections(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	corrections, err := h.licenceService.ListCorrections(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"corrections": corrections,
	})
}
