// internal/handlers/document.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type DocumentHandler struct {
	documentService *services.DocumentService
}

func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
	}
}

// POST /licences/:id/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	licenceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileUploadFailed), err.Error())
		return
	}
	defer file.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), licenceID, userID, file, fileHeader)
	switch {
	case errors.Is(err, services.ErrFileTooLarge):
		utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", i18n.T(lang, i18n.KeyFileTooLarge), nil)
		return
	case errors.Is(err, services.ErrFileTypeNotAllowed):
		utils.ErrorResponse(c, http.StatusUnsupportedMediaType, "FILE_TYPE_NOT_ALLOWED", i18n.T(lang, i18n.KeyFileInvalidType), nil)
		return
	case err != nil:
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyFileUploadSuccess),
		"document": doc,
	})
}

// GET /licences/:id/documents/:documentId
//
// Redirects to a presigned URL when the store supports it and streams the
// file otherwise.
func (h *DocumentHandler) Download(c *gin.Context) {
	licenceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	documentID, ok := uuidParam(c, "documentId")
	if !ok {
		return
	}

	url, err := h.documentService.PresignedURL(c.Request.Context(), licenceID, documentID)
	if err == nil {
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}
	if !errors.Is(err, services.ErrPresignUnsupported) {
		utils.DomainErrorResponse(c, err)
		return
	}

	content, err := h.documentService.Download(c.Request.Context(), licenceID, documentID)
	if err != nil {
		if errors.Is(err, services.ErrDocumentCorrupted) {
			utils.InternalErrorResponse(c, err.Error())
			return
		}
		utils.DomainErrorResponse(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", content.Document.FileName))
	c.Data(http.StatusOK, content.Document.MimeType, content.Data)
}

// DELETE /licences/:id/documents/:documentId
func (h *DocumentHandler) Delete(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	licenceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	documentID, ok := uuidParam(c, "documentId")
	if !ok {
		return
	}

	if err := h.documentService.Delete(c.Request.Context(), licenceID, documentID); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyFileDeleted),
	})
}
