// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/i18n"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyValidationInvalid, "request")
	}
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAuthRequired)
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAuthAccessDenied)
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = i18n.T(GetLangFromContext(c), i18n.KeyErrInternal)
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func ValidationErrorResponse(c *gin.Context, errors []ValidationError) {
	lang := GetLangFromContext(c)
	message := i18n.T(lang, i18n.KeyValidationInvalid, "input")
	ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", message, errors)
}

func PaginatedResponse(c *gin.Context, page Page) {
	writePageHeaders(c, page)
	SuccessResponseWithMeta(c, page.Items, gin.H{
		"pagination": gin.H{
			"page":        page.Page,
			"limit":       page.Limit,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, exists := c.Get("lang"); exists {
		if langStr, ok := lang.(string); ok {
			return langStr
		}
	}
	return "en"
}

func GetUserIDFromContext(c *gin.Context) (string, bool) {
	if userID, exists := c.Get("user_id"); exists {
		if userIDStr, ok := userID.(string); ok {
			return userIDStr, true
		}
	}
	return "", false
}

// GetUserUUIDFromContext parses the authenticated user's id.
func GetUserUUIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := GetUserIDFromContext(c)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func GetUserRoleFromContext(c *gin.Context) (string, bool) {
	if role, exists := c.Get("role"); exists {
		if roleStr, ok := role.(string); ok {
			return roleStr, true
		}
	}
	return "", false
}

var domainErrorStatus = map[compliance.ErrorCode]int{
	compliance.ErrCodeValidationFailed:    http.StatusBadRequest,
	compliance.ErrCodeNotFound:            http.StatusNotFound,
	compliance.ErrCodeConcurrencyConflict: http.StatusConflict,
	compliance.ErrCodeInvalidOperation:    http.StatusUnprocessableEntity,
	compliance.ErrCodeExternalUnavailable: http.StatusServiceUnavailable,
}

var domainErrorKey = map[compliance.ErrorCode]string{
	compliance.ErrCodeValidationFailed:    i18n.KeyErrValidationFailed,
	compliance.ErrCodeNotFound:            i18n.KeyErrNotFound,
	compliance.ErrCodeConcurrencyConflict: i18n.KeyErrConcurrencyConflict,
	compliance.ErrCodeInvalidOperation:    i18n.KeyErrInvalidOperation,
	compliance.ErrCodeExternalUnavailable: i18n.KeyErrExternalUnavailable,
}

// HTTPStatusFor maps an error returned by the services to a response status.
func HTTPStatusFor(err error) int {
	if status, ok := domainErrorStatus[compliance.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorResponse writes err using its domain code. Errors without a
// code are logged and reported as internal errors.
func DomainErrorResponse(c *gin.Context, err error) {
	DomainErrorResponseWith(c, err, nil)
}

// DomainErrorResponseWith merges extra into the error details. The message
// or field errors move to details.reason.
func DomainErrorResponseWith(c *gin.Context, err error, extra gin.H) {
	code := compliance.CodeOf(err)
	status, ok := domainErrorStatus[code]
	if !ok {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Unhandled service error")
		InternalErrorResponse(c, "")
		return
	}

	var details interface{}
	var de *compliance.DomainError
	if errors.As(err, &de) {
		if fields := GetValidationErrors(de.Err); len(fields) > 0 {
			details = fields
		} else {
			details = de.Message
		}
	}
	if len(extra) > 0 {
		fields := gin.H{}
		for k, v := range extra {
			fields[k] = v
		}
		if details != nil {
			fields["reason"] = details
		}
		details = fields
	}
	message := i18n.T(GetLangFromContext(c), domainErrorKey[code])
	ErrorResponse(c, status, string(code), message, details)
}
