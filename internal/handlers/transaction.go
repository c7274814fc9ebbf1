// internal/handlers/transaction.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
	"github.com/javajoker/substance-compliance/internal/services"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type TransactionHandler struct {
	transactionService *services.TransactionService
}

func NewTransactionHandler(transactionService *services.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// POST /transactions
func (h *TransactionHandler) Submit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.SubmitTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	outcome, err := h.transactionService.Submit(c.Request.Context(), &req)
	if err != nil {
		// A transaction stored as pending can be validated again with
		// POST /transactions/:id/validate.
		if outcome != nil && outcome.Transaction != nil {
			utils.DomainErrorResponseWith(c, err, gin.H{
				"transaction_id":    outcome.Transaction.ID,
				"validation_status": outcome.Transaction.ValidationStatus,
			})
			return
		}
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyTransactionValidated),
		"transaction": outcome.Transaction,
		"result":      outcome.Result,
	})
}

// GET /transactions
func (h *TransactionHandler) Search(c *gin.Context) {
	var filter repository.TransactionFilter

	customerID, ok := queryUUID(c, "customer_id")
	if !ok {
		return
	}
	filter.CustomerID = customerID
	if filter.From, ok = queryDate(c, "from"); !ok {
		return
	}
	if filter.To, ok = queryDate(c, "to"); !ok {
		return
	}
	if status := c.Query("validation_status"); status != "" {
		s := models.ValidationStatus(status)
		filter.ValidationStatus = &s
	}
	if status := c.Query("override_status"); status != "" {
		s := models.OverrideStatus(status)
		filter.OverrideStatus = &s
	}
	filter.Reference = c.Query("reference")

	result, err := h.transactionService.Search(c.Request.Context(), services.TransactionSearchParams{
		PageRequest:  utils.PageRequestFrom(c),
		TransactionFilter: filter,
	})
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.PaginatedResponse(c, *result)
}

// GET /transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	tx, err := h.transactionService.Get(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"transaction": tx,
	})
}

// POST /transactions/:id/validate
func (h *TransactionHandler) Validate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	outcome, err := h.transactionService.ValidatePending(c.Request.Context(), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyTransactionValidated),
		"transaction": outcome.Transaction,
		"result":      outcome.Result,
	})
}

// POST /transactions/:id/revalidate
func (h *TransactionHandler) Revalidate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	outcome, err := h.transactionService.Revalidate(c.Request.Context(), id, userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, i18n.KeyTransactionRevalidated),
		"transaction": outcome.Transaction,
		"result":      outcome.Result,
	})
}

// GET /overrides/pending
func (h *TransactionHandler) ListPendingOverrides(c *gin.Context) {
	txs, err := h.transactionService.ListPendingOverrides(c.Request.Context())
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// POST /overrides/:id/approve
func (h *TransactionHandler) ApproveOverride(c *gin.Context) {
	h.decideOverride(c, true)
}

// POST /overrides/:id/reject
func (h *TransactionHandler) RejectOverride(c *gin.Context) {
	h.decideOverride(c, false)
}

func (h *TransactionHandler) decideOverride(c *gin.Context, approve bool) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.OverrideDecisionRequest
	if !bindJSON(c, &req) {
		return
	}

	decide, key := h.transactionService.RejectOverride, i18n.KeyOverrideRejected
	if approve {
		decide, key = h.transactionService.ApproveOverride, i18n.KeyOverrideApproved
	}
	tx, err := decide(c.Request.Context(), id, userID, role, &req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(lang, key),
		"transaction": tx,
	})
}
