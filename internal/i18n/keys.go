// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserInactive       = "auth.user_inactive"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthLogoutSuccess      = "auth.logout_success"
	KeyAuthAccessDenied       = "auth.access_denied"

	// Users
	KeyUserNotFound    = "user.not_found"
	KeyUserCreated     = "user.created"
	KeyUserSuspended   = "user.suspended"
	KeyUserReactivated = "user.reactivated"

	// Customers
	KeyCustomerNotFound   = "customer.not_found"
	KeyCustomerSuspended  = "customer.suspended"
	KeyCustomerReinstated = "customer.reinstated"
	KeyCustomerUpdated    = "customer.updated"

	// Substances
	KeySubstanceNotFound = "substance.not_found"

	// Licences
	KeyLicenceNotFound     = "licence.not_found"
	KeyLicenceCorrected    = "licence.corrected"
	KeyLicenceStatusChange = "licence.status_changed"

	// Thresholds
	KeyThresholdNotFound    = "threshold.not_found"
	KeyThresholdDeactivated = "threshold.deactivated"

	// Transactions
	KeyTransactionNotFound    = "transaction.not_found"
	KeyTransactionValidated   = "transaction.validated"
	KeyTransactionRevalidated = "transaction.revalidated"

	// Overrides
	KeyOverrideApproved = "override.approved"
	KeyOverrideRejected = "override.rejected"

	// Errors
	KeyErrInvalidOperation    = "error.invalid_operation"
	KeyErrNotFound            = "error.not_found"
	KeyErrExternalUnavailable = "error.external_unavailable"
	KeyErrConcurrencyConflict = "error.concurrency_conflict"
	KeyErrValidationFailed    = "error.validation_failed"
	KeyErrInternal            = "error.internal"
	KeyErrRateLimited         = "error.rate_limited"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"
	KeyFileDeleted       = "file.deleted"
)
