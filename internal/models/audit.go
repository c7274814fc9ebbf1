// internal/models/audit.go
package models

import (
	"github.com/google/uuid"
)

// Audit actions written explicitly by the services, in addition to the
// per-request entries recorded by the audit middleware.
const (
	AuditActionOverrideApproved   = "override.approved"
	AuditActionOverrideRejected   = "override.rejected"
	AuditActionRevalidated        = "transaction.revalidated"
	AuditActionLicenceCorrected   = "licence.corrected"
	AuditActionLicenceStatus      = "licence.status_changed"
	AuditActionCustomerSuspended  = "customer.suspended"
	AuditActionCustomerReinstated = "customer.reinstated"
	AuditActionCustomerApproval   = "customer.approval_changed"
	AuditActionLicencesExpired    = "licence.expiry_sweep"
	AuditActionUserStatus         = "user.status_changed"
)

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	OldValues    JSONB      `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
